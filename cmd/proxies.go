package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var proxiesCmd = &cobra.Command{
	Use:   "proxies",
	Short: "Inspect and restock the proxy pool",
}

var proxiesRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Scrape the configured proxy sources once and add the results to the pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		added, err := a.refresher.RefreshOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %d proxies\n", added)
		return nil
	},
}

var proxiesCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of proxies in the pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		size, err := a.pool.Size(context.Background())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), size)
		return nil
	},
}

func init() {
	proxiesCmd.AddCommand(proxiesRefreshCmd, proxiesCountCmd)
	rootCmd.AddCommand(proxiesCmd)
}
