package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cached media entries",
}

var cacheExpireCmd = &cobra.Command{
	Use:   "expire <media-id>...",
	Short: "Drop cached media entries so the next lookup refetches them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid media id %q: %w", arg, err)
			}
			ids = append(ids, id)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, id := range ids {
			if err := a.media.Expire(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d\n", id)
		}
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheExpireCmd)
	rootCmd.AddCommand(cacheCmd)
}
