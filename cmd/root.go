package main

import (
	"context"
	"fmt"
	"os"

	"github.com/media-query-api/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var cfgFile string
var verbose bool

var rootCmd = &cobra.Command{
	Use:     "media-query-api",
	Short:   "Caching, proxy-rotating query layer in front of the AniList catalog",
	Version: version,
	// Errors are printed by Execute.
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, ./config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// loadConfig reads the configuration and applies its logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.Logging.Format == "text" {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}

	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", cfg.Logging.Level)
		level = log.InfoLevel
	}
	if verbose {
		level = log.DebugLevel
		cfg.Logging.Level = "debug"
	}
	log.SetLevel(level)

	return cfg, nil
}
