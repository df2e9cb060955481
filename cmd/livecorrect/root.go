package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gabrielmiguelok/livecorrect/pkg/config"
	"github.com/gabrielmiguelok/livecorrect/pkg/logging"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "livecorrect",
	Short: "Correct transcription pages in the browser",
	Long: `livecorrect serves a transcription page with its cutouts and semantic
coloring. In edit mode every paragraph and header can be corrected in place;
pressing finish writes the page back to disk and stops the server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads the config file and environment, then applies the
// command-line flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) logging.Logger {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using info\n", err)
	}
	opts := []logging.LoggerOption{logging.WithLevel(level), logging.WithOutput(os.Stderr)}
	if cfg.Log.JSON {
		opts = append(opts, logging.WithJSON())
	}
	if cfg.Debug {
		opts = append(opts, logging.WithSource())
	}
	return logging.NewSlogLogger(opts...)
}
