package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/hope-map/internal/config"
	"github.com/ashureev/hope-map/internal/logging"
	"github.com/ashureev/hope-map/internal/prep"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	cfg        *config.Config
	logger     *slog.Logger
	logCloser  io.Closer
)

var rootCmd = &cobra.Command{
	Use:          "storyprep",
	Short:        "Analyze and geocode disaster stories for the Hope chat server",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		logger, logCloser = logging.Setup(cfg.Log)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "hope.toml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(analyzeCmd, geocodeCmd, evaluateCmd)
}

// closeLog releases the rotating log file. Safe to call more than once.
func closeLog() error {
	if logCloser == nil {
		return nil
	}
	c := logCloser
	logCloser = nil
	return c.Close()
}

// interruptible returns a context cancelled on SIGINT or SIGTERM.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printProgress(done, total int, story prep.Story) {
	fmt.Printf("  [%d/%d] %s\n", done, total, story.ID)
}
