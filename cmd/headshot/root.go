package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/menta2k/headshot"
	"github.com/menta2k/headshot/internal/config"
	"github.com/menta2k/headshot/internal/logging"
)

// globalFlags override values from the config file when set.
type globalFlags struct {
	ConfigPath  string
	LogLevel    string
	Backend     string
	CascadePath string
	URL         string
	Model       string
}

var (
	flags globalFlags

	// cfg is the loaded configuration shared by subcommands
	cfg *config.Config
	// logger is built from cfg.Log in PersistentPreRunE
	logger    *slog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:          "headshot",
	Short:        "Face-anchored head-and-shoulders photo cropping",
	Version:      headshot.Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(cmd)
		if err != nil {
			return err
		}

		logger, logCloser, err = logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	err := rootCmd.ExecuteContext(ctx)
	closeLog()
	if err != nil {
		stop()
		os.Exit(1)
	}
}

// closeLog flushes the log file, if any. Runs whether or not the command
// failed.
func closeLog() {
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file (default: "+config.GetConfigPath()+")")
	pf.StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.Backend, "backend", "", "face detector: pigo, ollama or llamacpp")
	pf.StringVar(&flags.CascadePath, "cascade", "", "pigo facefinder cascade file")
	pf.StringVar(&flags.URL, "url", "", "vision model server URL")
	pf.StringVar(&flags.Model, "model", "", "vision model name")
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := flags.ConfigPath
	explicit := path != ""
	if !explicit {
		path = config.GetConfigPath()
	}

	var (
		c   *config.Config
		err error
	)
	if explicit {
		c, err = config.LoadFromFile(path)
	} else {
		c, err = config.Load(path)
	}
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("log-level") {
		c.Log.Level = flags.LogLevel
	}
	if changed("backend") {
		c.Detector.Backend = flags.Backend
	}
	if changed("cascade") {
		c.Detector.CascadePath = flags.CascadePath
	}
	if changed("url") {
		c.Detector.URL = flags.URL
	}
	if changed("model") {
		c.Detector.Model = flags.Model
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}
