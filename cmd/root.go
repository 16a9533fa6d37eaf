package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	cfgPkg "github.com/xhad/multibot/pkg/config"
)

type rootOptions struct {
	configPath string
	logLevel   string
	config     *cfgPkg.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "multibot",
		Short:         "Multi-persona retrieval chatbot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (overrides config)")

	root.AddCommand(newServeCmd(opts), newLoadCmd(opts), newChatCmd(opts))
	return root
}

func (o *rootOptions) setup() error {
	// A missing .env is fine.
	_ = godotenv.Load()

	cfg, err := cfgPkg.LoadConfig(o.configPath)
	if err != nil {
		color.Red("Error: %v", err)
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		color.Red("Invalid configuration:")
		for _, e := range errs {
			color.Red("  - %s", e.Error())
		}
		return fmt.Errorf("invalid configuration: %d errors", len(errs))
	}

	setupLogging(cfg.Log)
	o.config = cfg
	return nil
}

func setupLogging(cfg cfgPkg.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
