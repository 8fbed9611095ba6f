// Package cli implements the chatctx command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/s33g/chatctx/internal/config"
	"github.com/s33g/chatctx/internal/logging"
)

// DefaultConfigPath is used when --config is not given
const DefaultConfigPath = "config/config.yaml"

type rootOptions struct {
	configPath string
	logLevel   string

	config *config.Config
	logger zerolog.Logger
	app    *App
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	return newRootCmd(&rootOptions{})
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chatctx",
		Short: "Prepare chat history for language-model providers",
		Long: "chatctx normalizes stored thread history, trims it to a token budget " +
			"and shapes it for the selected provider.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", DefaultConfigPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	// Subcommands
	rootCmd.AddCommand(newPrepareCmd(opts))
	rootCmd.AddCommand(newRecordCmd(opts))
	rootCmd.AddCommand(newThreadsCmd(opts))
	rootCmd.AddCommand(newModelsCmd(opts))
	rootCmd.AddCommand(newSessionCmd(opts))

	// Close the app after every RunE, failed ones included
	closeAfterRun(rootCmd, opts)

	return rootCmd
}

func closeAfterRun(cmd *cobra.Command, opts *rootOptions) {
	for _, sub := range cmd.Commands() {
		closeAfterRun(sub, opts)
	}
	if cmd.RunE == nil {
		return
	}

	run := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if closeErr := opts.closeApp(); err == nil {
				err = closeErr
			}
		}()
		return run(cmd, args)
	}
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	explicit := cmd.Flags().Changed("config")
	cfg, err := config.LoadOrDefault(o.configPath, explicit)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	o.config = cfg
	o.logger = logger
	return nil
}

// openApp lazily opens the thread store; commands that work on files alone never call it
func (o *rootOptions) openApp(ctx context.Context) (*App, error) {
	if o.app != nil {
		return o.app, nil
	}

	app, err := NewApp(ctx, o.config, o.configPath, logging.Component(o.logger, "app"))
	if err != nil {
		return nil, fmt.Errorf("failed to open thread store: %w", err)
	}
	o.app = app
	return app, nil
}

func (o *rootOptions) closeApp() error {
	if o.app == nil {
		return nil
	}
	err := o.app.Close()
	o.app = nil
	return err
}
