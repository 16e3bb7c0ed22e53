// Command supportdesk runs the order agent API and its admin tasks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/supportdesk/internal/config"
	"github.com/hupe1980/supportdesk/logging"
)

// version is overridden at build time via -ldflags.
var version = "dev"

// cli holds the persistent flags shared by all subcommands.
type cli struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *logging.DeskLogger
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "supportdesk",
		Short: "Support desk order agent",
		Long: `supportdesk turns free-text order instructions into CRM orders.

The agent looks up the company named in the instruction, asks for
clarification when several companies match and records the order.
Run "supportdesk serve" to expose the HTTP API used by the web app.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "config file (.yaml or .toml); defaults to $SUPPORTDESK_CONFIG")
	flags.StringVar(&c.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	flags.StringVar(&c.logFormat, "log-format", "", "override logging.format (text, json)")

	root.AddCommand(
		newServeCmd(c),
		newOrderCmd(c),
		newMigrateCmd(c),
		newTokenCmd(c),
		newCompaniesCmd(c),
	)
	return root
}

// init loads the configuration and builds the logger.
func (c *cli) init() error {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Logging.Format = c.logFormat
	}

	c.cfg = cfg
	c.logger = logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	return nil
}

// loadConfig reads path, falling back to $SUPPORTDESK_CONFIG and then to the
// built-in defaults plus environment.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("SUPPORTDESK_CONFIG")
	}
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	cfg := config.Default()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}
