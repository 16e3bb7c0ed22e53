package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hupe1980/supportdesk/internal/config"
)

const banner = `
   ___                         _      _           _
  / __|_  _ _ __ _ __  ___ _ _| |_ __| |___ ___| |__
  \__ \ || | '_ \ '_ \/ _ \ '_|  _/ _' / -_|_-<| / /
  |___/\_,_| .__/ .__/\___/_|  \__\__,_\___/__/|_\_\
           |_|  |_|
`

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			printBanner(cmd.OutOrStdout(), c.cfg)

			b, err := openBackend(ctx, c.cfg, c.logger.WithComponent("backend"), true)
			if err != nil {
				return err
			}
			defer b.close()

			desk, err := newDesk(c.cfg, b, c.logger)
			if err != nil {
				return err
			}

			c.logger.Info("supportdesk.start",
				"version", version,
				"http_addr", c.cfg.Server.HTTPAddr,
				"model_provider", c.cfg.Model.Provider,
			)
			return desk.Run(ctx)
		},
	}
}

func printBanner(w io.Writer, cfg *config.Config) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(w, banner)
	gray.Fprintf(w, "    version: %s\n\n", version)

	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "Model:     %s", cfg.Model.Provider)
	if cfg.Model.Name != "" {
		gray.Fprintf(w, " (%s)", cfg.Model.Name)
	}
	fmt.Fprintln(w)
	green.Fprint(w, "    ▶ ")
	if cfg.Database.URL == "" {
		fmt.Fprint(w, "Storage:   ")
		yellow.Fprintln(w, "in-memory")
	} else {
		fmt.Fprintln(w, "Storage:   postgres")
	}
	fmt.Fprintln(w)
}
