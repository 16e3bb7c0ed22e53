package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	crmpg "github.com/hupe1980/supportdesk/crm/postgres"
	"github.com/hupe1980/supportdesk/internal/auth"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Database.URL == "" {
				return fmt.Errorf("database.url is not configured")
			}
			pool, err := openPool(cmd.Context(), c.cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := crmpg.Migrate(cmd.Context(), pool)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}

func newTokenCmd(c *cli) *cobra.Command {
	var p auth.Principal

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed API token for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := auth.NewJWTVerifier([]byte(c.cfg.Auth.JWTSecret),
				auth.WithIssuer(c.cfg.Auth.Issuer),
				auth.WithAudience(c.cfg.Auth.Audience),
			)
			tok, err := v.Issue(p, c.cfg.Auth.TokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVarP(&p.WorkspaceID, "workspace", "w", "", "workspace id (required)")
	cmd.Flags().StringVarP(&p.UserID, "user", "u", "dev", "user id (sub claim)")
	cmd.Flags().StringVar(&p.Role, "role", "", "optional role claim")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

func newCompaniesCmd(c *cli) *cobra.Command {
	var (
		workspaceID string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "companies [query]",
		Short: "Search companies the way the agent does",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), c.cfg, c.logger.WithComponent("backend"), false)
			if err != nil {
				return err
			}
			defer b.close()

			companies, err := b.store.SearchCompanies(cmd.Context(), workspaceID, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if len(companies) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matching companies")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tDOMAIN")
			for _, co := range companies {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", co.ID, co.Name, co.Domain)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "", "workspace id (required)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}
