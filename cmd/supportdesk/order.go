package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hupe1980/supportdesk/agent"
	"github.com/hupe1980/supportdesk/crm"
)

func newOrderCmd(c *cli) *cobra.Command {
	var (
		workspaceID string
		threadID    string
		userID      string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "order [instruction]",
		Short: "Run a single order instruction through the agent",
		Long: `Runs one instruction, e.g.

  supportdesk order -w acme-ws "3 widgets for Globex at 12.50"

Pass --thread to answer a clarification question from an earlier run.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			b, err := openBackend(ctx, c.cfg, c.logger.WithComponent("backend"), false)
			if err != nil {
				return err
			}
			defer b.close()

			var extra []func(o *agent.Options)
			if !asJSON {
				extra = append(extra, func(o *agent.Options) {
					o.OnPartial = func(text string) { fmt.Fprint(out, text) }
				})
			}

			desk, err := newDesk(c.cfg, b, c.logger, extra...)
			if err != nil {
				return err
			}

			res, err := desk.Order(ctx, agent.Request{
				WorkspaceID: workspaceID,
				ThreadID:    threadID,
				UserID:      userID,
				Instruction: strings.Join(args, " "),
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			if c.cfg.Model.Stream {
				fmt.Fprintln(out)
			} else {
				fmt.Fprintln(out, res.Answer)
			}
			printOrders(cmd, res.Orders)
			color.New(color.FgHiBlack).Fprintf(out, "thread %s, %d steps\n", res.ThreadID, res.Steps)
			return nil
		},
	}

	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "", "workspace id (required)")
	cmd.Flags().StringVarP(&threadID, "thread", "t", "", "continue an existing thread")
	cmd.Flags().StringVarP(&userID, "user", "u", "cli", "user id recorded on created orders")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

func printOrders(cmd *cobra.Command, orders []crm.Order) {
	green := color.New(color.FgGreen)
	for _, o := range orders {
		green.Fprint(cmd.OutOrStdout(), "  ✔ ")
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %d x %s for %s  %s\n",
			o.ID, o.Quantity, o.Product, o.CompanyName, agent.FormatCents(o.TotalCents(), o.Currency))
	}
}
