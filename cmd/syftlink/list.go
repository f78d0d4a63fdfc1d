package main

import (
	"fmt"
	"log/slog"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/openmined/syftlink/internal/link"
	"github.com/openmined/syftlink/internal/sync"
	"github.com/spf13/cobra"
)

func newListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List links",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := c.registry()
			if err != nil {
				return err
			}

			links, err := reg.List()
			if err != nil {
				return err
			}
			if len(links) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No links in %s\n", gray.Render(reg.Root()))
				return nil
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("NAME", "LOCAL", "REMOTE", "LAST SYNC")
			for _, l := range links {
				t.Row(l.Name, l.Local, l.Remote, lastSync(l))
			}

			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}
}

func lastSync(l *link.Link) string {
	ledger, err := sync.LoadLedger(l.LedgerPath())
	if err != nil {
		slog.Warn("read ledger", "link", l.Name, "error", err)
		return "unknown"
	}
	latest := ledger.Latest()
	if latest.IsZero() {
		return "never"
	}
	return humanize.Time(latest)
}
