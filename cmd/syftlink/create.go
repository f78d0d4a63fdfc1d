package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCreateCmd(c *cli) *cobra.Command {
	var local string
	var noSync bool
	var flags syncFlags

	createCmd := &cobra.Command{
		Use:   "create <name> <remote>",
		Short: "Link a local folder to a remote location",
		Long: `Link a local folder to a remote location.

The remote is either a directory path or an S3 location such as s3://bucket/prefix.
Unless --no-sync is given, the new link is synced right away.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := c.registry()
			if err != nil {
				return err
			}

			l, err := reg.Create(args[0], local, args[1], time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created link %s: %s <-> %s\n",
				cyan.Render(l.Name), l.Local, l.Remote)

			if noSync {
				return nil
			}
			return c.runSync(cmd, l, flags)
		},
	}

	createCmd.Flags().SortFlags = false
	createCmd.Flags().StringVarP(&local, "local", "l", ".", "local folder to link")
	createCmd.Flags().BoolVar(&noSync, "no-sync", false, "only register the link, do not sync")
	createCmd.Flags().StringVar(&flags.prefer, "prefer", "", "resolve conflicts of the first sync without asking: local, remote or newer")

	return createCmd
}
