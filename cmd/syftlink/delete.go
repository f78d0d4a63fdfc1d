package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd(c *cli) *cobra.Command {
	var clean bool

	deleteCmd := &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a link",
		Long: `Remove a link definition and its ledger. The remote is never touched.
With --clean the local folder is deleted as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := c.registry()
			if err != nil {
				return err
			}

			l, err := reg.Delete(args[0], clean)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted link %s\n", cyan.Render(l.Name))
			if clean {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", l.Local)
			}
			return nil
		},
	}

	deleteCmd.Flags().BoolVar(&clean, "clean", false, "also delete the local folder")
	return deleteCmd
}
