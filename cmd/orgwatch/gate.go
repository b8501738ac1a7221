package main

import (
	"github.com/spf13/cobra"
)

func gateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gate <org-id>",
		Short: "Print the crawl decision for an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			decision, err := a.Gate.Decide(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), decision)
		},
	}
}
