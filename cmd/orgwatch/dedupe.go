package main

import (
	"github.com/spf13/cobra"

	"orgwatch/internal/domain"
)

func dedupeCommand() *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Find duplicate organizations; with --apply, flag the weaker record of each pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			pairs, err := a.Duplicates.Run(ctx, apply)
			if err != nil {
				return err
			}
			if pairs == nil {
				pairs = []domain.DuplicatePair{}
			}
			return printJSON(cmd.OutOrStdout(), pairs)
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "write duplicate flags to the store")
	return cmd
}
