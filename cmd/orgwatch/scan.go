package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"orgwatch/internal/domain"
	"orgwatch/internal/ports"
	"orgwatch/internal/services/scanner"
)

type batchLine struct {
	OrganizationID  string             `json:"organization_id"`
	Result          *domain.ScanResult `json:"result,omitempty"`
	NewRestrictions []string           `json:"new_restrictions,omitempty"`
	Error           string             `json:"error,omitempty"`
}

func scanCommand() *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "scan [org-id]",
		Short: "Scan one organization, or every organization in the given statuses",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 1 {
				sum, err := a.Scanner.ScanOrganization(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), line(scanner.BatchOutcome{OrganizationID: args[0], Summary: sum}))
			}

			filter := ports.OrganizationFilter{}
			for _, s := range statuses {
				filter.Statuses = append(filter.Statuses, domain.Status(s))
			}
			outcomes, runErr := a.Batch.Run(ctx, filter)
			lines := make([]batchLine, 0, len(outcomes))
			failed := 0
			for _, o := range outcomes {
				if o.Err != nil {
					failed++
				}
				lines = append(lines, line(o))
			}
			if err := printJSON(cmd.OutOrStdout(), lines); err != nil {
				return err
			}
			if runErr != nil {
				return runErr
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scans failed", failed, len(outcomes))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", []string{string(domain.StatusLive)}, "organization statuses to scan in batch mode")
	return cmd
}

func line(o scanner.BatchOutcome) batchLine {
	l := batchLine{OrganizationID: o.OrganizationID}
	if o.Err != nil {
		l.Error = o.Err.Error()
		if errors.Is(o.Err, ports.ErrNotFound) {
			l.Error = "organization not found"
		}
		return l
	}
	res := o.Summary.Result
	l.Result = &res
	l.NewRestrictions = o.Summary.Transition.NewRestrictions
	return l
}
