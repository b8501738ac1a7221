package scanner

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"orgwatch/internal/logger"
	"orgwatch/internal/ports"
)

// BatchOutcome is one organization's result within a batch. Err is set when
// that organization failed; other organizations are unaffected.
type BatchOutcome struct {
	OrganizationID string
	Summary        Summary
	Err            error
}

// Batch scans many organizations concurrently, bounded by a limit.
type Batch struct {
	svc   *Service
	limit int
	log   logger.Logger
}

func NewBatch(svc *Service, limit int, log logger.Logger) *Batch {
	if limit < 1 {
		limit = 1
	}
	return &Batch{svc: svc, limit: limit, log: log}
}

// Run scans every organization matching filter. Only listing failures and
// cancellation are returned as errors.
func (b *Batch) Run(ctx context.Context, filter ports.OrganizationFilter) ([]BatchOutcome, error) {
	orgs, err := b.svc.orgs.ListOrganizations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}

	out := make([]BatchOutcome, len(orgs))
	var g errgroup.Group
	g.SetLimit(b.limit)
	for i, org := range orgs {
		i, org := i, org
		if err := ctx.Err(); err != nil {
			out[i] = BatchOutcome{OrganizationID: org.ID, Err: err}
			continue
		}
		g.Go(func() error {
			sum, err := b.svc.ScanOrganization(ctx, org.ID)
			out[i] = BatchOutcome{OrganizationID: org.ID, Summary: sum, Err: err}
			if err != nil {
				b.log.Error("organization scan failed", logger.String("org_id", org.ID), logger.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range out {
		if o.Err != nil {
			failed++
		}
	}
	b.log.Info("batch scan finished",
		logger.Int("organizations", len(orgs)),
		logger.Int("failed", failed))
	return out, ctx.Err()
}
