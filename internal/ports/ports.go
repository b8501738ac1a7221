package ports

import (
	"context"

	"orgwatch/internal/domain"
)

// Scanner enqueues and tracks organization scans.
type Scanner interface {
	Enqueue(ctx context.Context, orgID string) (scanID string, err error)
	Status(ctx context.Context, scanID string) (domain.Scan, error)
}

// Gate evaluates the crawl decision for a stored organization.
type Gate interface {
	Decide(ctx context.Context, orgID string) (domain.GateDecision, error)
}

// DuplicateAuditor runs a duplicate-organization audit, optionally applying
// the proposed flags.
type DuplicateAuditor interface {
	Run(ctx context.Context, apply bool) ([]domain.DuplicatePair, error)
}

// EventExtractor is the AI field-extraction service.
type EventExtractor interface {
	ExtractStructuredEvents(ctx context.Context, pageText string, links []string) ([]domain.EventDraft, error)
}
