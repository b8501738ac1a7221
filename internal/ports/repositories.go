package ports

import (
	"context"
	"errors"

	"orgwatch/internal/domain"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// OrganizationFilter selects organizations. Empty Statuses means any status.
type OrganizationFilter struct {
	Statuses          []domain.Status
	IncludeDuplicates bool
}

// OrganizationStore is the external record store. The engine reads
// organizations and proposes partial updates; the store applies them.
type OrganizationStore interface {
	GetOrganization(ctx context.Context, id string) (domain.Organization, error)
	ListOrganizations(ctx context.Context, filter OrganizationFilter) ([]domain.Organization, error)
	UpdateOrganization(ctx context.Context, id string, upd domain.OrganizationUpdate) error
	GetEventCount(ctx context.Context, orgID string) (int, error)
}

// SnapshotLocker grants exclusive access to the organization set for the
// duration of a duplicate audit. Stores implement it optionally.
type SnapshotLocker interface {
	LockSnapshot(ctx context.Context) (unlock func(), err error)
}

// ScanRepository manages scan records and their results.
type ScanRepository interface {
	Create(ctx context.Context, orgID string) (scanID string, err error)
	Get(ctx context.Context, scanID string) (domain.Scan, error)
	SaveResult(ctx context.Context, scanID string, res domain.ScanResult) error
}
