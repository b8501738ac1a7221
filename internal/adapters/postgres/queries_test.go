package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"orgwatch/internal/domain"
	"orgwatch/internal/ports"
)

func TestUpdateQuery(t *testing.T) {
	status := domain.StatusUnderReview
	on := true
	keep := "org-keep"
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	q, args, ok := updateQuery("org-1", domain.OrganizationUpdate{
		Status:        &status,
		TouFlag:       &on,
		DuplicateOf:   &keep,
		LastScannedAt: &at,
	})

	assert.True(t, ok)
	assert.Equal(t, "UPDATE organizations SET status = $1, tou_flag = $2, duplicate_of = $3, last_scanned_at = $4 WHERE id = $5", q)
	assert.Equal(t, []any{"under_review", true, "org-keep", at, "org-1"}, args)
}

func TestUpdateQuery_Empty(t *testing.T) {
	_, _, ok := updateQuery("org-1", domain.OrganizationUpdate{})
	assert.False(t, ok)
}

func TestListQuery(t *testing.T) {
	q, args := listQuery(ports.OrganizationFilter{Statuses: []domain.Status{domain.StatusLive}})
	assert.Contains(t, q, "WHERE status = ANY($1) AND NOT duplicate_flag ORDER BY created_at, id")
	assert.Equal(t, []any{[]string{"live"}}, args)

	q, args = listQuery(ports.OrganizationFilter{IncludeDuplicates: true})
	assert.NotContains(t, q, "WHERE")
	assert.Empty(t, args)
}
