package scanner_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgwatch/internal/domain"
	"orgwatch/internal/services/scanner"
)

var scannedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func withHomepage(outcome string, res domain.ScanResult) domain.ScanResult {
	res.Record(domain.StepHomepage, outcome, "")
	return res
}

func TestProposeUpdate_Blocked(t *testing.T) {
	upd := scanner.ProposeUpdate(domain.ScanResult{TechBlockFlag: true, TouFlag: true, TouNotes: "blocked"}, scannedAt)

	require.NotNil(t, upd.TechBlockFlag)
	require.NotNil(t, upd.TouFlag)
	assert.True(t, *upd.TechBlockFlag)
	assert.True(t, *upd.TouFlag)
	assert.Nil(t, upd.TechRenderingFlag)
	assert.Nil(t, upd.EventsURL)
	assert.Equal(t, scannedAt, *upd.LastScannedAt)
}

func TestProposeUpdate_LegalOutcomes(t *testing.T) {
	tests := []struct {
		outcome domain.LegalOutcome
		tou     *bool
	}{
		{domain.LegalRestricted, ptr(true)},
		{domain.LegalClear, ptr(false)},
		{domain.LegalNoPages, ptr(false)},
		{domain.LegalUnverified, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			res := withHomepage("ok", domain.ScanResult{LegalOutcome: tt.outcome, TouURL: "https://x.org/terms"})

			upd := scanner.ProposeUpdate(res, scannedAt)

			assert.Equal(t, tt.tou, upd.TouFlag)
			require.NotNil(t, upd.TechBlockFlag)
			assert.False(t, *upd.TechBlockFlag)
		})
	}
}

func TestProposeUpdate_SoftFailureLeavesFlags(t *testing.T) {
	res := withHomepage("network_error", domain.ScanResult{LegalOutcome: domain.LegalUnverified})

	upd := scanner.ProposeUpdate(res, scannedAt)

	assert.Nil(t, upd.TouFlag)
	assert.Nil(t, upd.TechBlockFlag)
	assert.Nil(t, upd.TechRenderingFlag)
}

func TestProposeUpdate_RenderAndEvents(t *testing.T) {
	res := withHomepage("ok", domain.ScanResult{
		LegalOutcome:             domain.LegalClear,
		EventsURL:                "https://x.org/events",
		EventsURLMethod:          domain.EventsMethodCommonPath,
		RenderChecked:            true,
		RenderDependencyDetected: true,
		RenderConfidence:         domain.ConfidenceHigh,
	})

	upd := scanner.ProposeUpdate(res, scannedAt)

	require.NotNil(t, upd.TechRenderingFlag)
	assert.True(t, *upd.TechRenderingFlag)
	assert.Equal(t, domain.ConfidenceHigh, *upd.RenderConfidence)
	assert.Equal(t, "https://x.org/events", *upd.EventsURL)
	assert.False(t, *upd.EventsURLValidated)
	assert.Equal(t, domain.EventsMethodCommonPath, *upd.EventsURLMethod)

	res.RenderChecked = false
	assert.Nil(t, scanner.ProposeUpdate(res, scannedAt).TechRenderingFlag)
}

func ptr[T any](v T) *T { return &v }
