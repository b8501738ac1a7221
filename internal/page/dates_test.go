package page_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"orgwatch/internal/page"
)

func TestCountDates(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"Join us March 14, 2025 for the gala", 1},
		{"Deadline 03/14/2025 and kickoff 2025-04-01", 2},
		{"Sept. 9th and 21 October", 2},
		{"You may register online", 0},
		{"No dates here at all", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, page.CountDates(tt.text), tt.text)
		assert.Equal(t, tt.want > 0, page.HasDate(tt.text), tt.text)
	}
}
