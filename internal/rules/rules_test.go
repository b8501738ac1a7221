package rules_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgwatch/internal/rules"
)

func TestDefault(t *testing.T) {
	r, err := rules.Default()
	require.NoError(t, err)

	assert.Contains(t, r.Legal.RestrictionKeywords, "data mining")
	assert.Contains(t, r.Legal.RestrictionPhrases, "prior written consent")
	assert.Len(t, r.Legal.ProbePaths, 14)
	assert.Len(t, r.Events.ProbePaths, 12)
	assert.Equal(t, 4, r.Render.HighThreshold)
	assert.Equal(t, 2, r.Render.MediumThreshold)
	assert.Equal(t, 80, r.Legal.SnippetRadius)
	assert.Contains(t, r.Legal.OffsiteTopics, "acceptable")
	assert.NotContains(t, r.Legal.OffsiteTopics, "privacy")
	assert.Contains(t, r.Legal.PlatformHosts, "twitter.com")
	assert.Len(t, r.Render.Fingerprints(), len(r.Render.FrameworkFingerprints))
}

func TestFingerprint_EmptyRootContainer(t *testing.T) {
	r := rules.MustDefault()

	matched := false
	for _, re := range r.Render.Fingerprints() {
		if re.MatchString(`<body><div id="root"></div></body>`) {
			matched = true
		}
	}
	assert.True(t, matched)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	data := []byte(`
legal:
  restriction_keywords: [Scraping]
events:
  topic_keywords: [events]
render:
  high_threshold: 5
  medium_threshold: 3
duplicates:
  name_threshold: 0.8
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	r, err := rules.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"scraping"}, r.Legal.RestrictionKeywords)
	assert.Equal(t, 5, r.Render.HighThreshold)
	assert.Equal(t, 0.8, r.Duplicates.NameThreshold)
}

func TestParse_InvalidThresholds(t *testing.T) {
	_, err := rules.Parse([]byte(`
legal:
  restriction_keywords: [scraping]
events:
  topic_keywords: [events]
render:
  high_threshold: 1
  medium_threshold: 2
duplicates:
  name_threshold: 0.75
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render")
}
