// Package rules holds the keyword, phrase, path and threshold data used by the
// scanners. Rules are loaded once and shared by pointer; nothing mutates them.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

type Legal struct {
	LinkSubstrings      []string `yaml:"link_substrings"`
	ProbePaths          []string `yaml:"probe_paths"`
	RestrictionKeywords []string `yaml:"restriction_keywords"`
	RestrictionPhrases  []string `yaml:"restriction_phrases"`
	SnippetRadius       int      `yaml:"snippet_radius"`
	OffsiteTopics       []string `yaml:"offsite_topics"`
	PlatformHosts       []string `yaml:"platform_hosts"`
}

type Events struct {
	TopicKeywords     []string `yaml:"topic_keywords"`
	ProbePaths        []string `yaml:"probe_paths"`
	IndicatorPhrases  []string `yaml:"indicator_phrases"`
	EventLinkPatterns []string `yaml:"event_link_patterns"`
	MaxLinkCandidates int      `yaml:"max_link_candidates"`
}

type Render struct {
	HighThreshold         int      `yaml:"high_threshold"`
	MediumThreshold       int      `yaml:"medium_threshold"`
	TextRatioFloor        float64  `yaml:"text_ratio_floor"`
	LargePageBytes        int      `yaml:"large_page_bytes"`
	FrameworkFingerprints []string `yaml:"framework_fingerprints"`

	fingerprints []*regexp.Regexp
}

// Fingerprints returns the compiled framework fingerprint patterns.
func (r *Render) Fingerprints() []*regexp.Regexp { return r.fingerprints }

type Duplicates struct {
	NameThreshold       float64  `yaml:"name_threshold"`
	StopWords           []string `yaml:"stop_words"`
	SecondLevelSuffixes []string `yaml:"second_level_suffixes"`
}

type Rules struct {
	Legal      Legal      `yaml:"legal"`
	Events     Events     `yaml:"events"`
	Render     Render     `yaml:"render"`
	Duplicates Duplicates `yaml:"duplicates"`
}

// Default returns the embedded rule set.
func Default() (*Rules, error) {
	return Parse(defaultRules)
}

// MustDefault is Default for package-level test fixtures and main wiring.
func MustDefault() *Rules {
	r, err := Default()
	if err != nil {
		panic(fmt.Sprintf("embedded rules: %v", err))
	}
	return r
}

// Load reads rules from path, or returns the embedded defaults when path is empty.
func Load(path string) (*Rules, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	r.normalize()
	if err := r.validate(); err != nil {
		return nil, err
	}
	for _, expr := range r.Render.FrameworkFingerprints {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, fmt.Errorf("compile fingerprint %q: %w", expr, err)
		}
		r.Render.fingerprints = append(r.Render.fingerprints, re)
	}
	return &r, nil
}

// normalize lowercases match lists; all matching is case-insensitive.
func (r *Rules) normalize() {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	r.Legal.LinkSubstrings = lower(r.Legal.LinkSubstrings)
	r.Legal.RestrictionKeywords = lower(r.Legal.RestrictionKeywords)
	r.Legal.RestrictionPhrases = lower(r.Legal.RestrictionPhrases)
	r.Legal.OffsiteTopics = lower(r.Legal.OffsiteTopics)
	r.Legal.PlatformHosts = lower(r.Legal.PlatformHosts)
	r.Events.TopicKeywords = lower(r.Events.TopicKeywords)
	r.Events.IndicatorPhrases = lower(r.Events.IndicatorPhrases)
	r.Events.EventLinkPatterns = lower(r.Events.EventLinkPatterns)
	r.Duplicates.StopWords = lower(r.Duplicates.StopWords)
	r.Duplicates.SecondLevelSuffixes = lower(r.Duplicates.SecondLevelSuffixes)

	if r.Legal.SnippetRadius <= 0 {
		r.Legal.SnippetRadius = 80
	}
	if r.Events.MaxLinkCandidates <= 0 {
		r.Events.MaxLinkCandidates = 5
	}
	if r.Render.LargePageBytes <= 0 {
		r.Render.LargePageBytes = 10000
	}
	if r.Render.TextRatioFloor <= 0 {
		r.Render.TextRatioFloor = 0.05
	}
}

func (r *Rules) validate() error {
	var errs []error
	if len(r.Legal.RestrictionKeywords)+len(r.Legal.RestrictionPhrases) == 0 {
		errs = append(errs, errors.New("legal: no restriction keywords or phrases"))
	}
	if len(r.Events.TopicKeywords) == 0 {
		errs = append(errs, errors.New("events: no topic keywords"))
	}
	if r.Render.MediumThreshold <= 0 || r.Render.HighThreshold < r.Render.MediumThreshold {
		errs = append(errs, fmt.Errorf("render: thresholds medium=%d high=%d", r.Render.MediumThreshold, r.Render.HighThreshold))
	}
	if r.Duplicates.NameThreshold <= 0 || r.Duplicates.NameThreshold > 1 {
		errs = append(errs, fmt.Errorf("duplicates: name threshold %v out of (0,1]", r.Duplicates.NameThreshold))
	}
	return errors.Join(errs...)
}
