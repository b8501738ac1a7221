// Package gate turns organization state into a crawl decision.
package gate

import (
	"fmt"
	"strings"

	"orgwatch/internal/domain"
)

// Denial reasons.
const (
	ReasonNotLive          = "not live"
	ReasonPermissionDenied = "permission denied"
	ReasonTermsRestrict    = "terms of use restrict automated access"
	ReasonTechBlock        = "site blocks automated access"
	ReasonRendering        = "events page requires client-side rendering"
)

// Flag names as reported in warnings and transitions.
const (
	FlagTou       = "tou_flag"
	FlagTechBlock = "tech_block_flag"
	FlagRendering = "tech_rendering_flag"
)

type flag struct {
	name   string
	reason string
	set    func(domain.OrganizationState) bool
}

var flags = []flag{
	{FlagTou, ReasonTermsRestrict, func(s domain.OrganizationState) bool { return s.TouFlag }},
	{FlagTechBlock, ReasonTechBlock, func(s domain.OrganizationState) bool { return s.TechBlockFlag }},
	{FlagRendering, ReasonRendering, func(s domain.OrganizationState) bool { return s.TechRenderingFlag }},
}

// Evaluate applies the checks in order: live status, denied permission
// (absolute), waiver, then every restriction flag.
func Evaluate(s domain.OrganizationState) domain.GateDecision {
	d := domain.GateDecision{Reasons: []string{}}

	if s.Status != domain.StatusLive {
		d.Reasons = append(d.Reasons, ReasonNotLive)
		return d
	}
	if s.PermissionType == domain.PermissionDenied {
		d.Reasons = append(d.Reasons, ReasonPermissionDenied)
		return d
	}
	if s.PermissionType == domain.PermissionWaiver {
		d.Allowed, d.WaiverApplied = true, true
		for _, f := range flags {
			if f.set(s) {
				d.Warnings = append(d.Warnings, fmt.Sprintf("waiver overrides %s; confirm it still covers: %s", f.name, f.reason))
			}
		}
		return d
	}

	for _, f := range flags {
		if f.set(s) {
			d.Reasons = append(d.Reasons, f.reason)
		}
	}
	d.Allowed = len(d.Reasons) == 0
	return d
}

// Transition describes restriction flags that a fresh scan turned on.
type Transition struct {
	NewRestrictions []string
	WaiverCovered   bool
	// ResetStatus moves a live organization to review.
	ResetStatus    bool
	SuppressScrape bool
	Warning        string
}

// HasNewRestrictions reports whether any flag went from false to true.
func (t Transition) HasNewRestrictions() bool { return len(t.NewRestrictions) > 0 }

// EvaluateTransition compares state before and after a scan. Without a
// waiver, a new restriction suppresses scraping for the cycle and sends a
// live organization back to review. With a waiver only a warning is raised.
func EvaluateTransition(prev, next domain.OrganizationState) Transition {
	var t Transition
	for _, f := range flags {
		if !f.set(prev) && f.set(next) {
			t.NewRestrictions = append(t.NewRestrictions, f.name)
		}
	}
	if !t.HasNewRestrictions() {
		return t
	}

	list := strings.Join(t.NewRestrictions, ", ")
	if next.PermissionType == domain.PermissionWaiver {
		t.WaiverCovered = true
		t.Warning = "new restriction covered by waiver: " + list
		return t
	}
	t.SuppressScrape = true
	t.ResetStatus = next.Status == domain.StatusLive
	t.Warning = "new restriction without waiver: " + list
	return t
}
