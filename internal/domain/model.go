package domain

import "time"

// Core domain models. The record store owns persistence; these stay free of
// storage and transport concerns.

type Status string

const (
	StatusNominated           Status = "nominated"
	StatusMissionApproved     Status = "mission_approved"
	StatusPermissionRequested Status = "permission_requested"
	StatusPermissionGranted   Status = "permission_granted"
	StatusLive                Status = "live"
	StatusUnderReview         Status = "under_review"
	StatusRejectedByOrg       Status = "rejected_by_org"
	StatusRejectedByMission   Status = "rejected_by_mission"
)

type PermissionType string

const (
	PermissionNone      PermissionType = "none"
	PermissionRequested PermissionType = "requested"
	PermissionGranted   PermissionType = "granted"
	PermissionDenied    PermissionType = "denied"
	PermissionWaiver    PermissionType = "waiver"
)

// OrganizationState is the crawl-relevant part of an organization record.
type OrganizationState struct {
	Status            Status
	PermissionType    PermissionType
	TouFlag           bool
	TechBlockFlag     bool
	TechRenderingFlag bool
	DuplicateFlag     bool
	DuplicateOf       *string
}

type Organization struct {
	ID            string
	Name          string
	Website       string
	SourceID      string
	TriggeringURL string
	EventsURL     string
	TouURL        string
	Description   string
	ContactEmail  string
	ContactPhone  string
	Address       string
	City          string
	LogoURL       string
	LastScrapedAt *time.Time
	CreatedAt     time.Time

	OrganizationState
}

// Descriptor returns the scan input for the organization.
func (o Organization) Descriptor() Descriptor {
	return Descriptor{
		Website:       o.Website,
		SourceID:      o.SourceID,
		TriggeringURL: o.TriggeringURL,
		EventsURL:     o.EventsURL,
	}
}

// Descriptor is the immutable input of one discovery run.
type Descriptor struct {
	Website       string
	SourceID      string
	TriggeringURL string
	EventsURL     string
}

// OrganizationUpdate carries partial fields; nil means "leave as is".
type OrganizationUpdate struct {
	Status             *Status
	PermissionType     *PermissionType
	TouFlag            *bool
	TouURL             *string
	TouNotes           *string
	TechBlockFlag      *bool
	TechRenderingFlag  *bool
	RenderConfidence   *RenderConfidence
	EventsURL          *string
	EventsURLValidated *bool
	EventsURLMethod    *EventsURLMethod
	DuplicateFlag      *bool
	DuplicateOf        *string
	LastScannedAt      *time.Time
}

func (u OrganizationUpdate) IsEmpty() bool {
	return u == OrganizationUpdate{}
}

// Apply returns state with the update's state fields applied.
func (u OrganizationUpdate) Apply(state OrganizationState) OrganizationState {
	if u.Status != nil {
		state.Status = *u.Status
	}
	if u.PermissionType != nil {
		state.PermissionType = *u.PermissionType
	}
	if u.TouFlag != nil {
		state.TouFlag = *u.TouFlag
	}
	if u.TechBlockFlag != nil {
		state.TechBlockFlag = *u.TechBlockFlag
	}
	if u.TechRenderingFlag != nil {
		state.TechRenderingFlag = *u.TechRenderingFlag
	}
	if u.DuplicateFlag != nil {
		state.DuplicateFlag = *u.DuplicateFlag
	}
	if u.DuplicateOf != nil {
		id := *u.DuplicateOf
		state.DuplicateOf = &id
	}
	return state
}

type LegalPageType string

const (
	PageTermsOfService LegalPageType = "terms_of_service"
	PageTermsOfUse     LegalPageType = "terms_of_use"
	PagePrivacy        LegalPageType = "privacy"
	PageAcceptableUse  LegalPageType = "acceptable_use"
	PageUserAgreement  LegalPageType = "user_agreement"
	PageCopyright      LegalPageType = "copyright"
	PageOther          LegalPageType = "other"
)

type DiscoveryMethod string

const (
	LinkedFromHomepage DiscoveryMethod = "linked_from_homepage"
	CommonPathProbe    DiscoveryMethod = "common_path_probe"
)

type LegalPageRef struct {
	URL             string          `json:"url"`
	PageType        LegalPageType   `json:"page_type"`
	DiscoveryMethod DiscoveryMethod `json:"discovery_method"`
}

// RestrictionFinding is a keyword or phrase located in a legal page's text.
type RestrictionFinding struct {
	KeywordOrPhrase string       `json:"keyword"`
	ContextSnippet  string       `json:"context"`
	SourcePage      LegalPageRef `json:"source_page"`
}

type LegalOutcome string

const (
	LegalRestricted   LegalOutcome = "restricted"
	LegalClear        LegalOutcome = "clear"
	LegalNoPages      LegalOutcome = "no_legal_pages"
	LegalUnverified   LegalOutcome = "unverified"
	LegalBlocked      LegalOutcome = "blocked"
	LegalNotAttempted LegalOutcome = ""
)

type EventsURLMethod string

const (
	EventsMethodExisting   EventsURLMethod = "existing"
	EventsMethodTriggering EventsURLMethod = "triggering_url"
	EventsMethodHomepage   EventsURLMethod = "homepage_link"
	EventsMethodCommonPath EventsURLMethod = "common_path"
	EventsMethodNone       EventsURLMethod = "none"
)

type RenderConfidence string

const (
	ConfidenceLow    RenderConfidence = "LOW"
	ConfidenceMedium RenderConfidence = "MEDIUM"
	ConfidenceHigh   RenderConfidence = "HIGH"
)

// Step names recorded in a ScanResult.
const (
	StepRobots           = "robots"
	StepHomepage         = "homepage"
	StepLegal            = "legal"
	StepEvents           = "events"
	StepLegalCrossDomain = "legal_cross_domain"
	StepExtract          = "extract"
	StepRender           = "render"
)

type StepOutcome struct {
	Step    string `json:"step"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// ScanResult is the aggregate produced by one discovery run.
type ScanResult struct {
	TechBlockFlag            bool                 `json:"tech_block_flag"`
	TouFlag                  bool                 `json:"tou_flag"`
	TouURL                   string               `json:"tou_url,omitempty"`
	TouNotes                 string               `json:"tou_notes"`
	FoundKeywords            []string             `json:"found_keywords"`
	LegalOutcome             LegalOutcome         `json:"legal_outcome"`
	LegalPages               []LegalPageRef       `json:"legal_pages,omitempty"`
	Findings                 []RestrictionFinding `json:"findings,omitempty"`
	EventsURL                string               `json:"events_url,omitempty"`
	EventsURLValidated       bool                 `json:"events_url_validated"`
	EventsURLMethod          EventsURLMethod      `json:"events_url_method"`
	EventsFound              int                  `json:"events_found"`
	RenderChecked            bool                 `json:"render_checked"`
	RenderDependencyDetected bool                 `json:"render_dependency_detected"`
	RenderConfidence         RenderConfidence     `json:"render_confidence,omitempty"`
	RenderExplanation        []string             `json:"render_explanation,omitempty"`
	Steps                    []StepOutcome        `json:"steps"`
	Notes                    []string             `json:"notes,omitempty"`
	Complete                 bool                 `json:"complete"`
}

// Record appends a terminal outcome for a step.
func (r *ScanResult) Record(step, outcome, detail string) {
	r.Steps = append(r.Steps, StepOutcome{Step: step, Outcome: outcome, Detail: detail})
}

func (r *ScanResult) Note(msg string) {
	r.Notes = append(r.Notes, msg)
}

// GateDecision is the derived, non-persisted crawl decision.
type GateDecision struct {
	Allowed       bool     `json:"allowed"`
	Reasons       []string `json:"reasons"`
	WaiverApplied bool     `json:"waiver_applied"`
	Warnings      []string `json:"warnings,omitempty"`
}

type MatchType string

const (
	MatchSameDomain  MatchType = "same_domain"
	MatchSimilarName MatchType = "similar_name"
)

// DuplicatePair is one matched pair from a duplicate audit.
type DuplicatePair struct {
	OrgA          string    `json:"org_a"`
	OrgB          string    `json:"org_b"`
	MatchType     MatchType `json:"match_type"`
	MatchStrength float64   `json:"match_strength"`
	KeepOrg       string    `json:"keep_org"`
	FlagOrg       string    `json:"flag_org"`
	KeepScore     int       `json:"keep_score"`
	FlagScore     int       `json:"flag_score"`
}

// EventDraft is one structured event returned by the extraction service.
type EventDraft struct {
	Title     string `json:"title"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Location  string `json:"location,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Scan is a queued or finished scan job record.
type Scan struct {
	ID             string
	OrganizationID string
	Status         string // queued|running|completed|failed
	Progress       float64
	StartedAt      *time.Time
	FinishedAt     *time.Time
	Result         *ScanResult
}
