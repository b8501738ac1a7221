package scanner

import (
	"time"

	"orgwatch/internal/domain"
)

// ProposeUpdate converts a complete scan result into a partial organization
// update. Only a blocked run sets the technical block; a run that merely
// could not verify leaves the restriction flags as they were.
func ProposeUpdate(res domain.ScanResult, scannedAt time.Time) domain.OrganizationUpdate {
	upd := domain.OrganizationUpdate{LastScannedAt: &scannedAt}
	on, off := true, false

	if res.TouNotes != "" {
		notes := res.TouNotes
		upd.TouNotes = &notes
	}

	if res.TechBlockFlag {
		upd.TechBlockFlag, upd.TouFlag = &on, &on
		return upd
	}
	if homepageFetched(res) {
		upd.TechBlockFlag = &off
	}

	switch res.LegalOutcome {
	case domain.LegalRestricted:
		upd.TouFlag = &on
		if res.TouURL != "" {
			tou := res.TouURL
			upd.TouURL = &tou
		}
	case domain.LegalClear, domain.LegalNoPages:
		upd.TouFlag = &off
	}

	if res.RenderChecked {
		detected, conf := res.RenderDependencyDetected, res.RenderConfidence
		upd.TechRenderingFlag, upd.RenderConfidence = &detected, &conf
	}

	if res.EventsURL != "" {
		eventsURL, validated, method := res.EventsURL, res.EventsURLValidated, res.EventsURLMethod
		upd.EventsURL, upd.EventsURLValidated, upd.EventsURLMethod = &eventsURL, &validated, &method
	}
	return upd
}

func homepageFetched(res domain.ScanResult) bool {
	for _, s := range res.Steps {
		if s.Step == domain.StepHomepage {
			return s.Outcome == outcomeOK
		}
	}
	return false
}
