package duplicates

import (
	"time"

	"orgwatch/internal/domain"
)

var statusBonus = map[domain.Status]int{
	domain.StatusLive:                50,
	domain.StatusPermissionGranted:   40,
	domain.StatusPermissionRequested: 30,
	domain.StatusMissionApproved:     20,
	domain.StatusNominated:           10,
}

// Completeness scores how much useful data an organization record holds:
// 10 per event, a status bonus, 1 per populated checklist field and a bonus
// for a recent scrape.
func Completeness(o domain.Organization, events int, now time.Time) int {
	score := 10*events + statusBonus[o.Status]

	for _, v := range []string{
		o.Name, o.Website, o.Description, o.ContactEmail, o.ContactPhone,
		o.Address, o.City, o.LogoURL, o.EventsURL, o.SourceID, o.TriggeringURL,
	} {
		if v != "" {
			score++
		}
	}

	if o.LastScrapedAt != nil {
		switch age := now.Sub(*o.LastScrapedAt); {
		case age <= 7*24*time.Hour:
			score += 5
		case age <= 30*24*time.Hour:
			score += 2
		}
	}
	return score
}
