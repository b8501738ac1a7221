package gate

import (
	"context"
	"fmt"

	"orgwatch/internal/domain"
	"orgwatch/internal/logger"
	"orgwatch/internal/ports"
)

// Observer records gate decisions.
type Observer interface {
	ObserveGate(allowed bool)
}

type Service struct {
	orgs     ports.OrganizationStore
	observer Observer
	log      logger.Logger
}

func New(orgs ports.OrganizationStore, observer Observer, log logger.Logger) *Service {
	return &Service{orgs: orgs, observer: observer, log: log}
}

// Decide loads the organization and evaluates the gate against its state.
func (s *Service) Decide(ctx context.Context, orgID string) (domain.GateDecision, error) {
	org, err := s.orgs.GetOrganization(ctx, orgID)
	if err != nil {
		return domain.GateDecision{}, fmt.Errorf("get organization %s: %w", orgID, err)
	}
	d := Evaluate(org.OrganizationState)
	if s.observer != nil {
		s.observer.ObserveGate(d.Allowed)
	}
	for _, w := range d.Warnings {
		s.log.Warn(w, logger.String("org_id", orgID))
	}
	return d, nil
}
