package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orgwatch/internal/domain"
	"orgwatch/internal/logger"
	"orgwatch/internal/ports"
	"orgwatch/internal/services/gate"
)

// Discoverer runs discovery for one organization.
type Discoverer interface {
	Scan(ctx context.Context, desc domain.Descriptor) (domain.ScanResult, error)
}

// Observer records scan outcomes.
type Observer interface {
	ObserveScan(outcome string, took time.Duration)
}

// Summary is what one organization scan produced and proposed.
type Summary struct {
	OrganizationID string
	Result         domain.ScanResult
	Update         domain.OrganizationUpdate
	Transition     gate.Transition
}

type Service struct {
	orgs     ports.OrganizationStore
	scans    ports.ScanRepository
	jobs     ports.JobRepository
	engine   Discoverer
	observer Observer
	log      logger.Logger
	now      func() time.Time
}

func New(orgs ports.OrganizationStore, scans ports.ScanRepository, jobs ports.JobRepository, engine Discoverer, observer Observer, log logger.Logger) *Service {
	return &Service{orgs: orgs, scans: scans, jobs: jobs, engine: engine, observer: observer, log: log, now: time.Now}
}

// Enqueue creates a queued scan for an existing organization.
func (s *Service) Enqueue(ctx context.Context, orgID string) (string, error) {
	if _, err := s.orgs.GetOrganization(ctx, orgID); err != nil {
		return "", fmt.Errorf("get organization %s: %w", orgID, err)
	}
	scanID, err := s.scans.Create(ctx, orgID)
	if err != nil {
		return "", fmt.Errorf("create scan: %w", err)
	}
	return scanID, nil
}

func (s *Service) Status(ctx context.Context, scanID string) (domain.Scan, error) {
	return s.scans.Get(ctx, scanID)
}

// Process runs a queued scan and stores its result. It is the worker's
// processor.
func (s *Service) Process(ctx context.Context, scanID string) error {
	scan, err := s.scans.Get(ctx, scanID)
	if err != nil {
		return fmt.Errorf("get scan %s: %w", scanID, err)
	}
	if s.jobs != nil {
		if err := s.jobs.UpdateScanProgress(ctx, scanID, 0.1); err != nil {
			s.log.Warn("could not update scan progress", logger.String("scan_id", scanID), logger.Error(err))
		}
	}
	sum, err := s.ScanOrganization(ctx, scan.OrganizationID)
	if err != nil {
		return err
	}
	if err := s.scans.SaveResult(ctx, scanID, sum.Result); err != nil {
		return fmt.Errorf("save scan result: %w", err)
	}
	return nil
}

// ScanOrganization scans one organization, applies the new-restriction
// transition rule and writes the proposed update to the store. An
// incomplete result is never written.
func (s *Service) ScanOrganization(ctx context.Context, orgID string) (Summary, error) {
	start := s.now()
	log := s.log.With(logger.String("org_id", orgID))

	org, err := s.orgs.GetOrganization(ctx, orgID)
	if err != nil {
		return Summary{}, fmt.Errorf("get organization %s: %w", orgID, err)
	}

	res, err := s.engine.Scan(ctx, org.Descriptor())
	if err != nil {
		s.observe(outcomeOf(err), start)
		return Summary{OrganizationID: orgID, Result: res}, fmt.Errorf("scan organization %s: %w", orgID, err)
	}

	upd := ProposeUpdate(res, s.now())
	tr := gate.EvaluateTransition(org.OrganizationState, upd.Apply(org.OrganizationState))
	if tr.ResetStatus {
		review := domain.StatusUnderReview
		upd.Status = &review
	}
	if tr.HasNewRestrictions() {
		log.Warn(tr.Warning,
			logger.Strings("flags", tr.NewRestrictions),
			logger.Bool("waiver", tr.WaiverCovered),
			logger.Bool("scrape_suppressed", tr.SuppressScrape))
	}

	if err := s.orgs.UpdateOrganization(ctx, orgID, upd); err != nil {
		s.observe("failed", start)
		return Summary{}, fmt.Errorf("update organization %s: %w", orgID, err)
	}

	outcome := "complete"
	if res.TechBlockFlag {
		outcome = "blocked"
	}
	s.observe(outcome, start)
	log.Info("organization scanned",
		logger.String("outcome", outcome),
		logger.String("legal", string(res.LegalOutcome)),
		logger.Bool("tou_flag", res.TouFlag),
		logger.String("events_url", res.EventsURL),
		logger.Duration("took", s.now().Sub(start)))

	return Summary{OrganizationID: orgID, Result: res, Update: upd, Transition: tr}, nil
}

func (s *Service) observe(outcome string, start time.Time) {
	if s.observer != nil {
		s.observer.ObserveScan(outcome, s.now().Sub(start))
	}
}

func outcomeOf(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "failed"
}
