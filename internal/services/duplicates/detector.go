// Package duplicates finds organization records that describe the same
// real-world entity and proposes which one to keep.
package duplicates

import (
	"context"
	"fmt"
	"sync"
	"time"

	"orgwatch/internal/domain"
	"orgwatch/internal/logger"
	"orgwatch/internal/ports"
	"orgwatch/internal/registrable"
	"orgwatch/internal/rules"
)

// Observer records matched pairs.
type Observer interface {
	ObserveDuplicate(matchType string)
}

// Match is a matched pair of snapshot indexes, A before B.
type Match struct {
	A, B     int
	Type     domain.MatchType
	Strength float64
}

type Detector struct {
	mu       sync.Mutex
	orgs     ports.OrganizationStore
	rules    *rules.Duplicates
	observer Observer
	log      logger.Logger
	now      func() time.Time
}

type Option func(*Detector)

func WithObserver(o Observer) Option { return func(d *Detector) { d.observer = o } }

func WithClock(now func() time.Time) Option { return func(d *Detector) { d.now = now } }

func New(orgs ports.OrganizationStore, r *rules.Rules, log logger.Logger, opts ...Option) *Detector {
	d := &Detector{orgs: orgs, rules: &r.Duplicates, log: log, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run audits the full organization set. It holds exclusive access to the
// snapshot from the read until the last write: an in-process lock always,
// plus the store's snapshot lock when the store offers one. With apply set,
// each flagged organization is marked duplicate of its keeper.
func (d *Detector) Run(ctx context.Context, apply bool) ([]domain.DuplicatePair, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if locker, ok := d.orgs.(ports.SnapshotLocker); ok {
		unlock, err := locker.LockSnapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("lock snapshot: %w", err)
		}
		defer unlock()
	}

	snapshot, err := d.orgs.ListOrganizations(ctx, ports.OrganizationFilter{})
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}

	pairs, err := d.Score(ctx, snapshot, FindMatches(snapshot, d.rules))
	if err != nil {
		return nil, err
	}
	d.log.Info("duplicate audit computed",
		logger.Int("organizations", len(snapshot)),
		logger.Int("pairs", len(pairs)))

	if apply {
		if err := d.apply(ctx, pairs); err != nil {
			return pairs, err
		}
	}
	return pairs, nil
}

// FindMatches runs the domain pass and then the name pass over orgs. Each
// unordered pair is reported at most once.
func FindMatches(orgs []domain.Organization, r *rules.Duplicates) []Match {
	var out []Match
	seen := make(map[[2]string]struct{})
	mark := func(i, j int) bool {
		key := [2]string{orgs[i].ID, orgs[j].ID}
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		if _, ok := seen[key]; ok {
			return false
		}
		seen[key] = struct{}{}
		return true
	}

	roots := make([]string, len(orgs))
	for i, o := range orgs {
		if root, err := registrable.FromURL(o.Website, r.SecondLevelSuffixes); err == nil {
			roots[i] = root
		}
	}
	for i := range orgs {
		for j := i + 1; j < len(orgs); j++ {
			if roots[i] != "" && roots[i] == roots[j] && mark(i, j) {
				out = append(out, Match{A: i, B: j, Type: domain.MatchSameDomain, Strength: 1.0})
			}
		}
	}

	names := make([]string, len(orgs))
	for i, o := range orgs {
		names[i] = NormalizeName(o.Name, r.StopWords)
	}
	for i := range orgs {
		for j := i + 1; j < len(orgs); j++ {
			if names[i] == "" || names[j] == "" {
				continue
			}
			sim := NameSimilarity(names[i], names[j])
			if sim >= r.NameThreshold && mark(i, j) {
				out = append(out, Match{A: i, B: j, Type: domain.MatchSimilarName, Strength: sim})
			}
		}
	}
	return out
}

// Score turns matches into pairs with a keeper. Ties keep A.
func (d *Detector) Score(ctx context.Context, orgs []domain.Organization, matches []Match) ([]domain.DuplicatePair, error) {
	now := d.now()
	scores := make(map[int]int)
	score := func(i int) (int, error) {
		if s, ok := scores[i]; ok {
			return s, nil
		}
		n, err := d.orgs.GetEventCount(ctx, orgs[i].ID)
		if err != nil {
			return 0, fmt.Errorf("event count for %s: %w", orgs[i].ID, err)
		}
		scores[i] = Completeness(orgs[i], n, now)
		return scores[i], nil
	}

	pairs := make([]domain.DuplicatePair, 0, len(matches))
	for _, m := range matches {
		sa, err := score(m.A)
		if err != nil {
			return nil, err
		}
		sb, err := score(m.B)
		if err != nil {
			return nil, err
		}
		p := domain.DuplicatePair{
			OrgA:          orgs[m.A].ID,
			OrgB:          orgs[m.B].ID,
			MatchType:     m.Type,
			MatchStrength: m.Strength,
			KeepOrg:       orgs[m.A].ID,
			FlagOrg:       orgs[m.B].ID,
			KeepScore:     sa,
			FlagScore:     sb,
		}
		if sb > sa {
			p.KeepOrg, p.FlagOrg = p.FlagOrg, p.KeepOrg
			p.KeepScore, p.FlagScore = p.FlagScore, p.KeepScore
		}
		if d.observer != nil {
			d.observer.ObserveDuplicate(string(m.Type))
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// apply flags each organization once, for the first pair that flags it.
// duplicate_of always names an organization left unflagged by this run: when
// a keeper is itself flagged by another pair, the chain is followed to its end.
func (d *Detector) apply(ctx context.Context, pairs []domain.DuplicatePair) error {
	keeperOf := make(map[string]string)
	root := func(id string) string {
		for {
			next, ok := keeperOf[id]
			if !ok {
				return id
			}
			id = next
		}
	}

	var order []domain.DuplicatePair
	for _, p := range pairs {
		if _, ok := keeperOf[p.FlagOrg]; ok {
			continue
		}
		if root(p.KeepOrg) == p.FlagOrg {
			// Flagging would close a loop; the keeper already resolves here.
			continue
		}
		keeperOf[p.FlagOrg] = p.KeepOrg
		order = append(order, p)
	}

	for _, p := range order {
		dup, keep := true, root(p.FlagOrg)
		upd := domain.OrganizationUpdate{DuplicateFlag: &dup, DuplicateOf: &keep}
		if err := d.orgs.UpdateOrganization(ctx, p.FlagOrg, upd); err != nil {
			return fmt.Errorf("flag %s as duplicate of %s: %w", p.FlagOrg, keep, err)
		}
		d.log.Info("flagged duplicate organization",
			logger.String("org_id", p.FlagOrg),
			logger.String("duplicate_of", keep),
			logger.String("matched_with", p.KeepOrg),
			logger.String("match_type", string(p.MatchType)),
			logger.Float64("match_strength", p.MatchStrength))
	}
	return nil
}
