package matching

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/roadassist/internal/dispatch/domain"
	"github.com/example/roadassist/internal/dispatch/geo"
)

// CandidateSource yields the mechanics eligible for a request at the given
// origin: available, located, and within radiusKM. Implementations must keep
// the radius test boundary-inclusive and are free to return candidates in any
// order; callers never rely on closest-first ranking.
type CandidateSource interface {
	Candidates(ctx context.Context, origin domain.GeoPoint, radiusKM float64) ([]domain.Mechanic, error)
}

// RepoSource scans the mechanic repository and filters by haversine distance
// in memory. Fine at small fleet sizes; for large fleets prefer GeoIndex,
// which pushes the radius into an indexed query.
type RepoSource struct {
	mechanics domain.MechanicRepository
}

// NewRepoSource constructs the scanning source.
func NewRepoSource(mechanics domain.MechanicRepository) *RepoSource {
	return &RepoSource{mechanics: mechanics}
}

// Candidates returns available mechanics within the radius, in repository order.
func (s *RepoSource) Candidates(ctx context.Context, origin domain.GeoPoint, radiusKM float64) ([]domain.Mechanic, error) {
	pool, err := s.mechanics.AvailableMechanics(ctx)
	if err != nil {
		return nil, fmt.Errorf("load candidate pool: %w", err)
	}
	byID := make(map[uuid.UUID]domain.Mechanic, len(pool))
	candidates := make([]geo.Candidate, 0, len(pool))
	for _, mech := range pool {
		byID[mech.ID] = mech
		candidates = append(candidates, geo.Candidate{ID: mech.ID, Point: mech.Location})
	}
	matched := geo.FilterNearby(origin, candidates, radiusKM)
	out := make([]domain.Mechanic, 0, len(matched))
	for _, id := range matched {
		out = append(out, byID[id])
	}
	return out, nil
}
