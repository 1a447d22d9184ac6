package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/roadassist/internal/dispatch/domain"
)

const defaultIndexKey = "mechanic:locs"

var errInvalidGeoResult = errors.New("invalid geo search result")

// GeoIndex maintains mechanic positions in a Redis GEO set and answers radius
// queries server-side. The index holds only available mechanics; profile data
// is still read from the mechanic repository.
type GeoIndex struct {
	client    redis.Cmdable
	key       string
	mechanics domain.MechanicRepository
}

// NewGeoIndex constructs the index over the given key.
func NewGeoIndex(client redis.Cmdable, key string, mechanics domain.MechanicRepository) *GeoIndex {
	if key == "" {
		key = defaultIndexKey
	}
	return &GeoIndex{client: client, key: key, mechanics: mechanics}
}

// Upsert records the mechanic's position.
func (g *GeoIndex) Upsert(ctx context.Context, mechanicID uuid.UUID, point domain.GeoPoint) error {
	err := g.client.GeoAdd(ctx, g.key, &redis.GeoLocation{
		Name:      mechanicID.String(),
		Longitude: point.Lng,
		Latitude:  point.Lat,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis geoadd: %w", err)
	}
	return nil
}

// Remove drops a mechanic from the index, e.g. when they go off shift.
func (g *GeoIndex) Remove(ctx context.Context, mechanicID uuid.UUID) error {
	if err := g.client.ZRem(ctx, g.key, mechanicID.String()).Err(); err != nil {
		return fmt.Errorf("redis zrem: %w", err)
	}
	return nil
}

// Candidates runs a server-side radius query (inclusive, unsorted) and
// hydrates the hits from the repository, keeping only mechanics still marked
// available.
func (g *GeoIndex) Candidates(ctx context.Context, origin domain.GeoPoint, radiusKM float64) ([]domain.Mechanic, error) {
	locations, err := g.client.GeoRadius(ctx, g.key, origin.Lng, origin.Lat, &redis.GeoRadiusQuery{
		Radius: radiusKM,
		Unit:   "km",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis georadius: %w", err)
	}

	out := make([]domain.Mechanic, 0, len(locations))
	for _, loc := range locations {
		id, err := uuid.Parse(loc.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", errInvalidGeoResult, loc.Name)
		}
		mech, err := g.mechanics.GetMechanicByID(ctx, id)
		if errors.Is(err, domain.ErrMechanicNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !mech.Available {
			continue
		}
		out = append(out, mech)
	}
	return out, nil
}
