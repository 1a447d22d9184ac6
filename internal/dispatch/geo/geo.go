package geo

import (
	"math"

	"github.com/google/uuid"

	"github.com/example/roadassist/internal/dispatch/domain"
)

// DefaultRadiusKM is the matching radius used when the deployment does not
// configure one.
const DefaultRadiusKM = 10.0

const earthRadiusKM = 6371.0

// Distance returns the great-circle distance between a and b in kilometers,
// computed with the haversine formula over degree coordinates.
func Distance(a, b domain.GeoPoint) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dlat := toRadians(b.Lat - a.Lat)
	dlng := toRadians(b.Lng - a.Lng)

	sinDlat := math.Sin(dlat / 2)
	sinDlng := math.Sin(dlng / 2)
	h := sinDlat*sinDlat + math.Cos(lat1)*math.Cos(lat2)*sinDlng*sinDlng
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKM * c
}

// WithinRadius reports whether candidate lies at most radiusKM kilometers
// from origin. A candidate exactly on the boundary counts.
func WithinRadius(origin, candidate domain.GeoPoint, radiusKM float64) bool {
	return Distance(origin, candidate) <= radiusKM
}

// Candidate pairs an identifier with an optional position.
type Candidate struct {
	ID    uuid.UUID
	Point *domain.GeoPoint
}

// FilterNearby returns the ids of candidates within radiusKM of origin,
// preserving the relative order of the input. Candidates without a position
// are skipped. No distance ordering is applied or implied.
func FilterNearby(origin domain.GeoPoint, candidates []Candidate, radiusKM float64) []uuid.UUID {
	var ids []uuid.UUID
	for _, c := range candidates {
		if c.Point == nil {
			continue
		}
		if WithinRadius(origin, *c.Point, radiusKM) {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
