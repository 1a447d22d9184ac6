package geo_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/roadassist/internal/dispatch/domain"
	"github.com/example/roadassist/internal/dispatch/geo"
)

func TestDistanceSymmetricAndZero(t *testing.T) {
	a := domain.GeoPoint{Lat: 12.9716, Lng: 77.5946}
	b := domain.GeoPoint{Lat: 13.0827, Lng: 80.2707}

	require.Equal(t, geo.Distance(a, b), geo.Distance(b, a))
	require.Zero(t, geo.Distance(a, a))
	require.Greater(t, geo.Distance(a, b), 0.0)
}

func TestDistanceKnownCities(t *testing.T) {
	// Bengaluru to Chennai is roughly 290 km as the crow flies.
	blr := domain.GeoPoint{Lat: 12.9716, Lng: 77.5946}
	chn := domain.GeoPoint{Lat: 13.0827, Lng: 80.2707}
	d := geo.Distance(blr, chn)
	require.InDelta(t, 290, d, 10)
}

func TestWithinRadiusBoundaryInclusive(t *testing.T) {
	origin := domain.GeoPoint{Lat: 0, Lng: 0}
	// One degree of longitude on the equator, about 111.19 km.
	oneDegree := domain.GeoPoint{Lat: 0, Lng: 1}
	d := geo.Distance(origin, oneDegree)

	require.True(t, geo.WithinRadius(origin, oneDegree, d))
	require.False(t, geo.WithinRadius(origin, oneDegree, d-0.001))
	require.True(t, geo.WithinRadius(origin, oneDegree, d+0.001))
}

func TestFilterNearbyPreservesOrderAndSkipsUnlocated(t *testing.T) {
	origin := domain.GeoPoint{Lat: 12.90, Lng: 77.60}
	near := domain.GeoPoint{Lat: 12.918, Lng: 77.60}  // ~2 km north
	mid := domain.GeoPoint{Lat: 12.972, Lng: 77.60}   // ~8 km north
	far := domain.GeoPoint{Lat: 13.035, Lng: 77.60}   // ~15 km north

	idFar := uuid.New()
	idNear := uuid.New()
	idNone := uuid.New()
	idMid := uuid.New()

	got := geo.FilterNearby(origin, []geo.Candidate{
		{ID: idFar, Point: &far},
		{ID: idNear, Point: &near},
		{ID: idNone, Point: nil},
		{ID: idMid, Point: &mid},
	}, geo.DefaultRadiusKM)

	// Input order is preserved; the far and unlocated candidates drop out.
	require.Equal(t, []uuid.UUID{idNear, idMid}, got)
}

func TestFilterNearbyEmpty(t *testing.T) {
	got := geo.FilterNearby(domain.GeoPoint{}, nil, geo.DefaultRadiusKM)
	require.Empty(t, got)
}
