package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/climate-stripes-data/internal/climate"
	"github.com/i474232898/climate-stripes-data/internal/config"
)

type mapGeocoder map[string][2]float64

func (m mapGeocoder) Geocode(_ context.Context, city, _ string) (float64, float64, error) {
	c, ok := m[city]
	if !ok {
		return 0, 0, errors.New("zero results")
	}
	return c[0], c[1], nil
}

func f(v float64) *float64 { return &v }

func TestResolveLocations(t *testing.T) {
	entries := []config.LocationEntry{
		{Name: "Paris", Lat: f(48.8566), Lon: f(2.3522)},
		{Name: "Rennes", Country: "France"},
		{Name: "Atlantis"},
	}
	geo := mapGeocoder{"Rennes": {48.1173, -1.6778}}

	locs := ResolveLocations(context.Background(), entries, geo, zerolog.Nop())
	require.Len(t, locs, 2)
	assert.Equal(t, climate.Location{Name: "Paris", Latitude: 48.8566, Longitude: 2.3522}, locs[0])
	assert.Equal(t, climate.Location{Name: "Rennes", Latitude: 48.1173, Longitude: -1.6778, Country: "France"}, locs[1])
}

func TestResolveLocationsWithoutGeocoder(t *testing.T) {
	entries := []config.LocationEntry{{Name: "Rennes"}, {Name: "Nice", Lat: f(43.7), Lon: f(7.27)}}

	locs := ResolveLocations(context.Background(), entries, nil, zerolog.Nop())
	require.Len(t, locs, 1)
	assert.Equal(t, "Nice", locs[0].Name)
}

func TestSampleLocation(t *testing.T) {
	lyon := climate.Location{Name: "Lyon", Latitude: 45.764, Longitude: 4.8357}

	assert.Equal(t, lyon, SampleLocation([]climate.Location{lyon}, "LYON"))
	assert.Equal(t, ParisLocation, SampleLocation([]climate.Location{lyon}, "Paris"))
}
