package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/climate-stripes-data/internal/climate"
)

// GoogleGeocoder resolves place names through the Google Geocoding API.
type GoogleGeocoder struct {
	mu     sync.Mutex
	apiKey string
}

// NewGoogleGeocoder creates a geocoder; an empty key makes every lookup fail
// with climate.ErrNoCredentials.
func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	return &GoogleGeocoder{apiKey: apiKey}
}

// Geocode returns the coordinates of city (optionally qualified by country).
func (g *GoogleGeocoder) Geocode(ctx context.Context, city, country string) (float64, float64, error) {
	if g.apiKey == "" {
		return 0, 0, fmt.Errorf("geocoder: %w", climate.ErrNoCredentials)
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	// The library keeps its key in a package variable.
	g.mu.Lock()
	defer g.mu.Unlock()
	geocoder.ApiKey = g.apiKey

	loc, err := geocoder.Geocoding(geocoder.Address{
		City:    city,
		Country: country,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("geocode %q: %w", city, err)
	}
	return loc.Latitude, loc.Longitude, nil
}
