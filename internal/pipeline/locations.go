package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/i474232898/climate-stripes-data/internal/climate"
	"github.com/i474232898/climate-stripes-data/internal/config"
)

// ParisLocation is the sample point used when the configured sample location
// is not part of the location list.
var ParisLocation = climate.Location{Name: "Paris", Latitude: 48.8566, Longitude: 2.3522, Country: "France"}

// ResolveLocations turns config entries into locations, geocoding the ones
// without coordinates. Entries that cannot be resolved are dropped with a warning.
func ResolveLocations(ctx context.Context, entries []config.LocationEntry, geo climate.Geocoder, logger zerolog.Logger) []climate.Location {
	out := make([]climate.Location, 0, len(entries))
	for _, e := range entries {
		loc := e.Location()
		if e.HasCoordinates() {
			out = append(out, loc)
			continue
		}

		if geo == nil {
			logger.Warn().Str("location", e.Name).Msg("no coordinates and no geocoder; skipping location")
			continue
		}
		lat, lon, err := geo.Geocode(ctx, e.Name, e.Country)
		if err != nil {
			logger.Warn().Err(err).Str("location", e.Name).Msg("geocoding failed; skipping location")
			continue
		}
		loc.Latitude, loc.Longitude = lat, lon
		logger.Debug().Str("location", e.Name).Float64("lat", lat).Float64("lon", lon).Msg("location geocoded")
		out = append(out, loc)
	}
	return out
}

// SampleLocation picks name from locations, falling back to Paris.
func SampleLocation(locations []climate.Location, name string) climate.Location {
	key := climate.Location{Name: name}.Key()
	for _, l := range locations {
		if l.Key() == key {
			return l
		}
	}
	return ParisLocation
}
