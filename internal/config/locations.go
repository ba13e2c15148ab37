package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/i474232898/climate-stripes-data/internal/climate"
)

// LocationEntry is one point of the locations file. Lat/Lon may be omitted,
// in which case the point is geocoded from Name and Country.
type LocationEntry struct {
	Name    string   `yaml:"name"`
	Lat     *float64 `yaml:"lat"`
	Lon     *float64 `yaml:"lon"`
	Country string   `yaml:"country"`
}

// HasCoordinates reports whether both coordinates are set.
func (e LocationEntry) HasCoordinates() bool {
	return e.Lat != nil && e.Lon != nil
}

// Location converts the entry; the coordinates are zero when not set.
func (e LocationEntry) Location() climate.Location {
	loc := climate.Location{Name: e.Name, Country: e.Country}
	if e.Lat != nil {
		loc.Latitude = *e.Lat
	}
	if e.Lon != nil {
		loc.Longitude = *e.Lon
	}
	return loc
}

type locationsFile struct {
	Locations []LocationEntry `yaml:"locations"`
}

func point(name string, lat, lon float64) LocationEntry {
	return LocationEntry{Name: name, Lat: &lat, Lon: &lon, Country: "France"}
}

// DefaultLocations is the built-in list of French cities.
func DefaultLocations() []LocationEntry {
	return []LocationEntry{
		point("Paris", 48.8566, 2.3522),
		point("Lyon", 45.7640, 4.8357),
		point("Marseille", 43.2965, 5.3698),
		point("Grenoble", 45.1885, 5.7245),
		point("Toulouse", 43.6047, 1.4442),
		point("Nantes", 47.2184, -1.5536),
		point("Strasbourg", 48.5734, 7.7521),
		point("Bordeaux", 44.8378, -0.5792),
	}
}

// LoadLocations reads the YAML locations file at path. A missing file (or an
// empty path) yields DefaultLocations.
func LoadLocations(path string) ([]LocationEntry, error) {
	if path == "" {
		return DefaultLocations(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultLocations(), nil
		}
		return nil, fmt.Errorf("read locations file: %w", err)
	}

	var file locationsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse locations file %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(file.Locations))
	for i, l := range file.Locations {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			return nil, fmt.Errorf("locations file %s: entry %d has no name", path, i)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("locations file %s: duplicate location %q", path, name)
		}
		seen[key] = struct{}{}

		if l.Lat != nil && (*l.Lat < -90 || *l.Lat > 90) {
			return nil, fmt.Errorf("locations file %s: %q latitude out of range", path, name)
		}
		if l.Lon != nil && (*l.Lon < -180 || *l.Lon > 180) {
			return nil, fmt.Errorf("locations file %s: %q longitude out of range", path, name)
		}
		file.Locations[i].Name = name
	}

	return file.Locations, nil
}
