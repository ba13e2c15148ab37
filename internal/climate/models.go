package climate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DataSource identifies which tier of the fallback chain produced a series.
type DataSource string

const (
	SourcePrimaryAPI   DataSource = "primary_api"
	SourceSecondaryAPI DataSource = "secondary_api"
	SourceSynthetic    DataSource = "synthetic"
)

// Location represents a named geographic point for which a series is produced.
// Country is only used when the coordinates have to be geocoded.
type Location struct {
	Name      string  `json:"name" yaml:"name"`
	Latitude  float64 `json:"lat" yaml:"lat"`
	Longitude float64 `json:"lon" yaml:"lon"`
	Country   string  `json:"country,omitempty" yaml:"country,omitempty"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	return strings.ToLower(strings.TrimSpace(l.Name))
}

// Coordinates is the point a series was computed for.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ClimateSeries is an annual mean temperature series.
// Years and Temperatures always have the same length.
type ClimateSeries struct {
	Years        []int       `json:"years"`
	Temperatures []float64   `json:"temperatures"`
	Location     Coordinates `json:"location"`
	DataSource   DataSource  `json:"data_source"`
	Name         string      `json:"name,omitempty"`

	// GridFile is the downloaded reanalysis grid, set for primary_api series only.
	GridFile string `json:"grid_file,omitempty"`
}

// Valid reports whether the series respects the years/temperatures length invariant.
func (s ClimateSeries) Valid() bool {
	return len(s.Years) == len(s.Temperatures)
}

// Request describes one call into the fallback chain.
type Request struct {
	Lat       float64
	Lon       float64
	StartYear int
	EndYear   int
}

func (r Request) String() string {
	return fmt.Sprintf("(%.4f,%.4f) %d-%d", r.Lat, r.Lon, r.StartYear, r.EndYear)
}

// Snapshot is a series produced during a given generation run.
type Snapshot struct {
	RunID       string        `json:"run_id"`
	GeneratedAt time.Time     `json:"generated_at"` // always UTC
	Series      ClimateSeries `json:"series"`
}

// GlobalRecord is the payload of the "global" sample file.
type GlobalRecord struct {
	Paris       ClimateSeries `json:"paris"`
	GeneratedAt string        `json:"generated_at"`
	Description string        `json:"description"`
}

// ResultSet maps location names to series and keeps insertion order,
// including through JSON encoding and decoding.
type ResultSet struct {
	order  []string
	series map[string]ClimateSeries
}

// NewResultSet creates an empty ResultSet.
func NewResultSet() *ResultSet {
	return &ResultSet{series: make(map[string]ClimateSeries)}
}

// Set inserts or replaces the series for name. Replacing keeps the original position.
func (r *ResultSet) Set(name string, s ClimateSeries) {
	if r.series == nil {
		r.series = make(map[string]ClimateSeries)
	}
	if _, ok := r.series[name]; !ok {
		r.order = append(r.order, name)
	}
	r.series[name] = s
}

// Get returns the series stored for name.
func (r *ResultSet) Get(name string) (ClimateSeries, bool) {
	s, ok := r.series[name]
	return s, ok
}

// Names returns the location names in insertion order.
func (r *ResultSet) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of series.
func (r *ResultSet) Len() int {
	return len(r.order)
}

// MarshalJSON encodes the set as a JSON object whose keys follow insertion order.
func (r *ResultSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.series[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, recording keys in document order.
func (r *ResultSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("result set: expected object, got %v", tok)
	}

	r.order = nil
	r.series = make(map[string]ClimateSeries)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("result set: expected string key, got %v", tok)
		}
		var s ClimateSeries
		if err := dec.Decode(&s); err != nil {
			return fmt.Errorf("result set: decode %q: %w", name, err)
		}
		r.Set(name, s)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
