package climate

import (
	"context"
	"time"
)

// Source abstracts one tier of the fallback chain (e.g. ERA5 via CDS, Open-Meteo archive).
type Source interface {
	Name() DataSource
	Fetch(ctx context.Context, req Request) (ClimateSeries, error)
}

// Geocoder resolves a place name to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, city, country string) (lat float64, lon float64, err error)
}

// Store is the contract the in-memory store and the SQLite history store satisfy.
type Store interface {
	SaveSnapshot(ctx context.Context, loc Location, snapshot Snapshot) error
	GetLatest(ctx context.Context, loc Location) (Snapshot, error)
	GetRange(ctx context.Context, loc Location, from, to time.Time) ([]Snapshot, error)
}
