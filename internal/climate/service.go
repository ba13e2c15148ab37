package climate

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Service orchestrates the selector across locations and records snapshots.
type Service struct {
	selector *Selector
	store    Store
	limiter  *rate.Limiter
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a new Service. requestDelay is the minimum spacing between
// two selector runs, so third-party rate limits are respected.
func NewService(selector *Selector, store Store, requestDelay time.Duration, logger zerolog.Logger) *Service {
	limit := rate.Inf
	if requestDelay > 0 {
		limit = rate.Every(requestDelay)
	}
	return &Service{
		selector: selector,
		store:    store,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Select runs the fallback chain once for req, honouring the rate limiter.
func (s *Service) Select(ctx context.Context, req Request) (ClimateSeries, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return ClimateSeries{}, err
	}
	return s.selector.Select(ctx, req), nil
}

// Collect produces one series per location, keyed by location name, in the
// order given. Each series is also saved as a snapshot of runID. It only fails
// when ctx is done.
func (s *Service) Collect(ctx context.Context, runID string, locations []Location, startYear, endYear int) (*ResultSet, error) {
	results := NewResultSet()
	generatedAt := s.now()

	for _, loc := range locations {
		s.logger.Info().Str("run_id", runID).Str("location", loc.Name).Msg("processing location")

		series, err := s.Select(ctx, Request{
			Lat:       loc.Latitude,
			Lon:       loc.Longitude,
			StartYear: startYear,
			EndYear:   endYear,
		})
		if err != nil {
			return nil, err
		}
		series.Name = loc.Name
		results.Set(loc.Name, series)

		s.saveSnapshot(ctx, loc, Snapshot{RunID: runID, GeneratedAt: generatedAt, Series: series})
	}

	return results, nil
}

// Global builds the sample record with a fresh selector run for sample.
func (s *Service) Global(ctx context.Context, sample Location, startYear, endYear int, description string) (GlobalRecord, error) {
	series, err := s.Select(ctx, Request{
		Lat:       sample.Latitude,
		Lon:       sample.Longitude,
		StartYear: startYear,
		EndYear:   endYear,
	})
	if err != nil {
		return GlobalRecord{}, err
	}

	return GlobalRecord{
		Paris:       series,
		GeneratedAt: s.now().Format(time.RFC3339),
		Description: description,
	}, nil
}

func (s *Service) saveSnapshot(ctx context.Context, loc Location, snap Snapshot) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSnapshot(ctx, loc, snap); err != nil {
		s.logger.Error().Err(err).Str("location", loc.Name).Msg("failed to save snapshot")
	}
}

// Latest returns the most recent series of every location that has one, in
// the order of locations.
func (s *Service) Latest(ctx context.Context, locations []Location) (*ResultSet, error) {
	results := NewResultSet()
	if s.store == nil {
		return results, nil
	}
	for _, loc := range locations {
		snap, err := s.store.GetLatest(ctx, loc)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		results.Set(loc.Name, snap.Series)
	}
	return results, nil
}

// GetLatest delegates to the underlying store.
func (s *Service) GetLatest(ctx context.Context, loc Location) (Snapshot, error) {
	if s.store == nil {
		return Snapshot{}, ErrNotFound
	}
	return s.store.GetLatest(ctx, loc)
}

// GetRange delegates to the underlying store.
func (s *Service) GetRange(ctx context.Context, loc Location, from, to time.Time) ([]Snapshot, error) {
	if s.store == nil {
		return nil, ErrNotFound
	}
	return s.store.GetRange(ctx, loc, from, to)
}
