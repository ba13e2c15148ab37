package climate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/i474232898/climate-stripes-data/internal/metrics"
)

// Selector walks the fallback chain: every configured source is tried once,
// in order, and the synthetic generator answers when all of them fail.
type Selector struct {
	sources  []Source
	fallback *Generator
	logger   zerolog.Logger
}

// NewSelector creates a Selector. nil sources are ignored.
func NewSelector(fallback *Generator, logger zerolog.Logger, sources ...Source) *Selector {
	s := &Selector{
		fallback: fallback,
		logger:   logger,
	}
	for _, src := range sources {
		if src != nil {
			s.sources = append(s.sources, src)
		}
	}
	return s
}

// Select returns one series for req. It never fails.
func (s *Selector) Select(ctx context.Context, req Request) ClimateSeries {
	for _, src := range s.sources {
		series, err := s.attempt(ctx, src, req)
		if err == nil {
			metrics.SeriesProduced.WithLabelValues(string(src.Name())).Inc()
			return series
		}

		s.logger.Warn().
			Err(err).
			Str("source", string(src.Name())).
			Float64("lat", req.Lat).
			Float64("lon", req.Lon).
			Msg("source failed, falling back")
	}

	series, _ := s.fallback.Fetch(ctx, req)
	metrics.SourceAttempts.WithLabelValues(string(SourceSynthetic), "success").Inc()
	metrics.SeriesProduced.WithLabelValues(string(SourceSynthetic)).Inc()
	s.logger.Info().
		Float64("lat", req.Lat).
		Float64("lon", req.Lon).
		Msg("using synthetic series")
	return series
}

func (s *Selector) attempt(ctx context.Context, src Source, req Request) (ClimateSeries, error) {
	start := time.Now()
	series, err := src.Fetch(ctx, req)
	metrics.SourceDuration.WithLabelValues(string(src.Name())).Observe(time.Since(start).Seconds())

	if err == nil && !series.Valid() {
		err = fmt.Errorf("%w: %d years, %d temperatures", ErrMalformedResponse, len(series.Years), len(series.Temperatures))
	}
	metrics.SourceAttempts.WithLabelValues(string(src.Name()), FailureReason(err)).Inc()
	if err != nil {
		return ClimateSeries{}, err
	}

	series.Location = Coordinates{Lat: req.Lat, Lon: req.Lon}
	series.DataSource = src.Name()
	return series, nil
}
