package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/i474232898/climate-stripes-data/internal/climate"
	"github.com/i474232898/climate-stripes-data/internal/metrics"
	"github.com/i474232898/climate-stripes-data/internal/output"
)

// Publisher copies a written file somewhere the front end can read it.
type Publisher interface {
	Publish(ctx context.Context, filePath string) error
}

// Options describes what a run produces.
type Options struct {
	Locations   []climate.Location
	Sample      climate.Location
	StartYear   int
	EndYear     int
	Description string
}

// Result summarizes a finished run.
type Result struct {
	RunID      string
	Cities     *climate.ResultSet
	Global     climate.GlobalRecord
	CitiesPath string
	GlobalPath string
}

// Pipeline produces the per-city file and the global sample file.
type Pipeline struct {
	service   *climate.Service
	writer    *output.Writer
	publisher Publisher
	opts      Options
	logger    zerolog.Logger
}

// New creates a Pipeline. publisher may be nil.
func New(service *climate.Service, writer *output.Writer, publisher Publisher, opts Options, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		service:   service,
		writer:    writer,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
	}
}

// Locations returns the locations the pipeline runs over.
func (p *Pipeline) Locations() []climate.Location {
	return p.opts.Locations
}

// Run executes one generation run. Source failures never fail the run; only
// cancellation and output errors do.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := p.logger.With().Str("run_id", runID).Logger()

	logger.Info().
		Int("locations", len(p.opts.Locations)).
		Int("start_year", p.opts.StartYear).
		Int("end_year", p.opts.EndYear).
		Msg("generating climate data")

	res, err := p.run(ctx, runID)
	metrics.RunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RunErrors.Inc()
		return Result{}, err
	}

	logger.Info().Dur("took", time.Since(start)).Msg("generation complete")
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, runID string) (Result, error) {
	cities, err := p.service.Collect(ctx, runID, p.opts.Locations, p.opts.StartYear, p.opts.EndYear)
	if err != nil {
		return Result{}, fmt.Errorf("collect: %w", err)
	}
	citiesPath, err := p.writer.WriteCities(cities)
	if err != nil {
		return Result{}, fmt.Errorf("write cities: %w", err)
	}

	global, err := p.service.Global(ctx, p.opts.Sample, p.opts.StartYear, p.opts.EndYear, p.opts.Description)
	if err != nil {
		return Result{}, fmt.Errorf("global: %w", err)
	}
	globalPath, err := p.writer.WriteGlobal(global)
	if err != nil {
		return Result{}, fmt.Errorf("write global: %w", err)
	}

	p.publish(ctx, citiesPath, globalPath)

	return Result{
		RunID:      runID,
		Cities:     cities,
		Global:     global,
		CitiesPath: citiesPath,
		GlobalPath: globalPath,
	}, nil
}

// publish uploads the written files. Failures are logged; the local files
// remain the source of truth.
func (p *Pipeline) publish(ctx context.Context, paths ...string) {
	if p.publisher == nil {
		return
	}
	for _, path := range paths {
		if err := p.publisher.Publish(ctx, path); err != nil {
			p.logger.Error().Err(err).Str("path", path).Msg("failed to publish file")
			continue
		}
		p.logger.Info().Str("path", path).Msg("file published")
	}
}
