package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/i474232898/climate-stripes-data/internal/pipeline"
)

// Runner is satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context) (pipeline.Result, error)
}

// Scheduler periodically regenerates the climate data files.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Scheduler.
func New(runner Runner, interval time.Duration, logger zerolog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		interval:  interval,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first run starts immediately.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 24 * 60
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		s.logger.Info().Msg("scheduler: running climate generation job")
		res, err := s.runner.Run(s.ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("scheduler: generation failed")
			return
		}
		s.logger.Info().Str("run_id", res.RunID).Msg("scheduler: completed climate generation job")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop cancels a running job and stops the scheduler.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
