package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/climate-stripes-data/internal/pipeline"
)

type countingRunner struct {
	runs atomic.Int32
	ctx  atomic.Value
}

func (c *countingRunner) Run(ctx context.Context) (pipeline.Result, error) {
	c.ctx.Store(ctx)
	c.runs.Add(1)
	return pipeline.Result{RunID: "run"}, nil
}

func TestSchedulerRunsImmediately(t *testing.T) {
	runner := &countingRunner{}
	s := New(runner, time.Hour, zerolog.Nop())
	require.NoError(t, s.Start())

	assert.Eventually(t, func() bool { return runner.runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	ctx, ok := runner.ctx.Load().(context.Context)
	require.True(t, ok)
	assert.ErrorIs(t, ctx.Err(), context.Canceled, "stop cancels the job context")
}
