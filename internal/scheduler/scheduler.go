package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/clock"
	obsmetrics "github.com/pawtraits-dev/pawtraits-sub014/internal/observability/metrics"
	recondomain "github.com/pawtraits-dev/pawtraits-sub014/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobReconcile = "reconcile"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Reconciler recondomain.Service
	Config     Config                 `optional:"true"`
	JobMetrics *obsmetrics.JobMetrics `optional:"true"`
}

// Scheduler runs background jobs on a fixed interval inside the API process.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	reconciler recondomain.Service
	metrics    *obsmetrics.JobMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Reconciler == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		reconciler: p.Reconciler,
		metrics:    p.JobMetrics,
	}, nil
}

// runJob bounds fn by timeout. Running out of time is a soft failure: the next tick
// resumes, and every job here is safe to repeat.
func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context, run *jobRun) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name)
	s.logJobStart(ctx, run)
	s.metrics.IncJobRun(name)

	err := fn(ctx, run)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err != nil && run.errorCount == 0 {
		run.errorCount++
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	return s.runJob(parent, jobReconcile, s.cfg.JobTimeout, s.reconcileJob)
}

func (s *Scheduler) reconcileJob(ctx context.Context, run *jobRun) error {
	report, err := s.reconciler.Run(ctx, recondomain.Options{BatchSize: s.cfg.BatchSize})
	run.processedCount = report.Counts.Scanned
	run.errorCount = report.Counts.Failed
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.metrics.ObserveRunLoopLag(s.clock.Now().Sub(nextRun))
		nextRun = nextRun.Add(s.cfg.RunInterval)
	}
}
