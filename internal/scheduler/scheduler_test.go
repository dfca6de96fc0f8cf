package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/clock"
	recondomain "github.com/pawtraits-dev/pawtraits-sub014/internal/reconciliation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeReconciler struct {
	mu    sync.Mutex
	calls []recondomain.Options
	run   func(ctx context.Context) (recondomain.Report, error)
}

func (f *fakeReconciler) Run(ctx context.Context, opts recondomain.Options) (recondomain.Report, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()
	if f.run != nil {
		return f.run(ctx)
	}
	return recondomain.Report{Counts: recondomain.Counts{Scanned: 3}}, nil
}

func (f *fakeReconciler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeReconciler) GetRun(context.Context, snowflake.ID) (*recondomain.Run, error) {
	return nil, recondomain.ErrRunNotFound
}

func (f *fakeReconciler) ListRuns(context.Context, int) ([]recondomain.Run, error) {
	return nil, nil
}

func (f *fakeReconciler) RenderPDF(context.Context, snowflake.ID) (string, io.Reader, error) {
	return "", nil, recondomain.ErrRunNotFound
}

func newScheduler(t *testing.T, cfg Config, rec recondomain.Service) (*Scheduler, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s, err := New(Params{
		Log:        zap.New(core),
		GenID:      node,
		Clock:      clock.NewFakeClock(time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)),
		Reconciler: rec,
		Config:     cfg,
	})
	require.NoError(t, err)
	return s, logs
}

func TestNewRequiresReconciler(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOncePassesBatchSize(t *testing.T) {
	rec := &fakeReconciler{}
	s, logs := newScheduler(t, Config{Enabled: true, BatchSize: 25}, rec)

	require.NoError(t, s.RunOnce(context.Background()))
	require.Len(t, rec.calls, 1)
	assert.Equal(t, 25, rec.calls[0].BatchSize)
	assert.False(t, rec.calls[0].DryRun)

	finish := logs.FilterMessage("scheduler.job.finish").All()
	require.Len(t, finish, 1)
	assert.Equal(t, int64(3), finish[0].ContextMap()["processed_count"])
}

func TestRunOnceDisabled(t *testing.T) {
	rec := &fakeReconciler{}
	s, _ := newScheduler(t, Config{Enabled: false}, rec)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Zero(t, rec.callCount())
}

func TestRunOnceTreatsTimeoutAsSoft(t *testing.T) {
	rec := &fakeReconciler{run: func(ctx context.Context) (recondomain.Report, error) {
		<-ctx.Done()
		return recondomain.Report{}, ctx.Err()
	}}
	s, logs := newScheduler(t, Config{Enabled: true, JobTimeout: 10 * time.Millisecond}, rec)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("job timed out").Len())
}

func TestRunOnceWrapsFailures(t *testing.T) {
	boom := errors.New("boom")
	rec := &fakeReconciler{run: func(context.Context) (recondomain.Report, error) {
		return recondomain.Report{}, boom
	}}
	s, logs := newScheduler(t, Config{Enabled: true}, rec)

	err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), jobReconcile)
	assert.Equal(t, 1, logs.FilterMessage("scheduler.job.finish").FilterLevelExact(zap.WarnLevel).Len())
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	rec := &fakeReconciler{}
	s, _ := newScheduler(t, Config{Enabled: true, RunInterval: 5 * time.Millisecond}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunForever(ctx)
	}()

	require.Eventually(t, func() bool { return rec.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestProvideConfigDefaults(t *testing.T) {
	cfg := Config{Enabled: true}.withDefaults()
	assert.Equal(t, 15*time.Minute, cfg.RunInterval)
	assert.Equal(t, 5*time.Minute, cfg.JobTimeout)
	assert.Equal(t, 200, cfg.BatchSize)
}
