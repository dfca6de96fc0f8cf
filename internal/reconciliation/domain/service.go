package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Locker guards a run against overlapping runs on other instances. TryLock returns
// a token to release with.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Service interface {
	Run(ctx context.Context, opts Options) (Report, error)
	GetRun(ctx context.Context, id snowflake.ID) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	// RenderPDF renders a recorded run for operator review and names the file.
	RenderPDF(ctx context.Context, id snowflake.ID) (string, io.Reader, error)
}

var (
	ErrNotFound         = errors.New("not_found")
	ErrRunNotFound      = fmt.Errorf("reconciliation_run: %w", ErrNotFound)
	ErrInvalidBatchSize = errors.New("invalid_batch_size")
)
