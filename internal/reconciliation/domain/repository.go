package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertRun(ctx context.Context, db *gorm.DB, run *Run) error
	FinishRun(ctx context.Context, db *gorm.DB, id snowflake.ID, status RunStatus, summary Report, finishedAt time.Time) error
	FindRun(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Run, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, db *gorm.DB, limit int) ([]Run, error)
}
