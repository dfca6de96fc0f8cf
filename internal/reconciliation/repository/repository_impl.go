package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/reconciliation/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const runColumns = `id, run_key, dry_run, status, summary, started_at, finished_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertRun(ctx context.Context, db *gorm.DB, run *domain.Run) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO reconciliation_runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.RunKey,
		run.DryRun,
		run.Status,
		run.Summary,
		run.StartedAt,
		run.FinishedAt,
	).Error
}

func (r *repo) FinishRun(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.RunStatus, summary domain.Report, finishedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE reconciliation_runs
		 SET status = ?, summary = ?, finished_at = ?
		 WHERE id = ?`,
		status,
		datatypes.NewJSONType(summary),
		finishedAt,
		id,
	).Error
}

func (r *repo) FindRun(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Run, error) {
	var run domain.Run
	err := db.WithContext(ctx).Raw(
		`SELECT `+runColumns+` FROM reconciliation_runs WHERE id = ?`,
		id,
	).Scan(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == 0 {
		return nil, nil
	}
	return &run, nil
}

func (r *repo) ListRuns(ctx context.Context, db *gorm.DB, limit int) ([]domain.Run, error) {
	var runs []domain.Run
	err := db.WithContext(ctx).Raw(
		`SELECT `+runColumns+`
		 FROM reconciliation_runs
		 ORDER BY started_at DESC, id DESC
		 LIMIT ?`,
		limit,
	).Scan(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}
