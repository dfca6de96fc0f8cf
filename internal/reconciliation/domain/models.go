package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/ledger/domain"
	"gorm.io/datatypes"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// Actions recorded against affected entities.
const (
	ActionRepair   = "repair"
	ActionRetrofit = "retrofit"
	ActionFailed   = "failed"
)

type Options struct {
	DryRun    bool
	Since     *time.Time
	BatchSize int
}

type Counts struct {
	Scanned           int `json:"scanned"`
	Repaired          int `json:"repaired"`
	AlreadyConsistent int `json:"already_consistent"`
	Retrofits         int `json:"retrofits"`
	Expired           int `json:"expired"`
	Failed            int `json:"failed"`
}

type Totals struct {
	CommissionPostedMinor int64 `json:"commission_posted_minor"`
	CreditIssuedMinor     int64 `json:"credit_issued_minor"`
}

// Affected names one entity a run touched, or would touch in a dry run.
type Affected struct {
	OrderID        snowflake.ID                `json:"order_id"`
	Action         string                      `json:"action"`
	CommissionType ledgerdomain.CommissionType `json:"commission_type,omitempty"`
	RecipientID    *snowflake.ID               `json:"recipient_id,omitempty"`
	CustomerID     *snowflake.ID               `json:"customer_id,omitempty"`
	AmountMinor    int64                       `json:"amount_minor"`
	Error          string                      `json:"error,omitempty"`
}

type Report struct {
	RunID       snowflake.ID `json:"run_id,omitempty"`
	RunKey      string       `json:"run_key"`
	DryRun      bool         `json:"dry_run"`
	LockSkipped bool         `json:"lock_skipped"`
	Since       time.Time    `json:"since"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Counts      Counts       `json:"counts"`
	Totals      Totals       `json:"totals"`
	Affected    []Affected   `json:"affected"`
	Errors      []string     `json:"errors,omitempty"`
}

// Status summarises the outcome: failures alongside repairs make a run partial.
func (r Report) Status() RunStatus {
	switch {
	case r.Counts.Failed == 0:
		return RunStatusSucceeded
	case r.Counts.Failed >= r.Counts.Scanned:
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}

type Run struct {
	ID         snowflake.ID               `gorm:"primaryKey" json:"id"`
	RunKey     string                     `gorm:"not null" json:"run_key"`
	DryRun     bool                       `gorm:"not null" json:"dry_run"`
	Status     RunStatus                  `gorm:"type:text;not null" json:"status"`
	Summary    datatypes.JSONType[Report] `json:"summary"`
	StartedAt  time.Time                  `gorm:"not null" json:"started_at"`
	FinishedAt *time.Time                 `json:"finished_at,omitempty"`
}

func (Run) TableName() string { return "reconciliation_runs" }
