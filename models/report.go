// ABOUTME: This file defines run and per-account summary models produced by the sync engine
// ABOUTME: Summaries feed both the sink text report and structured log output

package models

import (
	"time"

	"github.com/google/uuid"
)

// AccountSummary captures what one run did for one account.
type AccountSummary struct {
	Handle                string     `json:"handle"`
	Uploaded              int        `json:"uploaded"`
	Skipped               int        `json:"skipped"`
	Failed                int        `json:"failed"`
	IncrementalCandidates int        `json:"incremental_candidates"`
	IncrementalSelected   int        `json:"incremental_selected"`
	BackfillCandidates    int        `json:"backfill_candidates"`
	BackfillSelected      int        `json:"backfill_selected"`
	BackfillDone          bool       `json:"backfill_done"`
	CooldownActive        bool       `json:"cooldown_active"`
	CooldownUntil         *time.Time `json:"cooldown_until,omitempty"`
}

// RunSummary is the result of one sync engine invocation.
type RunSummary struct {
	RunID         uuid.UUID        `json:"run_id"`
	HolderID      string           `json:"holder_id"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    time.Time        `json:"finished_at"`
	SkippedByLock bool             `json:"skipped_by_lock"`
	Accounts      []AccountSummary `json:"accounts"`
}

// NewRunSummary creates a summary for a starting run.
func NewRunSummary(holderID string, startedAt time.Time) *RunSummary {
	return &RunSummary{
		RunID:     uuid.New(),
		HolderID:  holderID,
		StartedAt: startedAt,
		Accounts:  []AccountSummary{},
	}
}

// TotalUploaded sums uploads across all accounts.
func (r *RunSummary) TotalUploaded() int {
	total := 0
	for _, a := range r.Accounts {
		total += a.Uploaded
	}
	return total
}
