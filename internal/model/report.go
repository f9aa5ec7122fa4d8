package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyReport summarizes clients whose payment falls in a given month.
type MonthlyReport struct {
	Companies  map[string]int
	GrossTotal decimal.Decimal
	NetTotal   decimal.Decimal
	Month      string
	Clients    int
}

// RunStatus describes the outcome of a notify-and-purge run.
type RunStatus string

const (
	// RunStatusSucceeded means every step completed.
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusPartial means the run finished but some clients failed.
	RunStatusPartial RunStatus = "partial"
	// RunStatusFailed means the run aborted.
	RunStatusFailed RunStatus = "failed"
)

// Run records one execution of the notify-and-purge job.
type Run struct {
	StartedAt  time.Time
	FinishedAt time.Time
	ID         string
	Trigger    string
	Status     RunStatus
	Error      string
	Notified   []string
	Purged     []string
	Failures   []string
}
