package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusCompleted   RunStatus = "completed"
	RunStatusFailed      RunStatus = "failed"
	RunStatusInterrupted RunStatus = "interrupted"
)

type Stage string

const (
	StageDiscovery  Stage = "discovery"
	StageEnrichment Stage = "enrichment"
)

// StageRun is one execution of a stage, journaled in SQLite.
type StageRun struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Stage      Stage      `json:"stage" db:"stage"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at" db:"finished_at"`
	Status     RunStatus  `json:"status" db:"status"`
	Pages      int        `json:"pages" db:"pages"`
	Records    int        `json:"records" db:"records"`
	Skipped    int        `json:"skipped" db:"skipped"`
	Errors     int        `json:"errors" db:"errors"`
	Message    string     `json:"message" db:"message"`
}

func NewStageRun(stage Stage) *StageRun {
	return &StageRun{
		ID:        uuid.New(),
		Stage:     stage,
		StartedAt: time.Now(),
		Status:    RunStatusRunning,
	}
}

// DiscoveryCursor is the last page of a search whose rows were durably written.
type DiscoveryCursor struct {
	SearchKey    string    `json:"search_key" db:"search_key"`
	LastPage     int       `json:"last_page" db:"last_page"`
	TotalResults int       `json:"total_results" db:"total_results"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)
