package domain

import "time"

// Sentinel values written in place of a matched product.
const (
	NoMatchFound      = "No match found"
	ErrorInProcessing = "Error in processing"
)

// ResultRecord is the outcome for one sample row. Only GeneratedTitle and
// MatchedProduct are written to the output sheet.
type ResultRecord struct {
	SourceTitle    string
	GeneratedTitle string
	Category       Category
	MatchedProduct string
}

// Matched reports whether a known product was found for the row.
func (r ResultRecord) Matched() bool {
	return r.MatchedProduct != "" && r.MatchedProduct != NoMatchFound && r.MatchedProduct != ErrorInProcessing
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunRecord is the audit row kept for every pipeline run.
type RunRecord struct {
	ID                string
	StartedAt         time.Time
	FinishedAt        time.Time
	Status            RunStatus
	Error             string
	UsedPrevious      bool
	Products          int
	Categorized       int
	Iterations        int
	Samples           int
	Matched           int
	InputTokens       int64
	OutputTokens      int64
	OutputPath        string
	CategorizedSource string
}
