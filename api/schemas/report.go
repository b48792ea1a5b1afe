// api/schemas/report.go
package schemas

import "time"

// -- Run Outcome Schemas --

// SubmissionAttempt records one try at clicking submit.
type SubmissionAttempt struct {
	Index   int      `json:"index"`
	Clicked bool     `json:"clicked"`
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
}

// VerificationReport lists field labels that are filled versus required and empty.
type VerificationReport struct {
	Filled []string `json:"filled"`
	Empty  []string `json:"empty"`
}

// ApplicationReport is the terminal outcome of one pipeline run.
type ApplicationReport struct {
	Success      bool                `json:"success"`
	Submitted    bool                `json:"submitted"`
	FieldsFilled int                 `json:"fieldsFilled"`
	TotalFields  int                 `json:"totalFields"`
	Errors       []string            `json:"errors"`
	Attempts     []SubmissionAttempt `json:"attempts,omitempty"`
}

// JobInfo is the best-effort company and position scraped from a posting.
type JobInfo struct {
	Company  string `json:"company"`
	Position string `json:"position"`
}

const (
	UnknownCompany  = "Unknown Company"
	UnknownPosition = "Unknown Position"
)

// ApplicationEvent is delivered to a Notifier once per run.
type ApplicationEvent struct {
	RunID      string            `json:"run_id"`
	JobURL     string            `json:"job_url"`
	Job        JobInfo           `json:"job"`
	Report     ApplicationReport `json:"report"`
	Screenshot []byte            `json:"-"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ApplicationStatus is the persisted outcome of a run.
type ApplicationStatus string

const (
	StatusSubmitted ApplicationStatus = "SUBMITTED"
	StatusFailed    ApplicationStatus = "FAILED"
	StatusDryRun    ApplicationStatus = "DRY_RUN"
)

// StatusFor derives the persisted status of a report.
func StatusFor(r ApplicationReport) ApplicationStatus {
	switch {
	case r.Success && r.Submitted:
		return StatusSubmitted
	case r.Success:
		return StatusDryRun
	default:
		return StatusFailed
	}
}

// ApplicationRecord is the stored history entry for a run.
type ApplicationRecord struct {
	ID           string              `json:"id"`
	JobURL       string              `json:"job_url"`
	Company      string              `json:"company"`
	Position     string              `json:"position"`
	Status       ApplicationStatus   `json:"status"`
	FieldsFilled int                 `json:"fields_filled"`
	TotalFields  int                 `json:"total_fields"`
	Errors       []string            `json:"errors"`
	Attempts     []SubmissionAttempt `json:"attempts,omitempty"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
}

// Posting is a job posting snapshot kept for search.
type Posting struct {
	URL        string    `json:"url"`
	Company    string    `json:"company"`
	Position   string    `json:"position"`
	Markdown   string    `json:"markdown"`
	CapturedAt time.Time `json:"captured_at"`
}

// SearchResult is one ranked hit from a SearchIndex query.
type SearchResult struct {
	Posting Posting `json:"posting"`
	Score   float64 `json:"score"`
}
