package api

import (
	"ripcast/internal/history"
	"ripcast/internal/jobs"
)

// CreateJobRequest is the body of POST /api/jobs.
type CreateJobRequest struct {
	URL        string `json:"url"`
	Format     string `json:"format,omitempty"`
	CustomName string `json:"customName,omitempty"`
}

// CreateJobResponse acknowledges an accepted job.
type CreateJobResponse struct {
	JobID string `json:"jobId"`
}

// CreateBatchRequest is the body of POST /api/jobs/batch.
type CreateBatchRequest struct {
	URLs   []string `json:"urls"`
	Format string   `json:"format,omitempty"`
}

// CreateBatchResponse acknowledges an accepted batch.
type CreateBatchResponse struct {
	JobIDs []string `json:"jobIds"`
}

// ErrorResponse is the uniform error body. Field is set for validation
// failures; Index is set when a batch element was rejected.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Index *int   `json:"index,omitempty"`
}

// JobResponse wraps a single job snapshot.
type JobResponse struct {
	Job jobs.Snapshot `json:"job"`
}

// JobListResponse wraps the live job listing.
type JobListResponse struct {
	Jobs []jobs.Snapshot `json:"jobs"`
}

// HistoryResponse wraps the archived job listing.
type HistoryResponse struct {
	Records []history.Record `json:"records"`
}

// DependencyStatus reports the availability of one external binary.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus reports daemon runtime information. The endpoint serving it is
// exempt from rate limiting.
type DaemonStatus struct {
	Running            bool               `json:"running"`
	PID                int                `json:"pid"`
	ActiveJobs         int                `json:"active_jobs"`
	TerminalJobs       int                `json:"terminal_jobs"`
	RunningExtractions int                `json:"running_extractions"`
	MaxExtractions     int                `json:"max_extractions"`
	History            map[string]int     `json:"history,omitempty"`
	Dependencies       []DependencyStatus `json:"dependencies,omitempty"`
}
