package model

import "time"

// JobStatus is the lifecycle state of a research job
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is the bookkeeping record for one research request.
// Result is only set once the job has completed.
type Job struct {
	ID            string         `json:"id"`
	TargetName    string         `json:"target_name"`
	TargetContext string         `json:"target_context"`
	Status        JobStatus      `json:"status"`
	Error         string         `json:"error,omitempty"`
	Result        *ResearchState `json:"result,omitempty"`
	ReportPath    string         `json:"report_path,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
