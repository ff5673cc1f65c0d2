package domain

import "time"

// JobStatus is the lifecycle state of an asynchronous search job.
type JobStatus string

// Job states. A job is pending from submission until its search
// finishes, then completed or failed.
const (
	JobPending   JobStatus = "pending"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// SearchJob tracks one asynchronous search from submission to result.
type SearchJob struct {
	ID          string        `json:"searchId"`
	ISBN        string        `json:"isbn"`
	Status      JobStatus     `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
	Result      *SearchResult `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
}
