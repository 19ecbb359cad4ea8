package core

import "time"

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// ReceiptRef points at an archived receipt image.
type ReceiptRef struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
}

// IngestJob is a queued ingest request processed by the worker.
type IngestJob struct {
	ID         string       `json:"id"`
	UserID     string       `json:"userId"`
	SourceType SourceType   `json:"sourceType"`
	RawText    string       `json:"rawText,omitempty"`
	Receipts   []ReceiptRef `json:"receipts,omitempty"`
	Status     JobStatus    `json:"status"`
	Extracted  int          `json:"extracted"`
	Error      string       `json:"error,omitempty"`
	Attempts   int          `json:"attempts"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// Done reports whether the job reached a terminal status.
func (j IngestJob) Done() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
