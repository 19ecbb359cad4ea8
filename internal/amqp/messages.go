package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// IngestJobMessage points the worker at a persisted ingest job.
// The payload stays small; receipts and raw text live with the job record.
type IngestJobMessage struct {
	JobID     string    `json:"job_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewIngestJobMessage creates a new message for the given job
func NewIngestJobMessage(jobID, userID string) *IngestJobMessage {
	return &IngestJobMessage{
		JobID:     jobID,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *IngestJobMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// IngestJobMessageFromJSON decodes a message and rejects one without a job id.
func IngestJobMessageFromJSON(data []byte) (*IngestJobMessage, error) {
	var msg IngestJobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.JobID == "" {
		return nil, errors.New("ingest job message without job_id")
	}
	return &msg, nil
}
