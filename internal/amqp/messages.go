package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ExportMessage announces an export job. It carries only the job id and
// version; the worker loads the job itself.
type ExportMessage struct {
	JobID     int64     `json:"job_id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExportMessage builds the message announcing a queued export job.
func NewExportMessage(jobID, version int64) *ExportMessage {
	return &ExportMessage{
		JobID:     jobID,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// ToJSON encodes the message body.
func (m *ExportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExportMessageFromJSON decodes and checks a message body.
func ExportMessageFromJSON(data []byte) (*ExportMessage, error) {
	var msg ExportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.JobID <= 0 {
		return nil, errors.New("export message without job id")
	}
	return &msg, nil
}
