package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DispatchOperation names the gateway call that was dispatched
type DispatchOperation string

const (
	OperationChat       DispatchOperation = "chat"
	OperationStreamChat DispatchOperation = "stream_chat"
	OperationEmbed      DispatchOperation = "embed"
)

// DispatchStatus is the outcome of a dispatched call
type DispatchStatus string

const (
	DispatchStatusSuccess DispatchStatus = "success"
	DispatchStatusError   DispatchStatus = "error"
	// DispatchStatusCancelled marks a stream the client abandoned before its end
	DispatchStatusCancelled DispatchStatus = "cancelled"
)

// DispatchRecord is the metadata of one backend call. It never holds message content.
type DispatchRecord struct {
	ID           uuid.UUID         `json:"id" db:"id"`
	RequestID    string            `json:"request_id" db:"request_id"`
	Operation    DispatchOperation `json:"operation" db:"operation"`
	Model        string            `json:"model" db:"model"`
	Provider     string            `json:"provider" db:"provider"`
	Status       DispatchStatus    `json:"status" db:"status"`
	LatencyMs    int               `json:"latency_ms" db:"latency_ms"`
	ErrorKind    *string           `json:"error_kind,omitempty" db:"error_kind"`
	ErrorMessage *string           `json:"error_message,omitempty" db:"error_message"`
	Details      json.RawMessage   `json:"details,omitempty" db:"details"` // JSONB for flexible metadata
	Timestamp    time.Time         `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the DispatchRecord model
func (DispatchRecord) TableName() string {
	return "dispatch_logs"
}

// NewDispatchRecord creates a new DispatchRecord instance
func NewDispatchRecord(operation DispatchOperation, model, provider string) *DispatchRecord {
	return &DispatchRecord{
		ID:        uuid.New(),
		Operation: operation,
		Model:     model,
		Provider:  provider,
		Status:    DispatchStatusSuccess,
		Timestamp: time.Now().UTC(),
	}
}

// WithRequest sets the HTTP request id
func (d *DispatchRecord) WithRequest(requestID string) *DispatchRecord {
	d.RequestID = requestID
	return d
}

// WithLatency sets the call duration
func (d *DispatchRecord) WithLatency(latency time.Duration) *DispatchRecord {
	d.LatencyMs = int(latency.Milliseconds())
	return d
}

// WithStatus sets the outcome
func (d *DispatchRecord) WithStatus(status DispatchStatus) *DispatchRecord {
	d.Status = status
	return d
}

// WithError marks the record failed
func (d *DispatchRecord) WithError(kind, message string) *DispatchRecord {
	d.Status = DispatchStatusError
	if kind != "" {
		d.ErrorKind = &kind
	}
	d.ErrorMessage = &message
	return d
}

// WithDetails sets the details
func (d *DispatchRecord) WithDetails(details interface{}) *DispatchRecord {
	if data, err := json.Marshal(details); err == nil {
		d.Details = data
	}
	return d
}

// Failed reports whether the call ended with an error
func (d *DispatchRecord) Failed() bool {
	return d.Status == DispatchStatusError
}
