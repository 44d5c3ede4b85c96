// payroll_correction.go defines the PayrollCorrection and FileUpload job models.
// Both share the three-state JobStatus machine; once a job reaches COMPLETED or
// FAILED the row is immutable (see internal/corrections).
package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the processing state of a PayrollCorrection or FileUpload job.
type JobStatus string

const (
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

// Valid reports whether s is one of the defined job statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobProcessing, JobCompleted, JobFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// PayrollCorrection is one AI payroll-correction job submitted through the
// automation API.
type PayrollCorrection struct {
	ID          string          `json:"id" db:"id"`
	APIKeyID    string          `json:"api_key_id" db:"api_key_id"`
	Status      JobStatus       `json:"status" db:"status"`
	InputData   json.RawMessage `json:"input_data,omitempty" db:"input_data"`   // payload submitted by the customer
	OutputData  json.RawMessage `json:"output_data,omitempty" db:"output_data"` // result from the correction engine; set on COMPLETED
	IssuesFound *int            `json:"issues_found,omitempty" db:"issues_found"`
	ErrorMsg    *string         `json:"error_msg,omitempty" db:"error_msg"`
	StartedAt   time.Time       `json:"started_at" db:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
}

// FileUpload is one uploaded payroll file tracked through the same
// PROCESSING → {COMPLETED, FAILED} machine as corrections.
type FileUpload struct {
	ID          string     `json:"id" db:"id"`
	APIKeyID    string     `json:"api_key_id" db:"api_key_id"`
	FileName    string     `json:"file_name" db:"file_name"`
	ContentType string     `json:"content_type" db:"content_type"`
	SizeBytes   int64      `json:"size_bytes" db:"size_bytes"`
	Checksum    string     `json:"checksum" db:"checksum"` // sha256 of the stored content
	StoragePath string     `json:"-" db:"storage_path"`
	Status      JobStatus  `json:"status" db:"status"`
	ErrorMsg    *string    `json:"error_msg,omitempty" db:"error_msg"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}
