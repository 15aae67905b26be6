package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Status is the lifecycle state of a conversion record.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Conversion is one tracked unit of work turning a chat export into PDF/DOCX
// artifacts. Output paths and metadata are set only on completed records;
// ErrorCategory/Error only on failed ones.
type Conversion struct {
	ID               string     `json:"conversion_id"`
	UserID           string     `json:"user_id"`
	OriginalFilename string     `json:"original_filename"`
	Platform         string     `json:"platform"`
	Status           Status     `json:"status"`
	InputLocation    string     `json:"input_location,omitempty"`
	PDFPath          string     `json:"pdf_path,omitempty"`
	DOCXPath         string     `json:"docx_path,omitempty"`
	MessageCount     int        `json:"message_count,omitempty"`
	WordCount        int        `json:"word_count,omitempty"`
	SkippedCount     int        `json:"skipped_count,omitempty"`
	ProcessingMS     int64      `json:"processing_ms,omitempty"`
	ErrorCategory    string     `json:"error_category,omitempty"`
	Error            string     `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// User is a profile row. Identity is established by the external auth layer;
// the pipeline reads the subscription tier for concurrency policy and keeps
// conversion_count current.
type User struct {
	UID             string    `json:"uid"`
	Email           string    `json:"email,omitempty"`
	Subscription    string    `json:"subscription"`
	ConversionCount int       `json:"conversion_count"`
	DefaultFormat   string    `json:"default_format"`
	AutoDelete      bool      `json:"auto_delete"`
	CreatedAt       time.Time `json:"created_at"`
}

const (
	TierFree    = "free"
	TierPremium = "premium"
)
