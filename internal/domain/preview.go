package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by repositories when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned by Create when the URL is already stored
	ErrAlreadyExists = errors.New("already exists")
)

// PreviewMetadata is the normalized link preview for a single URL.
// Optional fields are nil when the page did not provide them.
type PreviewMetadata struct {
	URL         string  `json:"url"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Image       *string `json:"image,omitempty"`
	ImageWidth  *int    `json:"image_width,omitempty"`
	ImageHeight *int    `json:"image_height,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	SiteName    *string `json:"site_name,omitempty"`
}

// IsEmpty reports whether no optional field is populated
func (m *PreviewMetadata) IsEmpty() bool {
	return m.Title == nil && m.Description == nil && m.Image == nil &&
		m.Icon == nil && m.SiteName == nil && m.ImageWidth == nil
}

// Preview is a persisted resolution of a URL
type Preview struct {
	ID       uuid.UUID       `json:"id" db:"id"`
	URL      string          `json:"url" db:"url"`
	Metadata PreviewMetadata `json:"metadata" db:"metadata"`
	Status   string          `json:"status" db:"status"`
	Error    *string         `json:"error,omitempty" db:"error"`

	// Timestamps
	ResolvedAt *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// Preview status constants
const (
	PreviewStatusPending    = "pending"
	PreviewStatusProcessing = "processing"
	PreviewStatusComplete   = "complete"
	PreviewStatusFailed     = "failed"
)

// IsStale reports whether a completed preview is older than ttl
func (p *Preview) IsStale(now time.Time, ttl time.Duration) bool {
	if p.ResolvedAt == nil {
		return true
	}
	return now.Sub(*p.ResolvedAt) > ttl
}
