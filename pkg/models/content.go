package models

import (
	"time"
)

// Kind identifies the representation a record carries
type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
)

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	return k == KindText || k == KindFile
}

// ContentRecord represents one shareable item and its access policy.
// Exactly one of TextData / FilePath is populated, matching Kind.
type ContentRecord struct {
	ID               string       `json:"id"`
	Kind             Kind         `json:"kind"`
	TextData         string       `json:"text_data,omitempty"`
	FilePath         string       `json:"file_path,omitempty"`
	OriginalFileName string       `json:"original_file_name,omitempty"`
	ContentType      string       `json:"content_type,omitempty"`
	Size             int64        `json:"size,omitempty"`
	ExpiryTime       time.Time    `json:"expiry_time"`
	CreatedAt        time.Time    `json:"created_at"`
	Policy           AccessPolicy `json:"policy"`
	IsConsumed       bool         `json:"is_consumed"`
	PasswordHash     string       `json:"password_hash,omitempty"`
	ViewCount        int          `json:"view_count"`
	DownloadCount    int          `json:"download_count"`

	// Version increments on every persisted mutation
	Version int64 `json:"version"`
}

// IsExpired reports whether the expiry instant has been reached at now
func (r *ContentRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiryTime)
}

// HasPassword reports whether access is gated behind a password
func (r *ContentRecord) HasPassword() bool {
	return r.PasswordHash != ""
}

// IsExhausted reports whether the record's access policy has been used up
func (r *ContentRecord) IsExhausted() bool {
	if r.Policy.IsOneTimeView() {
		return r.IsConsumed
	}
	if limit, ok := r.Policy.MaxViews(); ok {
		return r.Kind == KindText && r.ViewCount >= limit
	}
	if limit, ok := r.Policy.MaxDownloads(); ok {
		return r.Kind == KindFile && r.DownloadCount >= limit
	}
	return false
}

// IsActive reports whether the record is still servable at now
func (r *ContentRecord) IsActive(now time.Time) bool {
	return !r.IsExpired(now) && !r.IsExhausted()
}

// Clone returns an independent copy of the record
func (r *ContentRecord) Clone() *ContentRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// RecordSummary is the admin view of a record; it never exposes the payload or hash
type RecordSummary struct {
	ID                string       `json:"id"`
	Kind              Kind         `json:"kind"`
	OriginalFileName  string       `json:"original_file_name,omitempty"`
	ContentType       string       `json:"content_type,omitempty"`
	Size              int64        `json:"size,omitempty"`
	ExpiryTime        time.Time    `json:"expiry_time"`
	CreatedAt         time.Time    `json:"created_at"`
	Policy            AccessPolicy `json:"policy"`
	IsConsumed        bool         `json:"is_consumed"`
	PasswordProtected bool         `json:"password_protected"`
	ViewCount         int          `json:"view_count"`
	DownloadCount     int          `json:"download_count"`
}

// RecordDetail is the admin view of one record. BlobPresent is set for file
// records only.
type RecordDetail struct {
	RecordSummary
	BlobPresent *bool `json:"blob_present,omitempty"`
}

// Summary strips payload and secrets from the record
func (r *ContentRecord) Summary() RecordSummary {
	return RecordSummary{
		ID:                r.ID,
		Kind:              r.Kind,
		OriginalFileName:  r.OriginalFileName,
		ContentType:       r.ContentType,
		Size:              r.Size,
		ExpiryTime:        r.ExpiryTime,
		CreatedAt:         r.CreatedAt,
		Policy:            r.Policy,
		IsConsumed:        r.IsConsumed,
		PasswordProtected: r.HasPassword(),
		ViewCount:         r.ViewCount,
		DownloadCount:     r.DownloadCount,
	}
}
