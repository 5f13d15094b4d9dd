package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FormBool accepts the spellings browsers and API clients use for a flag:
// true/false, 1/0, yes/no and the checkbox value "on"
type FormBool bool

// UnmarshalParam implements echo.BindUnmarshaler
func (b *FormBool) UnmarshalParam(param string) error {
	switch strings.ToLower(strings.TrimSpace(param)) {
	case "true", "1", "yes", "on":
		*b = true
	case "false", "0", "no", "off", "":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %q", param)
	}
	return nil
}

func (b *FormBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = FormBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid boolean %s", data)
	}
	return b.UnmarshalParam(s)
}

// UploadRequest is the form accepted by the upload endpoint. The file part is
// read separately from the multipart form.
type UploadRequest struct {
	Text         string   `form:"text" json:"text" validate:"omitempty,max_text_bytes"`
	Expiry       string   `form:"expiry" json:"expiry" validate:"omitempty,rfc3339_instant"`
	Password     string   `form:"password" json:"password" validate:"omitempty,max=72"`
	OneTimeView  FormBool `form:"oneTimeView" json:"oneTimeView"`
	MaxViews     int      `form:"maxViews" json:"maxViews" validate:"omitempty,min=1,max=1000000"`
	MaxDownloads int      `form:"maxDownloads" json:"maxDownloads" validate:"omitempty,min=1,max=1000000"`
}

// VerifyRequest carries a candidate password for a protected link
type VerifyRequest struct {
	Password string `form:"password" json:"password" validate:"required,max=72"`
}

// UploadResult is returned in StorageResponse.Data after a successful upload
type UploadResult struct {
	ID        string    `json:"id"`
	Link      string    `json:"link"`
	Kind      Kind      `json:"kind"`
	ExpiresAt time.Time `json:"expiresAt"`
	Policy    string    `json:"policy"`
	Protected bool      `json:"passwordProtected"`
}

// TextPayload is the JSON body served for a delivered text record
type TextPayload struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// VerifyResult is returned after a correct password
type VerifyResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Link      string    `json:"link"`
}

// StorageResponse represents a response from storage operations
type StorageResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// HealthResponse represents the health status of the server
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    time.Duration          `json:"uptime"`
	Metrics   map[string]interface{} `json:"metrics,omitempty"`
}

// SweepResponse reports a manually triggered sweep
type SweepResponse struct {
	Purged   int           `json:"purged"`
	Duration time.Duration `json:"duration"`
	RanAt    time.Time     `json:"ran_at"`
}

// BackupResponse represents a backup operation response
type BackupResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListResponse is a page of admin record summaries
type ListResponse struct {
	Records []RecordSummary `json:"records"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}
