package handlers

import (
	"fmt"
	"mime/multipart"
	"net/url"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"linkvault-server/pkg/config"
	"linkvault-server/pkg/models"
	"linkvault-server/pkg/storage"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
)

const (
	maxIDLength       = 64
	defaultPageSize   = 100
	proofCookiePrefix = "lv_proof_"
)

// Link IDs are UUIDs by default; any short alphanumeric-with-dashes id is accepted
var validIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// RequestValidator validates incoming requests. It also satisfies
// echo.Validator so handlers can call c.Validate.
type RequestValidator struct {
	config    *config.Config
	validator *validator.Validate
}

// NewRequestValidator creates a new request validator
func NewRequestValidator(cfg *config.Config) *RequestValidator {
	v := validator.New()

	v.RegisterValidation("link_id", func(fl validator.FieldLevel) bool {
		id := fl.Field().String()
		return len(id) <= maxIDLength && validIDPattern.MatchString(id)
	})
	v.RegisterValidation("max_text_bytes", func(fl validator.FieldLevel) bool {
		return cfg.MaxTextSize <= 0 || len(fl.Field().String()) <= cfg.MaxTextSize
	})
	v.RegisterValidation("rfc3339_instant", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(time.RFC3339, fl.Field().String())
		return err == nil
	})

	return &RequestValidator{
		config:    cfg,
		validator: v,
	}
}

// Validate implements echo.Validator
func (v *RequestValidator) Validate(i interface{}) error {
	if err := v.validator.Struct(i); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateID checks the shape of a link id before it reaches storage
func (v *RequestValidator) ValidateID(id string) error {
	if err := v.validator.Var(id, "required,link_id"); err != nil {
		return fmt.Errorf("invalid link id")
	}
	return nil
}

// ParseExpiry converts the optional RFC 3339 expiry of an upload
func (v *RequestValidator) ParseExpiry(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("expiry must be an RFC 3339 timestamp (e.g. 2025-01-01T00:00:00Z)")
	}
	t = t.UTC()
	return &t, nil
}

// ValidateUploadFile enforces the extension allowlist and the size limit
func (v *RequestValidator) ValidateUploadFile(fh *multipart.FileHeader) error {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if len(v.config.AllowedExtensions) > 0 && !slices.Contains(v.config.AllowedExtensions, ext) {
		return fmt.Errorf("file type %q not allowed (allowed: %s)", ext, strings.Join(v.config.AllowedExtensions, ", "))
	}
	if v.config.MaxFileSize > 0 && fh.Size > v.config.MaxFileSize {
		return fmt.Errorf("%w: %s exceeds the %s limit",
			errFileTooLarge, humanize.IBytes(uint64(fh.Size)), humanize.IBytes(uint64(v.config.MaxFileSize)))
	}
	return nil
}

// ValidatePaginationParams validates pagination parameters
func (v *RequestValidator) ValidatePaginationParams(limitStr, offsetStr string) (int, int, error) {
	limit := defaultPageSize
	offset := 0

	if limitStr != "" {
		parsedLimit, err := strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid limit parameter: must be a number")
		}
		if parsedLimit <= 0 {
			return 0, 0, fmt.Errorf("invalid limit parameter: must be positive")
		}
		if v.config.MaxPaginationLimit > 0 && parsedLimit > v.config.MaxPaginationLimit {
			return 0, 0, fmt.Errorf("invalid limit parameter: maximum allowed is %d", v.config.MaxPaginationLimit)
		}
		limit = parsedLimit
	}

	if offsetStr != "" {
		parsedOffset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid offset parameter: must be a number")
		}
		if parsedOffset < 0 {
			return 0, 0, fmt.Errorf("invalid offset parameter: cannot be negative")
		}
		offset = parsedOffset
	}

	return limit, offset, nil
}

// ParseRecordFilter parses admin listing query parameters
func (v *RequestValidator) ParseRecordFilter(params url.Values) (*storage.RecordFilter, error) {
	filter := &storage.RecordFilter{}

	if kind := params.Get("kind"); kind != "" {
		k := models.Kind(kind)
		if !k.Valid() {
			return nil, fmt.Errorf("invalid kind filter: must be text or file")
		}
		filter.Kind = k
	}

	if policy := params.Get("policy"); policy != "" {
		mode := models.PolicyMode(policy)
		switch mode {
		case models.PolicyNoLimit, models.PolicyOneTimeView, models.PolicyViewQuota, models.PolicyDownloadQuota:
			filter.PolicyMode = mode
		default:
			return nil, fmt.Errorf("invalid policy filter %q", policy)
		}
	}

	if createdAfter := params.Get("created_after"); createdAfter != "" {
		t, err := time.Parse(time.RFC3339, createdAfter)
		if err != nil {
			return nil, fmt.Errorf("invalid created_after format: must be RFC3339 format (e.g., 2023-01-01T00:00:00Z)")
		}
		filter.CreatedAfter = &t
	}

	if createdBefore := params.Get("created_before"); createdBefore != "" {
		t, err := time.Parse(time.RFC3339, createdBefore)
		if err != nil {
			return nil, fmt.Errorf("invalid created_before format: must be RFC3339 format (e.g., 2023-01-01T00:00:00Z)")
		}
		filter.CreatedBefore = &t
	}

	if includeInactive := params.Get("include_inactive"); includeInactive != "" {
		switch strings.ToLower(includeInactive) {
		case "true", "1", "yes":
			filter.IncludeInactive = true
		case "false", "0", "no":
			filter.IncludeInactive = false
		default:
			return nil, fmt.Errorf("invalid include_inactive value: must be true/false, 1/0, or yes/no")
		}
	}

	if filter.CreatedAfter != nil && filter.CreatedBefore != nil && filter.CreatedAfter.After(*filter.CreatedBefore) {
		return nil, fmt.Errorf("invalid date range: created_after must be before created_before")
	}

	return filter, nil
}
