package lifecycle

import "errors"

var (
	// ErrMissingContent is returned when a create request carries neither text nor a file
	ErrMissingContent = errors.New("upload text or file")

	// ErrEmptyID is returned when an operation is called without a record ID
	ErrEmptyID = errors.New("content id is required")
)
