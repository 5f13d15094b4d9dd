// Package blobstore keeps the bytes of uploaded files. Records refer to blobs
// by the name returned from Save.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrBlobNotFound is returned when the bytes behind a path are missing
	ErrBlobNotFound = errors.New("blob not found")

	// ErrBlobTooLarge is returned when an upload exceeds the configured size
	ErrBlobTooLarge = errors.New("blob exceeds maximum size")

	// ErrInvalidPath is returned for paths that are not plain blob names
	ErrInvalidPath = errors.New("invalid blob path")
)

// sniffLen is how many leading bytes are inspected for content detection
const sniffLen = 3072

// BlobInfo describes a stored blob
type BlobInfo struct {
	Path        string
	Size        int64
	ContentType string
}

// BlobStore saves, streams and deletes uploaded files
type BlobStore interface {
	Save(ctx context.Context, r io.Reader, originalName string) (*BlobInfo, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Delete removes the blob; a missing blob is not an error
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// NewBlobName builds "<unix-millis>-<random><ext>" from the original file name
func NewBlobName(originalName string, now time.Time) string {
	return fmt.Sprintf("%d-%d%s", now.UnixMilli(), rand.IntN(1e9), cleanExt(originalName))
}

// cleanExt returns the lower-cased extension if it is plain alphanumerics
func cleanExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 16 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// validName rejects anything that could escape the blob namespace
func validName(path string) error {
	if path == "" || path == "." || path == ".." ||
		strings.ContainsAny(path, `/\`) || strings.Contains(path, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return nil
}
