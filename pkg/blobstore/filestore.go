package blobstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// FileStore keeps blobs as files in one directory of an afero filesystem
type FileStore struct {
	fs      afero.Fs
	dir     string
	maxSize int64
	now     func() time.Time
	logger  *zap.Logger
}

// FileStoreOptions configures a FileStore
type FileStoreOptions struct {
	Dir     string // Upload directory
	MaxSize int64  // Maximum blob size in bytes; 0 disables the check
	Logger  *zap.Logger
}

// NewFileStore creates the upload directory if needed
func NewFileStore(fsys afero.Fs, opts FileStoreOptions) (*FileStore, error) {
	if opts.Dir == "" {
		opts.Dir = "uploads"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if err := fsys.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &FileStore{
		fs:      fsys,
		dir:     opts.Dir,
		maxSize: opts.MaxSize,
		now:     time.Now,
		logger:  opts.Logger.Named("filestore"),
	}, nil
}

// Save writes r to a temp file and renames it into place once complete
func (s *FileStore) Save(ctx context.Context, r io.Reader, originalName string) (*BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := NewBlobName(originalName, s.now())
	final := filepath.Join(s.dir, name)

	tmp, err := afero.TempFile(s.fs, s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			s.fs.Remove(tmpName)
		}
	}()

	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	contentType := mimetype.Detect(head).String()

	var src io.Reader = br
	if s.maxSize > 0 {
		src = io.LimitReader(br, s.maxSize+1)
	}

	n, err := io.Copy(tmp, src)
	if err != nil {
		return nil, fmt.Errorf("failed to write blob: %w", err)
	}
	if s.maxSize > 0 && n > s.maxSize {
		return nil, ErrBlobTooLarge
	}

	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close blob: %w", err)
	}
	if err := s.fs.Rename(tmpName, final); err != nil {
		s.fs.Remove(tmpName)
		return nil, fmt.Errorf("failed to move blob into place: %w", err)
	}
	committed = true

	s.logger.Debug("Blob saved", zap.String("path", name), zap.Int64("size", n))
	return &BlobInfo{Path: name, Size: n, ContentType: contentType}, nil
}

// Open streams a blob
func (s *FileStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := validName(path); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(filepath.Join(s.dir, path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, path)
		}
		return nil, err
	}
	return f, nil
}

// Delete removes a blob, tolerating one that is already gone
func (s *FileStore) Delete(ctx context.Context, path string) error {
	if err := validName(path); err != nil {
		return err
	}
	err := s.fs.Remove(filepath.Join(s.dir, path))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete blob %s: %w", path, err)
	}
	return nil
}

// Exists reports whether the blob is present
func (s *FileStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := validName(path); err != nil {
		return false, err
	}
	return afero.Exists(s.fs, filepath.Join(s.dir, path))
}
