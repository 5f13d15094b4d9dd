package bootstrap

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"linkvault-server/pkg/config"
	"linkvault-server/pkg/lifecycle"
	"linkvault-server/pkg/storage"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		RecordBackend:  config.BackendSQLite,
		SQLitePath:     filepath.Join(dir, "records.db"),
		DataDir:        filepath.Join(dir, "data"),
		BackupDir:      filepath.Join(dir, "backups"),
		BlobBackend:    config.BlobFilesystem,
		UploadDir:      "uploads",
		MaxFileSize:    1 << 20,
		DefaultExpiry:  10 * time.Minute,
		SweepBatchSize: 16,
		TokenTTL:       time.Minute,
		BcryptCost:     bcrypt.MinCost,
	}
}

func TestNewWiresEngine(t *testing.T) {
	cfg := testConfig(t)
	app, err := New(cfg, nil, Options{Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	defer app.Close()

	ctx := context.Background()
	rec, err := app.Engine.Create(ctx, lifecycle.CreateRequest{
		File: &lifecycle.FileUpload{Name: "notes.pdf", Reader: strings.NewReader("%PDF-1.4 test")},
	})
	require.NoError(t, err)

	out, err := app.Engine.Resolve(ctx, rec.ID, app.Engine.Now(), false)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.OutcomeDeliver, out.Kind)

	_, ok := app.Lister()
	assert.True(t, ok)
	m, ok := app.Maintainer()
	require.True(t, ok)
	assert.True(t, m.IsHealthy())
}

func TestNewBadgerBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.RecordBackend = config.BackendBadger

	app, err := New(cfg, nil, Options{Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	defer app.Close()

	_, ok := app.Records.(*storage.BadgerStorage)
	assert.True(t, ok)
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.RecordBackend = "mongo"
	_, err := New(cfg, nil, Options{})
	assert.ErrorContains(t, err, "unknown record backend")

	cfg = testConfig(t)
	cfg.BlobBackend = "ftp"
	_, err = New(cfg, nil, Options{Fs: afero.NewMemMapFs()})
	assert.ErrorContains(t, err, "unknown blob backend")
}

func TestTokenIssuerSecret(t *testing.T) {
	cfg := testConfig(t)

	issuer, err := NewTokenIssuer(cfg, nil)
	require.NoError(t, err)
	tok, _, err := issuer.Issue("abc", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.NoError(t, issuer.Verify(tok, "abc"))

	cfg.TokenSecret = "too-short"
	_, err = NewTokenIssuer(cfg, nil)
	assert.Error(t, err)
}
