package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"linkvault-server/internal/bootstrap"
	"linkvault-server/internal/handlers"
	"linkvault-server/pkg/config"
	"linkvault-server/pkg/lifecycle"
	"linkvault-server/pkg/models"
	"linkvault-server/pkg/sweeper"

	"github.com/labstack/echo/v4"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	cfg  *config.Config
	fs   afero.Fs
	open Opener
}

func newFixture(t *testing.T, backend string) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		cfg: &config.Config{
			RecordBackend:     backend,
			SQLitePath:        filepath.Join(dir, "records.db"),
			DataDir:           filepath.Join(dir, "data"),
			BackupDir:         filepath.Join(dir, "backups"),
			BlobBackend:       config.BlobFilesystem,
			UploadDir:         "uploads",
			MaxFileSize:       1 << 20,
			MaxTextSize:       4096,
			AllowedExtensions: []string{".pdf"},
			DefaultExpiry:     10 * time.Minute,
			SweepBatchSize:    16,
			TokenTTL:          time.Minute,
			BcryptCost:        bcrypt.MinCost,
		},
		fs: afero.NewMemMapFs(),
	}
	f.open = func(context.Context) (*bootstrap.App, error) {
		return bootstrap.New(f.cfg, nil, bootstrap.Options{Fs: f.fs})
	}
	return f
}

// seed creates records through a short-lived app so commands see them after reopening
func (f *fixture) seed(t *testing.T, reqs ...lifecycle.CreateRequest) []string {
	t.Helper()
	app, err := f.open(context.Background())
	require.NoError(t, err)
	defer app.Close()

	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		rec, err := app.Engine.Create(context.Background(), req)
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	return ids
}

func (f *fixture) run(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := NewRootCommand(f.open, &out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func expiresIn(d time.Duration) *time.Time {
	t := time.Now().UTC().Add(d)
	return &t
}

func TestSweepCommand(t *testing.T) {
	f := newFixture(t, config.BackendSQLite)
	ids := f.seed(t,
		lifecycle.CreateRequest{Text: "gone", Expiry: expiresIn(-time.Minute)},
		lifecycle.CreateRequest{Text: "kept", Expiry: expiresIn(time.Hour)},
	)

	out, err := f.run("sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 1 expired records")

	_, err = f.run("show", ids[0])
	assert.ErrorContains(t, err, "not found")

	out, err = f.run("show", ids[1])
	require.NoError(t, err)
	assert.Contains(t, out, ids[1])

	// nothing left to purge
	out, err = f.run("sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 0 expired records")
}

func TestShowCommand(t *testing.T) {
	f := newFixture(t, config.BackendSQLite)
	ids := f.seed(t, lifecycle.CreateRequest{Text: "secret", Password: "hunter2", MaxViews: 3})

	out, err := f.run("show", ids[0])
	require.NoError(t, err)

	var summary models.RecordSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, ids[0], summary.ID)
	assert.True(t, summary.PasswordProtected)
	assert.Equal(t, models.ViewQuota(3), summary.Policy)
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "secret")

	_, err = f.run("show")
	assert.Error(t, err)
}

func TestListCommand(t *testing.T) {
	f := newFixture(t, config.BackendSQLite)
	ids := f.seed(t,
		lifecycle.CreateRequest{Text: "one", OneTimeView: true},
		lifecycle.CreateRequest{Text: "two"},
		lifecycle.CreateRequest{Text: "old", Expiry: expiresIn(-time.Minute)},
	)

	out, err := f.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, ids[0])
	assert.Contains(t, out, ids[1])
	assert.NotContains(t, out, ids[2])
	assert.Contains(t, out, "2 of 2 records")

	out, err = f.run("list", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, ids[2])
	assert.Contains(t, out, "expired")

	out, err = f.run("list", "--policy", "one_time_view")
	require.NoError(t, err)
	assert.Contains(t, out, ids[0])
	assert.NotContains(t, out, ids[1])

	_, err = f.run("list", "--kind", "video")
	assert.ErrorContains(t, err, "invalid kind")

	_, err = f.run("list", "--limit", "0")
	assert.ErrorContains(t, err, "limit must be positive")
}

func TestBackupCommand(t *testing.T) {
	f := newFixture(t, config.BackendSQLite)
	f.seed(t, lifecycle.CreateRequest{Text: "backed up"})

	out, err := f.run("backup")
	require.NoError(t, err)
	assert.Contains(t, out, f.cfg.BackupDir)

	entries, err := os.ReadDir(f.cfg.BackupDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestGCCommand(t *testing.T) {
	f := newFixture(t, config.BackendSQLite)
	out, err := f.run("gc")
	require.NoError(t, err)
	assert.Contains(t, out, "Garbage collection completed")
}

func TestVersionCommand(t *testing.T) {
	f := newFixture(t, config.BackendSQLite)
	out, err := f.run("version")
	require.NoError(t, err)
	assert.Equal(t, "linkvaultctl dev\n", out)
}

func TestOpenerErrorIsReturned(t *testing.T) {
	f := newFixture(t, "mongo")
	_, err := f.run("sweep")
	assert.ErrorContains(t, err, "unknown record backend")
}

// startServer serves the public routes over a real listener
func startServer(t *testing.T, f *fixture) string {
	t.Helper()
	app, err := f.open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	logger := zap.NewNop()
	e := echo.New()
	sw := sweeper.New(app.Engine, sweeper.Options{Interval: time.Hour})
	handlers.RegisterRoutes(e, f.cfg,
		handlers.NewContentHandler(app.Engine, app.Tokens, logger, f.cfg),
		handlers.NewHealthHandler(app.Records, sw, f.cfg, logger),
		nil,
		logger)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestRunStressHoldsLimits(t *testing.T) {
	for _, mode := range []string{"text", "file"} {
		t.Run(mode, func(t *testing.T) {
			f := newFixture(t, config.BackendBadger)
			url := startServer(t, f)

			result, err := RunStress(context.Background(), StressConfig{
				BaseURL:     url,
				Mode:        mode,
				Limit:       3,
				Requests:    20,
				Concurrency: 4,
				Timeout:     10 * time.Second,
			})
			require.NoError(t, err)
			assert.EqualValues(t, 3, result.Delivered)
			assert.EqualValues(t, 3, result.StatusCounts[200])
			assert.EqualValues(t, 17, result.StatusCounts[410])
			assert.Zero(t, result.NetworkErrors)
			assert.NotEmpty(t, result.LinkID)
		})
	}
}

func TestRunStressRejectsBadConfig(t *testing.T) {
	_, err := RunStress(context.Background(), StressConfig{Mode: "text", Limit: 0, Requests: 1, Concurrency: 1})
	assert.Error(t, err)

	_, err = RunStress(context.Background(), StressConfig{Mode: "video", Limit: 1, Requests: 1, Concurrency: 1})
	assert.ErrorContains(t, err, "invalid mode")
}
