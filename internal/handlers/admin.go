package handlers

import (
	"errors"
	"net/http"
	"time"

	"linkvault-server/pkg/config"
	"linkvault-server/pkg/lifecycle"
	"linkvault-server/pkg/models"
	"linkvault-server/pkg/storage"
	"linkvault-server/pkg/sweeper"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AdminHandler serves the API-key protected maintenance endpoints. Nothing
// here returns text payloads or password hashes.
type AdminHandler struct {
	engine    *lifecycle.Engine
	records   storage.RecordStore
	sweeper   *sweeper.Sweeper
	validator *RequestValidator
	cfg       *config.Config
	logger    *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(engine *lifecycle.Engine, records storage.RecordStore, sw *sweeper.Sweeper, cfg *config.Config, appLogger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		engine:    engine,
		records:   records,
		sweeper:   sw,
		validator: NewRequestValidator(cfg),
		cfg:       cfg,
		logger:    appLogger,
	}
}

func (h *AdminHandler) logManagement(msg string, fields ...zap.Field) {
	if h.cfg.EnableManagementLogging {
		h.logger.Info(msg, fields...)
	}
}

// ListRecords handles GET /api/v1/records
func (h *AdminHandler) ListRecords(c echo.Context) error {
	lister, ok := h.records.(storage.Lister)
	if !ok {
		return c.JSON(http.StatusNotImplemented, models.StorageResponse{Success: false, Message: "Listing not supported by this backend"})
	}

	limit, offset, err := h.validator.ValidatePaginationParams(c.QueryParam("limit"), c.QueryParam("offset"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.StorageResponse{Success: false, Message: err.Error()})
	}
	filter, err := h.validator.ParseRecordFilter(c.QueryParams())
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.StorageResponse{Success: false, Message: err.Error()})
	}
	filter.Now = h.engine.Now()

	ctx := c.Request().Context()
	records, err := lister.ListWithFilter(ctx, limit, offset, filter)
	if err != nil {
		h.logger.Error("Failed to list records", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, models.StorageResponse{Success: false, Message: "Failed to list records"})
	}
	total, err := lister.CountWithFilter(ctx, filter)
	if err != nil {
		h.logger.Error("Failed to count records", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, models.StorageResponse{Success: false, Message: "Failed to count records"})
	}

	summaries := make([]models.RecordSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, rec.Summary())
	}
	return c.JSON(http.StatusOK, models.StorageResponse{
		Success: true,
		Data: models.ListResponse{
			Records: summaries,
			Total:   total,
			Limit:   limit,
			Offset:  offset,
		},
	})
}

// GetRecord handles GET /api/v1/records/:id without evaluating access gates
func (h *AdminHandler) GetRecord(c echo.Context) error {
	id := c.Param("id")
	if err := h.validator.ValidateID(id); err != nil {
		return c.JSON(http.StatusBadRequest, models.StorageResponse{Success: false, Message: err.Error()})
	}

	rec, err := h.engine.Inspect(c.Request().Context(), id)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return c.JSON(http.StatusNotFound, models.StorageResponse{Success: false, Message: "Record not found"})
	}
	if err != nil {
		h.logger.Error("Failed to load record", zap.String("content_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, models.StorageResponse{Success: false, Message: "Failed to load record"})
	}

	detail := models.RecordDetail{RecordSummary: rec.Summary()}
	if rec.Kind == models.KindFile {
		present, err := h.engine.BlobPresent(c.Request().Context(), rec)
		if err != nil {
			h.logger.Warn("Failed to check blob", zap.String("content_id", id), zap.Error(err))
		} else {
			detail.BlobPresent = &present
		}
	}
	return c.JSON(http.StatusOK, models.StorageResponse{Success: true, Data: detail})
}

// TriggerSweep handles POST /api/v1/sweep
func (h *AdminHandler) TriggerSweep(c echo.Context) error {
	if h.sweeper == nil {
		return c.JSON(http.StatusNotImplemented, models.StorageResponse{Success: false, Message: "Sweeper not configured"})
	}

	start := time.Now()
	purged, err := h.sweeper.RunOnce(c.Request().Context())
	if errors.Is(err, sweeper.ErrAlreadyRunning) {
		return c.JSON(http.StatusConflict, models.StorageResponse{Success: false, Message: "Sweep already running"})
	}
	if err != nil {
		h.logger.Error("Manual sweep failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, models.StorageResponse{Success: false, Message: "Sweep failed"})
	}

	h.logManagement("Manual sweep completed", zap.Int("purged", purged), zap.String("ip", c.RealIP()))
	return c.JSON(http.StatusOK, models.StorageResponse{
		Success: true,
		Message: "Sweep completed",
		Data: models.SweepResponse{
			Purged:   purged,
			Duration: time.Since(start),
			RanAt:    start,
		},
	})
}

// TriggerGC handles POST /api/v1/gc
func (h *AdminHandler) TriggerGC(c echo.Context) error {
	m, ok := h.records.(storage.Maintainer)
	if !ok {
		return c.JSON(http.StatusNotImplemented, models.StorageResponse{Success: false, Message: "GC not supported by this backend"})
	}
	if err := m.RunGC(); err != nil {
		h.logger.Error("Manual GC failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, models.StorageResponse{Success: false, Message: "GC failed"})
	}

	h.logManagement("Manual GC completed", zap.String("ip", c.RealIP()))
	return c.JSON(http.StatusOK, models.StorageResponse{Success: true, Message: "GC completed"})
}

// CreateBackup handles POST /api/v1/backup
func (h *AdminHandler) CreateBackup(c echo.Context) error {
	m, ok := h.records.(storage.Maintainer)
	if !ok {
		return c.JSON(http.StatusNotImplemented, models.BackupResponse{Success: false, Message: "Backups not supported by this backend"})
	}
	if err := m.CreateBackup(); err != nil {
		h.logger.Error("Manual backup failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, models.BackupResponse{Success: false, Message: "Backup failed"})
	}

	h.logManagement("Manual backup created", zap.String("ip", c.RealIP()))
	return c.JSON(http.StatusOK, models.BackupResponse{
		Success:   true,
		Message:   "Backup created",
		CreatedAt: time.Now(),
	})
}
