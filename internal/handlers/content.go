package handlers

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"linkvault-server/pkg/blobstore"
	"linkvault-server/pkg/config"
	"linkvault-server/pkg/lifecycle"
	"linkvault-server/pkg/middleware"
	"linkvault-server/pkg/models"
	"linkvault-server/pkg/token"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var errFileTooLarge = errors.New("file too large")

// ContentHandler serves upload, access, verify and download requests on top
// of the lifecycle engine
type ContentHandler struct {
	engine    *lifecycle.Engine
	tokens    *token.Issuer
	logger    *zap.Logger
	validator *RequestValidator
	cfg       *config.Config
}

// NewContentHandler creates a new content handler
func NewContentHandler(engine *lifecycle.Engine, tokens *token.Issuer, appLogger *zap.Logger, cfg *config.Config) *ContentHandler {
	return &ContentHandler{
		engine:    engine,
		tokens:    tokens,
		logger:    appLogger,
		validator: NewRequestValidator(cfg),
		cfg:       cfg,
	}
}

// logValidationError logs validation errors only if validation logging is enabled
func (h *ContentHandler) logValidationError(msg string, fields ...zap.Field) {
	if h.cfg.EnableValidationLogging {
		h.logger.Warn(msg, fields...)
	}
}

// logError logs errors only if error logging is enabled
func (h *ContentHandler) logError(msg string, fields ...zap.Field) {
	if h.cfg.EnableErrorLogging {
		h.logger.Error(msg, fields...)
	}
}

// Upload handles POST /content/upload
func (h *ContentHandler) Upload(c echo.Context) error {
	var req models.UploadRequest
	if err := c.Bind(&req); err != nil {
		h.logValidationError("Invalid upload body", zap.Error(err))
		return h.fail(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Validate(&req); err != nil {
		h.logValidationError("Upload validation failed", zap.Error(err))
		return h.fail(c, http.StatusBadRequest, "Validation failed")
	}

	expiry, err := h.validator.ParseExpiry(req.Expiry)
	if err != nil {
		return h.fail(c, http.StatusBadRequest, err.Error())
	}

	create := lifecycle.CreateRequest{
		Text:         req.Text,
		Expiry:       expiry,
		Password:     req.Password,
		OneTimeView:  bool(req.OneTimeView),
		MaxViews:     req.MaxViews,
		MaxDownloads: req.MaxDownloads,
	}

	// The file part is only read when there is no text, since text wins.
	if lifecycle.NormalizeText(req.Text) == "" {
		fh, err := c.FormFile("file")
		switch {
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		case err != nil:
			h.logValidationError("Unreadable file part", zap.Error(err))
			return h.fail(c, http.StatusBadRequest, "Invalid file upload")
		default:
			if err := h.validator.ValidateUploadFile(fh); err != nil {
				h.logValidationError("Upload file rejected", zap.String("file_name", fh.Filename), zap.Error(err))
				if errors.Is(err, errFileTooLarge) {
					return h.fail(c, http.StatusRequestEntityTooLarge, err.Error())
				}
				return h.fail(c, http.StatusBadRequest, err.Error())
			}
			f, err := fh.Open()
			if err != nil {
				h.logError("Failed to open uploaded file", zap.Error(err))
				return h.fail(c, http.StatusInternalServerError, "Failed to read upload")
			}
			defer f.Close()
			create.File = &lifecycle.FileUpload{Name: fh.Filename, Reader: f}
		}
	}

	rec, err := h.engine.Create(c.Request().Context(), create)
	switch {
	case errors.Is(err, lifecycle.ErrMissingContent):
		return h.fail(c, http.StatusBadRequest, "Upload text or file")
	case errors.Is(err, blobstore.ErrBlobTooLarge):
		return h.fail(c, http.StatusRequestEntityTooLarge, "File too large")
	case err != nil:
		h.logError("Failed to create content", zap.Error(err))
		return h.fail(c, http.StatusInternalServerError, "Failed to store content")
	}

	return c.JSON(http.StatusCreated, models.StorageResponse{
		Success: true,
		Message: "Content uploaded",
		Data: models.UploadResult{
			ID:        rec.ID,
			Link:      h.cfg.ShareLink(rec.ID),
			Kind:      rec.Kind,
			ExpiresAt: rec.ExpiryTime,
			Policy:    rec.Policy.String(),
			Protected: rec.HasPassword(),
		},
	})
}

// Access handles GET /content/:id and GET /content/download/:id
func (h *ContentHandler) Access(c echo.Context) error {
	id := c.Param("id")
	if err := h.validator.ValidateID(id); err != nil {
		return h.respondOutcome(c, id, &lifecycle.Outcome{Kind: lifecycle.OutcomeInvalid})
	}

	out, err := h.resolve(c.Request().Context(), id, h.hasProof(c, id))
	if err != nil {
		h.logError("Failed to resolve content", zap.String("content_id", id), zap.Error(err))
		return h.fail(c, http.StatusInternalServerError, "Failed to load content")
	}

	if out.Kind != lifecycle.OutcomeDeliver {
		return h.respondOutcome(c, id, out)
	}
	if out.Record.Kind == models.KindFile {
		return h.streamFile(c, id, out)
	}
	return h.serveText(c, out.Record)
}
// resolve runs the gates under REQUEST_TIMEOUT. The content routes skip the
// timeout middleware so a file transfer that follows is bounded only by
// WRITE_TIMEOUT.
func (h *ContentHandler) resolve(ctx context.Context, id string, verified bool) (*lifecycle.Outcome, error) {
	if h.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.RequestTimeout)
		defer cancel()
	}
	return h.engine.Resolve(ctx, id, h.engine.Now(), verified)
}


// Verify handles POST /content/verify/:id
func (h *ContentHandler) Verify(c echo.Context) error {
	id := c.Param("id")
	if err := h.validator.ValidateID(id); err != nil {
		return h.respondOutcome(c, id, &lifecycle.Outcome{Kind: lifecycle.OutcomeInvalid})
	}

	var req models.VerifyRequest
	if err := c.Bind(&req); err != nil {
		return h.fail(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Validate(&req); err != nil {
		h.logValidationError("Verify validation failed", zap.String("content_id", id), zap.Error(err))
		return h.fail(c, http.StatusBadRequest, "Password required")
	}

	out, err := h.engine.VerifyPassword(c.Request().Context(), id, req.Password, h.engine.Now())
	if err != nil {
		h.logError("Failed to verify password", zap.String("content_id", id), zap.Error(err))
		return h.fail(c, http.StatusInternalServerError, "Failed to verify password")
	}
	if out.Kind != lifecycle.OutcomePasswordVerified {
		return h.respondOutcome(c, id, out)
	}

	proof, expiresAt, err := h.tokens.Issue(id, out.Record.ExpiryTime)
	if err != nil {
		h.logError("Failed to issue password proof", zap.String("content_id", id), zap.Error(err))
		return h.fail(c, http.StatusInternalServerError, "Failed to verify password")
	}

	c.SetCookie(&http.Cookie{
		Name:     proofCookiePrefix + id,
		Value:    proof,
		Path:     "/content/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   c.IsTLS(),
		SameSite: http.SameSiteLaxMode,
	})

	if wantsHTML(c) {
		return c.Redirect(http.StatusSeeOther, "/content/"+id)
	}
	return c.JSON(http.StatusOK, models.StorageResponse{
		Success: true,
		Message: "Password verified",
		Data: models.VerifyResult{
			Token:     proof,
			ExpiresAt: expiresAt,
			Link:      h.cfg.ShareLink(id),
		},
	})
}

// hasProof looks for a valid password proof in the query, header or cookie
func (h *ContentHandler) hasProof(c echo.Context, id string) bool {
	candidates := []string{c.QueryParam("token"), c.Request().Header.Get(middleware.AccessTokenHeader)}
	if cookie, err := c.Cookie(proofCookiePrefix + id); err == nil {
		candidates = append(candidates, cookie.Value)
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if err := h.tokens.Verify(candidate, id); err == nil {
			return true
		}
	}
	return false
}

func (h *ContentHandler) serveText(c echo.Context, rec *models.ContentRecord) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	if wantsHTML(c) {
		return c.Render(http.StatusOK, "text.html", textPage{
			Title:   "Shared text",
			Text:    rec.TextData,
			OneTime: rec.Policy.IsOneTimeView(),
		})
	}
	return c.JSON(http.StatusOK, models.TextPayload{Type: string(models.KindText), Text: rec.TextData})
}

// streamFile sends the blob as an attachment and then finalizes the delivery
func (h *ContentHandler) streamFile(c echo.Context, id string, out *lifecycle.Outcome) error {
	rec := out.Record
	ctx := c.Request().Context()

	blob, err := h.engine.OpenFile(ctx, rec)
	if err != nil {
		h.complete(ctx, id, out, false)
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			h.logError("Record has no blob", zap.String("content_id", id), zap.String("file_path", rec.FilePath))
			return h.fail(c, http.StatusNotFound, "File not found")
		}
		h.logError("Failed to open blob", zap.String("content_id", id), zap.Error(err))
		return h.fail(c, http.StatusInternalServerError, "Failed to read file")
	}
	defer blob.Close()

	contentType := rec.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": rec.OriginalFileName}))
	header.Set(echo.HeaderCacheControl, "no-store")
	if rec.Size > 0 {
		header.Set(echo.HeaderContentLength, strconv.FormatInt(rec.Size, 10))
	}

	streamErr := c.Stream(http.StatusOK, contentType, blob)
	h.complete(ctx, id, out, streamErr == nil)
	if streamErr != nil {
		h.logger.Warn("File transfer interrupted", zap.String("content_id", id), zap.Error(streamErr))
	}
	return nil
}

// complete runs CompleteDownload detached from the request, which may already
// be cancelled by a disconnecting client
func (h *ContentHandler) complete(ctx context.Context, id string, out *lifecycle.Outcome, succeeded bool) {
	if !out.NeedsCompletion() {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := h.engine.CompleteDownload(ctx, id, succeeded); err != nil {
		h.logError("Failed to finalize download", zap.String("content_id", id), zap.Error(err))
	}
}

// outcomeStatus maps a non-delivery outcome to its HTTP status and message
func outcomeStatus(out *lifecycle.Outcome) (int, string) {
	switch out.Kind {
	case lifecycle.OutcomeExpired:
		return http.StatusGone, "Link expired"
	case lifecycle.OutcomePasswordRequired:
		return http.StatusUnauthorized, "Password required"
	case lifecycle.OutcomeWrongPassword:
		return http.StatusUnauthorized, "Wrong password"
	case lifecycle.OutcomeAlreadyConsumed:
		return http.StatusGone, "Content already viewed"
	case lifecycle.OutcomeQuotaExhausted:
		if out.Record != nil && out.Record.Kind == models.KindFile {
			return http.StatusGone, "Download limit reached"
		}
		return http.StatusGone, "View limit reached"
	default:
		return http.StatusForbidden, "Invalid link"
	}
}

func (h *ContentHandler) respondOutcome(c echo.Context, id string, out *lifecycle.Outcome) error {
	status, message := outcomeStatus(out)

	// a terminal outcome cannot change for this link; anything else is a
	// password prompt
	retryable := !out.Kind.IsTerminal()
	if !retryable {
		c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	}

	if wantsHTML(c) {
		if retryable {
			page := passwordPage{Title: "Protected content", Action: "/content/verify/" + id}
			if out.Kind == lifecycle.OutcomeWrongPassword {
				page.Message = message
			}
			return c.Render(status, "password.html", page)
		}
		return c.Render(status, "message.html", messagePage{Title: http.StatusText(status), Message: message})
	}

	resp := models.StorageResponse{Success: false, Message: message}
	if retryable {
		resp.Data = map[string]string{"verify": "/content/verify/" + id}
	}
	return c.JSON(status, resp)
}

func (h *ContentHandler) fail(c echo.Context, status int, message string) error {
	if wantsHTML(c) {
		return c.Render(status, "message.html", messagePage{Title: http.StatusText(status), Message: message})
	}
	return c.JSON(status, models.StorageResponse{Success: false, Message: message})
}
