package handler

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/jun/driveuploader/internal/adapter"
	"github.com/jun/driveuploader/internal/model"
	"github.com/jun/driveuploader/internal/session"
	"github.com/jun/driveuploader/internal/upload"
)

// UploadHandler accepts one file per request and creates it in the user's storage.
type UploadHandler struct {
	sessions        *session.Manager
	storageProvider adapter.StorageProvider
	maxBytes        int64
	tempDir         string
	log             zerolog.Logger

	remove func(*model.UploadedFile) error
}

// NewUploadHandler creates a new UploadHandler. Request bodies over maxBytes
// are rejected.
func NewUploadHandler(sessions *session.Manager, sp adapter.StorageProvider, maxBytes int64, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		sessions:        sessions,
		storageProvider: sp,
		maxBytes:        maxBytes,
		log:             log,
		remove:          upload.Remove,
	}
}

// WithTempDir sets where uploads are spooled. Defaults to os.TempDir.
func (h *UploadHandler) WithTempDir(dir string) *UploadHandler {
	h.tempDir = dir
	return h
}

// Upload handles POST /upload.
func (h *UploadHandler) Upload(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if req.HTTPMethod != http.MethodPost {
		resp := errorResponse(http.StatusMethodNotAllowed, "Method not allowed")
		resp.Headers["Allow"] = http.MethodPost
		return resp, nil
	}

	sess, changed, err := h.sessions.FromRequest(ctx, req.Headers)
	if err != nil {
		return errorResponse(http.StatusUnauthorized, "Unauthorized"), nil
	}
	if !sess.Usable() {
		// Persist the renewal error flag so the page can send the user to sign-in.
		return reissue(ctx, h.sessions, h.log, errorResponse(http.StatusUnauthorized, "Unauthorized"), sess, changed), nil
	}

	resp := h.upload(ctx, req, sess)
	return reissue(ctx, h.sessions, h.log, resp, sess, changed), nil
}

func (h *UploadHandler) upload(ctx context.Context, req events.APIGatewayProxyRequest, sess *model.Session) events.APIGatewayProxyResponse {
	log := h.log.With().Str("session", sess.ID).Logger()

	file, err := upload.Parse(requestBody(req), getHeader(req.Headers, "Content-Type"), h.maxBytes, h.tempDir)
	switch {
	case errors.Is(err, upload.ErrTooLarge):
		return errorResponse(http.StatusRequestEntityTooLarge, "File too large (max "+humanize.IBytes(uint64(h.maxBytes))+")")
	case errors.Is(err, upload.ErrNoFile):
		return errorResponse(http.StatusBadRequest, "No file uploaded")
	case errors.Is(err, upload.ErrMultipleFiles):
		return errorResponse(http.StatusBadRequest, "Only one file per request")
	case err != nil:
		log.Warn().Err(err).Msg("malformed upload")
		return errorResponse(http.StatusBadRequest, "Malformed upload")
	}
	defer func() {
		if err := h.remove(file); err != nil {
			log.Debug().Err(err).Str("path", file.Path).Msg("remove temp file")
		}
	}()

	log.Info().
		Str("name", file.Name).
		Str("mime_type", file.MIMEType).
		Str("size", humanize.IBytes(uint64(file.Size))).
		Msg("upload received")

	storage, err := h.storageProvider.GetAdapter(ctx, sess.AccessToken)
	if err != nil {
		log.Error().Err(err).Msg("get storage adapter")
		return errorResponse(http.StatusInternalServerError, "Upload failed")
	}

	nf := adapter.NewFile{Name: file.Name, MIMEType: file.MIMEType, Size: file.Size}
	// Zero-byte files are created without media; Drive rejects an empty media stream.
	if file.Size > 0 {
		f, err := os.Open(file.Path)
		if err != nil {
			log.Error().Err(err).Msg("open temp file")
			return errorResponse(http.StatusInternalServerError, "Upload failed")
		}
		defer f.Close()
		nf.Content = f
	}

	meta, err := storage.CreateFile(ctx, nf)
	if err != nil {
		log.Error().Err(err).Str("name", file.Name).Msg("create file")
		return errorResponse(http.StatusInternalServerError, "Upload failed")
	}

	log.Info().Str("file_id", meta.ID).Msg("upload complete")
	return jsonResponse(http.StatusOK, model.RemoteFile{ID: meta.ID})
}
