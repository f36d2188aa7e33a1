package handler

import (
	"bytes"
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/jun/driveuploader/internal/model"
	"github.com/jun/driveuploader/internal/session"
	"github.com/jun/driveuploader/internal/web"
)

// PageHandler serves the single HTML page.
type PageHandler struct {
	sessions *session.Manager
	apiBase  string
	log      zerolog.Logger
}

// NewPageHandler creates a new PageHandler. apiBase prefixes the API paths
// used by the page script ("/api" behind CloudFront).
func NewPageHandler(sessions *session.Manager, apiBase string, log zerolog.Logger) *PageHandler {
	return &PageHandler{sessions: sessions, apiBase: apiBase, log: log}
}

// Index renders the sign-in prompt or the upload form.
func (h *PageHandler) Index(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	page := web.Page{APIBase: h.apiBase}

	sess, changed, err := h.sessions.FromRequest(ctx, req.Headers)
	if err == nil {
		page.Authenticated = true
		page.Name = sess.User.Name
		page.Email = sess.User.Email
		page.Picture = sess.User.Picture
		page.RenewalFailed = sess.Error == model.RefreshAccessTokenError
	}

	var buf bytes.Buffer
	if renderErr := web.RenderIndex(&buf, page); renderErr != nil {
		h.log.Error().Err(renderErr).Msg("render index")
		return errorResponse(http.StatusInternalServerError, "Internal Server Error"), nil
	}

	resp := events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Body:       buf.String(),
		Headers: map[string]string{
			"Content-Type":  "text/html; charset=utf-8",
			"Cache-Control": "no-store",
		},
	}
	if err != nil {
		return resp, nil
	}
	return reissue(ctx, h.sessions, h.log, resp, sess, changed), nil
}
