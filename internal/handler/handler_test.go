package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"mime/multipart"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jun/driveuploader/internal/crypto"
	"github.com/jun/driveuploader/internal/model"
	"github.com/jun/driveuploader/internal/session"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeRefresher struct {
	calls atomic.Int32
	token *oauth2.Token
	err   error
}

func (f *fakeRefresher) RefreshAccessToken(_ context.Context, _ string) (*oauth2.Token, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newManager(t *testing.T, r session.Refresher, c *clock) *session.Manager {
	t.Helper()
	enc, err := crypto.NewLocalEncryptor(testSecret)
	require.NoError(t, err)
	return session.NewManager(testSecret, enc, r, 24*time.Hour, zerolog.Nop()).WithClock(c.now)
}

var alice = model.Identity{Subject: "sub-1", Email: "alice@example.com", Name: "Alice"}

// sessionHeaders seals a session for alice whose access token expires after lifetime.
func sessionHeaders(t *testing.T, m *session.Manager, lifetime time.Duration, mutate ...func(*model.Session)) map[string]string {
	t.Helper()
	sess := m.New(alice, &oauth2.Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresIn:    int64(lifetime.Seconds()),
	})
	for _, fn := range mutate {
		fn(sess)
	}
	raw, err := m.Seal(context.Background(), sess)
	require.NoError(t, err)
	return map[string]string{"Cookie": session.CookieName + "=" + raw}
}

// setCookieSession decodes the session cookie set on resp, or nil.
func setCookieSession(t *testing.T, m *session.Manager, resp events.APIGatewayProxyResponse) *model.Session {
	t.Helper()
	for _, c := range resp.MultiValueHeaders["Set-Cookie"] {
		value, ok := strings.CutPrefix(c, session.CookieName+"=")
		if !ok {
			continue
		}
		value, _, _ = strings.Cut(value, ";")
		if value == "" {
			continue
		}
		sess, err := m.Open(context.Background(), value)
		require.NoError(t, err)
		return sess
	}
	return nil
}

type filePart struct {
	field    string
	filename string
	mimeType string
	content  []byte
}

// multipartRequest builds a base64-encoded multipart request the way API
// Gateway delivers binary bodies.
func multipartRequest(t *testing.T, method string, headers map[string]string, parts ...filePart) events.APIGatewayProxyRequest {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="` + p.field + `"; filename="` + p.filename + `"`}
		if p.mimeType != "" {
			h["Content-Type"] = []string{p.mimeType}
		}
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(p.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	hdrs := map[string]string{"content-type": w.FormDataContentType()}
	for k, v := range headers {
		hdrs[k] = v
	}
	return events.APIGatewayProxyRequest{
		HTTPMethod:      method,
		Path:            "/upload",
		Headers:         hdrs,
		Body:            base64.StdEncoding.EncodeToString(buf.Bytes()),
		IsBase64Encoded: true,
	}
}

func decodeBase64(s string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	return string(b), err
}
