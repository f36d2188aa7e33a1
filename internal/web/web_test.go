package web

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderIndex_SignedOut(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderIndex(&buf, Page{APIBase: "/api"}))

	html := buf.String()
	assert.Contains(t, html, `href="/api/auth/login"`)
	assert.NotContains(t, html, `id="upload-form"`)
}

func TestRenderIndex_SignedIn(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderIndex(&buf, Page{Authenticated: true, Name: "<Alice>", APIBase: "/api"}))

	html := buf.String()
	assert.Contains(t, html, `id="upload-form"`)
	assert.Contains(t, html, `name="file"`)
	assert.Contains(t, html, "&lt;Alice&gt;")
	assert.NotContains(t, html, "<Alice>")
	assert.NotContains(t, html, "signIn();\n  return;")
}

func TestRenderIndex_RenewalFailedRestartsSignIn(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderIndex(&buf, Page{Authenticated: true, RenewalFailed: true, APIBase: "/api"}))

	assert.Contains(t, buf.String(), "signIn();\n  return;")
}
