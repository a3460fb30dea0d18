package httpx

import (
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
)

func TestNewTemplateRenderer_RequiresFS(t *testing.T) {
	_, err := NewTemplateRenderer(TemplateRendererConfig{})
	require.Error(t, err)

	_, err = NewTemplateRenderer(TemplateRendererConfig{TemplateFS: fstest.MapFS{
		"broken.html": {Data: []byte(`{{define "x"}}{{.Missing`)},
	}})
	require.Error(t, err)
}

func TestTemplateRenderer_EscapesHydrationPayload(t *testing.T) {
	r := newTestRenderer(t)
	rec := httptest.NewRecorder()

	err := r.Render(rec, "app", PageData{
		Title: "Home",
		Path:  "/home",
		Nav:   ProtectedPages(),
		Session: SessionPayload{
			Authenticated: true,
			Identity:      &domainauth.Identity{UserID: "u1", FirstName: "</script><b>"},
		},
	})
	require.NoError(t, err)

	body := rec.Body.String()
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.NotContains(t, body, "</script><b>")
	assert.Contains(t, body, `aria-current="page"`)
}

func TestTemplateRenderer_UnknownTemplate(t *testing.T) {
	r := newTestRenderer(t)
	rec := httptest.NewRecorder()
	require.Error(t, r.Render(rec, "nope", nil))
	assert.Empty(t, rec.Body.String())
}
