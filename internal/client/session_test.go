package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/moneybook/websession/internal/errors"
)

func newTestLoader(t *testing.T, handler http.HandlerFunc) (*SessionLoader, *Jar) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	jar, err := NewJar(context.Background(), JarOptions{BaseURL: "http://api.moneybook.test"})
	require.NoError(t, err)
	loader, err := NewSessionLoader(SessionLoaderOptions{WebBaseURL: srv.URL + "/", Jar: jar})
	require.NoError(t, err)
	return loader, jar
}

func TestNewSessionLoader_Validation(t *testing.T) {
	_, err := NewSessionLoader(SessionLoaderOptions{})
	require.Error(t, err)

	jar, err := NewJar(context.Background(), JarOptions{BaseURL: "http://api.moneybook.test"})
	require.NoError(t, err)
	_, err = NewSessionLoader(SessionLoaderOptions{Jar: jar, WebBaseURL: "not a url"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestSessionLoader_LoadSendsJarCookiesAndKeepsIssued(t *testing.T) {
	var gotAccess string
	loader, jar := newTestLoader(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultSessionPath, r.URL.Path)
		if c, err := r.Cookie("auth-token"); err == nil {
			gotAccess = c.Value
		}
		http.SetCookie(w, &http.Cookie{Name: "auth-token", Value: "a2", Path: "/", Domain: "moneybook.test"})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"authenticated":true,"identity":{"userId":"u1","firstName":"Ada"}}`))
	})
	jar.Set([]*http.Cookie{{Name: "auth-token", Value: "a1"}})

	snap, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a1", gotAccess)
	require.True(t, snap.Authenticated)
	require.NotNil(t, snap.Identity)
	assert.Equal(t, "Ada", snap.Identity.FirstName)

	cookies := jar.Cookies(jar.base)
	require.Len(t, cookies, 1)
	assert.Equal(t, "a2", cookies[0].Value)
}

func TestSessionLoader_LoadOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantErr  apperrors.ErrorCode
		wantAuth bool
		reason   string
	}{
		{
			name: "edge redirect",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			},
			reason: apperrors.ReasonMissingCredentials,
		},
		{
			name: "not authenticated",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"authenticated":false,"identity":null,"reason":"authentication failed"}`))
			},
			reason: apperrors.ReasonAuthFailed,
		},
		{
			name: "identity without user id",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"authenticated":true,"identity":{"email":"x@example.com"}}`))
			},
			wantAuth: true,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantErr: apperrors.ErrCodeUpstream,
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
			wantErr: apperrors.ErrCodeUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader, _ := newTestLoader(t, tt.handler)
			snap, err := loader.Load(context.Background())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, apperrors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAuth, snap.Authenticated)
			assert.Equal(t, tt.reason, snap.Reason)
			assert.Nil(t, snap.Identity)
		})
	}
}
