package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
	apperrors "github.com/moneybook/websession/internal/errors"
	"github.com/moneybook/websession/internal/mocks"
	"github.com/moneybook/websession/internal/observability/metrics"
	"github.com/moneybook/websession/internal/ports"
)

func newTestSessionValidator(t *testing.T, provider ports.IdentityProvider) *SessionValidator {
	t.Helper()
	v, err := NewSessionValidator(SessionValidatorOptions{
		Provider: provider,
		Metrics:  metrics.NewRecorder(metrics.Options{Registry: prometheus.NewRegistry()}),
	})
	require.NoError(t, err)
	return v
}

func TestNewSessionValidator_RequiresProvider(t *testing.T) {
	_, err := NewSessionValidator(SessionValidatorOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Provider is required")
}

func TestSessionValidator_NoCredentials(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockIdentityProvider(ctrl)
	provider.EXPECT().Validate(gomock.Any(), gomock.Any()).Times(0)
	provider.EXPECT().Refresh(gomock.Any(), gomock.Any()).Times(0)

	v := newTestSessionValidator(t, provider)

	for _, cookies := range [][]*http.Cookie{
		nil,
		{{Name: "theme", Value: "dark"}},
		{{Name: "JSESSIONID", Value: "j1"}},
	} {
		out := v.Validate(context.Background(), cookies)
		assert.False(t, out.Authenticated)
		assert.Equal(t, "missing credentials", out.Reason())
		assert.Equal(t, apperrors.ErrCodeCredentialsAbsent, out.Code())
	}
}

func TestSessionValidator_ValidAccessOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockIdentityProvider(ctrl)
	provider.EXPECT().Validate(gomock.Any(), "auth-token=a1").Return(true, nil).Times(1)
	provider.EXPECT().Refresh(gomock.Any(), gomock.Any()).Times(0)

	v := newTestSessionValidator(t, provider)
	out := v.Validate(context.Background(), []*http.Cookie{{Name: "auth-token", Value: "a1"}})

	assert.True(t, out.Authenticated)
	assert.Nil(t, out.Err)
	assert.Equal(t, "auth-token=a1", out.CookieHeader)
	assert.Empty(t, out.Issued)
}

func TestSessionValidator_ExpiredAccessNeverRefreshes(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockIdentityProvider(ctrl)
	provider.EXPECT().Validate(gomock.Any(), "auth-token=expired; refresh-token=r1").Return(false, nil).Times(1)
	provider.EXPECT().Refresh(gomock.Any(), gomock.Any()).Times(0)

	v := newTestSessionValidator(t, provider)
	out := v.Validate(context.Background(), []*http.Cookie{
		{Name: "auth-token", Value: "expired"},
		{Name: "refresh-token", Value: "r1"},
	})

	assert.False(t, out.Authenticated)
	assert.Equal(t, "access credential invalid", out.Reason())
}

func TestSessionValidator_RefreshOnlySucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockIdentityProvider(ctrl)
	issued := []*http.Cookie{
		{Name: "auth-token", Value: "a2", Path: "/"},
		{Name: "refresh-token", Value: "r2", Path: "/"},
	}

	gomock.InOrder(
		provider.EXPECT().Refresh(gomock.Any(), "refresh-token=r1").Return(issued, nil).Times(1),
		provider.EXPECT().Validate(gomock.Any(), "refresh-token=r2; auth-token=a2").Return(true, nil).Times(1),
	)

	v := newTestSessionValidator(t, provider)
	out := v.Validate(context.Background(), []*http.Cookie{{Name: "refresh-token", Value: "r1"}})

	require.True(t, out.Authenticated)
	assert.Nil(t, out.Err)
	assert.Equal(t, "refresh-token=r2; auth-token=a2", out.CookieHeader)
	assert.Equal(t, issued, out.Issued)
}

func TestSessionValidator_RefreshRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockIdentityProvider(ctrl)
	provider.EXPECT().Refresh(gomock.Any(), "refresh-token=r1").
		Return(nil, fmt.Errorf("post /auth/refresh: %w", ports.ErrRejected)).Times(1)
	provider.EXPECT().Validate(gomock.Any(), gomock.Any()).Times(0)

	v := newTestSessionValidator(t, provider)
	out := v.Validate(context.Background(), []*http.Cookie{{Name: "refresh-token", Value: "r1"}})

	assert.False(t, out.Authenticated)
	assert.Equal(t, "authentication failed", out.Reason())
	assert.Equal(t, apperrors.ErrCodeRefreshFailed, out.Code())
}

func TestSessionValidator_ValidationAfterRefreshRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockIdentityProvider(ctrl)
	provider.EXPECT().Refresh(gomock.Any(), gomock.Any()).
		Return([]*http.Cookie{{Name: "auth-token", Value: "a2"}}, nil).Times(1)
	provider.EXPECT().Validate(gomock.Any(), "refresh-token=r1; auth-token=a2").Return(false, nil).Times(1)

	v := newTestSessionValidator(t, provider)
	out := v.Validate(context.Background(), []*http.Cookie{{Name: "refresh-token", Value: "r1"}})

	assert.False(t, out.Authenticated)
	assert.Equal(t, "authentication failed", out.Reason())
}

func TestSessionValidator_TransientFailures(t *testing.T) {
	boom := errors.New("dial tcp 127.0.0.1:8080: connect: connection refused")

	t.Run("validate", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		provider := mocks.NewMockIdentityProvider(ctrl)
		provider.EXPECT().Validate(gomock.Any(), gomock.Any()).Return(false, boom).Times(1)
		provider.EXPECT().Refresh(gomock.Any(), gomock.Any()).Times(0)

		out := newTestSessionValidator(t, provider).
			Validate(context.Background(), []*http.Cookie{{Name: "auth-token", Value: "a1"}})

		assert.False(t, out.Authenticated)
		assert.Equal(t, "failed to authenticate", out.Reason())
		assert.ErrorIs(t, out.Err, boom)
	})

	t.Run("refresh", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		provider := mocks.NewMockIdentityProvider(ctrl)
		provider.EXPECT().Refresh(gomock.Any(), gomock.Any()).Return(nil, boom).Times(1)
		provider.EXPECT().Validate(gomock.Any(), gomock.Any()).Times(0)

		out := newTestSessionValidator(t, provider).
			Validate(context.Background(), []*http.Cookie{{Name: "refresh-token", Value: "r1"}})

		assert.Equal(t, apperrors.ErrCodeTransient, out.Code())
	})
}

func TestSessionValidator_Scenario_RefreshYieldsNewAccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockIdentityProvider(ctrl)
	provider.EXPECT().Refresh(gomock.Any(), "refresh-token=r1").
		Return([]*http.Cookie{{Name: "auth-token", Value: "a2"}}, nil)
	provider.EXPECT().Validate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, header string) (bool, error) {
			got := ClassifyTokens(header, domainauth.DefaultCookieNames())
			return got.Access, nil
		})

	out := newTestSessionValidator(t, provider).
		Validate(context.Background(), []*http.Cookie{{Name: "refresh-token", Value: "r1"}})

	assert.Equal(t, domainauth.Outcome{
		Authenticated: true,
		CookieHeader:  "refresh-token=r1; auth-token=a2",
		Issued:        []*http.Cookie{{Name: "auth-token", Value: "a2"}},
	}, out)
}
