// Package mocks provides mock implementations of the session ports for testing.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the interfaces in internal/ports.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	provider := mocks.NewMockIdentityProvider(ctrl)
//	provider.EXPECT().Validate(gomock.Any(), "auth-token=a1").Return(true, nil).Times(1)
package mocks

// Generate mocks for every interface in internal/ports/auth.go:
// IdentityProvider (Validate, Refresh, WhoAmI, Logout), SessionValidator, IdentityFetcher, Navigator, JarStore.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -source=../ports/auth.go -destination=ports_mock.go -package=mocks
