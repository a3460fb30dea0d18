//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are installed globally via `go install` or run with `go run`
// and are not tracked in go.mod since they are not runtime dependencies.
package tools

// Development tools:
//
// mockgen - gomock code generator for internal/ports
//   Run: go generate ./internal/mocks
//   Version: go.uber.org/mock v0.6.0 (matches go.mod)
//   Docs: https://github.com/uber-go/mock
//
// golangci-lint - linter honoring the //nolint directives in this repo
//   Install: go install github.com/golangci/golangci-lint/cmd/golangci-lint@latest
//   Docs: https://golangci-lint.run
