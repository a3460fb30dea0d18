package auth

// Package auth contains simple hand-written test doubles for session ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
	"github.com/moneybook/websession/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.JarStore        = (*MemoryJarStore)(nil)
	_ ports.IdentityFetcher = (*StaticFetcher)(nil)
)

// MemoryJarStore is an in-memory cookie jar store for unit tests. TTLs are recorded, not enforced.
type MemoryJarStore struct {
	mu   sync.Mutex
	jars map[string][]*http.Cookie
	ttls map[string]time.Duration
}

// NewMemoryJarStore creates a new in-memory jar store.
func NewMemoryJarStore() *MemoryJarStore {
	return &MemoryJarStore{
		jars: make(map[string][]*http.Cookie),
		ttls: make(map[string]time.Duration),
	}
}

func (m *MemoryJarStore) Save(_ context.Context, profile string, cookies []*http.Cookie, ttl time.Duration) error {
	if profile == "" {
		return errors.New("profile cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(cookies) == 0 {
		delete(m.jars, profile)
		delete(m.ttls, profile)
		return nil
	}
	m.jars[profile] = cloneCookies(cookies)
	m.ttls[profile] = ttl
	return nil
}

func (m *MemoryJarStore) Load(_ context.Context, profile string) ([]*http.Cookie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneCookies(m.jars[profile]), nil
}

func (m *MemoryJarStore) Delete(_ context.Context, profile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jars, profile)
	delete(m.ttls, profile)
	return nil
}

// TTL returns the ttl passed with the last save for profile.
func (m *MemoryJarStore) TTL(profile string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[profile]
}

func cloneCookies(in []*http.Cookie) []*http.Cookie {
	if in == nil {
		return nil
	}
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		cp := *c
		out = append(out, &cp)
	}
	return out
}

// StaticFetcher returns a fixed identity or error and counts calls.
type StaticFetcher struct {
	Identity domainauth.Identity
	Err      error

	mu    sync.Mutex
	calls int
}

func (f *StaticFetcher) FetchIdentity(_ context.Context) (domainauth.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.Err != nil {
		return domainauth.Identity{}, f.Err
	}
	return f.Identity, nil
}

// Calls returns how many times FetchIdentity ran.
func (f *StaticFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
