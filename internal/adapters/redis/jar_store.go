package redis

// Package redis provides Redis-based adapters for persisting client session state.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/moneybook/websession/internal/ports"
)

// DefaultJarTTL bounds a persisted jar when neither the caller nor the cookies supply an expiry.
const DefaultJarTTL = 7 * 24 * time.Hour

// JarStore is a Redis-based store for a client's identity cookies, keyed by profile.
// The key TTL follows the caller's TTL or, when none is given, the latest cookie expiry.
type JarStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ ports.JarStore = (*JarStore)(nil)

// NewJarStore creates a new Redis-based jar store.
func NewJarStore(client redis.UniversalClient) *JarStore {
	return NewJarStoreWithPrefix(client, "websession:jar:")
}

// NewJarStoreWithPrefix creates a Redis jar store with a custom key prefix.
func NewJarStoreWithPrefix(client redis.UniversalClient, prefix string) *JarStore {
	return &JarStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

type storedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
}

// Save replaces the profile's persisted cookies. An empty or fully expired set deletes the key.
func (s *JarStore) Save(ctx context.Context, profile string, cookies []*http.Cookie, ttl time.Duration) error {
	if profile == "" {
		return errors.New("profile cannot be empty")
	}

	now := s.now()
	live := make([]storedCookie, 0, len(cookies))
	var latest time.Time
	for _, c := range cookies {
		if c == nil || c.Name == "" || expired(c.Expires, now) {
			continue
		}
		live = append(live, storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
		if c.Expires.After(latest) {
			latest = c.Expires
		}
	}
	if len(live) == 0 {
		return s.Delete(ctx, profile)
	}

	if ttl <= 0 {
		ttl = DefaultJarTTL
		if !latest.IsZero() {
			ttl = latest.Sub(now)
		}
	}

	data, err := json.Marshal(live)
	if err != nil {
		return fmt.Errorf("marshal jar: %w", err)
	}
	return s.client.Set(ctx, s.prefix+profile, data, ttl).Err()
}

// Load returns the profile's persisted cookies, dropping any that expired since Save.
// A missing profile yields no cookies and no error.
func (s *JarStore) Load(ctx context.Context, profile string) ([]*http.Cookie, error) {
	if profile == "" {
		return nil, nil
	}

	data, err := s.client.Get(ctx, s.prefix+profile).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var stored []storedCookie
	if unmarshalErr := json.Unmarshal(data, &stored); unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal jar: %w", unmarshalErr)
	}

	now := s.now()
	out := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		if expired(c.Expires, now) {
			continue
		}
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}
	return out, nil
}

// Delete removes the profile's persisted cookies.
func (s *JarStore) Delete(ctx context.Context, profile string) error {
	if profile == "" {
		return nil // Nothing to delete
	}
	return s.client.Del(ctx, s.prefix+profile).Err()
}

func expired(at, now time.Time) bool {
	return !at.IsZero() && !at.After(now)
}
