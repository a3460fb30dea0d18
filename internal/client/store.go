package client

// Package client is the Go rendition of the browser-side session machinery:
// an identity store, a navigation policy observing it, a refresh-once HTTP
// transport, a persisted cookie jar, and an API client tying them together.

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
	"github.com/moneybook/websession/internal/ports"
)

// Status is the identity slot of the client session state.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusPresent
	StatusAbsent
	// StatusSignedOut follows an explicit logout. Nothing is fetched until the
	// store is hydrated or refetched again.
	StatusSignedOut
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusPresent:
		return "present"
	case StatusAbsent:
		return "absent"
	case StatusSignedOut:
		return "signed_out"
	default:
		return "unknown"
	}
}

// errNotSessionHolder is recorded when whoami answers without a user id.
var errNotSessionHolder = errors.New("not a session holder")

// State is a snapshot of the client session.
type State struct {
	Status   Status
	Identity *domainauth.Identity
	Err      string
	// Attempts counts identity fetches since the last success.
	Attempts int
}

// StoreOptions groups dependencies for Store.
type StoreOptions struct {
	Fetcher ports.IdentityFetcher
	Logger  *slog.Logger
}

// Store is the single owner of the client session state.
// Concurrent Refetch calls share one fetch. Subscribers run synchronously in the
// goroutine that changed the state, outside the store lock; a subscriber must not
// call Refetch for a loading event.
type Store struct {
	fetcher ports.IdentityFetcher
	logger  *slog.Logger
	group   singleflight.Group

	mu      sync.Mutex
	state   State
	subs    map[int]func(State)
	nextSub int
}

// NewStore constructs an idle Store.
func NewStore(opts StoreOptions) (*Store, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("Fetcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		fetcher: opts.Fetcher,
		logger:  logger.With("component", "session_store"),
		subs:    map[int]func(State){},
	}, nil
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Identity returns the current identity, or nil when absent.
func (s *Store) Identity() *domainauth.Identity { return s.State().Identity }

// IsLoading reports whether an identity fetch is in flight.
func (s *Store) IsLoading() bool { return s.State().Status == StatusLoading }

// Err returns the last fetch error message, or "".
func (s *Store) Err() string { return s.State().Err }

// Subscribe registers fn for state changes and returns a function removing it.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Refetch loads the identity from the whoami endpoint.
// loading -> present on success, loading -> absent with an error otherwise.
func (s *Store) Refetch(ctx context.Context) error {
	leader := false
	v, err, _ := s.group.Do("identity", func() (any, error) {
		leader = true
		return s.fetch(ctx)
	})
	if leader {
		s.publish(v.(State))
	}
	return err
}

func (s *Store) fetch(ctx context.Context) (State, error) {
	s.mu.Lock()
	s.state.Status = StatusLoading
	s.state.Attempts++
	loading := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(loading)

	id, err := s.fetcher.FetchIdentity(ctx)
	if err == nil && !id.Valid() {
		err = errNotSessionHolder
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state.Status = StatusAbsent
		s.state.Identity = nil
		s.state.Err = err.Error()
		s.logger.DebugContext(ctx, "identity fetch failed", "attempts", s.state.Attempts, "error", err)
		return s.snapshotLocked(), err
	}
	s.state = State{Status: StatusPresent, Identity: &id}
	return s.snapshotLocked(), nil
}

// Hydrate seeds the store with an identity rendered by the server.
// An identity without a user id leaves the store absent.
func (s *Store) Hydrate(id domainauth.Identity) {
	s.mu.Lock()
	if id.Valid() {
		s.state = State{Status: StatusPresent, Identity: &id}
	} else {
		s.state = State{Status: StatusAbsent, Err: errNotSessionHolder.Error()}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// Update merges a partial identity into the present one. It reports false when no identity is present.
func (s *Store) Update(partial domainauth.Identity) bool {
	s.mu.Lock()
	if s.state.Status != StatusPresent || s.state.Identity == nil {
		s.mu.Unlock()
		return false
	}
	merged := s.state.Identity.Merge(partial)
	s.state.Identity = &merged
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return true
}

// Clear drops the identity after logout and marks the store signed out.
func (s *Store) Clear() {
	s.mu.Lock()
	s.state = State{Status: StatusSignedOut}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

func (s *Store) snapshotLocked() State {
	out := s.state
	if s.state.Identity != nil {
		id := *s.state.Identity
		out.Identity = &id
	}
	return out
}

func (s *Store) publish(st State) {
	s.mu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}
