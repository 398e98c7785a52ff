// SPDX-License-Identifier: MIT

package capabilities

import (
	"context"
	"errors"
	"hash/fnv"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	xglog "github.com/aleczinn/loki-sub000/internal/log"
	"github.com/aleczinn/loki-sub000/internal/metrics"
)

var (
	// ErrInvalidToken is returned for client tokens outside the accepted alphabet.
	ErrInvalidToken = errors.New("invalid client token")
	// ErrUnknownToken is returned when no capability set exists for a token.
	ErrUnknownToken = errors.New("unknown client token")
)

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

const shardCount = 32

// Store persists capability sets outside the process.
type Store interface {
	Load(ctx context.Context, token string) (ClientCapabilities, bool, error)
	Save(ctx context.Context, token string, caps ClientCapabilities) error
	Delete(ctx context.Context, token string) error
}

// Registry maps client tokens to their latest capability set.
// Map access is sharded and each entry has its own lock, so updates for
// different clients never serialize on a shared lock.
type Registry struct {
	shards   [shardCount]*shard
	store    Store
	logger   zerolog.Logger
	now      func() time.Time
	newToken func() string
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu        sync.Mutex
	loaded    bool
	dead      bool // removed from its shard after a read miss
	caps      ClientCapabilities
	updatedAt time.Time
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithStore enables write-through persistence and read-through on miss.
func WithStore(s Store) RegistryOption {
	return func(r *Registry) { r.store = s }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithTokenGenerator overrides token generation for tests.
func WithTokenGenerator(fn func() string) RegistryOption {
	return func(r *Registry) { r.newToken = fn }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:   xglog.WithComponent("capabilities"),
		now:      time.Now,
		newToken: uuid.NewString,
	}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) shardFor(token string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return r.shards[h.Sum32()%shardCount]
}

// ValidToken reports whether a client-supplied token is acceptable.
func ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

// Register declares or updates the capabilities of a client. An empty token
// allocates a new one. The returned set is the merged result.
func (r *Registry) Register(ctx context.Context, token string, p Patch) (string, ClientCapabilities, error) {
	kind := "merge"
	if token == "" {
		token = r.newToken()
		kind = "new"
	} else if !ValidToken(token) {
		return "", ClientCapabilities{}, ErrInvalidToken
	}

	var e *entry
	for {
		e, _ = r.getOrInsert(token)
		e.mu.Lock()
		if !e.dead {
			break
		}
		e.mu.Unlock()
	}
	defer e.mu.Unlock()

	r.loadLocked(ctx, token, e)
	if e.updatedAt.IsZero() {
		kind = "new"
		if p.DeviceType != nil {
			if base, ok := Defaults(*p.DeviceType); ok {
				e.caps = base
			}
		}
	}
	e.caps = e.caps.Apply(p)
	e.updatedAt = r.now()
	merged := e.caps.Clone()

	if r.store != nil {
		if err := r.store.Save(ctx, token, merged); err != nil {
			r.logger.Warn().Err(err).Str(xglog.FieldToken, xglog.MaskToken(token)).
				Str(xglog.FieldEvent, "capabilities.store.save_failed").
				Msg("capability write-through failed")
		}
	}
	metrics.IncCapabilityRegistration(kind)
	r.logger.Debug().
		Str(xglog.FieldToken, xglog.MaskToken(token)).
		Str("kind", kind).
		Int("video_codecs", len(merged.VideoCodecs)).
		Int("audio_codecs", len(merged.AudioCodecs)).
		Msg("capabilities registered")
	return token, merged, nil
}

// Get returns the capability set of a token.
func (r *Registry) Get(ctx context.Context, token string) (ClientCapabilities, bool) {
	if !ValidToken(token) {
		return ClientCapabilities{}, false
	}
	s := r.shardFor(token)
	s.mu.RLock()
	e, ok := s.entries[token]
	s.mu.RUnlock()

	if !ok {
		if r.store == nil {
			return ClientCapabilities{}, false
		}
		e, _ = r.getOrInsert(token)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	r.loadLocked(ctx, token, e)
	if e.updatedAt.IsZero() {
		r.dropIfEmpty(token, e)
		return ClientCapabilities{}, false
	}
	return e.caps.Clone(), true
}

// Require is Get with ErrUnknownToken for misses.
func (r *Registry) Require(ctx context.Context, token string) (ClientCapabilities, error) {
	caps, ok := r.Get(ctx, token)
	if !ok {
		return ClientCapabilities{}, ErrUnknownToken
	}
	return caps, nil
}

// Forget removes a token from memory and from the store.
func (r *Registry) Forget(ctx context.Context, token string) {
	s := r.shardFor(token)
	s.mu.RLock()
	e, ok := s.entries[token]
	s.mu.RUnlock()
	if ok {
		// Holding e.mu orders this after any Register already writing to e;
		// dead makes later ones re-insert a fresh entry.
		e.mu.Lock()
		s.mu.Lock()
		if cur, ok := s.entries[token]; ok && cur == e {
			delete(s.entries, token)
		}
		s.mu.Unlock()
		e.dead = true
		e.mu.Unlock()
	}

	if r.store != nil {
		if err := r.store.Delete(ctx, token); err != nil {
			r.logger.Warn().Err(err).Str(xglog.FieldToken, xglog.MaskToken(token)).Msg("capability delete failed")
		}
	}
}

// Len returns the number of tokens held in memory.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

func (r *Registry) getOrInsert(token string) (*entry, bool) {
	s := r.shardFor(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[token]; ok {
		return e, false
	}
	e := &entry{}
	s.entries[token] = e
	return e, true
}

// loadLocked seeds a fresh entry from the store. Caller holds e.mu.
func (r *Registry) loadLocked(ctx context.Context, token string, e *entry) {
	if e.loaded {
		return
	}
	e.loaded = true
	if r.store == nil {
		return
	}
	caps, ok, err := r.store.Load(ctx, token)
	if err != nil {
		r.logger.Warn().Err(err).Str(xglog.FieldToken, xglog.MaskToken(token)).
			Str(xglog.FieldEvent, "capabilities.store.load_failed").
			Msg("capability read-through failed")
		return
	}
	if ok {
		e.caps = Canonicalize(caps)
		e.updatedAt = r.now()
	}
}

// dropIfEmpty removes an entry inserted by a read miss. Caller holds e.mu.
func (r *Registry) dropIfEmpty(token string, e *entry) {
	s := r.shardFor(token)
	s.mu.Lock()
	if cur, ok := s.entries[token]; ok && cur == e && e.updatedAt.IsZero() {
		delete(s.entries, token)
		e.dead = true
	}
	s.mu.Unlock()
}
