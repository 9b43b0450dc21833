// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package session keeps one live agent session per A2A context id.
//
// Sessions are created on first use through a Factory and reused for every
// later message in the same context. Creation is deduplicated so concurrent
// first messages share one session, and the cache is bounded: the least
// recently used session is closed once capacity is exceeded.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/kadirpekel/claude-a2a/pkg/claude"
)

// DefaultCapacity is the session limit used when none is configured.
const DefaultCapacity = 256

// ErrStoreClosed is returned by GetOrCreate after Close.
var ErrStoreClosed = errors.New("session store closed")

// Factory builds and connects a session for a context id.
type Factory func(ctx context.Context, contextID string) (claude.Session, error)

// Recorder observes session lifecycle events.
type Recorder interface {
	SessionCreated(ctx context.Context)
	SessionEvicted(ctx context.Context)
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity bounds the number of live sessions.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithRecorder reports lifecycle events to r.
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Store maps context ids to live sessions.
type Store struct {
	factory  Factory
	capacity int
	recorder Recorder

	mu     sync.Mutex
	cache  *lru.Cache
	group  singleflight.Group
	closed bool

	closers sync.WaitGroup
}

// NewStore creates a Store that builds sessions with factory.
func NewStore(factory Factory, opts ...Option) (*Store, error) {
	if factory == nil {
		return nil, fmt.Errorf("session factory is required")
	}
	s := &Store{
		factory:  factory,
		capacity: DefaultCapacity,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}

	cache, err := lru.NewWithEvict(s.capacity, s.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

// onEvict closes sessions leaving the cache, whether by capacity, Remove or
// Close. Closing can block while a CLI process shuts down, so it runs off
// the cache lock.
func (s *Store) onEvict(key, value interface{}) {
	sess, ok := value.(claude.Session)
	if !ok {
		return
	}
	s.recorder.SessionEvicted(context.Background())
	s.closers.Add(1)
	go func() {
		defer s.closers.Done()
		if err := sess.Close(); err != nil {
			slog.Warn("Failed to close session", "context_id", key, "error", err)
			return
		}
		slog.Debug("Session closed", "context_id", key)
	}()
}

// GetOrCreate returns the session for contextID, creating it on first use.
// Later calls with the same id return the identical handle.
func (s *Store) GetOrCreate(ctx context.Context, contextID string) (claude.Session, error) {
	if sess, ok, err := s.lookup(contextID); err != nil || ok {
		return sess, err
	}

	v, err, shared := s.group.Do(contextID, func() (interface{}, error) {
		if sess, ok, err := s.lookup(contextID); err != nil || ok {
			return sess, err
		}

		sess, err := s.factory(ctx, contextID)
		if err != nil {
			return nil, fmt.Errorf("failed to create session for context %s: %w", contextID, err)
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = sess.Close()
			return nil, ErrStoreClosed
		}
		s.cache.Add(contextID, sess)
		s.mu.Unlock()

		s.recorder.SessionCreated(ctx)
		slog.Info("Created agent session", "context_id", contextID)
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("Joined in-flight session creation", "context_id", contextID)
	}
	return v.(claude.Session), nil
}

func (s *Store) lookup(contextID string) (claude.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrStoreClosed
	}
	v, ok := s.cache.Get(contextID)
	if !ok {
		return nil, false, nil
	}
	return v.(claude.Session), true, nil
}

// Remove drops and closes the session for contextID. It reports whether a
// session was present.
func (s *Store) Remove(contextID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Remove(contextID)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.cache.Len()
}

// Close closes every cached session and waits for them to stop. The store
// cannot be used afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cache.Purge()
	s.mu.Unlock()

	s.closers.Wait()
	return nil
}

type nopRecorder struct{}

func (nopRecorder) SessionCreated(context.Context) {}
func (nopRecorder) SessionEvicted(context.Context) {}
