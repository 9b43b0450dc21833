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

package session

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/claude-a2a/pkg/claude"
)

type fakeSession struct {
	sync.Mutex
	id     string
	closed atomic.Bool
}

func (f *fakeSession) Query(context.Context, string) error { return nil }

func (f *fakeSession) ReceiveResponse(context.Context) iter.Seq2[*claude.Message, error] {
	return func(yield func(*claude.Message, error) bool) {
		yield(&claude.Message{Type: claude.TypeResult, Result: f.id}, nil)
	}
}

func (f *fakeSession) Close() error {
	f.closed.Store(true)
	return nil
}

type countingFactory struct {
	calls    atomic.Int32
	delay    time.Duration
	mu       sync.Mutex
	sessions map[string]*fakeSession
}

func (c *countingFactory) create(_ context.Context, id string) (claude.Session, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	s := &fakeSession{id: id}
	c.mu.Lock()
	if c.sessions == nil {
		c.sessions = map[string]*fakeSession{}
	}
	c.sessions[id] = s
	c.mu.Unlock()
	return s, nil
}

func (c *countingFactory) get(id string) *fakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[id]
}

type countingRecorder struct {
	created, evicted atomic.Int32
}

func (r *countingRecorder) SessionCreated(context.Context) { r.created.Add(1) }
func (r *countingRecorder) SessionEvicted(context.Context) { r.evicted.Add(1) }

func TestGetOrCreateReturnsSameHandle(t *testing.T) {
	f := &countingFactory{}
	store, err := NewStore(f.create)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	first, err := store.GetOrCreate(ctx, "ctx-1")
	require.NoError(t, err)
	second, err := store.GetOrCreate(ctx, "ctx-1")
	require.NoError(t, err)
	other, err := store.GetOrCreate(ctx, "ctx-2")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
	assert.Equal(t, int32(2), f.calls.Load())
	assert.Equal(t, 2, store.Len())
}

func TestConcurrentFirstCallsCreateOnce(t *testing.T) {
	f := &countingFactory{delay: 50 * time.Millisecond}
	store, err := NewStore(f.create)
	require.NoError(t, err)
	defer store.Close()

	const n = 16
	results := make([]claude.Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := store.GetOrCreate(context.Background(), "shared")
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for _, s := range results {
		assert.Same(t, results[0], s)
	}
}

func TestFactoryErrorIsNotCached(t *testing.T) {
	boom := errors.New("claude not installed")
	var calls atomic.Int32
	store, err := NewStore(func(context.Context, string) (claude.Session, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		return &fakeSession{}, nil
	})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.GetOrCreate(context.Background(), "c")
	assert.ErrorIs(t, err, boom)

	s, err := store.GetOrCreate(context.Background(), "c")
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestEvictionClosesLeastRecentlyUsed(t *testing.T) {
	f := &countingFactory{}
	rec := &countingRecorder{}
	store, err := NewStore(f.create, WithCapacity(2), WithRecorder(rec))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		_, err := store.GetOrCreate(ctx, id)
		require.NoError(t, err)
	}
	// touch "a" so "b" becomes the eviction candidate
	_, err = store.GetOrCreate(ctx, "a")
	require.NoError(t, err)
	_, err = store.GetOrCreate(ctx, "c")
	require.NoError(t, err)

	assert.Equal(t, 2, store.Len())
	assert.Eventually(t, func() bool { return f.get("b").closed.Load() }, time.Second, 10*time.Millisecond)
	assert.False(t, f.get("a").closed.Load())
	assert.Equal(t, int32(3), rec.created.Load())
	assert.Equal(t, int32(1), rec.evicted.Load())
}

func TestRemoveAndClose(t *testing.T) {
	f := &countingFactory{}
	store, err := NewStore(f.create)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.GetOrCreate(ctx, "x")
	require.NoError(t, err)
	_, err = store.GetOrCreate(ctx, "y")
	require.NoError(t, err)

	assert.True(t, store.Remove("x"))
	assert.False(t, store.Remove("x"))
	assert.Eventually(t, func() bool { return f.get("x").closed.Load() }, time.Second, 10*time.Millisecond)

	require.NoError(t, store.Close())
	assert.True(t, f.get("y").closed.Load())
	assert.Equal(t, 0, store.Len())

	_, err = store.GetOrCreate(ctx, "z")
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestInvokeThroughStore(t *testing.T) {
	f := &countingFactory{}
	store, err := NewStore(f.create)
	require.NoError(t, err)
	defer store.Close()

	s, err := store.GetOrCreate(context.Background(), "ctx-9")
	require.NoError(t, err)
	got, err := claude.Invoke(context.Background(), s, "hello")
	require.NoError(t, err)
	assert.Equal(t, "ctx-9", got)
}

func TestNewStoreRequiresFactory(t *testing.T) {
	_, err := NewStore(nil)
	assert.Error(t, err)
}
