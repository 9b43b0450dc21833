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

package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultReceiverPort is the receiver's listen port when HEARTBEAT_PORT is unset.
const DefaultReceiverPort = 8080

// DefaultMaxSightings bounds the registry; the agent heard from least
// recently is forgotten first.
const DefaultMaxSightings = 1024

// maxBodySize caps what the receiver reads from a single POST.
const maxBodySize = 1 << 20

// Sighting is the last heartbeat seen from one agent.
type Sighting struct {
	Agent         string    `json:"agent"`
	URL           string    `json:"url"`
	ContainerHost string    `json:"container_host,omitempty"`
	LastSeen      time.Time `json:"last_seen"`
	Count         int       `json:"count"`
}

// Receiver accepts heartbeat POSTs and remembers who reported.
type Receiver struct {
	now          func() time.Time
	maxSightings int

	mu        sync.Mutex
	sightings *lru.Cache
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithMaxSightings bounds the number of agents remembered.
func WithMaxSightings(n int) ReceiverOption {
	return func(rc *Receiver) {
		if n > 0 {
			rc.maxSightings = n
		}
	}
}

// NewReceiver creates an empty receiver.
func NewReceiver(opts ...ReceiverOption) *Receiver {
	rc := &Receiver{now: time.Now, maxSightings: DefaultMaxSightings}
	for _, opt := range opts {
		opt(rc)
	}
	// lru.New only fails for a non-positive size, which the option rules out.
	rc.sightings, _ = lru.New(rc.maxSightings)
	return rc
}

// Handler routes POST /heartbeat and GET /heartbeats.
func (rc *Receiver) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Post("/heartbeat", rc.handleHeartbeat)
	r.Get("/heartbeats", rc.handleList)
	return r
}

// Sightings returns the registry ordered by agent name, then URL.
func (rc *Receiver) Sightings() []Sighting {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	out := make([]Sighting, 0, rc.sightings.Len())
	for _, key := range rc.sightings.Keys() {
		if v, ok := rc.sightings.Peek(key); ok {
			out = append(out, *v.(*Sighting))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Agent != out[j].Agent {
			return out[i].Agent < out[j].Agent
		}
		return out[i].URL < out[j].URL
	})
	return out
}

// ParseBody decodes a heartbeat body. An empty body yields nil; a body that
// is not JSON is kept verbatim under "raw_body".
func ParseBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return map[string]any{"raw_body": string(body)}
	}
	return payload
}

func (rc *Receiver) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		slog.Warn("Failed to read heartbeat body", "error", err)
	}
	payload := ParseBody(body)
	now := rc.now().UTC()

	var agent, url, host string
	if m, ok := payload.(map[string]any); ok {
		agent, _ = m["agent"].(string)
		url, _ = m["url"].(string)
		host, _ = m["container_host"].(string)
		if agent != "" || url != "" {
			rc.record(agent, url, host, now)
		}
	}

	slog.Info("Heartbeat received",
		"at", now.Format(time.RFC3339Nano),
		"agent", agent,
		"url", url,
		"payload", payload)

	writeJSON(w, map[string]string{"status": "received"})
}

func (rc *Receiver) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"agents": rc.Sightings()})
}

func (rc *Receiver) record(agent, url, host string, at time.Time) {
	key := agent + "\x00" + url

	rc.mu.Lock()
	defer rc.mu.Unlock()

	var s *Sighting
	if v, ok := rc.sightings.Get(key); ok {
		s = v.(*Sighting)
	} else {
		s = &Sighting{Agent: agent, URL: url}
		if evicted := rc.sightings.Add(key, s); evicted {
			slog.Debug("Heartbeat registry full, forgot the stalest agent", "max", rc.maxSightings)
		}
	}
	s.ContainerHost = host
	s.LastSeen = at
	s.Count++
}

// ListenAndServe serves the receiver on addr until ctx is cancelled.
func (rc *Receiver) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{Handler: rc.Handler(), ReadHeaderTimeout: 10 * time.Second}
	slog.Info("Heartbeat receiver listening", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
