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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/claude-a2a/pkg/config"
	"github.com/kadirpekel/claude-a2a/pkg/observability"
)

// LegacyAgentCardPath is the pre-0.3 well-known card location, still
// requested by older clients.
const LegacyAgentCardPath = "/.well-known/agent.json"

const shutdownTimeout = 5 * time.Second

// HTTPServerOption configures an HTTPServer.
type HTTPServerOption func(*HTTPServer)

// WithTaskStore persists tasks in store instead of memory.
func WithTaskStore(store a2asrv.TaskStore) HTTPServerOption {
	return func(s *HTTPServer) {
		s.taskStore = store
	}
}

// WithObservability adds request tracing, metrics and the /metrics route.
func WithObservability(obs *observability.Manager) HTTPServerOption {
	return func(s *HTTPServer) {
		s.observability = obs
	}
}

// HTTPServer serves the agent over A2A JSON-RPC.
//
// Routes:
//   - GET  /.well-known/agent-card.json, /.well-known/agent.json → agent card
//   - POST /                                                     → JSON-RPC (bodiless: health)
//   - GET  /, GET|POST /health                                   → {"status":"ok"}
//   - GET  /metrics                                              → Prometheus (when enabled)
type HTTPServer struct {
	cfg           config.ServerConfig
	card          atomic.Pointer[a2a.AgentCard]
	taskStore     a2asrv.TaskStore
	observability *observability.Manager
	jsonrpc       http.Handler

	server *http.Server
}

// NewHTTPServer builds a server for executor using the agent described in cfg.
func NewHTTPServer(cfg *config.Config, executor a2asrv.AgentExecutor, opts ...HTTPServerOption) *HTTPServer {
	s := &HTTPServer{cfg: cfg.Server}
	for _, opt := range opts {
		opt(s)
	}

	s.card.Store(BuildAgentCard(cfg.Agent, fmt.Sprintf("http://localhost:%d/", cfg.Server.Port)))

	var handlerOpts []a2asrv.RequestHandlerOption
	if s.taskStore != nil {
		handlerOpts = append(handlerOpts, a2asrv.WithTaskStore(s.taskStore))
	}
	s.jsonrpc = a2asrv.NewJSONRPCHandler(a2asrv.NewHandler(executor, handlerOpts...))
	return s
}

// BuildAgentCard creates the agent card advertised at url.
func BuildAgentCard(cfg config.AgentConfig, url string) *a2a.AgentCard {
	skills := make([]a2a.AgentSkill, 0, len(cfg.Skills))
	for _, skill := range cfg.Skills {
		tags := skill.Tags
		if tags == nil {
			tags = []string{}
		}
		skills = append(skills, a2a.AgentSkill{
			ID:          skill.ID,
			Name:        skill.Name,
			Description: skill.Description,
			Tags:        tags,
			Examples:    skill.Examples,
		})
	}

	streaming := cfg.Streaming == nil || *cfg.Streaming

	return &a2a.AgentCard{
		Name:               cfg.Name,
		Description:        cfg.Description,
		URL:                url,
		Version:            cfg.Version,
		ProtocolVersion:    "0.3.0",
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
		Skills:             skills,
		Capabilities:       a2a.AgentCapabilities{Streaming: streaming},
		PreferredTransport: a2a.TransportProtocolJSONRPC,
	}
}

// UpdateAgent swaps the advertised card, keeping the URL logic per request.
func (s *HTTPServer) UpdateAgent(cfg config.AgentConfig) {
	prev := s.card.Load()
	s.card.Store(BuildAgentCard(cfg, prev.URL))
	slog.Info("Agent card updated", "name", cfg.Name, "version", cfg.Version)
}

// Card returns the current base card.
func (s *HTTPServer) Card() a2a.AgentCard {
	return *s.card.Load()
}

// Handler returns the routed handler with middleware applied.
func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if s.observability != nil {
		r.Use(observability.HTTPMiddleware(s.observability.Tracer("http"), s.observability.Metrics()))
	}

	r.Get(a2asrv.WellKnownAgentCardPath, s.handleAgentCard)
	r.Get(LegacyAgentCardPath, s.handleAgentCard)

	r.Get("/", handleHealth)
	r.Post("/", s.handleRPC)
	r.Get("/health", handleHealth)
	r.Post("/health", handleHealth)

	if s.observability != nil {
		if h := s.observability.MetricsHandler(); h != nil {
			r.Method(http.MethodGet, "/metrics", h)
			slog.Info("Metrics endpoint enabled", "path", "/metrics")
		}
	}
	return r
}

// Start listens on the configured address until ctx is cancelled.
func (s *HTTPServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve handles connections on ln until ctx is cancelled.
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	slog.Info("HTTP server starting", "address", ln.Addr().String(), "agent", s.card.Load().Name)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	slog.Info("HTTP server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	return nil
}

// handleAgentCard serves a copy of the card whose URL is the base URL the
// caller used to reach us.
func (s *HTTPServer) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	card := *s.card.Load()
	card.URL = ExternalBaseURL(r)
	writeJSON(w, http.StatusOK, card)
}

// handleRPC routes JSON-RPC calls to the A2A handler. A POST without a body
// is a liveness probe.
func (s *HTTPServer) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength == 0 {
		handleHealth(w, r)
		return
	}
	s.jsonrpc.ServeHTTP(w, r)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ExternalBaseURL derives the base URL a client used, honouring
// X-Forwarded-Host, X-Forwarded-Proto and X-Forwarded-Port. The result
// always ends with "/".
func ExternalBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	host := firstHeaderValue(r.Header.Get("X-Forwarded-Host"))
	if host == "" {
		return scheme + "://" + r.Host + "/"
	}

	if port := firstHeaderValue(r.Header.Get("X-Forwarded-Port")); port != "" && !strings.Contains(host, ":") {
		host = host + ":" + port
	}
	if proto := firstHeaderValue(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		scheme = proto
	}
	return scheme + "://" + host + "/"
}

// firstHeaderValue returns the first comma-separated value, trimmed.
func firstHeaderValue(v string) string {
	if v == "" {
		return ""
	}
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
