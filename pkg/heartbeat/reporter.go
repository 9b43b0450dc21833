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

// Package heartbeat implements the liveness side channel between agent
// servers and a monitor: a Reporter that periodically POSTs a Payload and a
// Receiver that accepts them.
package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kadirpekel/claude-a2a/pkg/observability"
)

// RequestTimeout bounds a single heartbeat POST.
const RequestTimeout = 10 * time.Second

// Payload is the body of a heartbeat POST.
type Payload struct {
	Agent         string `json:"agent"`
	Timestamp     string `json:"timestamp"`
	URL           string `json:"url"`
	ContainerHost string `json:"container_host"`
}

// ReporterConfig configures a Reporter.
type ReporterConfig struct {
	// URL is the monitor endpoint, e.g. http://monitor:8080/heartbeat.
	URL      string
	Interval time.Duration

	// AgentName is consulted on every beat so renamed agents report the
	// new name.
	AgentName     func() string
	SelfURL       string
	ContainerHost string

	Client  *http.Client
	Metrics *observability.Metrics
	Tracer  trace.Tracer
	Now     func() time.Time
}

// Reporter posts a Payload immediately and then once per interval.
type Reporter struct {
	cfg ReporterConfig
}

// NewReporter creates a reporter. Zero-valued optional fields get defaults.
func NewReporter(cfg ReporterConfig) *Reporter {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: RequestTimeout}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AgentName == nil {
		cfg.AgentName = func() string { return "" }
	}
	return &Reporter{cfg: cfg}
}

// Run beats until ctx is cancelled. Failed beats are logged and retried on
// the next tick; Run itself only returns when ctx is done.
func (r *Reporter) Run(ctx context.Context) error {
	slog.Info("Starting heartbeat", "url", r.cfg.URL, "interval", r.cfg.Interval)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := r.Beat(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("Heartbeat POST failed", "url", r.cfg.URL, "error", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("Heartbeat stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Payload builds the payload for the current beat.
func (r *Reporter) Payload() Payload {
	return Payload{
		Agent:         r.cfg.AgentName(),
		Timestamp:     r.cfg.Now().UTC().Format(time.RFC3339Nano),
		URL:           r.cfg.SelfURL,
		ContainerHost: r.cfg.ContainerHost,
	}
}

// Beat sends one heartbeat. A non-2xx response is an error.
func (r *Reporter) Beat(ctx context.Context) (err error) {
	ctx, span := r.cfg.Tracer.Start(ctx, observability.SpanHeartbeat,
		trace.WithAttributes(attribute.String("heartbeat.url", r.cfg.URL)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		r.cfg.Metrics.RecordHeartbeat(ctx, err)
	}()

	body, err := json.Marshal(r.Payload())
	if err != nil {
		return fmt.Errorf("failed to encode heartbeat: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build heartbeat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.cfg.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("heartbeat rejected with status %d", resp.StatusCode)
	}
	slog.Info("Heartbeat POST succeeded", "url", r.cfg.URL, "status", resp.StatusCode)
	return nil
}
