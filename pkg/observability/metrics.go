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

package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	outcomeSuccess = "success"
	outcomeError   = "error"

	attrOutcome = "outcome"
	attrMethod  = "http.method"
	attrStatus  = "http.status_code"
)

// Metrics records the server's counters and histograms. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	executions        metric.Int64Counter
	executionDuration metric.Float64Histogram
	sessionsCreated   metric.Int64Counter
	sessionsEvicted   metric.Int64Counter
	heartbeats        metric.Int64Counter
	httpRequests      metric.Int64Counter
	httpDuration      metric.Float64Histogram
}

// NewMetrics registers the instruments with a Prometheus exporter bound to
// reg. The returned provider must be shut down by the caller.
func NewMetrics(namespace string, reg promclient.Registerer) (*Metrics, *sdkmetric.MeterProvider, error) {
	exporter, err := prometheus.New(
		prometheus.WithRegisterer(reg),
		prometheus.WithNamespace(namespace),
		prometheus.WithoutScopeInfo(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("github.com/kadirpekel/claude-a2a")

	m := &Metrics{}
	if m.executions, err = meter.Int64Counter("agent_executions",
		metric.WithDescription("A2A executions handled, by outcome")); err != nil {
		return nil, nil, fmt.Errorf("failed to create executions counter: %w", err)
	}
	if m.executionDuration, err = meter.Float64Histogram("agent_execution_duration_seconds",
		metric.WithDescription("Time spent answering an A2A message"),
		metric.WithUnit("s")); err != nil {
		return nil, nil, fmt.Errorf("failed to create execution histogram: %w", err)
	}
	if m.sessionsCreated, err = meter.Int64Counter("sessions_created",
		metric.WithDescription("Agent sessions started")); err != nil {
		return nil, nil, fmt.Errorf("failed to create sessions counter: %w", err)
	}
	if m.sessionsEvicted, err = meter.Int64Counter("sessions_evicted",
		metric.WithDescription("Agent sessions closed by the cache")); err != nil {
		return nil, nil, fmt.Errorf("failed to create evictions counter: %w", err)
	}
	if m.heartbeats, err = meter.Int64Counter("heartbeats",
		metric.WithDescription("Heartbeat posts, by outcome")); err != nil {
		return nil, nil, fmt.Errorf("failed to create heartbeat counter: %w", err)
	}
	if m.httpRequests, err = meter.Int64Counter("http_requests",
		metric.WithDescription("HTTP requests served")); err != nil {
		return nil, nil, fmt.Errorf("failed to create http counter: %w", err)
	}
	if m.httpDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s")); err != nil {
		return nil, nil, fmt.Errorf("failed to create http histogram: %w", err)
	}
	return m, provider, nil
}

func outcome(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String(attrOutcome, outcomeError)
	}
	return attribute.String(attrOutcome, outcomeSuccess)
}

// RecordExecution records one executor run.
func (m *Metrics) RecordExecution(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(outcome(err))
	m.executions.Add(ctx, 1, attrs)
	m.executionDuration.Record(ctx, d.Seconds(), attrs)
}

// SessionCreated counts a new agent session.
func (m *Metrics) SessionCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsCreated.Add(ctx, 1)
}

// SessionEvicted counts a session leaving the cache.
func (m *Metrics) SessionEvicted(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsEvicted.Add(ctx, 1)
}

// RecordHeartbeat records one heartbeat attempt.
func (m *Metrics) RecordHeartbeat(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.heartbeats.Add(ctx, 1, metric.WithAttributes(outcome(err)))
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrStatus, strconv.Itoa(status)),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, d.Seconds(), attrs)
}
