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

// Package observability wires OpenTelemetry metrics (exported to
// Prometheus) and tracing for the agent server.
package observability

import (
	"context"
	"errors"
	"net/http"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kadirpekel/claude-a2a/pkg/config"
)

// Manager owns the metric and tracer providers.
type Manager struct {
	registry       *promclient.Registry
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider trace.TracerProvider
	metrics        *Metrics
}

// NewManager initialises whatever cfg enables. A zero config gives a
// manager with nil Metrics and a no-op tracer.
func NewManager(ctx context.Context, cfg config.ObservabilityConfig, serviceName, version string) (*Manager, error) {
	m := &Manager{}

	tp, err := InitTracer(ctx, cfg.Tracing, serviceName, version, os.Stdout)
	if err != nil {
		return nil, err
	}
	m.tracerProvider = tp

	if cfg.Metrics.Enabled {
		m.registry = promclient.NewRegistry()
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics, mp, err := NewMetrics(cfg.Metrics.Namespace, m.registry)
		if err != nil {
			_ = m.Shutdown(ctx)
			return nil, err
		}
		m.metrics = metrics
		m.meterProvider = mp
	}
	return m, nil
}

// Metrics returns the recorder, nil when metrics are disabled.
func (m *Manager) Metrics() *Metrics {
	if m == nil {
		return nil
	}
	return m.metrics
}

// Tracer returns a named tracer.
func (m *Manager) Tracer(name string) trace.Tracer {
	if m == nil || m.tracerProvider == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return m.tracerProvider.Tracer(name)
}

// MetricsHandler serves the Prometheus exposition, nil when disabled.
func (m *Manager) MetricsHandler() http.Handler {
	if m == nil || m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Shutdown flushes and stops both providers.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	var errs []error
	if m.meterProvider != nil {
		errs = append(errs, m.meterProvider.Shutdown(ctx))
	}
	if sp, ok := m.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
		errs = append(errs, sp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
