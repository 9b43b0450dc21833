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
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/claude-a2a/pkg/config"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	m.RecordExecution(ctx, time.Second, nil)
	m.SessionCreated(ctx)
	m.SessionEvicted(ctx)
	m.RecordHeartbeat(ctx, errors.New("down"))
	m.RecordHTTPRequest(ctx, http.MethodGet, 200, time.Millisecond)

	var mgr *Manager
	assert.Nil(t, mgr.Metrics())
	assert.Nil(t, mgr.MetricsHandler())
	assert.NoError(t, mgr.Shutdown(ctx))
}

func TestDisabledManager(t *testing.T) {
	cfg := config.ObservabilityConfig{}
	cfg.SetDefaults()

	mgr, err := NewManager(context.Background(), cfg, "claude-a2a", "test")
	require.NoError(t, err)
	defer mgr.Shutdown(context.Background())

	assert.Nil(t, mgr.Metrics())
	assert.Nil(t, mgr.MetricsHandler())
	assert.NotNil(t, mgr.Tracer("test"))
}

func TestMetricsExposition(t *testing.T) {
	cfg := config.ObservabilityConfig{Metrics: config.MetricsConfig{Enabled: true}}
	cfg.SetDefaults()

	ctx := context.Background()
	mgr, err := NewManager(ctx, cfg, "claude-a2a", "test")
	require.NoError(t, err)
	defer mgr.Shutdown(ctx)

	m := mgr.Metrics()
	require.NotNil(t, m)
	m.RecordExecution(ctx, 250*time.Millisecond, nil)
	m.RecordExecution(ctx, time.Second, errors.New("boom"))
	m.SessionCreated(ctx)
	m.RecordHeartbeat(ctx, nil)

	rec := httptest.NewRecorder()
	mgr.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "claude_a2a_agent_executions_total")
	assert.Contains(t, body, `outcome="error"`)
	assert.Contains(t, body, "claude_a2a_sessions_created_total 1")
	assert.Contains(t, body, "claude_a2a_heartbeats_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestStdoutTracerAndMiddleware(t *testing.T) {
	var out bytes.Buffer
	ctx := context.Background()

	tp, err := InitTracer(ctx, config.TracingConfig{Enabled: true, Exporter: "stdout", SamplingRate: 1}, "svc", "v0", &out)
	require.NoError(t, err)

	handler := HTTPMiddleware(tp.Tracer("test"), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "short and stout")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	shutdown, ok := tp.(interface{ Shutdown(context.Context) error })
	require.True(t, ok)
	require.NoError(t, shutdown.Shutdown(ctx))
	assert.Contains(t, out.String(), "GET /health")
}
