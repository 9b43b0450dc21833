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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	claudea2a "github.com/kadirpekel/claude-a2a"
	"github.com/kadirpekel/claude-a2a/pkg/config"
	"github.com/kadirpekel/claude-a2a/pkg/heartbeat"
	"github.com/kadirpekel/claude-a2a/pkg/observability"
	"github.com/kadirpekel/claude-a2a/pkg/server"
	"github.com/kadirpekel/claude-a2a/pkg/session"
	"github.com/kadirpekel/claude-a2a/pkg/task"
)

const serviceName = "claude-a2a"

// ServeCmd starts the A2A server.
type ServeCmd struct {
	Port    int    `help:"Port to listen on (overrides config and PORT)."`
	Backend string `help:"Claude backend (cli, api)."`
	Watch   bool   `help:"Reload the agent card when the config file changes."`
	Metrics bool   `help:"Enable the Prometheus /metrics endpoint."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := c.loadConfig(cli.Config)
	if err != nil {
		return err
	}

	obs, err := observability.NewManager(ctx, cfg.Observability, serviceName, claudea2a.Version)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Observability shutdown error", "error", err)
		}
	}()

	serverOpts := []server.HTTPServerOption{server.WithObservability(obs)}
	taskStore, err := task.NewFromConfig(ctx, cfg.TaskStore)
	if err != nil {
		return fmt.Errorf("failed to create task store: %w", err)
	}
	// NewFromConfig returns a nil *SQLStore for the memory backend; it must
	// not reach the handler as a non-nil interface.
	if taskStore != nil {
		defer taskStore.Close()
		serverOpts = append(serverOpts, server.WithTaskStore(taskStore))
		slog.Info("Task persistence enabled", "driver", cfg.TaskStore.Driver)
	}

	factory, err := session.NewFactory(cfg.Claude)
	if err != nil {
		return err
	}
	sessions, err := session.NewStore(factory,
		session.WithCapacity(cfg.Sessions.MaxSessions),
		session.WithRecorder(obs.Metrics()),
	)
	if err != nil {
		return err
	}
	defer sessions.Close()

	executor := server.NewExecutor(server.ExecutorConfig{
		Sessions: sessions,
		Metrics:  obs.Metrics(),
		Tracer:   obs.Tracer("executor"),
	})
	srv := server.NewHTTPServer(cfg, executor, serverOpts...)

	if c.Watch {
		if cli.Config == "" {
			slog.Warn("--watch needs --config, ignoring")
		} else if err := config.Watch(ctx, cli.Config, func(next *config.Config) {
			srv.UpdateAgent(next.Agent)
		}); err != nil {
			return err
		}
	}

	printServeInfo(cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})

	if cfg.Heartbeat.Enabled() {
		reporter := heartbeat.NewReporter(heartbeat.ReporterConfig{
			URL:           cfg.Heartbeat.URL,
			Interval:      time.Duration(cfg.Heartbeat.IntervalSeconds) * time.Second,
			AgentName:     func() string { return srv.Card().Name },
			SelfURL:       heartbeat.SelfURL(cfg.Heartbeat, cfg.Server.Port, os.LookupEnv),
			ContainerHost: heartbeat.ContainerHost(os.LookupEnv),
			Metrics:       obs.Metrics(),
			Tracer:        obs.Tracer("heartbeat"),
		})
		g.Go(func() error {
			return reporter.Run(gctx)
		})
	} else {
		slog.Info("Heartbeat disabled (no heartbeat URL)")
	}

	err = g.Wait()
	slog.Info("Server stopped")
	return err
}

func (c *ServeCmd) loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if path != "" {
		slog.Info("Loaded configuration", "path", path)
	}

	if c.Port == 0 && c.Backend == "" && !c.Metrics {
		return cfg, nil
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.Backend != "" {
		cfg.Claude.Backend = c.Backend
	}
	if c.Metrics {
		cfg.Observability.Metrics.Enabled = true
	}
	// Flags may change defaults that depend on them, e.g. the API model.
	// Env is not re-applied so flags keep precedence.
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func printServeInfo(cfg *config.Config) {
	green := color.New(color.FgGreen, color.Bold)
	base := fmt.Sprintf("http://localhost:%d", cfg.Server.Port)

	fmt.Println()
	green.Printf("%s is ready (%s %s)\n", cfg.Agent.Name, serviceName, claudea2a.Version)
	fmt.Printf("   Agent Card:  %s/.well-known/agent-card.json\n", base)
	fmt.Printf("   JSON-RPC:    %s/\n", base)
	fmt.Printf("   Health:      %s/health\n", base)
	fmt.Printf("   Backend:     %s\n", cfg.Claude.Backend)
	fmt.Printf("   Sessions:    up to %d\n", cfg.Sessions.MaxSessions)
	if cfg.TaskStore.Backend == config.TaskStoreSQL {
		fmt.Printf("   Tasks:       %s (%s)\n", cfg.TaskStore.Driver, redactDSN(cfg.TaskStore.DSN))
	} else {
		fmt.Printf("   Tasks:       in-memory (not persisted)\n")
	}
	if cfg.Observability.Metrics.Enabled {
		fmt.Printf("   Metrics:     %s/metrics\n", base)
	}
	if cfg.Observability.Tracing.Enabled {
		fmt.Printf("   Tracing:     %s (%s)\n", cfg.Observability.Tracing.Exporter, cfg.Observability.Tracing.Endpoint)
	}
	if cfg.Heartbeat.Enabled() {
		fmt.Printf("   Heartbeat:   %s every %ds\n", cfg.Heartbeat.URL, cfg.Heartbeat.IntervalSeconds)
	}
	fmt.Println("\nPress Ctrl+C to stop")
}

var dsnPassword = regexp.MustCompile(`(?i)(password=)('[^']*'|\S+)`)

// redactDSN hides credentials in URL, user:pass@ and key=value DSNs.
func redactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		return u.Redacted()
	}
	if i := strings.LastIndex(dsn, "@"); i >= 0 {
		return "***" + dsn[i:]
	}
	return dsnPassword.ReplaceAllString(dsn, "${1}***")
}
