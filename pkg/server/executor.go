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

// Package server exposes a Claude coding agent over the A2A protocol.
//
// Executor answers each inbound message by forwarding its text to the agent
// session bound to the message's context id; HTTPServer serves the A2A
// JSON-RPC endpoint together with a per-request agent card and health
// routes.
//
// # Usage
//
//	store, _ := session.NewStore(factory)
//	exec := server.NewExecutor(server.ExecutorConfig{Sessions: store})
//	srv := server.NewHTTPServer(cfg, exec)
//	_ = srv.Start(ctx)
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kadirpekel/claude-a2a/pkg/claude"
	"github.com/kadirpekel/claude-a2a/pkg/observability"
)

var (
	// ErrMessageRequired is returned when a request carries no message.
	ErrMessageRequired = errors.New("message is required")
	// ErrNoTextPart is returned when a message has no text part.
	ErrNoTextPart = errors.New("message has no text part")
	// ErrCancelNotSupported is returned by Cancel.
	ErrCancelNotSupported = errors.New("cancel not supported")
)

// SessionProvider hands out the agent session for a context id.
type SessionProvider interface {
	GetOrCreate(ctx context.Context, contextID string) (claude.Session, error)
	// Remove drops and closes the session for contextID.
	Remove(contextID string) bool
}

// ExecutorConfig contains the configuration for the A2A executor.
type ExecutorConfig struct {
	// Sessions supplies one agent session per context id.
	Sessions SessionProvider

	// Metrics and Tracer are optional.
	Metrics *observability.Metrics
	Tracer  trace.Tracer
}

// Executor implements a2asrv.AgentExecutor on top of Claude sessions.
// Each Execute writes exactly one agent message carrying the context id.
type Executor struct {
	sessions SessionProvider
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

var _ a2asrv.AgentExecutor = (*Executor)(nil)

// NewExecutor creates a new A2A executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Executor{sessions: cfg.Sessions, metrics: cfg.Metrics, tracer: tracer}
}

// Execute implements a2asrv.AgentExecutor.
func (e *Executor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) (err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, observability.SpanExecute)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.metrics.RecordExecution(ctx, time.Since(start), err)
	}()

	msg := reqCtx.Message
	if msg == nil {
		slog.Error("Execute: message not provided")
		return ErrMessageRequired
	}

	contextID := reqCtx.ContextID
	if contextID == "" {
		contextID = msg.ContextID
	}
	if contextID == "" {
		contextID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("a2a.context_id", contextID))

	text, ok := firstText(msg)
	if !ok {
		return ErrNoTextPart
	}

	slog.Info("Executing", "context_id", contextID, "task_id", reqCtx.TaskID, "chars", len(text))
	slog.Debug("Execute: message", "context_id", contextID, "text", text)

	sess, err := e.sessions.GetOrCreate(ctx, contextID)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	invokeCtx, invokeSpan := e.tracer.Start(ctx, observability.SpanInvoke)
	result, err := claude.Invoke(invokeCtx, sess, text)
	invokeSpan.End()
	if err != nil {
		slog.Error("Execute: agent invocation failed", "context_id", contextID, "error", err)
		// A cancelled turn leaves the session usable; anything else may have
		// broken it, so the next message starts a fresh one.
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			e.sessions.Remove(contextID)
		}
		return fmt.Errorf("agent invocation failed: %w", err)
	}

	reply := a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: result})
	reply.ContextID = contextID
	if err := queue.Write(ctx, reply); err != nil {
		return fmt.Errorf("failed to write reply: %w", err)
	}
	return nil
}

// Cancel implements a2asrv.AgentExecutor. In-flight agent turns cannot be
// interrupted, so cancellation is always refused.
func (e *Executor) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	return ErrCancelNotSupported
}

// firstText returns the first text part of msg.
func firstText(msg *a2a.Message) (string, bool) {
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case a2a.TextPart:
			return p.Text, true
		case *a2a.TextPart:
			if p != nil {
				return p.Text, true
			}
		}
	}
	return "", false
}
