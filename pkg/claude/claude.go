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

// Package claude drives a Claude coding agent conversation.
//
// Two backends implement Session: CLIProcess runs the Claude Code CLI in
// stream-json mode and keeps it alive across turns, APISession talks to the
// Messages API directly. Invoke is the single entry point the server uses.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
)

// Message types emitted by the agent stream.
const (
	TypeSystem    = "system"
	TypeAssistant = "assistant"
	TypeUser      = "user"
	TypeResult    = "result"
)

var (
	// ErrNoResult is returned when a response stream ends without a result message.
	ErrNoResult = errors.New("agent response ended without a result")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// Message is one line of the agent's JSON stream. Only result messages
// carry the Result* fields.
type Message struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`

	Result       string  `json:"result,omitempty"`
	IsError      bool    `json:"is_error,omitempty"`
	NumTurns     int     `json:"num_turns,omitempty"`
	DurationMS   int64   `json:"duration_ms,omitempty"`
	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`
}

// IsResult reports whether m terminates a turn.
func (m *Message) IsResult() bool {
	return m != nil && m.Type == TypeResult
}

// Session is a live agent conversation. A session handles one turn at a
// time: callers hold the lock from Query until the response is drained.
type Session interface {
	sync.Locker

	// Query sends a user prompt into the conversation.
	Query(ctx context.Context, prompt string) error
	// ReceiveResponse yields messages of the current turn, ending after the
	// result message.
	ReceiveResponse(ctx context.Context) iter.Seq2[*Message, error]
	// Close releases the underlying process or connection.
	Close() error
}

// Invoke sends text into s, drains the turn and returns the result text.
// Errors from the session are returned unchanged; there is no retry.
func Invoke(ctx context.Context, s Session, text string) (string, error) {
	s.Lock()
	defer s.Unlock()

	if err := s.Query(ctx, text); err != nil {
		return "", err
	}

	var messages []*Message
	for msg, err := range s.ReceiveResponse(ctx) {
		if err != nil {
			return "", err
		}
		messages = append(messages, msg)
	}

	if len(messages) == 0 {
		return "", ErrNoResult
	}
	last := messages[len(messages)-1]
	if !last.IsResult() {
		return "", fmt.Errorf("%w: last message has type %q", ErrNoResult, last.Type)
	}
	if last.IsError {
		slog.Warn("Agent turn finished with an error result",
			"session_id", last.SessionID, "subtype", last.Subtype, "turns", last.NumTurns)
	}
	slog.Debug("Agent turn complete",
		"session_id", last.SessionID,
		"messages", len(messages),
		"turns", last.NumTurns,
		"duration_ms", last.DurationMS,
		"cost_usd", last.TotalCostUSD)
	return last.Result, nil
}
