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

package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
)

// APIOptions configures an APISession.
type APIOptions struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int64
	SystemPrompt string
}

// APISession is a Session that keeps the conversation in memory and calls
// the Messages API once per turn. It has no tools; it answers in text only.
type APISession struct {
	sync.Mutex

	client anthropic.Client
	opts   APIOptions
	id     string

	mu      sync.Mutex
	history []anthropic.MessageParam
	pending []*Message
	closed  bool
}

// NewAPISession builds a session for the given options.
func NewAPISession(opts APIOptions) *APISession {
	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &APISession{
		client: anthropic.NewClient(reqOpts...),
		opts:   opts,
		id:     uuid.NewString(),
	}
}

// Query sends the prompt with the accumulated history and buffers the
// reply for ReceiveResponse.
func (s *APISession) Query(ctx context.Context, prompt string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	conv := append(append([]anthropic.MessageParam(nil), s.history...),
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))
	s.mu.Unlock()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.opts.Model),
		MaxTokens: s.opts.MaxTokens,
		Messages:  conv,
	}
	if s.opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: s.opts.SystemPrompt}}
	}

	start := time.Now()
	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return fmt.Errorf("messages API call failed: %w", err)
	}

	var texts []string
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok && tb.Text != "" {
			texts = append(texts, tb.Text)
		}
	}

	raw, _ := json.Marshal(resp)
	assistant := &Message{Type: TypeAssistant, SessionID: s.id, Message: raw}
	result := &Message{
		Type:       TypeResult,
		Subtype:    "success",
		SessionID:  s.id,
		Result:     strings.Join(texts, "\n"),
		IsError:    resp.StopReason == "refusal",
		NumTurns:   1,
		DurationMS: time.Since(start).Milliseconds(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(conv, resp.ToParam())
	s.pending = []*Message{assistant, result}
	return nil
}

// ReceiveResponse drains the reply buffered by the last Query.
func (s *APISession) ReceiveResponse(ctx context.Context) iter.Seq2[*Message, error] {
	return func(yield func(*Message, error) bool) {
		s.mu.Lock()
		pending := s.pending
		s.pending = nil
		closed := s.closed
		s.mu.Unlock()

		if closed {
			yield(nil, ErrSessionClosed)
			return
		}
		for _, msg := range pending {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// Close drops the conversation.
func (s *APISession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.history = nil
	s.pending = nil
	return nil
}
