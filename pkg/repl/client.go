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

package repl

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"
	"github.com/a2aproject/a2a-go/a2aclient/agentcard"
)

// Client sends one user message and yields the agent's events.
type Client interface {
	Send(ctx context.Context, msg *a2a.Message, streaming bool) iter.Seq2[a2a.Event, error]
}

// Conn is a Client backed by an a2a-go client for a resolved agent card.
type Conn struct {
	card   *a2a.AgentCard
	client *a2aclient.Client
}

var _ Client = (*Conn)(nil)

// Dial resolves the agent card under baseURL and connects to the agent.
func Dial(ctx context.Context, baseURL string) (*Conn, error) {
	slog.Debug("Resolving agent card", "url", baseURL)

	card, err := agentcard.DefaultResolver.Resolve(ctx, baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve agent card from %s: %w", baseURL, err)
	}

	client, err := a2aclient.NewFromCard(ctx, card)
	if err != nil {
		return nil, fmt.Errorf("failed to create A2A client: %w", err)
	}
	return &Conn{card: card, client: client}, nil
}

// AgentName returns the name on the agent card.
func (c *Conn) AgentName() string {
	return c.card.Name
}

// Send streams the response when streaming is set and the agent supports
// it; otherwise it yields the single blocking response.
func (c *Conn) Send(ctx context.Context, msg *a2a.Message, streaming bool) iter.Seq2[a2a.Event, error] {
	params := &a2a.MessageSendParams{Message: msg}
	if streaming && c.card.Capabilities.Streaming {
		return c.client.SendStreamingMessage(ctx, params)
	}

	return func(yield func(a2a.Event, error) bool) {
		result, err := c.client.SendMessage(ctx, params)
		if err != nil {
			yield(nil, err)
			return
		}
		switch v := result.(type) {
		case *a2a.Message:
			yield(v, nil)
		case *a2a.Task:
			yield(v, nil)
		default:
			yield(nil, fmt.Errorf("unexpected response type %T", result))
		}
	}
}

// Close releases the underlying transport.
func (c *Conn) Close() error {
	return c.client.Destroy()
}
