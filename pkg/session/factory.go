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

package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/claude-a2a/pkg/claude"
	"github.com/kadirpekel/claude-a2a/pkg/config"
)

// NewFactory returns the Factory for the configured backend. Every session
// shares the same prompt, permission mode and working directory.
func NewFactory(cfg config.ClaudeConfig) (Factory, error) {
	switch cfg.Backend {
	case "", config.BackendCLI:
		opts := claude.Options{
			Binary:         cfg.Binary,
			SystemPrompt:   cfg.SystemPrompt,
			PermissionMode: cfg.PermissionMode,
			WorkDir:        cfg.WorkDir,
			Model:          cfg.Model,
		}
		return func(ctx context.Context, contextID string) (claude.Session, error) {
			p := claude.NewCLIProcess(opts)
			if err := p.Connect(ctx); err != nil {
				return nil, err
			}
			slog.Debug("Claude CLI session started", "context_id", contextID)
			return p, nil
		}, nil

	case config.BackendAPI:
		opts := claude.APIOptions{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			MaxTokens:    int64(cfg.MaxTokens),
			SystemPrompt: cfg.SystemPrompt,
		}
		return func(_ context.Context, contextID string) (claude.Session, error) {
			slog.Debug("Claude API session started", "context_id", contextID, "model", opts.Model)
			return claude.NewAPISession(opts), nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown claude backend: %s", cfg.Backend)
	}
}
