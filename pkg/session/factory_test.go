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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/claude-a2a/pkg/claude"
	"github.com/kadirpekel/claude-a2a/pkg/config"
)

func TestNewFactoryAPIBackend(t *testing.T) {
	factory, err := NewFactory(config.ClaudeConfig{Backend: config.BackendAPI, APIKey: "k", Model: "m", MaxTokens: 10})
	require.NoError(t, err)

	s, err := factory(context.Background(), "ctx")
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &claude.APISession{}, s)
}

func TestNewFactoryCLIStartFailure(t *testing.T) {
	factory, err := NewFactory(config.ClaudeConfig{Backend: config.BackendCLI, Binary: "/nonexistent/claude"})
	require.NoError(t, err)

	_, err = factory(context.Background(), "ctx")
	assert.Error(t, err)

	store, err := NewStore(factory)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.GetOrCreate(context.Background(), "ctx")
	assert.Error(t, err)
	assert.Zero(t, store.Len())
}

func TestNewFactoryUnknownBackend(t *testing.T) {
	_, err := NewFactory(config.ClaudeConfig{Backend: "grpc"})
	assert.Error(t, err)
}
