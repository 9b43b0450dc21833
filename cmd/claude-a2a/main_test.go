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
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/claude-a2a/pkg/launcher"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Name("claude-a2a"))
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	return cli, ctx
}

func TestParseDefaults(t *testing.T) {
	cli, ctx := parse(t, "launch")
	assert.Equal(t, "launch", ctx.Command())
	assert.Equal(t, 1, cli.Launch.Scale)
	assert.Equal(t, launcher.DefaultService, cli.Launch.Service)
	assert.Equal(t, launcher.DefaultPrivatePort, cli.Launch.PrivatePort)
}

func TestParseEnvFallbacks(t *testing.T) {
	t.Setenv("A2A_URL", "http://agent:9999")
	t.Setenv("HEARTBEAT_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")

	cli, _ := parse(t, "chat")
	assert.Equal(t, "http://agent:9999", cli.Chat.URL)
	assert.Equal(t, "debug", cli.LogLevel)

	cli, _ = parse(t, "heartbeat-receiver")
	assert.Equal(t, 9090, cli.HeartbeatReceiver.Port)
}

func TestLaunchRejectsNonPositiveScale(t *testing.T) {
	for _, scale := range []string{"0", "-2"} {
		cli, ctx := parse(t, "launch", "--scale="+scale)
		err := ctx.Run(cli)
		assert.ErrorIs(t, err, launcher.ErrInvalidScale)
	}
}

func TestInitLoggerRejectsBadLevel(t *testing.T) {
	_, err := initLogger("loud", "", "")
	assert.Error(t, err)

	cleanup, err := initLogger("debug", "", "")
	require.NoError(t, err)
	assert.Nil(t, cleanup)
}

func TestRedactDSN(t *testing.T) {
	tests := []struct {
		dsn, want string
	}{
		{"postgres://agent:s3cret@db:5432/tasks?sslmode=disable", "postgres://agent:xxxxx@db:5432/tasks?sslmode=disable"},
		{"agent:s3cret@tcp(db:3306)/tasks", "***@tcp(db:3306)/tasks"},
		{"host=db user=agent password=s3cret dbname=tasks", "host=db user=agent password=*** dbname=tasks"},
		{"./tasks.db", "./tasks.db"},
	}
	for _, tt := range tests {
		got := redactDSN(tt.dsn)
		assert.Equal(t, tt.want, got)
		assert.NotContains(t, got, "s3cret")
	}
}
