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

// Command claude-a2a serves a Claude coding agent over A2A and provides the
// client, monitor and launcher that go with it.
//
// Usage:
//
//	claude-a2a serve --config config.yaml
//	claude-a2a chat --url http://localhost:9999
//	claude-a2a heartbeat-receiver --port 8080
//	claude-a2a launch --scale 3
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	claudea2a "github.com/kadirpekel/claude-a2a"
	"github.com/kadirpekel/claude-a2a/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve             ServeCmd             `cmd:"" help:"Start the A2A server."`
	Chat              ChatCmd              `cmd:"" help:"Chat with an A2A agent."`
	HeartbeatReceiver HeartbeatReceiverCmd `cmd:"" name:"heartbeat-receiver" help:"Receive heartbeats from agents."`
	Launch            LaunchCmd            `cmd:"" help:"Launch agent containers with docker compose."`
	Schema            SchemaCmd            `cmd:"" help:"Print the JSON Schema of the config file."`
	Version           VersionCmd           `cmd:"" help:"Show version information."`

	Config    string   `short:"c" help:"Path to config file." type:"path" env:"CLAUDE_A2A_CONFIG"`
	EnvFile   []string `name:"env-file" help:"Extra .env files to load." type:"path"`
	LogLevel  string   `help:"Log level (debug, info, warn, error)." env:"LOG_LEVEL" default:"info"`
	LogFile   string   `help:"Log file path (empty = stderr)." env:"LOG_FILE"`
	LogFormat string   `help:"Log format (simple, verbose, json)." env:"LOG_FORMAT" default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(claudea2a.GetVersion())
	return nil
}

// SchemaCmd prints the config JSON Schema.
type SchemaCmd struct{}

func (c *SchemaCmd) Run() error {
	data, err := config.SchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func main() {
	// The working directory's .env may set LOG_LEVEL and friends, so it is
	// loaded before flags are parsed.
	_ = config.LoadDotEnv("")

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("claude-a2a"),
		kong.Description("Claude coding agent over the A2A protocol"),
		kong.UsageOnError(),
	)

	if err := config.LoadDotEnv(cli.Config, cli.EnvFile...); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cleanup, err := initLogger(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
