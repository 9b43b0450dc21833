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
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/kadirpekel/claude-a2a/pkg/repl"
)

// ChatCmd runs the interactive A2A client.
type ChatCmd struct {
	URL      string `help:"Agent base URL." env:"A2A_URL" default:"http://localhost:9999"`
	Stream   bool   `help:"Start in streaming mode."`
	Debug    bool   `help:"Start in debug mode."`
	NoFormat bool   `name:"no-format" help:"Print agent replies without markdown rendering."`
}

func (c *ChatCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	colorize := term.IsTerminal(int(os.Stdout.Fd()))
	dim := color.New(color.Faint)
	red := color.New(color.FgRed)
	if !colorize {
		dim.DisableColor()
		red.DisableColor()
	}

	fmt.Println(dim.Sprintf("Connecting to %s...", c.URL))
	conn, err := repl.Dial(ctx, c.URL)
	if err != nil {
		fmt.Println(red.Sprintf("Connection failed: %v", err))
		return err
	}
	defer conn.Close()

	r := repl.New(conn, conn.AgentName(), os.Stdout, repl.Options{
		Streaming: c.Stream,
		Debug:     c.Debug,
		NoFormat:  c.NoFormat,
		Color:     colorize,
	})
	r.Welcome()
	return r.Run(ctx, os.Stdin)
}
