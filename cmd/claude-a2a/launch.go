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
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/claude-a2a/pkg/launcher"
)

// LaunchCmd scales agent containers with docker compose.
type LaunchCmd struct {
	Scale       int      `help:"Number of instances to launch." default:"1"`
	Service     string   `help:"Compose service to scale." default:"claude-agent"`
	PrivatePort int      `name:"private-port" help:"Container port whose mapping is printed." default:"9999"`
	File        []string `short:"f" help:"Compose files (default: compose's own lookup)." type:"existingfile"`
	ProjectDir  string   `name:"project-dir" help:"Directory to run compose in." type:"existingdir"`
}

func (c *LaunchCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l := &launcher.Launcher{
		Compose: &launcher.DockerCompose{
			Files:  c.File,
			Dir:    c.ProjectDir,
			Stdout: os.Stdout,
			Stderr: os.Stderr,
		},
		Service:     c.Service,
		PrivatePort: c.PrivatePort,
		Out:         os.Stdout,
	}
	return l.Launch(ctx, c.Scale)
}
