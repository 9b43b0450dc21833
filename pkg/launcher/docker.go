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

package launcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// DockerCompose runs the docker compose CLI.
type DockerCompose struct {
	// Binary defaults to "docker"; BaseArgs defaults to ["compose"].
	Binary   string
	BaseArgs []string
	// Files are passed as -f flags; empty uses compose's own lookup.
	Files []string
	// Dir is the working directory for every invocation.
	Dir string
	// Env is appended to the inherited environment.
	Env []string

	// Stdout and Stderr receive the output of `up`.
	Stdout io.Writer
	Stderr io.Writer
}

var _ Compose = (*DockerCompose)(nil)

func (d *DockerCompose) command(ctx context.Context, args ...string) *exec.Cmd {
	binary := d.Binary
	if binary == "" {
		binary = "docker"
	}
	base := d.BaseArgs
	if base == nil {
		base = []string{"compose"}
	}

	full := append([]string{}, base...)
	for _, f := range d.Files {
		full = append(full, "-f", f)
	}
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, binary, full...)
	cmd.Dir = d.Dir
	if len(d.Env) > 0 {
		cmd.Env = append(os.Environ(), d.Env...)
	}
	slog.Debug("Running compose", "binary", binary, "args", full)
	return cmd
}

// Up implements Compose.
func (d *DockerCompose) Up(ctx context.Context, service string, scale int) error {
	var stderr bytes.Buffer
	cmd := d.command(ctx, "up", "--detach", "--scale", service+"="+strconv.Itoa(scale))
	cmd.Stdout = d.Stdout
	cmd.Stderr = &stderr
	if d.Stderr != nil {
		cmd.Stderr = io.MultiWriter(d.Stderr, &stderr)
	}

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("compose up: %w: %s", err, lastLine(msg))
		}
		return fmt.Errorf("compose up: %w", err)
	}
	return nil
}

// Port implements Compose.
func (d *DockerCompose) Port(ctx context.Context, service string, privatePort, index int) (string, error) {
	cmd := d.command(ctx, "port", "--index", strconv.Itoa(index), service, strconv.Itoa(privatePort))
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("compose port: %w", err)
	}
	line := strings.TrimSpace(string(out))
	if line == "" || line == ":0" {
		return "", fmt.Errorf("compose port: %s_%d does not publish %d", service, index, privatePort)
	}
	return parsePortOutput(line)
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
