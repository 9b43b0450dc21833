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

// Package launcher scales agent containers with docker compose and reports
// where each instance is published.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"

	"github.com/fatih/color"
)

// Defaults match the compose file shipped with the repository.
const (
	DefaultService     = "claude-agent"
	DefaultPrivatePort = 9999
)

// ErrInvalidScale is returned for a scale below one.
var ErrInvalidScale = errors.New("scale must be a positive integer")

// Compose is the slice of docker compose the launcher needs.
type Compose interface {
	// Up starts service with scale replicas in the background.
	Up(ctx context.Context, service string, scale int) error
	// Port returns the published address of privatePort on replica index
	// (1-based).
	Port(ctx context.Context, service string, privatePort, index int) (string, error)
}

// Launcher scales one service and prints its port mappings.
type Launcher struct {
	Compose     Compose
	Service     string
	PrivatePort int
	Out         io.Writer
}

// Launch validates scale, brings the replicas up and prints one mapping line
// per replica. Port lookups that fail print a placeholder; only a failed
// Up is an error.
func (l *Launcher) Launch(ctx context.Context, scale int) error {
	if scale < 1 {
		return fmt.Errorf("%w, got: %d", ErrInvalidScale, scale)
	}

	service := l.Service
	if service == "" {
		service = DefaultService
	}
	privatePort := l.PrivatePort
	if privatePort == 0 {
		privatePort = DefaultPrivatePort
	}

	fmt.Fprintf(l.Out, "Launching %d %s instances...\n", scale, service)

	if err := l.Compose.Up(ctx, service, scale); err != nil {
		return fmt.Errorf("error running docker compose: %w", err)
	}

	fmt.Fprintln(l.Out)
	fmt.Fprintln(l.Out, color.New(color.Bold).Sprint("Port mappings:"))

	for i := 1; i <= scale; i++ {
		addr, err := l.Compose.Port(ctx, service, privatePort, i)
		if err != nil {
			slog.Debug("Port lookup failed", "service", service, "index", i, "error", err)
			fmt.Fprintf(l.Out, "%s_%d -> %s\n", service, i, color.New(color.FgYellow).Sprint("(port not found)"))
			continue
		}
		fmt.Fprintf(l.Out, "%s_%d -> %s\n", service, i, addr)
	}
	return nil
}

// parsePortOutput validates the "host:port" line printed by
// `docker compose port`.
func parsePortOutput(out string) (string, error) {
	host, port, err := net.SplitHostPort(out)
	if err != nil {
		return "", fmt.Errorf("unexpected port output %q: %w", out, err)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("unexpected port %q: %w", port, err)
	}
	return net.JoinHostPort(host, port), nil
}
