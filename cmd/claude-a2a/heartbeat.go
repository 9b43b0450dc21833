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
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/kadirpekel/claude-a2a/pkg/heartbeat"
)

// HeartbeatReceiverCmd runs the heartbeat monitor.
type HeartbeatReceiverCmd struct {
	Host string `help:"Interface to listen on." default:"0.0.0.0"`
	Port int    `help:"Port to listen on." env:"HEARTBEAT_PORT" default:"8080"`
}

func (c *HeartbeatReceiverCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	return heartbeat.NewReceiver().ListenAndServe(ctx, addr)
}
