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

package heartbeat

import (
	"fmt"
	"os"
	"strings"

	"github.com/kadirpekel/claude-a2a/pkg/config"
)

// ContainerHost returns $HOSTNAME, falling back to the OS hostname. Docker
// sets HOSTNAME to the container id, which its DNS resolves on the network.
func ContainerHost(lookup config.LookupFunc) string {
	if v, ok := lookup("HOSTNAME"); ok && v != "" {
		return v
	}
	host, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return host
}

// SelfURL returns the base URL other services use to reach this server.
// An explicit self_url wins; otherwise the host is self_host or the
// container host and the port is self_port or serverPort.
func SelfURL(cfg config.HeartbeatConfig, serverPort int, lookup config.LookupFunc) string {
	if cfg.SelfURL != "" {
		return strings.TrimRight(cfg.SelfURL, "/") + "/"
	}

	host := cfg.SelfHost
	if host == "" {
		host = ContainerHost(lookup)
	}
	port := cfg.SelfPort
	if port == 0 {
		port = serverPort
	}
	return fmt.Sprintf("http://%s:%d/", host, port)
}
