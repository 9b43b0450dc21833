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

// Package claudea2a exposes a Claude coding agent over the A2A
// (Agent-to-Agent) protocol and ships the tooling around it.
//
// The claude-a2a binary has these commands:
//
//	claude-a2a serve                  # A2A server backed by Claude sessions
//	claude-a2a chat --url URL         # interactive A2A client
//	claude-a2a heartbeat-receiver     # liveness monitor for served agents
//	claude-a2a launch --scale 3       # scale agents with docker compose
//	claude-a2a schema                 # JSON Schema of the config file
//
// # Server
//
// Each A2A context id gets its own Claude session (a Claude Code CLI
// process or, with backend "api", an in-memory Messages API conversation).
// Sessions live in a bounded LRU cache and are closed on eviction.
//
// A minimal config:
//
//	agent:
//	  name: Coder
//	  description: Writes Python
//	claude:
//	  system_prompt: You are an expert Python developer
//	  permission_mode: acceptEdits
//	heartbeat:
//	  url: ${HEARTBEAT_URL:-}
//
// See pkg/config for every option and `claude-a2a schema` for the schema.
package claudea2a
