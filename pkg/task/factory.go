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

package task

import (
	"context"
	"fmt"

	"github.com/kadirpekel/claude-a2a/pkg/config"
)

// NewFromConfig opens the configured task store. It returns nil for the
// memory backend, in which case the A2A handler uses its own in-memory store.
//
// Example config:
//
//	task_store:
//	  backend: sql
//	  driver: sqlite
//	  dsn: ./tasks.db
func NewFromConfig(ctx context.Context, cfg config.TaskStoreConfig) (*SQLStore, error) {
	switch cfg.Backend {
	case "", config.TaskStoreMemory:
		return nil, nil
	case config.TaskStoreSQL:
		return Open(ctx, cfg.Driver, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown task store backend: %s", cfg.Backend)
	}
}
