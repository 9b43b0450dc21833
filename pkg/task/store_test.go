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
	"path/filepath"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/claude-a2a/pkg/config"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	msg := a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "write a test"})
	task := &a2a.Task{
		ID:        "task-1",
		ContextID: "ctx-1",
		Status:    a2a.TaskStatus{State: a2a.TaskStateWorking},
		History:   []*a2a.Message{msg},
		Metadata:  map[string]any{"agent": "Agent"},
	}
	require.NoError(t, s.Save(ctx, task))

	got, err := s.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "ctx-1", got.ContextID)
	assert.Equal(t, a2a.TaskStateWorking, got.Status.State)
	require.Len(t, got.History, 1)
	assert.Equal(t, "Agent", got.Metadata["agent"])
	assert.Empty(t, got.Artifacts)
}

func TestSaveUpdatesExistingTask(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	task := &a2a.Task{ID: "t", ContextID: "c", Status: a2a.TaskStatus{State: a2a.TaskStateSubmitted}}
	require.NoError(t, s.Save(ctx, task))

	task.Status.State = a2a.TaskStateCompleted
	require.NoError(t, s.Save(ctx, task))

	got, err := s.Get(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, got.Status.State)
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, a2a.ErrTaskNotFound)
}

func TestSaveNil(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.Save(context.Background(), nil))
}

func TestNormalizeDialect(t *testing.T) {
	for in, want := range map[string]string{
		"sqlite3":    DialectSQLite,
		"SQLite":     DialectSQLite,
		"postgresql": DialectPostgres,
		"mysql":      DialectMySQL,
	} {
		got, err := NormalizeDialect(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := NormalizeDialect("oracle")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	my := &SQLStore{dialect: DialectMySQL}
	assert.Equal(t, "a = ?", my.rebind("a = ?"))
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()

	s, err := NewFromConfig(ctx, config.TaskStoreConfig{Backend: config.TaskStoreMemory})
	require.NoError(t, err)
	assert.Nil(t, s)

	dsn := filepath.Join(t.TempDir(), "tasks.db")
	s, err = NewFromConfig(ctx, config.TaskStoreConfig{Backend: config.TaskStoreSQL, Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	require.NotNil(t, s)
	require.NoError(t, s.Save(ctx, &a2a.Task{ID: "x", ContextID: "y"}))
	require.NoError(t, s.Close())

	// reopen: the task survives
	s, err = NewFromConfig(ctx, config.TaskStoreConfig{Backend: config.TaskStoreSQL, Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "y", got.ContextID)

	_, err = NewFromConfig(ctx, config.TaskStoreConfig{Backend: "redis"})
	assert.Error(t, err)
}
