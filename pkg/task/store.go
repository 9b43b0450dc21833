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

// Package task persists A2A tasks in a SQL database so they survive server
// restarts. Without it the A2A handler keeps tasks in memory.
package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

const schemaTimeout = 30 * time.Second

var schema = []string{
	`CREATE TABLE IF NOT EXISTS a2a_tasks (
    id VARCHAR(255) PRIMARY KEY,
    context_id VARCHAR(255) NOT NULL,
    status_json TEXT NOT NULL,
    history_json TEXT,
    artifacts_json TEXT,
    metadata_json TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_a2a_tasks_context_id ON a2a_tasks(context_id)`,
}

const insertColumns = `INSERT INTO a2a_tasks (id, context_id, status_json, history_json, artifacts_json, metadata_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

var upsertClause = map[string]string{
	DialectSQLite: `
ON CONFLICT(id) DO UPDATE SET
    context_id = excluded.context_id,
    status_json = excluded.status_json,
    history_json = excluded.history_json,
    artifacts_json = excluded.artifacts_json,
    metadata_json = excluded.metadata_json,
    updated_at = excluded.updated_at`,
	DialectPostgres: `
ON CONFLICT (id) DO UPDATE SET
    context_id = EXCLUDED.context_id,
    status_json = EXCLUDED.status_json,
    history_json = EXCLUDED.history_json,
    artifacts_json = EXCLUDED.artifacts_json,
    metadata_json = EXCLUDED.metadata_json,
    updated_at = EXCLUDED.updated_at`,
	DialectMySQL: `
ON DUPLICATE KEY UPDATE
    context_id = VALUES(context_id),
    status_json = VALUES(status_json),
    history_json = VALUES(history_json),
    artifacts_json = VALUES(artifacts_json),
    metadata_json = VALUES(metadata_json),
    updated_at = VALUES(updated_at)`,
}

// SQLStore implements a2asrv.TaskStore on database/sql. Status, history,
// artifacts and metadata are stored as JSON columns.
type SQLStore struct {
	db      *sql.DB
	dialect string
	ownsDB  bool
}

var _ a2asrv.TaskStore = (*SQLStore)(nil)

// NormalizeDialect maps driver aliases to a dialect name.
func NormalizeDialect(driver string) (string, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	case "mysql":
		return DialectMySQL, nil
	default:
		return "", fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", driver)
	}
}

func driverName(dialect string) string {
	if dialect == DialectSQLite {
		return "sqlite3"
	}
	return dialect
}

// Open connects to the database and prepares the schema. The returned
// store closes the connection on Close.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	dialect, err := NormalizeDialect(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// SQLite serializes writers; one connection avoids "database is locked".
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialect, err)
	}

	s, err := NewSQLStore(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewSQLStore wraps an existing connection. The caller keeps ownership of db.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	d, err := NormalizeDialect(dialect)
	if err != nil {
		return nil, err
	}

	s := &SQLStore{db: db, dialect: d}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, schemaTimeout)
	defer cancel()

	for _, stmt := range schema {
		if s.dialect == DialectMySQL && strings.HasPrefix(stmt, "CREATE INDEX") {
			// MySQL has no CREATE INDEX IF NOT EXISTS; the index is declared
			// inline below.
			continue
		}
		if s.dialect == DialectMySQL && strings.HasPrefix(stmt, "CREATE TABLE") {
			stmt = strings.TrimSuffix(stmt, "\n)") + ",\n    INDEX idx_a2a_tasks_context_id (context_id)\n)"
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Save inserts or updates a task. created_at is kept on update.
func (s *SQLStore) Save(ctx context.Context, task *a2a.Task) error {
	if task == nil {
		return fmt.Errorf("task is required")
	}

	status, err := json.Marshal(task.Status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	history, err := marshalOr(task.History, len(task.History) == 0, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	artifacts, err := marshalOr(task.Artifacts, len(task.Artifacts) == 0, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal artifacts: %w", err)
	}
	metadata, err := marshalOr(task.Metadata, len(task.Metadata) == 0, "{}")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now().UTC()
	query := s.rebind(insertColumns + upsertClause[s.dialect])
	if _, err := s.db.ExecContext(ctx, query,
		string(task.ID), task.ContextID, string(status),
		history, artifacts, metadata, now, now,
	); err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}

	slog.Debug("Task saved", "task_id", task.ID, "context_id", task.ContextID, "state", task.Status.State)
	return nil
}

// Get loads a task, returning a2a.ErrTaskNotFound when absent.
func (s *SQLStore) Get(ctx context.Context, taskID a2a.TaskID) (*a2a.Task, error) {
	query := s.rebind(`SELECT id, context_id, status_json, history_json, artifacts_json, metadata_json
FROM a2a_tasks WHERE id = ?`)

	var (
		id, contextID, status        string
		history, artifacts, metadata sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, string(taskID)).
		Scan(&id, &contextID, &status, &history, &artifacts, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, a2a.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task %s: %w", taskID, err)
	}

	task := &a2a.Task{
		ID:        a2a.TaskID(id),
		ContextID: contextID,
		History:   []*a2a.Message{},
		Artifacts: []*a2a.Artifact{},
	}
	if err := json.Unmarshal([]byte(status), &task.Status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	if err := unmarshalIfSet(history, &task.History); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	if err := unmarshalIfSet(artifacts, &task.Artifacts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifacts: %w", err)
	}
	if err := unmarshalIfSet(metadata, &task.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return task, nil
}

// Close releases the connection if the store opened it.
func (s *SQLStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func marshalOr(v any, empty bool, fallback string) (string, error) {
	if empty {
		return fallback, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalIfSet(col sql.NullString, dst any) error {
	if !col.Valid || col.String == "" || col.String == "[]" || col.String == "{}" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dst)
}
