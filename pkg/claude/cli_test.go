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

package claude

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess stands in for the Claude CLI. It answers every user
// line with an assistant line and a result line echoing the prompt.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	out := json.NewEncoder(os.Stdout)
	_ = out.Encode(map[string]any{"type": "system", "subtype": "init", "session_id": "helper"})
	fmt.Fprintln(os.Stdout, "not json")

	scanner := bufio.NewScanner(os.Stdin)
	turns := 0
	for scanner.Scan() {
		var in userInput
		if err := json.Unmarshal(scanner.Bytes(), &in); err != nil {
			fmt.Fprintln(os.Stderr, "bad input:", err)
			os.Exit(2)
		}
		if in.Message.Content == "crash" {
			fmt.Fprintln(os.Stderr, "fatal: simulated crash")
			os.Exit(3)
		}
		turns++
		_ = out.Encode(map[string]any{"type": "assistant", "session_id": "helper", "message": map[string]any{"role": "assistant"}})
		_ = out.Encode(map[string]any{
			"type":       "result",
			"subtype":    "success",
			"session_id": "helper",
			"result":     "echo: " + in.Message.Content,
			"num_turns":  turns,
		})
	}
}

func newHelperProcess(t *testing.T) *CLIProcess {
	t.Helper()
	p := NewCLIProcess(Options{
		Binary:     os.Args[0],
		BinaryArgs: []string{"-test.run=TestHelperProcess", "--"},
		Env:        []string{"GO_WANT_HELPER_PROCESS=1"},
	})
	require.NoError(t, p.Connect(context.Background()))
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestCLIProcessKeepsConversationAcrossTurns(t *testing.T) {
	p := newHelperProcess(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first, err := Invoke(ctx, p, "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", first)

	second, err := Invoke(ctx, p, "again")
	require.NoError(t, err)
	assert.Equal(t, "echo: again", second)
}

func TestCLIProcessYieldsWholeTurn(t *testing.T) {
	p := newHelperProcess(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, p.Query(ctx, "hi"))

	var types []string
	for msg, err := range p.ReceiveResponse(ctx) {
		require.NoError(t, err)
		types = append(types, msg.Type)
	}
	assert.Equal(t, []string{TypeSystem, TypeAssistant, TypeResult}, types)
}

func TestCLIProcessExitSurfacesStderr(t *testing.T) {
	p := newHelperProcess(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := Invoke(ctx, p, "crash")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulated crash")
}

func TestCLIProcessSkipsCancelledTurn(t *testing.T) {
	p := newHelperProcess(t)

	turnCtx, cancelTurn := context.WithCancel(context.Background())
	require.NoError(t, p.Query(turnCtx, "first"))
	cancelTurn()
	for _, err := range p.ReceiveResponse(turnCtx) {
		if err != nil {
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	got, err := Invoke(ctx, p, "second")
	require.NoError(t, err)
	assert.Equal(t, "echo: second", got)

	got, err = Invoke(ctx, p, "third")
	require.NoError(t, err)
	assert.Equal(t, "echo: third", got)
}

func TestCLIProcessSkipsPartiallyReadTurn(t *testing.T) {
	p := newHelperProcess(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, p.Query(ctx, "first"))
	for msg, err := range p.ReceiveResponse(ctx) {
		require.NoError(t, err)
		assert.False(t, msg.IsResult())
		break
	}

	got, err := Invoke(ctx, p, "second")
	require.NoError(t, err)
	assert.Equal(t, "echo: second", got)
}

func TestCLIProcessClosed(t *testing.T) {
	for i := 0; i < 10; i++ {
		p := newHelperProcess(t)
		require.NoError(t, p.Close())
		require.NoError(t, p.Close())

		assert.ErrorIs(t, p.Query(context.Background(), "late"), ErrSessionClosed)
		for _, err := range p.ReceiveResponse(context.Background()) {
			assert.ErrorIs(t, err, ErrSessionClosed)
		}
	}
}

func TestCLIProcessStartFailure(t *testing.T) {
	p := NewCLIProcess(Options{Binary: "/nonexistent/claude"})
	assert.Error(t, p.Connect(context.Background()))
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{limit: 4}
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("def"))
	assert.Equal(t, "cdef", b.String())
}
