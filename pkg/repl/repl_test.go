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

package repl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient replays scripted events and records what was sent.
type fakeClient struct {
	sent      []*a2a.Message
	streaming []bool
	events    func(msg *a2a.Message) []a2a.Event
	err       error
}

func (f *fakeClient) Send(_ context.Context, msg *a2a.Message, streaming bool) iter.Seq2[a2a.Event, error] {
	f.sent = append(f.sent, msg)
	f.streaming = append(f.streaming, streaming)
	return func(yield func(a2a.Event, error) bool) {
		if f.events != nil {
			for _, ev := range f.events(msg) {
				if !yield(ev, nil) {
					return
				}
			}
		}
		if f.err != nil {
			yield(nil, f.err)
		}
	}
}

func agentReply(contextID, text string) *a2a.Message {
	msg := a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: text})
	msg.ContextID = contextID
	return msg
}

func textArtifact(text string) *a2a.Artifact {
	return &a2a.Artifact{Parts: []a2a.Part{a2a.TextPart{Text: text}}}
}

func TestSendWithoutClient(t *testing.T) {
	var out bytes.Buffer
	r := New(nil, "", &out, Options{})

	assert.ErrorIs(t, r.Send(context.Background(), "hello"), ErrNotConnected)

	assert.False(t, r.HandleLine(context.Background(), "hello"))
	assert.Contains(t, out.String(), "Error: client not connected")
}

func TestTogglesFlipOnlyTheirFlag(t *testing.T) {
	type flags struct{ stream, debug, format bool }
	tests := []struct {
		command string
		want    flags
	}{
		{"/stream", flags{true, false, true}},
		{"/debug", flags{false, true, true}},
		{"/format", flags{false, false, false}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			client := &fakeClient{}
			r := New(client, "", &bytes.Buffer{}, Options{})

			assert.False(t, r.HandleLine(context.Background(), tt.command))
			assert.Equal(t, tt.want, flags{r.Streaming(), r.Debug(), r.Formatting()})
			assert.Empty(t, client.sent)

			r.HandleLine(context.Background(), tt.command)
			assert.Equal(t, flags{false, false, true}, flags{r.Streaming(), r.Debug(), r.Formatting()})
		})
	}
}

func TestQuitCommands(t *testing.T) {
	for _, cmd := range []string{"/quit", "/exit"} {
		var out bytes.Buffer
		r := New(&fakeClient{}, "", &out, Options{})
		assert.True(t, r.HandleLine(context.Background(), cmd))
		assert.Contains(t, out.String(), "Goodbye!")
	}
}

func TestUnknownCommandIsLocal(t *testing.T) {
	var out bytes.Buffer
	client := &fakeClient{}
	r := New(client, "", &out, Options{})

	assert.False(t, r.HandleLine(context.Background(), "/nope"))
	assert.Contains(t, out.String(), "Unknown command /nope")
	assert.Empty(t, client.sent)
}

func TestContextIDAdoptedOnceAndCleared(t *testing.T) {
	ids := []string{"ctx-1", "ctx-2", "ctx-3"}
	call := 0
	client := &fakeClient{events: func(*a2a.Message) []a2a.Event {
		id := ids[call]
		call++
		return []a2a.Event{agentReply(id, "ok")}
	}}
	r := New(client, "", &bytes.Buffer{}, Options{})
	ctx := context.Background()

	require.NoError(t, r.Send(ctx, "one"))
	assert.Equal(t, "ctx-1", r.ContextID())
	assert.Empty(t, client.sent[0].ContextID)

	require.NoError(t, r.Send(ctx, "two"))
	assert.Equal(t, "ctx-1", r.ContextID(), "later replies must not overwrite")
	assert.Equal(t, "ctx-1", client.sent[1].ContextID)

	r.HandleLine(ctx, "/clear")
	assert.Empty(t, r.ContextID())

	require.NoError(t, r.Send(ctx, "three"))
	assert.Equal(t, "ctx-3", r.ContextID())
	assert.Empty(t, client.sent[2].ContextID)
}

func TestFinalMessageRendering(t *testing.T) {
	client := &fakeClient{events: func(*a2a.Message) []a2a.Event {
		return []a2a.Event{agentReply("c", "use **go**")}
	}}

	var plain bytes.Buffer
	r := New(client, "", &plain, Options{NoFormat: true})
	require.NoError(t, r.Send(context.Background(), "hi"))
	assert.Equal(t, "use **go**\n", plain.String())

	var formatted bytes.Buffer
	r = New(client, "", &formatted, Options{})
	require.NoError(t, r.Send(context.Background(), "hi"))
	assert.Equal(t, "use go\n", formatted.String())

	var streamed bytes.Buffer
	r = New(client, "", &streamed, Options{Streaming: true, NoFormat: true})
	require.NoError(t, r.Send(context.Background(), "hi"))
	assert.Equal(t, "\nuse **go**\n", streamed.String())
	assert.True(t, client.streaming[2])
}

func TestTaskUpdateRendering(t *testing.T) {
	events := []a2a.Event{
		&a2a.TaskArtifactUpdateEvent{ContextID: "c", Artifact: textArtifact("def ")},
		&a2a.TaskArtifactUpdateEvent{ContextID: "c", Artifact: textArtifact("main():")},
		&a2a.TaskStatusUpdateEvent{ContextID: "c", Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}, Final: true},
	}
	client := &fakeClient{events: func(*a2a.Message) []a2a.Event { return events }}

	var streamed bytes.Buffer
	r := New(client, "", &streamed, Options{Streaming: true})
	require.NoError(t, r.Send(context.Background(), "hi"))
	assert.Equal(t, "def main():", streamed.String())
	assert.Empty(t, r.ContextID(), "only final messages set the context id")

	var lines bytes.Buffer
	r = New(client, "", &lines, Options{})
	require.NoError(t, r.Send(context.Background(), "hi"))
	assert.Equal(t, "def \nmain():\n", lines.String())
}

func TestSendErrorIsReportedAndLoopContinues(t *testing.T) {
	var out bytes.Buffer
	client := &fakeClient{err: errors.New("connection reset")}
	r := New(client, "", &out, Options{})

	assert.False(t, r.HandleLine(context.Background(), "hi"))
	assert.Contains(t, out.String(), "Error: connection reset")
}

func TestDebugPrintsEventJSON(t *testing.T) {
	var out bytes.Buffer
	client := &fakeClient{events: func(*a2a.Message) []a2a.Event {
		return []a2a.Event{agentReply("ctx-9", "hi")}
	}}
	r := New(client, "", &out, Options{Debug: true})

	require.NoError(t, r.Send(context.Background(), "hi"))
	assert.Contains(t, out.String(), "DEBUG - Full event (*a2a.Message)")
	assert.Contains(t, out.String(), `"contextId": "ctx-9"`)
	assert.Contains(t, out.String(), "Stored context_id: ctx-9")
}

func TestPrompt(t *testing.T) {
	r := New(&fakeClient{}, "", &bytes.Buffer{}, Options{})
	assert.Equal(t, "> ", r.Prompt())

	r = New(&fakeClient{}, "", &bytes.Buffer{}, Options{Streaming: true, Debug: true})
	assert.Equal(t, "[streaming] [debug] > ", r.Prompt())
}

func TestRunSession(t *testing.T) {
	var out bytes.Buffer
	client := &fakeClient{events: func(msg *a2a.Message) []a2a.Event {
		return []a2a.Event{agentReply("ctx", "echo")}
	}}
	r := New(client, "Coder", &out, Options{})
	r.Welcome()

	in := strings.NewReader("\n/stream\nwrite code\n/quit\nnever sent\n")
	require.NoError(t, r.Run(context.Background(), in))

	require.Len(t, client.sent, 1)
	assert.Equal(t, []bool{true}, client.streaming)
	assert.Contains(t, out.String(), "a2a Coder")
	assert.Contains(t, out.String(), "/format")
	assert.Contains(t, out.String(), "Goodbye!")
}

func TestRunEndsOnEOF(t *testing.T) {
	var out bytes.Buffer
	r := New(&fakeClient{}, "", &out, Options{})
	require.NoError(t, r.Run(context.Background(), strings.NewReader("")))
	assert.Contains(t, out.String(), "Goodbye!")
}

func TestRunEndsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pr, pw := io.Pipe()
	defer pw.Close()

	var out bytes.Buffer
	r := New(&fakeClient{}, "", &out, Options{})
	require.NoError(t, r.Run(ctx, pr))
	assert.Contains(t, out.String(), "Goodbye!")
}
