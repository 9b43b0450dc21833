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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	maxLineSize  = 16 * 1024 * 1024
	closeTimeout = 5 * time.Second
	stderrLimit  = 8 * 1024
)

// Options configures a CLIProcess.
type Options struct {
	// Binary is the CLI executable. Defaults to "claude".
	Binary string
	// BinaryArgs are placed before the generated flags.
	BinaryArgs []string

	SystemPrompt   string
	PermissionMode string
	WorkDir        string
	Model          string

	// Env is appended to the current environment.
	Env []string
}

func (o Options) args() []string {
	args := append([]string(nil), o.BinaryArgs...)
	args = append(args,
		"--print",
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
	)
	if o.SystemPrompt != "" {
		args = append(args, "--system-prompt", o.SystemPrompt)
	}
	if o.PermissionMode != "" {
		args = append(args, "--permission-mode", o.PermissionMode)
	}
	if o.Model != "" {
		args = append(args, "--model", o.Model)
	}
	return args
}

type line struct {
	msg *Message
	err error
}

// CLIProcess is a Session backed by a long-running Claude Code CLI process.
type CLIProcess struct {
	sync.Mutex

	opts Options

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan line
	stderr *tailBuffer
	done   chan struct{}

	// unfinished counts prompts whose result line has not been read yet.
	// Guarded by the session lock.
	unfinished int

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewCLIProcess returns an unconnected CLI session.
func NewCLIProcess(opts Options) *CLIProcess {
	if opts.Binary == "" {
		opts.Binary = "claude"
	}
	return &CLIProcess{opts: opts, closed: make(chan struct{})}
}

// Connect starts the CLI process. The process outlives ctx; only Close
// stops it.
func (p *CLIProcess) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(p.opts.Binary, p.opts.args()...)
	cmd.Dir = p.opts.WorkDir
	cmd.Env = append(os.Environ(), p.opts.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdin: %w", err)
	}
	// An io.Pipe rather than StdoutPipe: Wait must not close stdout while
	// readLoop is still draining it.
	stdout, stdoutW := io.Pipe()
	cmd.Stdout = stdoutW
	p.stderr = &tailBuffer{limit: stderrLimit}
	cmd.Stderr = p.stderr

	if err := cmd.Start(); err != nil {
		_ = stdoutW.Close()
		return fmt.Errorf("failed to start %s: %w", p.opts.Binary, err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.lines = make(chan line)
	p.done = make(chan struct{})

	go p.readLoop(stdout)
	go func() {
		_ = cmd.Wait()
		_ = stdoutW.Close()
		close(p.done)
	}()

	slog.Debug("Started Claude CLI", "binary", p.opts.Binary, "pid", cmd.Process.Pid, "dir", p.opts.WorkDir)
	return nil
}

func (p *CLIProcess) readLoop(r io.ReadCloser) {
	defer close(p.lines)
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Debug("Skipping non-JSON CLI output", "line", string(raw))
			continue
		}
		select {
		case p.lines <- line{msg: &msg}:
		case <-p.closed:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case p.lines <- line{err: fmt.Errorf("failed to read CLI output: %w", err)}:
		case <-p.closed:
		}
	}
}

type userInput struct {
	Type    string `json:"type"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
}

// Query writes a user message to the process.
func (p *CLIProcess) Query(ctx context.Context, prompt string) error {
	if p.cmd == nil {
		return fmt.Errorf("claude CLI not connected")
	}
	if p.isClosed() {
		return ErrSessionClosed
	}
	select {
	case <-p.done:
		return p.exitError()
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.discardUnfinished(ctx); err != nil {
		return err
	}

	in := userInput{Type: TypeUser}
	in.Message.Role = "user"
	in.Message.Content = prompt
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := p.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write prompt: %w", err)
	}
	p.unfinished++
	return nil
}

// discardUnfinished reads and drops the rest of turns abandoned before
// their result, so the next ReceiveResponse starts at the new turn.
func (p *CLIProcess) discardUnfinished(ctx context.Context) error {
	for p.unfinished > 0 {
		slog.Debug("Discarding output of an abandoned turn", "pending", p.unfinished)
		for _, err := range p.ReceiveResponse(ctx) {
			if err != nil {
				return fmt.Errorf("failed to discard abandoned turn: %w", err)
			}
		}
	}
	return nil
}

func (p *CLIProcess) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// ReceiveResponse yields messages until the turn's result message.
func (p *CLIProcess) ReceiveResponse(ctx context.Context) iter.Seq2[*Message, error] {
	return func(yield func(*Message, error) bool) {
		if p.lines == nil {
			yield(nil, fmt.Errorf("claude CLI not connected"))
			return
		}
		for {
			if p.isClosed() {
				yield(nil, ErrSessionClosed)
				return
			}
			select {
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			case <-p.closed:
				yield(nil, ErrSessionClosed)
				return
			case l, ok := <-p.lines:
				if !ok {
					if p.isClosed() {
						yield(nil, ErrSessionClosed)
					} else {
						yield(nil, p.exitError())
					}
					return
				}
				if l.err != nil {
					yield(nil, l.err)
					return
				}
				if l.msg.IsResult() && p.unfinished > 0 {
					p.unfinished--
				}
				if !yield(l.msg, nil) || l.msg.IsResult() {
					return
				}
			}
		}
	}
}

func (p *CLIProcess) exitError() error {
	status := "output closed"
	select {
	case <-p.done:
		status = "exited: " + p.cmd.ProcessState.String()
	case <-time.After(time.Second):
	}
	if msg := strings.TrimSpace(p.stderr.String()); msg != "" {
		return fmt.Errorf("claude CLI %s: %s", status, msg)
	}
	return fmt.Errorf("claude CLI %s", status)
}

// Close ends the process: stdin is closed first so the CLI can exit on its
// own, then it is killed after a grace period.
func (p *CLIProcess) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		if p.cmd == nil {
			return
		}
		p.writeMu.Lock()
		_ = p.stdin.Close()
		p.writeMu.Unlock()

		select {
		case <-p.done:
		case <-time.After(closeTimeout):
			err = p.cmd.Process.Kill()
			<-p.done
		}
		slog.Debug("Stopped Claude CLI", "pid", p.cmd.Process.Pid)
	})
	return err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	if b == nil {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
