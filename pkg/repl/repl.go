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

// Package repl is an interactive console client for A2A agents.
//
// Lines starting with "/" are local commands; everything else is sent to
// the agent as a user message within the current conversation. Responses
// are classified into an Event (final message or task update) and rendered.
package repl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/fatih/color"
)

// ErrNotConnected is returned when sending without a client.
var ErrNotConnected = errors.New("client not connected")

// Options sets the initial modes.
type Options struct {
	Streaming bool
	Debug     bool
	// NoFormat disables markdown rendering of agent replies.
	NoFormat bool
	// Color enables ANSI colours in everything the REPL prints.
	Color bool
}

// REPL holds the console state for one agent conversation.
type REPL struct {
	client    Client
	agentName string
	out       io.Writer

	streaming bool
	debug     bool
	format    bool
	contextID string

	formatter *Formatter
	dim       *color.Color
	accent    *color.Color
	success   *color.Color
	warn      *color.Color
	failure   *color.Color
	title     *color.Color
}

// New creates a REPL writing to out. client may be nil, in which case every
// send fails with ErrNotConnected.
func New(client Client, agentName string, out io.Writer, opts Options) *REPL {
	r := &REPL{
		client:    client,
		agentName: agentName,
		out:       out,
		streaming: opts.Streaming,
		debug:     opts.Debug,
		format:    !opts.NoFormat,
		formatter: NewFormatter(opts.Color),
		dim:       color.New(color.Faint),
		accent:    color.New(color.FgCyan),
		success:   color.New(color.FgGreen),
		warn:      color.New(color.FgYellow),
		failure:   color.New(color.FgRed),
		title:     color.New(color.Bold),
	}
	for _, c := range []*color.Color{r.dim, r.accent, r.success, r.warn, r.failure, r.title} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// Streaming reports whether streaming mode is on.
func (r *REPL) Streaming() bool { return r.streaming }

// Debug reports whether debug mode is on.
func (r *REPL) Debug() bool { return r.debug }

// Formatting reports whether markdown rendering is on.
func (r *REPL) Formatting() bool { return r.format }

// ContextID returns the conversation id adopted from the agent.
func (r *REPL) ContextID() string { return r.contextID }

// Prompt returns the input prompt showing the active modes.
func (r *REPL) Prompt() string {
	var b strings.Builder
	if r.streaming {
		b.WriteString("[streaming] ")
	}
	if r.debug {
		b.WriteString("[debug] ")
	}
	b.WriteString("> ")
	return r.accent.Sprint(b.String())
}

// Welcome prints the banner and the command list.
func (r *REPL) Welcome() {
	name := "a2a"
	if r.agentName != "" {
		name += " " + r.agentName
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, r.title.Sprint(name))
	fmt.Fprintln(r.out, r.dim.Sprint("> You are connected to an A2A agent"))
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, r.dim.Sprint("To get started, type a message or try one of these commands:"))
	fmt.Fprintln(r.out)
	r.Help()
	fmt.Fprintln(r.out)
}

var commands = []struct{ name, help string }{
	{"/stream", "toggle streaming mode"},
	{"/debug", "toggle debug mode"},
	{"/format", "toggle markdown formatting"},
	{"/clear", "clear conversation context"},
	{"/help", "show this help"},
	{"/quit", "exit the session"},
}

// Help prints the command list.
func (r *REPL) Help() {
	for _, c := range commands {
		fmt.Fprintf(r.out, "%s %s\n", r.accent.Sprintf("%-8s", c.name), r.dim.Sprint("- "+c.help))
	}
}

// Run reads lines from in until end of input, a quit command or ctx
// cancellation.
func (r *REPL) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(r.out, r.Prompt())

		select {
		case <-ctx.Done():
			r.goodbye(true)
			return nil
		case line, ok := <-lines:
			if !ok {
				r.goodbye(true)
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("reading input: %w", err)
					}
				default:
				}
				return nil
			}
			if quit := r.HandleLine(ctx, line); quit {
				return nil
			}
		}
	}
}

func (r *REPL) goodbye(newline bool) {
	if newline {
		fmt.Fprintln(r.out)
	}
	fmt.Fprintln(r.out, r.dim.Sprint("Goodbye!"))
}

// HandleLine processes one line of input and reports whether the session
// should end.
func (r *REPL) HandleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if strings.HasPrefix(line, "/") {
		return r.command(line)
	}

	if err := r.Send(ctx, line); err != nil {
		fmt.Fprintln(r.out, r.failure.Sprintf("Error: %v", err))
	}
	fmt.Fprintln(r.out)
	return false
}

func (r *REPL) command(line string) bool {
	switch line {
	case "/quit", "/exit":
		r.goodbye(false)
		return true
	case "/stream":
		r.streaming = !r.streaming
		fmt.Fprintln(r.out, r.dim.Sprint("Streaming mode: ")+r.onOff(r.streaming))
	case "/debug":
		r.debug = !r.debug
		fmt.Fprintln(r.out, r.dim.Sprint("Debug mode: ")+r.onOff(r.debug))
	case "/format":
		r.format = !r.format
		fmt.Fprintln(r.out, r.dim.Sprint("Markdown formatting: ")+r.onOff(r.format))
	case "/clear":
		r.contextID = ""
		fmt.Fprintln(r.out, r.dim.Sprint("Conversation context cleared"))
	case "/help":
		r.Help()
	default:
		fmt.Fprintln(r.out, r.warn.Sprintf("Unknown command %s, try /help", line))
	}
	return false
}

func (r *REPL) onOff(on bool) string {
	if on {
		return r.success.Sprint("ON")
	}
	return r.dim.Sprint("OFF")
}

// Send sends text as a user message in the current conversation and
// renders every event of the response.
func (r *REPL) Send(ctx context.Context, text string) error {
	if r.client == nil {
		return ErrNotConnected
	}

	msg := a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: text})
	msg.ContextID = r.contextID

	for ev, err := range r.client.Send(ctx, msg, r.streaming) {
		if err != nil {
			return err
		}
		if r.debug {
			r.printDebug(ev)
		}
		if event, ok := FromA2A(ev); ok {
			r.Dispatch(event)
		}
	}
	return nil
}

// Dispatch renders one event.
func (r *REPL) Dispatch(ev Event) {
	switch ev.Kind {
	case KindFinalMessage:
		if r.contextID == "" && ev.ContextID != "" {
			r.contextID = ev.ContextID
			if r.debug {
				fmt.Fprintln(r.out, r.success.Sprintf("Stored context_id: %s", r.contextID))
			}
		}
		for _, text := range ev.Texts {
			if r.streaming {
				fmt.Fprintln(r.out)
			}
			if r.format {
				text = r.formatter.Format(text)
			}
			fmt.Fprintln(r.out, text)
		}
	case KindTaskUpdate:
		for _, text := range ev.Texts {
			if r.streaming {
				fmt.Fprint(r.out, text)
			} else {
				fmt.Fprintln(r.out, text)
			}
		}
	}
}

func (r *REPL) printDebug(ev a2a.Event) {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, r.warn.Sprintf("DEBUG - Full event (%T)", ev))
	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		fmt.Fprintf(r.out, "%+v\n", ev)
	} else {
		fmt.Fprintln(r.out, string(data))
	}
	fmt.Fprintln(r.out)
}
