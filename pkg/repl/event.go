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
	"github.com/a2aproject/a2a-go/a2a"
)

// Kind tells the two event shapes apart.
type Kind int

const (
	// KindFinalMessage is a complete agent message.
	KindFinalMessage Kind = iota + 1
	// KindTaskUpdate is a task snapshot or update, possibly with artifacts.
	KindTaskUpdate
)

func (k Kind) String() string {
	switch k {
	case KindFinalMessage:
		return "final_message"
	case KindTaskUpdate:
		return "task_update"
	default:
		return "unknown"
	}
}

// Event is what the REPL renders. Texts holds message text parts for a
// final message and artifact texts for a task update.
type Event struct {
	Kind      Kind
	ContextID string
	Texts     []string

	// Raw is the protocol event the Event was built from, kept for debug output.
	Raw a2a.Event
}

// NewFinalMessage wraps an agent message.
func NewFinalMessage(msg *a2a.Message) Event {
	return Event{
		Kind:      KindFinalMessage,
		ContextID: msg.ContextID,
		Texts:     partTexts(msg.Parts),
		Raw:       msg,
	}
}

// NewTaskUpdate wraps a task update carrying the given artifacts.
func NewTaskUpdate(contextID string, artifacts []*a2a.Artifact, raw a2a.Event) Event {
	var texts []string
	for _, artifact := range artifacts {
		if artifact == nil {
			continue
		}
		texts = append(texts, partTexts(artifact.Parts)...)
	}
	return Event{Kind: KindTaskUpdate, ContextID: contextID, Texts: texts, Raw: raw}
}

// FromA2A classifies a protocol event. Whole tasks contribute their
// artifacts only once they reach a terminal state, since streamed artifact
// updates already carried the text. ok is false for event types the REPL
// does not render.
func FromA2A(ev a2a.Event) (Event, bool) {
	switch v := ev.(type) {
	case *a2a.Message:
		return NewFinalMessage(v), true
	case *a2a.TaskArtifactUpdateEvent:
		return NewTaskUpdate(v.ContextID, []*a2a.Artifact{v.Artifact}, v), true
	case *a2a.TaskStatusUpdateEvent:
		return NewTaskUpdate(v.ContextID, nil, v), true
	case *a2a.Task:
		var artifacts []*a2a.Artifact
		if v.Status.State.Terminal() {
			artifacts = v.Artifacts
		}
		return NewTaskUpdate(v.ContextID, artifacts, v), true
	default:
		return Event{}, false
	}
}

func partTexts(parts []a2a.Part) []string {
	var texts []string
	for _, part := range parts {
		switch p := part.(type) {
		case a2a.TextPart:
			texts = append(texts, p.Text)
		case *a2a.TextPart:
			if p != nil {
				texts = append(texts, p.Text)
			}
		}
	}
	return texts
}
