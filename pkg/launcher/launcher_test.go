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

package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompose struct {
	upCalls  []int
	upErr    error
	missing  map[int]bool
	services []string
}

func (f *fakeCompose) Up(_ context.Context, service string, scale int) error {
	f.services = append(f.services, service)
	f.upCalls = append(f.upCalls, scale)
	return f.upErr
}

func (f *fakeCompose) Port(_ context.Context, service string, privatePort, index int) (string, error) {
	if f.missing[index] {
		return "", errors.New("no such container")
	}
	return fmt.Sprintf("0.0.0.0:%d", 32767+index), nil
}

func TestLaunchRejectsInvalidScale(t *testing.T) {
	for _, scale := range []int{0, -1} {
		compose := &fakeCompose{}
		var out bytes.Buffer
		l := &Launcher{Compose: compose, Out: &out}

		err := l.Launch(context.Background(), scale)
		assert.ErrorIs(t, err, ErrInvalidScale)
		assert.Empty(t, compose.upCalls, "no orchestration call for scale %d", scale)
		assert.Empty(t, out.String())
	}
}

func TestLaunchPrintsMappings(t *testing.T) {
	compose := &fakeCompose{missing: map[int]bool{2: true}}
	var out bytes.Buffer
	l := &Launcher{Compose: compose, Out: &out}

	require.NoError(t, l.Launch(context.Background(), 3))
	assert.Equal(t, []int{3}, compose.upCalls)
	assert.Equal(t, []string{DefaultService}, compose.services)

	assert.Equal(t, "Launching 3 claude-agent instances...\n"+
		"\n"+
		"Port mappings:\n"+
		"claude-agent_1 -> 0.0.0.0:32768\n"+
		"claude-agent_2 -> (port not found)\n"+
		"claude-agent_3 -> 0.0.0.0:32770\n", out.String())
}

func TestLaunchUpFailure(t *testing.T) {
	compose := &fakeCompose{upErr: errors.New("daemon not running")}
	var out bytes.Buffer
	l := &Launcher{Compose: compose, Service: "worker", Out: &out}

	err := l.Launch(context.Background(), 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon not running")
	assert.NotContains(t, out.String(), "Port mappings")
}

func TestParsePortOutput(t *testing.T) {
	addr, err := parsePortOutput("0.0.0.0:49153")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:49153", addr)

	addr, err = parsePortOutput("[::]:49153")
	require.NoError(t, err)
	assert.Equal(t, "[::]:49153", addr)

	_, err = parsePortOutput("garbage")
	assert.Error(t, err)
	_, err = parsePortOutput("host:http")
	assert.Error(t, err)
}

// TestHelperCompose stands in for the docker binary. It echoes "up" calls
// to stdout, fails when asked to scale to 9, and answers "port" with a
// fixed address for index 1 only.
func TestHelperCompose(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_COMPOSE") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	joined := strings.Join(args, " ")

	switch {
	case strings.Contains(joined, "up --detach --scale svc=9"):
		fmt.Fprintln(os.Stderr, "pulling\nno space left on device")
		os.Exit(1)
	case strings.Contains(joined, " up "):
		fmt.Println(joined)
	case strings.Contains(joined, "port --index 1 svc 9999"):
		fmt.Println("0.0.0.0:40001")
	case strings.Contains(joined, " port "):
		os.Exit(1)
	}
	os.Exit(0)
}

func helperCompose(stdout *bytes.Buffer) *DockerCompose {
	return &DockerCompose{
		Binary:   os.Args[0],
		BaseArgs: []string{"-test.run=TestHelperCompose", "--", "compose"},
		Files:    []string{"docker-compose.yml"},
		Env:      []string{"GO_WANT_HELPER_COMPOSE=1"},
		Stdout:   stdout,
	}
}

func TestDockerComposeUp(t *testing.T) {
	var stdout bytes.Buffer
	d := helperCompose(&stdout)

	require.NoError(t, d.Up(context.Background(), "svc", 3))
	assert.Equal(t, "compose -f docker-compose.yml up --detach --scale svc=3\n", stdout.String())

	err := d.Up(context.Background(), "svc", 9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no space left on device")
	assert.NotContains(t, err.Error(), "pulling")
}

func TestDockerComposePort(t *testing.T) {
	d := helperCompose(&bytes.Buffer{})

	addr, err := d.Port(context.Background(), "svc", 9999, 1)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:40001", addr)

	_, err = d.Port(context.Background(), "svc", 9999, 2)
	assert.Error(t, err)
}

func TestLaunchWithDockerCompose(t *testing.T) {
	var out bytes.Buffer
	l := &Launcher{Compose: helperCompose(&bytes.Buffer{}), Service: "svc", Out: &out}

	require.NoError(t, l.Launch(context.Background(), 2))
	assert.Contains(t, out.String(), "svc_1 -> 0.0.0.0:40001\n")
	assert.Contains(t, out.String(), "svc_2 -> (port not found)\n")
}
