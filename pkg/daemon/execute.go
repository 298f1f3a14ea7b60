/*
Copyright The Volcano Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"k8s.io/klog/v2"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
)

// TimeoutExitCode mirrors the GNU `timeout` convention for a command
// killed by its own deadline.
const TimeoutExitCode = 124

const defaultExecuteTimeout = 60 * time.Second

// Command is a command line supplied either as a JSON array (run as a
// direct process, argv untouched) or as a plain JSON string (run through
// the platform shell).
type Command []string

// UnmarshalJSON accepts either a JSON array of strings or a single JSON
// string; the string form is wrapped so it runs through the shell rather
// than as a literal argv[0].
func (cmd *Command) UnmarshalJSON(data []byte) error {
	var argv []string
	if err := json.Unmarshal(data, &argv); err == nil {
		*cmd = Command(argv)
		return nil
	}

	var shellLine string
	if err := json.Unmarshal(data, &shellLine); err != nil {
		return fmt.Errorf("command must be a JSON string or an array of strings")
	}
	*cmd = Command{"sh", "-c", shellLine}
	return nil
}

// ExecuteRequest is the wire shape of POST /api/execute.
type ExecuteRequest struct {
	Command    Command           `json:"command" form:"command" binding:"required"`
	Timeout    string            `json:"timeout" form:"timeout"`
	WorkingDir string            `json:"working_dir" form:"working_dir"`
	Env        map[string]string `json:"env" form:"-"`
}

// ExecuteResponse is the command's captured result.
type ExecuteResponse struct {
	Stdout    string    `json:"stdout"`
	Stderr    string    `json:"stderr"`
	ExitCode  int       `json:"exit_code"`
	Duration  float64   `json:"duration"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

func (s *Server) handleExecute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "invalid request body", err))
		return
	}
	if len(req.Command) == 0 {
		writeError(c, agentcubeapi.New(agentcubeapi.KindConfiguration, "command cannot be empty"))
		return
	}

	timeout := defaultExecuteTimeout
	if req.Timeout != "" {
		parsed, err := time.ParseDuration(req.Timeout)
		if err != nil {
			writeError(c, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "invalid timeout", err))
			return
		}
		timeout = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	cmd, err := s.buildCommand(ctx, req.Command, req.WorkingDir, req.Env)
	if err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "invalid working directory", err))
		return
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start).Seconds()
	end := time.Now()

	exitCode := resolveExitCode(ctx, cmd, runErr, &stderr, timeout)

	c.JSON(http.StatusOK, ExecuteResponse{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  exitCode,
		Duration:  duration,
		StartTime: start,
		EndTime:   end,
	})
}

// executeStreamEvent is a single frame sent over the streaming-execute
// websocket: one per line of stdout/stderr as it is produced, followed
// by a final "exit" frame.
type executeStreamEvent struct {
	Stream   string `json:"stream"` // "stdout", "stderr", or "exit"
	Data     string `json:"data,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
}

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleExecuteStream multiplexes a long-running command's stdout and
// stderr over a websocket, one line per frame, ending in an "exit"
// frame carrying the exit code. Recovered from the long-poll pattern
// used for interactive command sessions, re-expressed here as a
// websocket since SSH tunneling itself is out of scope.
func (s *Server) handleExecuteStream(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindQuery(&req); err != nil || len(req.Command) == 0 {
		writeError(c, agentcubeapi.New(agentcubeapi.KindConfiguration, "command query parameter is required"))
		return
	}

	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		klog.Errorf("daemon: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	timeout := defaultExecuteTimeout
	if req.Timeout != "" {
		if parsed, err := time.ParseDuration(req.Timeout); err == nil {
			timeout = parsed
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	cmd, err := s.buildCommand(ctx, req.Command, req.WorkingDir, req.Env)
	if err != nil {
		_ = conn.WriteJSON(executeStreamEvent{Stream: "stderr", Data: err.Error()})
		return
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = conn.WriteJSON(executeStreamEvent{Stream: "stderr", Data: err.Error()})
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = conn.WriteJSON(executeStreamEvent{Stream: "stderr", Data: err.Error()})
		return
	}

	if err := cmd.Start(); err != nil {
		_ = conn.WriteJSON(executeStreamEvent{Stream: "stderr", Data: err.Error()})
		return
	}

	var wg sync.WaitGroup
	var writeMu sync.Mutex
	pump := func(stream string, r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			writeMu.Lock()
			_ = conn.WriteJSON(executeStreamEvent{Stream: stream, Data: scanner.Text()})
			writeMu.Unlock()
		}
	}
	wg.Add(2)
	go pump("stdout", stdout)
	go pump("stderr", stderr)
	wg.Wait()

	runErr := cmd.Wait()
	exitCode := resolveExitCode(ctx, cmd, runErr, nil, timeout)
	_ = conn.WriteJSON(executeStreamEvent{Stream: "exit", ExitCode: exitCode})
}

// buildCommand assembles an *exec.Cmd jailed to the workspace.
func (s *Server) buildCommand(ctx context.Context, command []string, workingDir string, env map[string]string) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...) //nolint:gosec // Daemon exists to execute caller-supplied commands.
	cmd.Dir = s.workspaceDir

	if workingDir != "" {
		safeDir, err := s.sanitizePath(workingDir)
		if err != nil {
			return nil, err
		}
		cmd.Dir = safeDir
	}

	if len(env) > 0 {
		current := os.Environ()
		for k, v := range env {
			current = append(current, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = current
	}
	return cmd, nil
}

func resolveExitCode(ctx context.Context, cmd *exec.Cmd, runErr error, stderr *bytes.Buffer, timeout time.Duration) int {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if stderr != nil {
			stderr.WriteString(fmt.Sprintf("command timed out after %.0f seconds", timeout.Seconds()))
		}
		return TimeoutExitCode
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if stderr != nil && runErr != nil {
		if stderr.Len() > 0 {
			stderr.WriteString("\n")
		}
		stderr.WriteString(runErr.Error())
	}
	return 1
}
