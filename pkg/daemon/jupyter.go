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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"k8s.io/klog/v2"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
)

// interpreterManager owns a long-lived Jupyter kernel that preserves
// variable state across requests, per the "Jupyter-style stateful
// execution" supplemented feature: every Code Interpreter session gets
// one kernel, lazily started on first use, that survives for the life
// of the sandbox pod.
type interpreterManager struct {
	mu sync.Mutex

	workspaceDir string
	serverURL    string
	token        string
	httpClient   *http.Client

	serverCmd *exec.Cmd
	kernelID  string
	wsConn    *websocket.Conn
}

// jupyterExecutionResult captures one cell's execution output.
type jupyterExecutionResult struct {
	Output         string `json:"output"`
	Error          string `json:"error"`
	Status         string `json:"status"`
	ExecutionCount int    `json:"execution_count"`
}

func newInterpreterManager(workspaceDir string) *interpreterManager {
	return &interpreterManager{
		workspaceDir: workspaceDir,
		serverURL:    "http://127.0.0.1:8888",
		token:        fmt.Sprintf("agentcube-%d", time.Now().UnixNano()),
		httpClient:   &http.Client{Timeout: 120 * time.Second},
	}
}

// ensureStarted lazily launches the Jupyter server and kernel the first
// time stateful execution is requested, so sessions that never use it
// pay no startup cost.
func (jm *interpreterManager) ensureStarted(ctx context.Context) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if jm.wsConn != nil {
		return nil
	}
	if err := jm.startServer(ctx); err != nil {
		return fmt.Errorf("daemon: start jupyter server: %w", err)
	}
	if err := jm.createKernel(); err != nil {
		return fmt.Errorf("daemon: create kernel: %w", err)
	}
	if err := jm.connectWebSocket(); err != nil {
		return fmt.Errorf("daemon: connect kernel websocket: %w", err)
	}
	return nil
}

func (jm *interpreterManager) startServer(ctx context.Context) error {
	if err := os.MkdirAll(jm.workspaceDir, 0755); err != nil {
		return fmt.Errorf("create workspace directory: %w", err)
	}

	cmd := exec.Command(
		"jupyter-server",
		"--no-browser",
		"--ip=127.0.0.1",
		"--port=8888",
		"--allow-root",
		fmt.Sprintf("--ServerApp.token=%s", jm.token),
		fmt.Sprintf("--ServerApp.root_dir=%s", jm.workspaceDir),
		"--ServerApp.allow_origin=*",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start jupyter-server: %w", err)
	}
	jm.serverCmd = cmd

	waitCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	return jm.waitForServer(waitCtx)
}

func (jm *interpreterManager) waitForServer(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for jupyter server")
		case <-ticker.C:
			resp, err := jm.httpClient.Get(fmt.Sprintf("%s/api?token=%s", jm.serverURL, jm.token))
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
		}
	}
}

func (jm *interpreterManager) createKernel() error {
	body, _ := json.Marshal(map[string]string{"name": "python3"})
	resp, err := jm.httpClient.Post(
		fmt.Sprintf("%s/api/kernels?token=%s", jm.serverURL, jm.token),
		"application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("create kernel: status %d", resp.StatusCode)
	}
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	id, ok := result["id"].(string)
	if !ok {
		return fmt.Errorf("create kernel: response missing id")
	}
	jm.kernelID = id
	return nil
}

func (jm *interpreterManager) connectWebSocket() error {
	wsURL := fmt.Sprintf("ws://127.0.0.1:8888/api/kernels/%s/channels?token=%s", jm.kernelID, jm.token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return err
	}
	jm.wsConn = conn
	return nil
}

// execute runs code in the persistent kernel, serializing concurrent
// calls against the same session since a kernel only processes one
// execute_request at a time.
func (jm *interpreterManager) execute(code string) (*jupyterExecutionResult, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	return jm.executeLocked(code)
}

func (jm *interpreterManager) executeLocked(code string) (*jupyterExecutionResult, error) {
	msgID := uuid.New().String()
	execMsg := map[string]any{
		"header": map[string]any{
			"msg_id":   msgID,
			"username": "agentcube-daemon",
			"session":  jm.kernelID,
			"msg_type": "execute_request",
			"version":  "5.3",
		},
		"parent_header": map[string]any{},
		"metadata":      map[string]any{},
		"content": map[string]any{
			"code":             code,
			"silent":           false,
			"store_history":    true,
			"user_expressions": map[string]any{},
			"allow_stdin":      false,
			"stop_on_error":    true,
		},
		"buffers": []any{},
	}

	if err := jm.wsConn.WriteJSON(execMsg); err != nil {
		return nil, fmt.Errorf("send execute_request: %w", err)
	}

	result := &jupyterExecutionResult{Status: "ok"}
	var stdout, stderr strings.Builder

	for {
		var msg map[string]any
		if err := jm.wsConn.ReadJSON(&msg); err != nil {
			return nil, fmt.Errorf("read kernel message: %w", err)
		}

		header, _ := msg["header"].(map[string]any)
		msgType, _ := header["msg_type"].(string)
		content, _ := msg["content"].(map[string]any)

		switch msgType {
		case "stream":
			name, _ := content["name"].(string)
			text, _ := content["text"].(string)
			if name == "stdout" {
				stdout.WriteString(text)
			} else if name == "stderr" {
				stderr.WriteString(text)
			}

		case "execute_result", "display_data":
			if data, ok := content["data"].(map[string]any); ok {
				if textPlain, ok := data["text/plain"].(string); ok {
					stdout.WriteString(textPlain)
					stdout.WriteString("\n")
				}
			}
			if count, ok := content["execution_count"].(float64); ok {
				result.ExecutionCount = int(count)
			}

		case "error":
			result.Status = "error"
			if ename, ok := content["ename"].(string); ok {
				stderr.WriteString(ename + ": ")
			}
			if evalue, ok := content["evalue"].(string); ok {
				stderr.WriteString(evalue + "\n")
			}

		case "execute_reply":
			if count, ok := content["execution_count"].(float64); ok {
				result.ExecutionCount = int(count)
			}
			result.Output = stdout.String()
			result.Error = stderr.String()
			return result, nil
		}
	}
}

// jupyterExecuteRequest is the wire shape of POST /api/jupyter/execute.
type jupyterExecuteRequest struct {
	Code string `json:"code" binding:"required"`
}

func (s *Server) handleJupyterExecute(c *gin.Context) {
	var req jupyterExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "invalid request body", err))
		return
	}

	s.jupyterMu.Lock()
	if s.jupyter == nil {
		s.jupyter = newInterpreterManager(s.workspaceDir)
	}
	jm := s.jupyter
	s.jupyterMu.Unlock()

	if err := jm.ensureStarted(c.Request.Context()); err != nil {
		klog.Errorf("daemon: %v", err)
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindResource, "start stateful interpreter", err))
		return
	}

	start := time.Now()
	result, err := jm.execute(req.Code)
	duration := time.Since(start).Seconds()
	if err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindResource, "execute code", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"output":          result.Output,
		"error":           result.Error,
		"status":          result.Status,
		"execution_count": result.ExecutionCount,
		"duration":        duration,
	})
}
