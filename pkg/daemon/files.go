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
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
)

const maxFileMode = 0777

// FileInfo describes a single file in a list or upload response.
type FileInfo struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Mode     string    `json:"mode"`
	Modified time.Time `json:"modified"`
}

// uploadFileRequest is the JSON base64-content shape of POST /api/files.
type uploadFileRequest struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content" binding:"required"`
	Mode    string `json:"mode"`
}

func (s *Server) handleUploadFile(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		s.handleMultipartUpload(c)
		return
	}
	s.handleJSONUpload(c)
}

func (s *Server) handleMultipartUpload(c *gin.Context) {
	path := c.PostForm("path")
	if path == "" {
		writeError(c, agentcubeapi.New(agentcubeapi.KindConfiguration, "missing 'path' field"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "missing 'file' field", err))
		return
	}

	safePath, err := s.sanitizePath(path)
	if err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "invalid path", err))
		return
	}

	if err := os.MkdirAll(filepath.Dir(safePath), 0755); err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindResource, "create directory", err))
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindResource, "open uploaded file", err))
		return
	}
	defer src.Close()

	dst, err := os.OpenFile(safePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, parseFileMode(c.PostForm("mode")))
	if err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindResource, "create destination file", err))
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindResource, "write file content", err))
		return
	}

	s.respondFileInfo(c, safePath)
}

func (s *Server) handleJSONUpload(c *gin.Context) {
	var req uploadFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "invalid request body", err))
		return
	}

	safePath, err := s.sanitizePath(req.Path)
	if err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "invalid path", err))
		return
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "invalid base64 content", err))
		return
	}

	if err := os.MkdirAll(filepath.Dir(safePath), 0755); err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindResource, "create directory", err))
		return
	}

	if err := os.WriteFile(safePath, decoded, parseFileMode(req.Mode)); err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindResource, "write file", err))
		return
	}

	s.respondFileInfo(c, safePath)
}

func (s *Server) respondFileInfo(c *gin.Context, safePath string) {
	stat, err := os.Stat(safePath)
	if err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindResource, "stat file", err))
		return
	}
	relPath, err := filepath.Rel(s.workspaceDir, safePath)
	if err != nil {
		relPath = safePath
	}
	c.JSON(http.StatusOK, FileInfo{
		Path:     relPath,
		Size:     stat.Size(),
		Mode:     stat.Mode().String(),
		Modified: stat.ModTime(),
	})
}

func (s *Server) handleDownloadFile(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")
	if path == "" {
		writeError(c, agentcubeapi.New(agentcubeapi.KindConfiguration, "missing file path"))
		return
	}

	safePath, err := s.sanitizePath(path)
	if err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "invalid path", err))
		return
	}

	info, err := os.Stat(safePath)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(c, agentcubeapi.New(agentcubeapi.KindNotFound, "file not found"))
			return
		}
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindResource, "stat file", err))
		return
	}
	if info.IsDir() {
		writeError(c, agentcubeapi.New(agentcubeapi.KindConfiguration, "path is a directory, not a file"))
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(safePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Transfer-Encoding", "binary")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(safePath)))
	c.Header("Content-Type", contentType)
	c.File(safePath)
}

// FileEntry is a single member of a directory listing.
type FileEntry struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Mode     string    `json:"mode"`
	IsDir    bool      `json:"is_dir"`
}

func (s *Server) handleListFiles(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		path = "."
	}

	safePath, err := s.sanitizePath(path)
	if err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "invalid path", err))
		return
	}

	entries, err := os.ReadDir(safePath)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(c, agentcubeapi.New(agentcubeapi.KindNotFound, "directory not found"))
			return
		}
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindResource, "read directory", err))
		return
	}

	files := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			klog.Warningf("daemon: stat directory entry %q: %v", entry.Name(), err)
			continue
		}
		files = append(files, FileEntry{
			Name:     entry.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
			Mode:     info.Mode().String(),
			IsDir:    entry.IsDir(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func parseFileMode(modeStr string) os.FileMode {
	if modeStr == "" {
		return 0644
	}
	mode, err := strconv.ParseUint(modeStr, 8, 32)
	if err != nil || mode > maxFileMode {
		return 0644
	}
	return os.FileMode(mode)
}

// sanitizePath resolves p against the workspace jail, rejecting any
// path that would escape it via "..", absolute-path confusion, or a
// symlink.
func (s *Server) sanitizePath(p string) (string, error) {
	if s.workspaceDir == "" {
		return "", fmt.Errorf("workspace directory not initialized")
	}

	resolvedWorkspace, err := filepath.EvalSymlinks(s.workspaceDir)
	if err != nil {
		resolvedWorkspace = filepath.Clean(s.workspaceDir)
	}
	resolvedWorkspace = filepath.Clean(resolvedWorkspace)

	cleanPath := filepath.Clean(p)
	if filepath.IsAbs(cleanPath) {
		cleanPath = strings.TrimPrefix(cleanPath, string(os.PathSeparator))
	}

	candidate := filepath.Clean(filepath.Join(resolvedWorkspace, cleanPath))

	relPath, err := filepath.Rel(resolvedWorkspace, candidate)
	if err != nil {
		return "", fmt.Errorf("path %q escapes workspace jail: %w", p, err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes workspace jail", p)
	}

	if resolvedFinal, err := filepath.EvalSymlinks(candidate); err == nil {
		finalRel, err := filepath.Rel(resolvedWorkspace, resolvedFinal)
		if err != nil || finalRel == ".." || strings.HasPrefix(finalRel, ".."+string(os.PathSeparator)) {
			return "", fmt.Errorf("path %q escapes workspace jail via symlink", p)
		}
		return resolvedFinal, nil
	}

	return candidate, nil
}
