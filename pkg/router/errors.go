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

package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
)

// asAPIError exposes the shared error taxonomy to this package's
// handlers without every caller importing pkg/api directly.
func asAPIError(err error) (*agentcubeapi.Error, bool) {
	return agentcubeapi.As(err)
}

// writeError maps an error onto the shared HTTP status taxonomy, the
// same mapping the Control-Plane and Daemon use.
func writeError(c *gin.Context, err error) {
	apiErr, ok := asAPIError(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(apiErr.Status(), gin.H{"error": apiErr.Message, "code": string(apiErr.Kind)})
}
