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

package api

import "github.com/gin-gonic/gin"

// Body is the JSON shape every component uses to report an error.
type Body struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Context map[string]any `json:"context,omitempty"`
}

// JSON writes err as a JSON body with the status its Kind maps to.
// verbose controls whether Context is included; the daemon never sets it
// true, since Context may carry pod-local paths or phase strings that
// should not reach untrusted callers.
func JSON(c *gin.Context, err error, verbose bool) {
	e, ok := As(err)
	if !ok {
		e = Wrap(KindResource, "internal error", err)
	}
	body := Body{Error: e.Message, Code: string(e.Kind)}
	if verbose {
		body.Context = e.Context
	}
	c.JSON(e.Status(), body)
}
