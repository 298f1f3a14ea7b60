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

package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcube/agentcube/pkg/router"
)

func TestRouterFlagParsing(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantPort string
		wantDbg  bool
	}{
		{"defaults", []string{}, "8080", false},
		{"custom", []string{"-port", "9090", "-debug"}, "9090", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fs := flag.NewFlagSet(tc.name, flag.ContinueOnError)
			port := fs.String("port", "8080", "")
			debug := fs.Bool("debug", false, "")
			require.NoError(t, fs.Parse(tc.args))

			assert.Equal(t, tc.wantPort, *port)
			assert.Equal(t, tc.wantDbg, *debug)
		})
	}
}

func TestRouterNewServer(t *testing.T) {
	cfg := router.Config{
		Port:                  "8080",
		ControlPlaneURL:       "http://localhost:8443",
		Debug:                 true,
		EnableTLS:             false,
		MaxConcurrentRequests: 500,
	}
	s, err := router.NewServer(cfg)
	require.NoError(t, err)
	assert.NotNil(t, s)
}
