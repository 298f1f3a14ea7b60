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

package k8sadapter

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var dns1123 = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "already valid", in: "my-session", want: "my-session"},
		{name: "uppercase", in: "MySession", want: "mysession"},
		{name: "underscores and spaces", in: "my_session name", want: "my-session-name"},
		{name: "leading trailing dashes after strip", in: "_-abc-_", want: "abc"},
		{name: "unicode dropped", in: "sessión-日本", want: "sessin"},
		{name: "empty input", in: "", want: defaultResourceName},
		{name: "only invalid chars", in: "___   ___", want: defaultResourceName},
		{name: "too long truncates", in: strings.Repeat("a", 100), want: strings.Repeat("a", 63)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeName(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Regexp(t, dns1123, got)
		})
	}
}

func TestNormalizeName_Idempotent(t *testing.T) {
	inputs := []string{
		"My_Session 01", "", "___", strings.Repeat("X_", 40), "a", "-a-", "αβγ-valid",
	}
	for _, in := range inputs {
		once := NormalizeName(in)
		twice := NormalizeName(once)
		assert.Equal(t, once, twice, "normalization must be idempotent for input %q", in)
		assert.Regexp(t, dns1123, once)
	}
}
