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

import "strings"

// defaultResourceName is substituted when normalization would otherwise
// produce an empty string.
const defaultResourceName = "agentcube-sandbox"

const maxNameLength = 63

// NormalizeName derives a DNS-1123 label from a logical agent/session id:
// lowercase, replace '_' and space with '-', drop any other non-conforming
// rune, trim leading/trailing non-alphanumerics, truncate to 63 runes, and
// substitute a default if the result is empty.
//
// Normalization is idempotent: NormalizeName(NormalizeName(x)) == NormalizeName(x).
func NormalizeName(raw string) string {
	lower := strings.ToLower(raw)

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case r == '_' || r == ' ':
			b.WriteByte('-')
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-':
			b.WriteRune(r)
		default:
			// drop
		}
	}

	trimmed := strings.Trim(b.String(), "-")
	if len(trimmed) > maxNameLength {
		trimmed = strings.Trim(trimmed[:maxNameLength], "-")
	}
	if trimmed == "" {
		return defaultResourceName
	}
	return trimmed
}
