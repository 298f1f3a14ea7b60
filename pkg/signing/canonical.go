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

// Package signing implements the signed-request signer and verifier: a
// canonical digest construction both sides agree on bit-for-bit, plus
// the JWT envelope carrying it.
package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
)

// includedHeaders is the fixed set of header names folded into the
// canonical request. Only content-type is signed: it is the one header
// whose value changes the meaning of the body.
var includedHeaders = []string{"content-type"}

// CanonicalRequest is every input to the digest. RawQuery is the query
// string exactly as it appeared on the wire (no
// leading "?"). Headers is consulted only for the members of
// includedHeaders; anything else is ignored.
type CanonicalRequest struct {
	Method   string
	URI      string
	RawQuery string
	Headers  http.Header
	Body     []byte
}

// Build renders the canonical request string. Both signer and verifier
// call this on their respective view of the request; a bit-for-bit match
// is what makes verification meaningful.
func Build(r CanonicalRequest) string {
	method := strings.ToUpper(r.Method)

	uri := r.URI
	if uri == "" {
		uri = "/"
	}

	query := canonicalQuery(r.RawQuery)

	var headerLines []string
	var signedNames []string
	for _, name := range includedHeaders {
		value := r.Headers.Get(name)
		if value == "" {
			continue
		}
		headerLines = append(headerLines, strings.ToLower(name)+":"+strings.TrimSpace(value)+"\n")
		signedNames = append(signedNames, strings.ToLower(name))
	}
	sort.Strings(signedNames)
	canonicalHeaders := strings.Join(headerLines, "")
	signedHeaders := strings.Join(signedNames, ";")

	bodyHash := sha256.Sum256(r.Body)
	bodySHA256 := hex.EncodeToString(bodyHash[:])

	return strings.Join([]string{
		method,
		uri,
		query,
		canonicalHeaders,
		signedHeaders,
		bodySHA256,
	}, "\n")
}

// Digest hashes the canonical request string.
func Digest(canonicalRequest string) string {
	sum := sha256.Sum256([]byte(canonicalRequest))
	return hex.EncodeToString(sum[:])
}

// DigestOf is a convenience that builds and hashes in one step.
func DigestOf(r CanonicalRequest) string {
	return Digest(Build(r))
}

// canonicalQuery sorts query pairs by (key, value) and rejoins them,
// preserving the raw (already-encoded) value bytes rather than
// re-encoding through net/url.
func canonicalQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	pairs := strings.Split(rawQuery, "&")
	type kv struct{ key, value string }
	parsed := make([]kv, 0, len(pairs))
	for _, p := range pairs {
		if p == "" {
			continue
		}
		if idx := strings.IndexByte(p, '='); idx >= 0 {
			parsed = append(parsed, kv{key: p[:idx], value: p[idx+1:]})
		} else {
			parsed = append(parsed, kv{key: p, value: ""})
		}
	}

	sort.Slice(parsed, func(i, j int) bool {
		if parsed[i].key != parsed[j].key {
			return parsed[i].key < parsed[j].key
		}
		return parsed[i].value < parsed[j].value
	})

	joined := make([]string, 0, len(parsed))
	for _, p := range parsed {
		joined = append(joined, p.key+"="+p.value)
	}
	return strings.Join(joined, "&")
}
