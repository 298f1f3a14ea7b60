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

package signing

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuild_QueryOrderingIrrelevant(t *testing.T) {
	base := CanonicalRequest{
		Method:   "get",
		URI:      "/v1/sessions",
		RawQuery: "b=2&a=1",
		Headers:  http.Header{},
		Body:     []byte(`{}`),
	}
	reordered := base
	reordered.RawQuery = "a=1&b=2"

	assert.Equal(t, Build(base), Build(reordered))
}

func TestBuild_MethodCaseNormalized(t *testing.T) {
	lower := CanonicalRequest{Method: "post", URI: "/x", Headers: http.Header{}}
	upper := CanonicalRequest{Method: "POST", URI: "/x", Headers: http.Header{}}
	assert.Equal(t, Build(lower), Build(upper))
}

func TestBuild_EmptyURIBecomesSlash(t *testing.T) {
	r := CanonicalRequest{Method: "GET", URI: "", Headers: http.Header{}}
	out := Build(r)
	assert.Contains(t, out, "GET\n/\n")
}

func TestBuild_OnlyContentTypeHeaderIncluded(t *testing.T) {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("X-Other", "ignored")

	withExtra := CanonicalRequest{Method: "POST", URI: "/x", Headers: headers}
	headersNoExtra := http.Header{}
	headersNoExtra.Set("Content-Type", "application/json")
	withoutExtra := CanonicalRequest{Method: "POST", URI: "/x", Headers: headersNoExtra}

	assert.Equal(t, Build(withExtra), Build(withoutExtra), "headers outside the included set must not affect the digest")
}

func TestBuild_ContentTypeAbsent_NoHeaderLine(t *testing.T) {
	r := CanonicalRequest{Method: "GET", URI: "/x", Headers: http.Header{}}
	out := Build(r)
	// method\nuri\nquery\n(canonicalHeaders="")\n(signedHeaders="")\nbodyhash
	assert.Contains(t, out, "GET\n/x\n\n\n\n")
}

func TestBuild_BodyByteEquivalence(t *testing.T) {
	r1 := CanonicalRequest{Method: "POST", URI: "/x", Headers: http.Header{}, Body: []byte("hello")}
	r2 := CanonicalRequest{Method: "POST", URI: "/x", Headers: http.Header{}, Body: []byte("hello")}
	r3 := CanonicalRequest{Method: "POST", URI: "/x", Headers: http.Header{}, Body: []byte("hellx")}

	assert.Equal(t, Build(r1), Build(r2))
	assert.NotEqual(t, Build(r1), Build(r3))
}

func TestDigestOf_Deterministic(t *testing.T) {
	r := CanonicalRequest{Method: "GET", URI: "/a/b", RawQuery: "z=9&a=1", Headers: http.Header{}, Body: []byte("x")}
	d1 := DigestOf(r)
	d2 := DigestOf(r)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)
}

func TestCanonicalQuery_EmptyQuery(t *testing.T) {
	assert.Equal(t, "", canonicalQuery(""))
}

func TestCanonicalQuery_DuplicateKeysSortedByValue(t *testing.T) {
	got := canonicalQuery("k=2&k=1")
	assert.Equal(t, "k=1&k=2", got)
}
