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
	"time"

	"github.com/golang-jwt/jwt/v5"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
)

// MaxSkew bounds the clock skew tolerated between iat/exp and local
// time.
const MaxSkew = 30 * time.Second

// KeyFunc resolves the RSA public key that should verify a given token.
// Callers pass a bootstrap-key resolver for /init and a session-key
// resolver for everything else.
type KeyFunc func(token *jwt.Token) (any, error)

// Verifier checks a signed request's JWT and recomputes its canonical
// digest, rejecting on any mismatch with a single generic error so a
// caller cannot learn which verification step failed.
type Verifier struct {
	skew time.Duration
}

// NewVerifier builds a Verifier with the default clock-skew tolerance.
func NewVerifier() *Verifier {
	return &Verifier{skew: MaxSkew}
}

// WithSkew overrides the default skew tolerance, mainly for tests.
func (v *Verifier) WithSkew(skew time.Duration) *Verifier {
	return &Verifier{skew: skew}
}

// Verify runs the full verification sequence: parse, resolve key,
// verify signature, check time window, recompute digest, compare.
// tokenString is the raw bearer token (without the
// "Bearer " prefix). keyFunc resolves the verification key.
func (v *Verifier) Verify(tokenString string, keyFunc KeyFunc, req CanonicalRequest) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, keyFunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithLeeway(v.skew),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil || !parsed.Valid {
		return nil, errUnauthorized()
	}

	claimedDigest, ok := claims[ClaimCanonicalDigest].(string)
	if !ok || claimedDigest == "" {
		return nil, errUnauthorized()
	}

	actualDigest := DigestOf(req)
	if !constantTimeEqual(claimedDigest, actualDigest) {
		return nil, errUnauthorized()
	}

	return claims, nil
}

// VerifyClaims validates only the JWT envelope (signature, iat/exp
// window), without a canonical-digest comparison. Used for the
// bootstrap handshake, whose payload carries a session public key
// rather than a proxied request.
func (v *Verifier) VerifyClaims(tokenString string, keyFunc KeyFunc) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, keyFunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithLeeway(v.skew),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil || !parsed.Valid {
		return nil, errUnauthorized()
	}
	return claims, nil
}

// FromRequest extracts the bearer token from an http.Request's
// Authorization header, or an error if the header is missing or
// malformed.
func FromRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return "", errUnauthorized()
	}
	return header[len(prefix):], nil
}

func errUnauthorized() error {
	return agentcubeapi.New(agentcubeapi.KindUnauthorized, "unauthorized")
}

// constantTimeEqual compares two hex digests without leaking timing
// information about where they first differ.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := 0; i < len(a); i++ {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
