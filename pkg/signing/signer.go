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
	"crypto/rsa"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MaxTTL is the largest exp-iat window a Signer will mint.
const MaxTTL = 300 * time.Second

// ClaimCanonicalDigest is the JWT claim name carrying the canonical
// request's digest.
const ClaimCanonicalDigest = "canonical_request_sha256"

// Signer mints JWTs whose canonical_request_sha256 claim binds the token
// to one specific request. It is used both by the party issuing
// bootstrap tokens and by anyone signing ordinary data-plane calls
// (SDK, or Router on a legacy client's behalf).
type Signer struct {
	privateKey *rsa.PrivateKey
	issuer     string
}

// NewSigner builds a Signer bound to one RSA private key and issuer
// identity.
func NewSigner(privateKey *rsa.PrivateKey, issuer string) *Signer {
	return &Signer{privateKey: privateKey, issuer: issuer}
}

// SignRequest builds the canonical request for the given components,
// mints a JWT carrying its digest, and signs it RS256. ttl is clamped to
// MaxTTL.
func (s *Signer) SignRequest(method, uri, rawQuery string, headers http.Header, body []byte, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > MaxTTL {
		ttl = MaxTTL
	}

	digest := DigestOf(CanonicalRequest{
		Method:   method,
		URI:      uri,
		RawQuery: rawQuery,
		Headers:  headers,
		Body:     body,
	})

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":                s.issuer,
		"iat":                now.Unix(),
		"exp":                now.Add(ttl).Unix(),
		ClaimCanonicalDigest: digest,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing: sign JWT: %w", err)
	}
	return signed, nil
}

// SignClaims mints a JWT carrying arbitrary additional claims merged
// with iss/iat/exp, without a canonical digest. Used for the bootstrap
// handshake, whose payload is the session public key rather than a
// proxied HTTP request.
func (s *Signer) SignClaims(extra map[string]any, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > MaxTTL {
		ttl = MaxTTL
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing: sign JWT: %w", err)
	}
	return signed, nil
}
