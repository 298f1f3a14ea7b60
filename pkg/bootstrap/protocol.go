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

package bootstrap

import (
	"sync"
	"time"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
	"github.com/agentcube/agentcube/pkg/signing"
)

// MaxTTL bounds a bootstrap token's exp-iat window to 60s, intentionally
// tighter than signing.MaxTTL, since a bootstrap token grants
// installation of a new trust root and so gets the shortest possible
// replay window.
const MaxTTL = 60 * time.Second

// ClaimSessionPublicKey is the JWT claim carrying the fresh session
// public key, PEM-encoded.
const ClaimSessionPublicKey = "session_public_key"

// MintInitToken builds the bootstrap JWT a provisioner POSTs to /init.
// ttl is clamped to MaxTTL.
func MintInitToken(signer *signing.Signer, sessionPublicKeyPEM string, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > MaxTTL {
		ttl = MaxTTL
	}
	return signer.SignClaims(map[string]any{
		ClaimSessionPublicKey: sessionPublicKeyPEM,
	}, ttl)
}

// VerifyInitToken validates a bootstrap token against the bootstrap
// public key and returns the session public key PEM it carries. It
// additionally enforces the tighter exp-iat window bootstrap tokens are
// held to, beyond what signing.Verifier checks generically.
func VerifyInitToken(verifier *signing.Verifier, tokenString string, keyFunc signing.KeyFunc) (string, error) {
	claims, err := verifier.VerifyClaims(tokenString, keyFunc)
	if err != nil {
		return "", err
	}

	iat, iatOK := claims["iat"].(float64)
	exp, expOK := claims["exp"].(float64)
	if !iatOK || !expOK || exp-iat > MaxTTL.Seconds() {
		return "", agentcubeapi.New(agentcubeapi.KindUnauthorized, "unauthorized")
	}

	pubPEM, ok := claims[ClaimSessionPublicKey].(string)
	if !ok || pubPEM == "" {
		return "", agentcubeapi.New(agentcubeapi.KindUnauthorized, "unauthorized")
	}
	return pubPEM, nil
}

// Installer is the Daemon-side state machine for the one-shot /init
// semantics: after one successful call, every subsequent init attempt
// is rejected regardless of whether it carries a valid bootstrap token.
type Installer struct {
	mu         sync.Mutex
	installed  bool
	sessionKey string // PEM
}

// NewInstaller builds an Installer with no session key installed.
func NewInstaller() *Installer {
	return &Installer{}
}

// Install records sessionPublicKeyPEM as the verification key for all
// subsequent /api/* traffic. It fails with agentcubeapi.ErrInitAlreadyRan
// if a previous call already succeeded.
func (in *Installer) Install(sessionPublicKeyPEM string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.installed {
		return agentcubeapi.Wrap(agentcubeapi.KindUnauthorized, "init already ran", agentcubeapi.ErrInitAlreadyRan)
	}
	in.sessionKey = sessionPublicKeyPEM
	in.installed = true
	return nil
}

// Installed reports whether a session key has already been installed.
func (in *Installer) Installed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.installed
}

// SessionPublicKeyPEM returns the installed key, or ("", false) before
// the first successful Install.
func (in *Installer) SessionPublicKeyPEM() (string, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.sessionKey, in.installed
}
