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

// Package bootstrap implements the session bootstrap handshake: a
// one-shot protocol that installs a freshly generated session key into
// a Daemon that has never seen it before, using a long-lived bootstrap
// key as the trust anchor.
package bootstrap

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// SessionKeySize is the RSA modulus size for freshly minted session keys.
const SessionKeySize = 2048

// GenerateSessionKeyPair creates a fresh RSA key pair for a session.
func GenerateSessionKeyPair() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, SessionKeySize)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: generate session key: %w", err)
	}
	return key, nil
}

// EncodePublicKeyPEM renders an RSA public key as a PEM-encoded PKIX block.
func EncodePublicKeyPEM(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("bootstrap: marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// DecodePublicKeyPEM parses a PEM-encoded PKIX RSA public key.
func DecodePublicKeyPEM(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("bootstrap: failed to decode PEM block")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: parse public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("bootstrap: key is not an RSA public key")
	}
	return rsaKey, nil
}

// EncodePrivateKeyPEM renders an RSA private key as a PEM-encoded PKCS#1
// block, for persisting the bootstrap key pair across Control-Plane
// restarts.
func EncodePrivateKeyPEM(priv *rsa.PrivateKey) string {
	der := x509.MarshalPKCS1PrivateKey(priv)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}
	return string(pem.EncodeToMemory(block))
}

// DecodePrivateKeyPEM parses a PEM-encoded PKCS#1 RSA private key.
func DecodePrivateKeyPEM(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("bootstrap: failed to decode PEM block")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: parse private key: %w", err)
	}
	return key, nil
}
