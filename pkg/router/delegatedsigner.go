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

package router

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/klog/v2"

	"github.com/agentcube/agentcube/pkg/signing"
)

const (
	rsaKeySize = 2048

	// identitySecretName holds the Router's own RSA key pair, which is
	// the bootstrap key every Daemon it provisions trusts when acting
	// as the issuer on a client's behalf.
	identitySecretName = "agentcube-router-identity" //nolint:gosec // name reference, not a credential
	privateKeyDataKey  = "private.pem"
	publicKeyDataKey   = "public.pem"
)

// delegatedSigner signs requests on behalf of clients that do not sign
// their own (legacy clients): the Router signs on their behalf, using a
// key it holds and that the Daemon has been bootstrapped with.
type delegatedSigner struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	signer     *signing.Signer
	clientset  kubernetes.Interface
}

// newDelegatedSigner generates a fresh RSA key pair and wraps it as a
// pkg/signing.Signer under the "agentcube-router" issuer identity.
func newDelegatedSigner() (*delegatedSigner, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, rsaKeySize)
	if err != nil {
		return nil, fmt.Errorf("router: generate RSA key pair: %w", err)
	}
	return &delegatedSigner{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		signer:     signing.NewSigner(privateKey, "agentcube-router"),
	}, nil
}

// sign mints a signed-request bearer token for a request the Router is
// about to forward on a legacy client's behalf.
func (d *delegatedSigner) sign(method, uri string, headers http.Header, body []byte) (string, error) {
	return d.signer.SignRequest(method, uri, "", headers, body, signing.MaxTTL)
}

// publicKeyPEM returns the PEM-encoded public half, the value a Daemon
// must be bootstrapped with to trust this Router's delegated signatures.
func (d *delegatedSigner) publicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(d.publicKey)
	if err != nil {
		return "", fmt.Errorf("router: marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// persistOrLoad stores the Router's identity in a cluster Secret so
// every Router replica (and any restart) signs with the same key; the
// first replica to run wins and later ones load what it wrote. Outside
// a cluster it silently keeps the in-memory key, for local development.
func (d *delegatedSigner) persistOrLoad(ctx context.Context, namespace string) error {
	if d.clientset == nil {
		config, err := rest.InClusterConfig()
		if err != nil {
			klog.Warningf("router: not running in a cluster, identity key will not be persisted: %v", err)
			return nil
		}
		clientset, err := kubernetes.NewForConfig(config)
		if err != nil {
			return fmt.Errorf("router: build kubernetes client: %w", err)
		}
		d.clientset = clientset
	}

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      identitySecretName,
			Namespace: namespace,
			Labels:    map[string]string{"app": "agentcube", "component": "router"},
		},
		Type: corev1.SecretTypeOpaque,
		Data: map[string][]byte{
			privateKeyDataKey: pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(d.privateKey)}),
		},
	}

	_, err := d.clientset.CoreV1().Secrets(namespace).Create(ctx, secret, metav1.CreateOptions{})
	if err == nil {
		klog.Infof("router: created identity secret %s/%s", namespace, identitySecretName)
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("router: create identity secret: %w", err)
	}

	existing, err := d.clientset.CoreV1().Secrets(namespace).Get(ctx, identitySecretName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("router: get identity secret: %w", err)
	}
	keyPEM, ok := existing.Data[privateKeyDataKey]
	if !ok {
		return fmt.Errorf("router: identity secret missing %s", privateKeyDataKey)
	}
	if err := d.loadPrivateKeyPEM(keyPEM); err != nil {
		return fmt.Errorf("router: load identity key from secret: %w", err)
	}
	klog.Infof("router: loaded identity from existing secret %s/%s", namespace, identitySecretName)
	return nil
}

func (d *delegatedSigner) loadPrivateKeyPEM(keyPEM []byte) error {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return fmt.Errorf("decode private key PEM block")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}
	d.privateKey = key
	d.publicKey = &key.PublicKey
	d.signer = signing.NewSigner(key, "agentcube-router")
	return nil
}
