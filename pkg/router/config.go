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

import "time"

// CacheBackend selects the storage the Router uses for its
// sessionId -> endpoint resolution cache.
type CacheBackend string

const (
	CacheBackendMemory CacheBackend = "memory"
	CacheBackendRedis  CacheBackend = "redis"
)

// Config contains configuration parameters for the Router.
type Config struct {
	// Port is the port the Router listens on.
	Port string

	// ControlPlaneURL is the base URL of the Control-Plane API that the
	// Router consults to resolve a sessionId to a pod/service endpoint.
	ControlPlaneURL string

	// CacheBackend selects the resolution-cache store; defaults to
	// CacheBackendMemory when empty.
	CacheBackend CacheBackend
	// RedisAddr is the address of the Redis instance backing the cache
	// when CacheBackend is CacheBackendRedis.
	RedisAddr string
	// CacheTTL bounds how long a resolved endpoint is trusted before the
	// Router re-queries the Control-Plane.
	CacheTTL time.Duration

	// Debug enables gin's debug mode and verbose request logging.
	Debug bool

	// EnableTLS enables HTTPS.
	EnableTLS bool
	// TLSCert is the path to the TLS certificate file.
	TLSCert string
	// TLSKey is the path to the TLS private key file.
	TLSKey string

	// MaxConcurrentRequests limits concurrent proxied requests (0 = use
	// the default).
	MaxConcurrentRequests int

	// ConnectTimeout bounds how long a CONNECT tunnel waits to dial the
	// backend before failing with 503.
	ConnectTimeout time.Duration

	// IdentityNamespace is the namespace the Router's delegated-signing
	// identity secret lives in.
	IdentityNamespace string
}

func (c *Config) setDefaults() {
	if c.MaxConcurrentRequests <= 0 {
		c.MaxConcurrentRequests = 1000
	}
	if c.CacheBackend == "" {
		c.CacheBackend = CacheBackendMemory
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.IdentityNamespace == "" {
		c.IdentityNamespace = "default"
	}
}
