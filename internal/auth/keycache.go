package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultCertsURL = "https://www.googleapis.com/oauth2/v1/certs"

// KeyCacheConfig configures the signing-key cache.
type KeyCacheConfig struct {
	// CertsURL overrides the key endpoint. Tests only.
	CertsURL string

	// HTTPClient overrides the client used to fetch keys.
	HTTPClient *http.Client

	// MinTTL is the floor applied to the advertised cache lifetime, so a
	// misbehaving response cannot force a fetch per request.
	MinTTL time.Duration
}

// KeyCache is a process-scoped cache of Google's published RSA signing
// keys, keyed by key id. Keys are refreshed when the lifetime advertised
// in the Cache-Control header lapses, or when an unknown key id shows up
// (key rotation). Updates follow a read-check-refresh-then-read discipline
// under a single mutex: one writer refreshes, everyone re-reads.
type KeyCache struct {
	certsURL   string
	httpClient *http.Client
	minTTL     time.Duration

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
}

// NewKeyCache creates a signing-key cache.
func NewKeyCache(cfg KeyCacheConfig) *KeyCache {
	certsURL := cfg.CertsURL
	if certsURL == "" {
		certsURL = defaultCertsURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	minTTL := cfg.MinTTL
	if minTTL <= 0 {
		minTTL = time.Minute
	}
	return &KeyCache{
		certsURL:   certsURL,
		httpClient: httpClient,
		minTTL:     minTTL,
	}
}

// Key returns the public key for a key id, refreshing the cache when it is
// stale or the key id is unknown.
func (c *KeyCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.expiresAt) {
		if key, ok := c.keys[kid]; ok {
			return key, nil
		}
	}

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	key, ok := c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("auth: no signing key with id %q", kid)
	}
	return key, nil
}

// refresh replaces the cached key set. Caller holds the mutex.
func (c *KeyCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.certsURL, nil)
	if err != nil {
		return fmt.Errorf("auth: failed to build certs request: %w", err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth: failed to fetch signing keys: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: signing key endpoint returned status %d", res.StatusCode)
	}

	var pems map[string]string
	if err := json.NewDecoder(res.Body).Decode(&pems); err != nil {
		return fmt.Errorf("auth: failed to decode signing keys: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(pems))
	for kid, certPEM := range pems {
		key, err := parseCertPEM(certPEM)
		if err != nil {
			return fmt.Errorf("auth: failed to parse signing key %q: %w", kid, err)
		}
		keys[kid] = key
	}

	c.keys = keys
	c.expiresAt = time.Now().Add(cacheTTL(res.Header.Get("Cache-Control"), c.minTTL))
	return nil
}

// parseCertPEM extracts the RSA public key from an X.509 certificate PEM.
func parseCertPEM(certPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}

	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate does not carry an RSA key")
	}
	return key, nil
}

// cacheTTL extracts max-age from a Cache-Control header, clamped to minTTL.
func cacheTTL(header string, minTTL time.Duration) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		directive = strings.TrimSpace(directive)
		if !strings.HasPrefix(directive, "max-age=") {
			continue
		}
		seconds, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
		if err != nil {
			break
		}
		if ttl := time.Duration(seconds) * time.Second; ttl > minTTL {
			return ttl
		}
		break
	}
	return minTTL
}
