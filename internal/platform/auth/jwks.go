package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWK is one entry of the identity provider's published key set.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSet is the document served at jwks_uri.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

const (
	keySetTTL = 5 * time.Minute
	// minRefetch keeps tokens with made-up kids from hammering the provider.
	minRefetch = 10 * time.Second
)

// errUnknownKey is returned for a kid the provider does not publish.
var errUnknownKey = errors.New("identity token signed with an unknown key")

// KeySet caches the RSA keys that sign widget ID tokens. A stale set or an
// unknown kid triggers one refetch, so key rotation is picked up without a
// restart. Concurrent refetches are coalesced.
type KeySet struct {
	url    string
	ttl    time.Duration
	client *http.Client
	now    func() time.Time

	refresh sync.Mutex

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewKeySet(url string, ttl time.Duration) *KeySet {
	if ttl <= 0 {
		ttl = keySetTTL
	}
	return &KeySet{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

func (s *KeySet) lookup(kid string) (key *rsa.PublicKey, fresh bool, fetchedAt time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[kid], !s.fetchedAt.IsZero() && s.now().Sub(s.fetchedAt) < s.ttl, s.fetchedAt
}

// Key returns the public key for kid.
func (s *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, fresh, _ := s.lookup(kid); key != nil && fresh {
		return key, nil
	}

	s.refresh.Lock()
	defer s.refresh.Unlock()

	// Another caller may have refreshed while this one waited.
	key, fresh, at := s.lookup(kid)
	switch {
	case key != nil && fresh:
		return key, nil
	case fresh && s.now().Sub(at) < minRefetch:
		return nil, errUnknownKey
	}

	if err := s.fetch(ctx); err != nil {
		if key != nil {
			// A stale key beats locking everyone out while the provider is down.
			return key, nil
		}
		return nil, err
	}
	if key, _, _ = s.lookup(kid); key == nil {
		return nil, errUnknownKey
	}
	return key, nil
}

func (s *KeySet) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("signing keys: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("signing keys: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signing keys: status %d", resp.StatusCode)
	}

	var set JWKSet
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&set); err != nil {
		return fmt.Errorf("signing keys: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		if pub, err := k.rsaKey(); err == nil {
			keys[k.Kid] = pub
		}
	}

	s.mu.Lock()
	s.keys = keys
	s.fetchedAt = s.now()
	s.mu.Unlock()
	return nil
}

func (k JWK) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("key %q modulus: %w", k.Kid, err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("key %q exponent: %w", k.Kid, err)
	}
	exp := new(big.Int).SetBytes(e)
	if len(n) == 0 || !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("key %q is not a usable RSA key", k.Kid)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}

// keySetKeyFunc resolves a token's kid against the provider's key set.
func keySetKeyFunc(set *KeySet) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("identity token has no kid header")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return set.Key(ctx, kid)
	}
}
