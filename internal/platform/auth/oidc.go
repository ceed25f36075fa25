package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// IssuerMetadata is the part of an issuer's discovery document the hosted
// sign-in widget flow needs.
type IssuerMetadata struct {
	Issuer             string `json:"issuer"`
	JWKSURI            string `json:"jwks_uri"`
	EndSessionEndpoint string `json:"end_session_endpoint"`
}

const discoveryTimeout = 10 * time.Second

// DiscoverIssuer reads {issuer}/.well-known/openid-configuration. The
// document must name the same issuer, otherwise tokens would be checked
// against keys the front desk was never told to trust.
func DiscoverIssuer(ctx context.Context, client *http.Client, issuer string) (*IssuerMetadata, error) {
	issuer = strings.TrimRight(issuer, "/")
	if client == nil {
		client = &http.Client{Timeout: discoveryTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return nil, fmt.Errorf("identity provider discovery: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity provider discovery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity provider discovery: status %d", resp.StatusCode)
	}

	var md IssuerMetadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&md); err != nil {
		return nil, fmt.Errorf("identity provider discovery: %w", err)
	}
	switch {
	case md.JWKSURI == "":
		return nil, fmt.Errorf("identity provider discovery: no jwks_uri")
	case md.Issuer != "" && strings.TrimRight(md.Issuer, "/") != issuer:
		return nil, fmt.Errorf("identity provider discovery: document is for %q, not %q", md.Issuer, issuer)
	}
	return &md, nil
}
