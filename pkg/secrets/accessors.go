package secrets

import (
	"context"
	"fmt"

	"github.com/org/secretbroker/pkg/models"
)

// JWTSigningKey is the payload of a "jwt" secret.
type JWTSigningKey struct {
	PrivateKey string
	PublicKey  string
	Algorithm  string
}

// OAuthCredentials is the payload of an "oauth" secret. RedirectURI is
// optional.
type OAuthCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// APIKey is the payload of an "api-key" secret. URL is optional.
type APIKey struct {
	Key string
	URL string
}

// JWTKey returns the signing key identified by keyID.
func (c *Client) JWTKey(ctx context.Context, keyID string) (*JWTSigningKey, error) {
	data, err := c.GetSecret(ctx, "jwt", keyID)
	if err != nil {
		return nil, fmt.Errorf("getting jwt key %s: %w", keyID, err)
	}

	key := &JWTSigningKey{
		PrivateKey: fieldString(data, "private_key"),
		PublicKey:  fieldString(data, "public_key"),
		Algorithm:  fieldString(data, "algorithm"),
	}
	if key.PrivateKey == "" || key.PublicKey == "" || key.Algorithm == "" {
		return nil, fmt.Errorf("jwt key %s is missing required fields", keyID)
	}
	return key, nil
}

// OAuth returns the OAuth credentials for a provider.
func (c *Client) OAuth(ctx context.Context, provider string) (*OAuthCredentials, error) {
	data, err := c.GetSecret(ctx, "oauth", provider)
	if err != nil {
		return nil, fmt.Errorf("getting oauth credentials for %s: %w", provider, err)
	}

	creds := &OAuthCredentials{
		ClientID:     fieldString(data, "client_id"),
		ClientSecret: fieldString(data, "client_secret"),
		RedirectURI:  fieldString(data, "redirect_uri"),
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("oauth credentials for %s are missing required fields", provider)
	}
	return creds, nil
}

// ServiceAPIKey returns the API key issued for an upstream service.
func (c *Client) ServiceAPIKey(ctx context.Context, service string) (*APIKey, error) {
	data, err := c.GetSecret(ctx, "api-key", service)
	if err != nil {
		return nil, fmt.Errorf("getting api key for %s: %w", service, err)
	}

	key := &APIKey{
		Key: fieldString(data, "key"),
		URL: fieldString(data, "api_url"),
	}
	if key.Key == "" {
		return nil, fmt.Errorf("api key for %s is missing the key field", service)
	}
	return key, nil
}

func fieldString(data models.SecretData, field string) string {
	if v, ok := data[field]; ok {
		return v.Str()
	}
	return ""
}
