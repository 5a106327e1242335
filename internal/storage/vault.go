package storage

import (
	"context"
	"errors"
	"fmt"

	vault "github.com/hashicorp/vault/api"
)

const approleLoginPath = "auth/approle/login"

// VaultStore is the Vault-backed SecretStore. It owns the client token
// obtained from AppRole login; renewal is driven by the caller.
type VaultStore struct {
	client *vault.Client
	mount  string
}

// NewVaultStore creates a VaultStore against the given address, storing
// secrets under the given KV v2 engine mount.
func NewVaultStore(addr, mount string) (*VaultStore, error) {
	cfg := vault.DefaultConfig()
	cfg.Address = addr

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating vault client: %w", err)
	}
	return &VaultStore{client: client, mount: mount}, nil
}

// Mount returns the KV engine mount name.
func (s *VaultStore) Mount() string { return s.mount }

// Login authenticates with AppRole and installs the resulting token on the
// client for all subsequent requests.
func (s *VaultStore) Login(ctx context.Context, roleID, secretID string) (*AuthInfo, error) {
	resp, err := s.client.Logical().WriteWithContext(ctx, approleLoginPath, map[string]any{
		"role_id":   roleID,
		"secret_id": secretID,
	})
	if err != nil {
		return nil, fmt.Errorf("approle login: %w", err)
	}
	if resp == nil || resp.Auth == nil || resp.Auth.ClientToken == "" {
		return nil, errors.New("approle login: no token in response")
	}

	s.client.SetToken(resp.Auth.ClientToken)
	return &AuthInfo{
		Renewable:     resp.Auth.Renewable,
		LeaseDuration: resp.Auth.LeaseDuration,
	}, nil
}

// RenewSelf renews the client's own token.
func (s *VaultStore) RenewSelf(ctx context.Context, increment int) error {
	if _, err := s.client.Auth().Token().RenewSelfWithContext(ctx, increment); err != nil {
		return fmt.Errorf("renewing token: %w", err)
	}
	return nil
}

// ReadSecret reads the latest version of the secret at path.
func (s *VaultStore) ReadSecret(ctx context.Context, path string) (map[string]any, error) {
	sec, err := s.client.KVv2(s.mount).Get(ctx, path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return nil, fmt.Errorf("secret %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("reading secret %s: %w", path, err)
	}
	return sec.Data, nil
}

// WriteSecret writes a new version of the secret at path.
func (s *VaultStore) WriteSecret(ctx context.Context, path string, data map[string]any) error {
	if _, err := s.client.KVv2(s.mount).Put(ctx, path, data); err != nil {
		return fmt.Errorf("writing secret %s: %w", path, err)
	}
	return nil
}

// DeleteSecret deletes the latest version of the secret at path.
func (s *VaultStore) DeleteSecret(ctx context.Context, path string) error {
	if err := s.client.KVv2(s.mount).Delete(ctx, path); err != nil {
		return fmt.Errorf("deleting secret %s: %w", path, err)
	}
	return nil
}

// WritePolicy creates or overwrites a named policy.
func (s *VaultStore) WritePolicy(ctx context.Context, name, rules string) error {
	if err := s.client.Sys().PutPolicyWithContext(ctx, name, rules); err != nil {
		return fmt.Errorf("writing policy %s: %w", name, err)
	}
	return nil
}

// DeletePolicy deletes a named policy.
func (s *VaultStore) DeletePolicy(ctx context.Context, name string) error {
	if err := s.client.Sys().DeletePolicyWithContext(ctx, name); err != nil {
		return fmt.Errorf("deleting policy %s: %w", name, err)
	}
	return nil
}

// RolePolicies returns the token policies attached to an AppRole role.
func (s *VaultStore) RolePolicies(ctx context.Context, role string) ([]string, error) {
	resp, err := s.client.Logical().ReadWithContext(ctx, "auth/approle/role/"+role)
	if err != nil {
		return nil, fmt.Errorf("reading role %s: %w", role, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("role %s: %w", role, ErrNotFound)
	}

	raw, ok := resp.Data["token_policies"].([]any)
	if !ok {
		return nil, nil
	}
	policies := make([]string, 0, len(raw))
	for _, p := range raw {
		if name, ok := p.(string); ok {
			policies = append(policies, name)
		}
	}
	return policies, nil
}

// SetRolePolicies replaces the token policies attached to an AppRole role.
func (s *VaultStore) SetRolePolicies(ctx context.Context, role string, policies []string) error {
	_, err := s.client.Logical().WriteWithContext(ctx, "auth/approle/role/"+role, map[string]any{
		"token_policies": policies,
	})
	if err != nil {
		return fmt.Errorf("updating role %s: %w", role, err)
	}
	return nil
}
