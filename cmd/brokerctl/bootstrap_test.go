package main

import (
	"context"
	"strings"
	"testing"

	"github.com/org/secretbroker/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type fakeCatalog struct {
	data map[string][]byte
}

func (f *fakeCatalog) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return nil, storage.ErrNotFound
}
func (f *fakeCatalog) Put(ctx context.Context, key string, value []byte) error {
	f.data[key] = value
	return nil
}
func (f *fakeCatalog) Delete(ctx context.Context, key string) error {
	delete(f.data, key)
	return nil
}
func (f *fakeCatalog) List(ctx context.Context, prefix string) ([]storage.KVEntry, error) {
	var entries []storage.KVEntry
	for k, v := range f.data {
		if strings.HasPrefix(k, prefix) {
			entries = append(entries, storage.KVEntry{Key: k, Value: v})
		}
	}
	return entries, nil
}

const sampleSeed = `
types:
  jwt:
    name: JWT Signing Key
    format: pem
    fields: [private_key, public_key, key_id, algorithm]
    rotation_period: 30d
  api-key:
    name: API Key
    format: string
    fields: [key, api_url, description]
    rotation_period: 90d
consumers:
  auth-svc:
    description: authentication service
    secret_types: [jwt]
`

func parseSeed(t *testing.T, doc string) seedFile {
	t.Helper()
	var seed seedFile
	require.NoError(t, yaml.Unmarshal([]byte(doc), &seed))
	return seed
}

func TestValidateSeed(t *testing.T) {
	seed := parseSeed(t, sampleSeed)
	assert.NoError(t, validateSeed(seed))
}

func TestValidateSeedBadFormat(t *testing.T) {
	seed := parseSeed(t, sampleSeed)
	bad := seed.Types["jwt"]
	bad.Format = "xml"
	seed.Types["jwt"] = bad

	err := validateSeed(seed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestValidateSeedNoFields(t *testing.T) {
	seed := parseSeed(t, sampleSeed)
	bad := seed.Types["api-key"]
	bad.Fields = nil
	seed.Types["api-key"] = bad

	assert.Error(t, validateSeed(seed))
}

func TestApplySeed(t *testing.T) {
	catalog := &fakeCatalog{data: map[string][]byte{}}
	seed := parseSeed(t, sampleSeed)

	require.NoError(t, applySeed(context.Background(), catalog, seed))

	assert.Contains(t, catalog.data, "secret-types/jwt")
	assert.Contains(t, catalog.data, "secret-types/api-key")
	assert.Contains(t, catalog.data, "service-registry/auth-svc")

	raw := string(catalog.data["secret-types/jwt"])
	assert.Contains(t, raw, `"rotation_period":"30d"`)
	assert.Contains(t, raw, `"format":"pem"`)
}
