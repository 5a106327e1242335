package storage

import (
	"context"
	"fmt"

	consul "github.com/hashicorp/consul/api"
)

// ConsulCatalog is the Consul-backed Catalog.
type ConsulCatalog struct {
	kv *consul.KV
}

// NewConsulCatalog creates a ConsulCatalog against the given address.
func NewConsulCatalog(addr string) (*ConsulCatalog, error) {
	cfg := consul.DefaultConfig()
	cfg.Address = addr

	client, err := consul.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating consul client: %w", err)
	}
	return &ConsulCatalog{kv: client.KV()}, nil
}

// Get reads the value at key; ErrNotFound when the key does not exist.
func (c *ConsulCatalog) Get(ctx context.Context, key string) ([]byte, error) {
	pair, _, err := c.kv.Get(key, (&consul.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("reading catalog key %s: %w", key, err)
	}
	if pair == nil {
		return nil, fmt.Errorf("catalog key %s: %w", key, ErrNotFound)
	}
	return pair.Value, nil
}

// Put writes value at key, overwriting any existing value.
func (c *ConsulCatalog) Put(ctx context.Context, key string, value []byte) error {
	_, err := c.kv.Put(&consul.KVPair{Key: key, Value: value}, (&consul.WriteOptions{}).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("writing catalog key %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *ConsulCatalog) Delete(ctx context.Context, key string) error {
	_, err := c.kv.Delete(key, (&consul.WriteOptions{}).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("deleting catalog key %s: %w", key, err)
	}
	return nil
}

// List returns all entries under prefix. Folder placeholder keys (ending in
// "/") are skipped.
func (c *ConsulCatalog) List(ctx context.Context, prefix string) ([]KVEntry, error) {
	pairs, _, err := c.kv.List(prefix, (&consul.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing catalog prefix %s: %w", prefix, err)
	}

	entries := make([]KVEntry, 0, len(pairs))
	for _, pair := range pairs {
		if pair.Key == prefix || pair.Key == "" || pair.Key[len(pair.Key)-1] == '/' {
			continue
		}
		entries = append(entries, KVEntry{Key: pair.Key, Value: pair.Value})
	}
	return entries, nil
}
