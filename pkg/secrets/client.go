// Package secrets is the consumer-facing client library. A service embeds it
// to read the secrets it is entitled to, with a local cache refreshed in the
// background and transparent token renewal against the secret store.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/org/secretbroker/internal/storage"
	"github.com/org/secretbroker/pkg/models"
	"github.com/rs/zerolog"
)

const defaultRefreshInterval = 5 * time.Minute

// Config holds the connection and identity settings for a Client.
type Config struct {
	VaultAddr  string
	ConsulAddr string
	// Mount is the KV engine mount secrets live under. Defaults to
	// "dynamic-secrets".
	Mount string

	// ServiceName identifies this consumer; it must match a registration
	// in the catalog and the Consumers lists of the secrets it reads.
	ServiceName string

	RoleID   string
	SecretID string

	// RefreshInterval is how often the cache is rebuilt. Defaults to five
	// minutes.
	RefreshInterval time.Duration

	Logger zerolog.Logger
}

// Client reads secrets on behalf of one consumer service. Reads are served
// from an in-memory cache keyed "{type}/{id}"; the cache is replaced
// wholesale on every refresh so deletions and consumer-list changes
// propagate within one interval.
type Client struct {
	store   storage.SecretStore
	catalog storage.Catalog
	service string
	log     zerolog.Logger

	mu       sync.RWMutex
	values   map[string]models.SecretData
	metadata map[string]models.SecretMetadata

	// refreshes counts completed cache rebuilds.
	refreshes int

	ticker    *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// New connects to both stores, authenticates with AppRole, performs an
// initial cache load, and starts the background refresh and token renewal
// loops. The initial load is best effort; a cold cache fills lazily.
func New(ctx context.Context, cfg Config) (*Client, error) {
	mount := cfg.Mount
	if mount == "" {
		mount = "dynamic-secrets"
	}

	store, err := storage.NewVaultStore(cfg.VaultAddr, mount)
	if err != nil {
		return nil, err
	}
	catalog, err := storage.NewConsulCatalog(cfg.ConsulAddr)
	if err != nil {
		return nil, err
	}

	auth, err := store.Login(ctx, cfg.RoleID, cfg.SecretID)
	if err != nil {
		return nil, fmt.Errorf("authenticating to secret store: %w", err)
	}

	c := newClient(store, catalog, cfg)

	if auth.Renewable && auth.LeaseDuration > 0 {
		go c.renewLoop(auth.LeaseDuration)
	}

	if err := c.refresh(ctx); err != nil {
		c.log.Warn().Err(err).Msg("initial secret load failed")
	}
	go c.refreshLoop()

	return c, nil
}

func newClient(store storage.SecretStore, catalog storage.Catalog, cfg Config) *Client {
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	return &Client{
		store:    store,
		catalog:  catalog,
		service:  cfg.ServiceName,
		log:      cfg.Logger,
		values:   map[string]models.SecretData{},
		metadata: map[string]models.SecretMetadata{},
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
	}
}

// renewLoop renews the store token at two thirds of its lease. A failed
// renewal ends the loop; the token will expire and reads against the store
// start failing, which the owning service surfaces through its own health.
func (c *Client) renewLoop(leaseSeconds int) {
	interval := time.Duration(leaseSeconds) * time.Second * 2 / 3
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-timer.C:
			if err := c.store.RenewSelf(context.Background(), leaseSeconds); err != nil {
				c.log.Warn().Err(err).Msg("token renewal failed, stopping renewal loop")
				return
			}
			timer.Reset(interval)
		}
	}
}

func (c *Client) refreshLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.ticker.C:
			if err := c.refresh(context.Background()); err != nil {
				c.log.Warn().Err(err).Msg("secret cache refresh failed")
			}
		}
	}
}

// refresh rebuilds both caches from scratch: resolve this service's
// registration, walk the metadata of its registered types, keep the records
// naming it as a consumer, and fetch each secret's current value.
func (c *Client) refresh(ctx context.Context) error {
	raw, err := c.catalog.Get(ctx, storage.RegistrationKey(c.service))
	if err != nil {
		return fmt.Errorf("resolving registration for %s: %w", c.service, err)
	}
	var reg models.ConsumerRegistration
	if err := json.Unmarshal(raw, &reg); err != nil {
		return fmt.Errorf("unmarshaling registration for %s: %w", c.service, err)
	}

	values := map[string]models.SecretData{}
	metadata := map[string]models.SecretMetadata{}

	for _, typeID := range reg.SecretTypes {
		entries, err := c.catalog.List(ctx, storage.MetadataPrefix(typeID))
		if err != nil {
			c.log.Warn().Err(err).Str("type", typeID).Msg("failed to list secret metadata")
			continue
		}
		for _, entry := range entries {
			var meta models.SecretMetadata
			if err := json.Unmarshal(entry.Value, &meta); err != nil {
				c.log.Warn().Err(err).Str("key", entry.Key).Msg("skipping unparsable secret metadata")
				continue
			}
			if !meta.HasConsumer(c.service) {
				continue
			}

			path := storage.TrimMount(meta.Path)
			if path == "" {
				c.log.Warn().Str("path", meta.Path).Msg("skipping secret with malformed path")
				continue
			}

			metadata[path] = meta
			data, err := c.store.ReadSecret(ctx, path)
			if err != nil {
				c.log.Warn().Err(err).Str("path", meta.Path).Msg("failed to fetch secret value")
				continue
			}
			values[path] = models.SecretDataFromWire(data)
		}
	}

	c.mu.Lock()
	c.values = values
	c.metadata = metadata
	c.refreshes++
	c.mu.Unlock()
	return nil
}

// GetSecret returns the payload of one secret, from cache when possible.
// Cache misses fall through to the stores and backfill the cache.
func (c *Client) GetSecret(ctx context.Context, typeID, secretID string) (models.SecretData, error) {
	key := storage.SecretPath(typeID, secretID)

	c.mu.RLock()
	data, ok := c.values[key]
	c.mu.RUnlock()
	if ok {
		return data, nil
	}

	meta, err := c.GetSecretMetadata(ctx, typeID, secretID)
	if err != nil {
		return nil, err
	}
	path := storage.TrimMount(meta.Path)
	if path == "" {
		return nil, fmt.Errorf("secret %s/%s has malformed path %q", typeID, secretID, meta.Path)
	}

	raw, err := c.store.ReadSecret(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetching secret %s/%s: %w", typeID, secretID, err)
	}
	data = models.SecretDataFromWire(raw)

	c.mu.Lock()
	c.values[key] = data
	c.mu.Unlock()
	return data, nil
}

// GetSecretMetadata returns one secret's metadata record, from cache when
// possible.
func (c *Client) GetSecretMetadata(ctx context.Context, typeID, secretID string) (models.SecretMetadata, error) {
	key := storage.SecretPath(typeID, secretID)

	c.mu.RLock()
	meta, ok := c.metadata[key]
	c.mu.RUnlock()
	if ok {
		return meta, nil
	}

	raw, err := c.catalog.Get(ctx, storage.MetadataKey(typeID, secretID))
	if err != nil {
		return models.SecretMetadata{}, fmt.Errorf("fetching metadata for %s/%s: %w", typeID, secretID, err)
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return models.SecretMetadata{}, fmt.Errorf("unmarshaling metadata for %s/%s: %w", typeID, secretID, err)
	}

	c.mu.Lock()
	c.metadata[key] = meta
	c.mu.Unlock()
	return meta, nil
}

// ListSecretsByType returns the cached metadata of all accessible secrets of
// one type. It never hits the stores; an empty result on a cold cache is
// expected.
func (c *Client) ListSecretsByType(typeID string) []models.SecretMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []models.SecretMetadata
	for key, meta := range c.metadata {
		if strings.HasPrefix(key, typeID+"/") {
			result = append(result, meta)
		}
	}
	return result
}

// Close stops the background loops. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.ticker.Stop()
		close(c.done)
	})
}
