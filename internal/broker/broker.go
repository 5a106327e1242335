// Package broker orchestrates the lifecycle of dynamic secrets across the
// secret store and the catalog: creation, rotation, deletion, retrieval,
// and per-secret access policy provisioning.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/org/secretbroker/internal/registry"
	"github.com/org/secretbroker/internal/storage"
	"github.com/org/secretbroker/pkg/models"
	"github.com/rs/zerolog"
)

// Server-set wire fields added to every secret payload.
const (
	fieldCreatedAt   = "created_at"
	fieldRotationDue = "rotation_due"
)

// Broker is the orchestration core. It holds no mutable state of its own;
// all state lives in the two backing stores.
type Broker struct {
	store   storage.SecretStore
	catalog storage.Catalog
	types   *registry.Registry
	log     zerolog.Logger

	now func() time.Time
}

// New creates a Broker over the given stores.
func New(store storage.SecretStore, catalog storage.Catalog, types *registry.Registry, log zerolog.Logger) *Broker {
	return &Broker{
		store:   store,
		catalog: catalog,
		types:   types,
		log:     log,
		now:     time.Now,
	}
}

// CreateSecretRequest carries the inputs for CreateSecret.
type CreateSecretRequest struct {
	Name           string            `json:"name"`
	Type           string            `json:"type"`
	Data           models.SecretData `json:"data"`
	Owner          string            `json:"owner"`
	Consumers      []string          `json:"consumers"`
	CustomMetadata map[string]string `json:"custom_metadata,omitempty"`
}

// CreateResult separates the primary outcome of CreateSecret from the
// best-effort side-effect phase: Warnings records policy or consumer role
// update failures that did not fail the creation itself.
type CreateResult struct {
	Metadata *models.SecretMetadata `json:"metadata"`
	Warnings []string               `json:"warnings,omitempty"`
}

// CreateSecret validates and stores a new secret, writes its metadata
// record, and provisions its access policy. Validation and the two primary
// writes fail the operation; policy provisioning and consumer role updates
// are post-commit side effects reported through CreateResult.Warnings.
func (b *Broker) CreateSecret(ctx context.Context, req CreateSecretRequest) (*CreateResult, error) {
	def, err := b.resolveType(ctx, req.Type)
	if err != nil {
		return nil, err
	}
	if err := validateFields(def, req.Data); err != nil {
		return nil, err
	}

	secretID := req.Owner
	if id, ok := req.CustomMetadata["id"]; ok && id != "" {
		secretID = id
	}

	now := b.now().UTC()
	due := rotationDue(now, def.RotationInterval)

	path := storage.SecretPath(req.Type, secretID)
	if err := b.store.WriteSecret(ctx, path, wirePayload(req.Data, now, due)); err != nil {
		return nil, fmt.Errorf("storing secret: %w", err)
	}

	meta := &models.SecretMetadata{
		Name:        req.Name,
		Type:        req.Type,
		Path:        b.store.Mount() + "/" + path,
		CreatedAt:   now,
		RotationDue: due,
		Owner:       req.Owner,
		Consumers:   req.Consumers,
	}
	applyTypeFields(meta, req.Type, req.Data, req.CustomMetadata)

	if err := b.putMetadata(ctx, req.Type, secretID, meta); err != nil {
		// The secret record is already written; it stays behind as an
		// orphan the operator reconciles by re-running the create.
		return nil, err
	}

	result := &CreateResult{Metadata: meta}
	result.Warnings = b.provisionAccess(ctx, req.Type, secretID, req.Consumers)
	return result, nil
}

// RotateSecret writes a new version of an existing secret and advances its
// rotation deadline. Owner, consumers, and creation time are preserved from
// the prior metadata record, which must exist.
func (b *Broker) RotateSecret(ctx context.Context, typeID, secretID string, data models.SecretData) error {
	meta, err := b.getMetadata(ctx, typeID, secretID)
	if err != nil {
		return err
	}

	def, err := b.resolveType(ctx, typeID)
	if err != nil {
		return err
	}
	if err := validateFields(def, data); err != nil {
		return err
	}

	now := b.now().UTC()
	due := rotationDue(now, def.RotationInterval)

	path := storage.SecretPath(typeID, secretID)
	if err := b.store.WriteSecret(ctx, path, wirePayload(data, now, due)); err != nil {
		return fmt.Errorf("storing rotated secret: %w", err)
	}

	meta.RotationDue = due
	if typeID == "jwt" {
		if v, ok := data["key_id"]; ok {
			meta.KeyID = v.Str()
		}
		if v, ok := data["algorithm"]; ok {
			meta.Algorithm = v.Str()
		}
	}
	return b.putMetadata(ctx, typeID, secretID, meta)
}

// DeleteSecret removes the secret record and its metadata. Deleting the
// access policy is best effort; a stale policy is scoped to a now-empty
// path and only logged.
func (b *Broker) DeleteSecret(ctx context.Context, typeID, secretID string) error {
	if err := b.store.DeleteSecret(ctx, storage.SecretPath(typeID, secretID)); err != nil {
		return fmt.Errorf("deleting secret: %w", err)
	}
	if err := b.catalog.Delete(ctx, storage.MetadataKey(typeID, secretID)); err != nil {
		return fmt.Errorf("deleting secret metadata: %w", err)
	}

	name := PolicyName(typeID, secretID)
	if err := b.store.DeletePolicy(ctx, name); err != nil {
		b.log.Warn().Err(err).Str("policy", name).Msg("failed to delete access policy")
	}
	return nil
}

// GetSecret reads a secret's payload straight from the store. No
// authorization happens here; access is enforced by the capability carried
// on the token used against the store.
func (b *Broker) GetSecret(ctx context.Context, typeID, secretID string) (models.SecretData, error) {
	raw, err := b.store.ReadSecret(ctx, storage.SecretPath(typeID, secretID))
	if err != nil {
		return nil, err
	}
	return models.SecretDataFromWire(raw), nil
}

// ListSecrets returns all metadata records of one type. Records that fail
// to parse are skipped with a warning; partial results are not an error.
func (b *Broker) ListSecrets(ctx context.Context, typeID string) ([]models.SecretMetadata, error) {
	entries, err := b.catalog.List(ctx, storage.MetadataPrefix(typeID))
	if err != nil {
		return nil, err
	}

	secrets := make([]models.SecretMetadata, 0, len(entries))
	for _, entry := range entries {
		var meta models.SecretMetadata
		if err := json.Unmarshal(entry.Value, &meta); err != nil {
			b.log.Warn().Err(err).Str("key", entry.Key).Msg("skipping unparsable secret metadata")
			continue
		}
		secrets = append(secrets, meta)
	}
	return secrets, nil
}

// GetConsumerSecrets returns the metadata of every secret the consumer is
// entitled to read: the union over its registered types, filtered to
// records that list it as a consumer.
func (b *Broker) GetConsumerSecrets(ctx context.Context, consumerID string) ([]models.SecretMetadata, error) {
	raw, err := b.catalog.Get(ctx, storage.RegistrationKey(consumerID))
	if err != nil {
		return nil, err
	}

	var reg models.ConsumerRegistration
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("unmarshaling registration for %s: %w", consumerID, err)
	}

	var accessible []models.SecretMetadata
	for _, typeID := range reg.SecretTypes {
		secrets, err := b.ListSecrets(ctx, typeID)
		if err != nil {
			b.log.Warn().Err(err).Str("type", typeID).Msg("failed to list secrets for consumer")
			continue
		}
		for _, meta := range secrets {
			if meta.HasConsumer(consumerID) {
				accessible = append(accessible, meta)
			}
		}
	}
	return accessible, nil
}

// provisionAccess is the post-commit side-effect phase of CreateSecret:
// write the per-secret policy, then attach it to each consumer's role.
// Failures never fail the creation; they are returned as warnings.
func (b *Broker) provisionAccess(ctx context.Context, typeID, secretID string, consumers []string) []string {
	var warnings []string
	warn := func(err error, format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		b.log.Warn().Err(err).Msg(msg)
		warnings = append(warnings, fmt.Sprintf("%s: %v", msg, err))
	}

	name := PolicyName(typeID, secretID)
	if err := b.store.WritePolicy(ctx, name, policyRules(b.store.Mount(), typeID, secretID)); err != nil {
		warn(err, "failed to write access policy %s", name)
		return warnings
	}

	for _, consumer := range consumers {
		policies, err := b.store.RolePolicies(ctx, consumer)
		if err != nil {
			warn(err, "failed to read role for consumer %s", consumer)
			continue
		}
		if contains(policies, name) {
			continue
		}
		if err := b.store.SetRolePolicies(ctx, consumer, append(policies, name)); err != nil {
			warn(err, "failed to update policies for consumer %s", consumer)
		}
	}
	return warnings
}

func (b *Broker) resolveType(ctx context.Context, typeID string) (*models.SecretType, error) {
	def, err := b.types.GetType(ctx, typeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidType, typeID)
		}
		return nil, err
	}
	return def, nil
}

func (b *Broker) getMetadata(ctx context.Context, typeID, secretID string) (*models.SecretMetadata, error) {
	raw, err := b.catalog.Get(ctx, storage.MetadataKey(typeID, secretID))
	if err != nil {
		return nil, err
	}
	var meta models.SecretMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata for %s/%s: %w", typeID, secretID, err)
	}
	return &meta, nil
}

func (b *Broker) putMetadata(ctx context.Context, typeID, secretID string, meta *models.SecretMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling metadata for %s/%s: %w", typeID, secretID, err)
	}
	if err := b.catalog.Put(ctx, storage.MetadataKey(typeID, secretID), raw); err != nil {
		return fmt.Errorf("storing secret metadata: %w", err)
	}
	return nil
}

func validateFields(def *models.SecretType, data models.SecretData) error {
	for _, field := range def.RequiredFields {
		if _, ok := data[field]; !ok {
			return &MissingFieldError{Field: field}
		}
	}
	return nil
}

// wirePayload is the store-side shape of a secret: the caller's fields plus
// the server-set timestamps.
func wirePayload(data models.SecretData, createdAt, due time.Time) map[string]any {
	payload := data.ToWire()
	payload[fieldCreatedAt] = createdAt.Format(time.RFC3339)
	payload[fieldRotationDue] = due.Format(time.RFC3339)
	return payload
}

// applyTypeFields copies the type-specific optional metadata out of the
// payload or custom metadata, per type.
func applyTypeFields(meta *models.SecretMetadata, typeID string, data models.SecretData, custom map[string]string) {
	switch typeID {
	case "jwt":
		if v, ok := data["key_id"]; ok {
			meta.KeyID = v.Str()
		}
		if v, ok := data["algorithm"]; ok {
			meta.Algorithm = v.Str()
		}
	case "oauth":
		meta.Provider = custom["provider"]
	case "api-key":
		meta.Service = custom["service"]
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
