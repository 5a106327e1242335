package models

import "time"

// WireFormat describes how a secret's payload is encoded on the wire.
type WireFormat string

const (
	WireFormatPEM    WireFormat = "pem"
	WireFormatJSON   WireFormat = "json"
	WireFormatString WireFormat = "string"
)

// Valid reports whether f is one of the supported wire formats.
func (f WireFormat) Valid() bool {
	switch f {
	case WireFormatPEM, WireFormatJSON, WireFormatString:
		return true
	}
	return false
}

// SecretType is the schema for one kind of secret. Definitions are seeded
// into the catalog at bootstrap and are immutable afterwards; the broker
// only reads them.
type SecretType struct {
	ID               string     `json:"id,omitempty"`
	DisplayName      string     `json:"name"`
	WireFormat       WireFormat `json:"format"`
	RequiredFields   []string   `json:"fields"`
	RotationInterval string     `json:"rotation_period"`
}

// SecretMetadata is the non-sensitive descriptor of a secret, stored in the
// catalog. It mirrors the secret record in the secret store 1:1.
type SecretMetadata struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Path        string    `json:"path"`
	CreatedAt   time.Time `json:"created_at"`
	RotationDue time.Time `json:"rotation_due"`
	Owner       string    `json:"owner"`
	Consumers   []string  `json:"consumers"`

	// Type-specific fields
	KeyID     string `json:"key_id,omitempty"`
	Algorithm string `json:"algorithm,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Service   string `json:"service,omitempty"`
}

// HasConsumer reports whether consumerID is in the metadata's consumer set.
func (m *SecretMetadata) HasConsumer(consumerID string) bool {
	for _, c := range m.Consumers {
		if c == consumerID {
			return true
		}
	}
	return false
}

// ConsumerRegistration maps a consumer service to the secret types it may
// browse. Fine-grained access is still filtered per-secret by Consumers.
type ConsumerRegistration struct {
	Description string   `json:"description"`
	SecretTypes []string `json:"secret_types"`
}
