package storage

import "strings"

// Catalog key layout. These prefixes are shared between the broker, the
// type registry, the consumer-facing client, and the bootstrap tooling.
const (
	TypePrefix         = "secret-types/"
	MetadataRoot       = "secret-metadata/"
	RegistrationPrefix = "service-registry/"
)

// TypeKey is the catalog key for a secret type definition.
func TypeKey(typeID string) string {
	return TypePrefix + typeID
}

// MetadataKey is the catalog key for one secret's metadata record.
func MetadataKey(typeID, secretID string) string {
	return MetadataRoot + typeID + "/" + secretID
}

// MetadataPrefix is the catalog prefix holding all metadata of one type.
func MetadataPrefix(typeID string) string {
	return MetadataRoot + typeID + "/"
}

// RegistrationKey is the catalog key for a consumer registration.
func RegistrationKey(consumerID string) string {
	return RegistrationPrefix + consumerID
}

// SecretPath is the store path for a secret, relative to the engine mount.
func SecretPath(typeID, secretID string) string {
	return typeID + "/" + secretID
}

// TrimMount strips the engine-mount segment from a full metadata path,
// returning the store-relative path. Returns "" when the path has no
// mount segment.
func TrimMount(fullPath string) string {
	parts := strings.SplitN(fullPath, "/", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
