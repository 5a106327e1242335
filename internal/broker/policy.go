package broker

import "fmt"

// PolicyName constructs the deterministic name of the access policy scoped
// to one secret.
func PolicyName(typeID, secretID string) string {
	return fmt.Sprintf("%s-%s", typeID, secretID)
}

// policyRules renders the read-only capability grant on one secret's data
// path under a KV v2 mount.
func policyRules(mount, typeID, secretID string) string {
	return fmt.Sprintf(`path "%s/data/%s/%s" {
  capabilities = ["read"]
}`, mount, typeID, secretID)
}
