package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/org/secretbroker/internal/broker"
	"github.com/org/secretbroker/internal/registry"
	"github.com/org/secretbroker/internal/storage"
	"github.com/rs/zerolog"
)

// --- In-memory backends for tests ---

type memSecretStore struct {
	mount    string
	secrets  map[string]map[string]any
	policies map[string]string
	roles    map[string][]string

	failWritePolicy bool
}

func newMemSecretStore() *memSecretStore {
	return &memSecretStore{
		mount:    "dynamic-secrets",
		secrets:  map[string]map[string]any{},
		policies: map[string]string{},
		roles:    map[string][]string{},
	}
}

func (m *memSecretStore) Login(ctx context.Context, roleID, secretID string) (*storage.AuthInfo, error) {
	return &storage.AuthInfo{Renewable: true, LeaseDuration: 3600}, nil
}
func (m *memSecretStore) RenewSelf(ctx context.Context, increment int) error { return nil }
func (m *memSecretStore) Mount() string                                      { return m.mount }

func (m *memSecretStore) ReadSecret(ctx context.Context, path string) (map[string]any, error) {
	if data, ok := m.secrets[path]; ok {
		return data, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memSecretStore) WriteSecret(ctx context.Context, path string, data map[string]any) error {
	m.secrets[path] = data
	return nil
}

func (m *memSecretStore) DeleteSecret(ctx context.Context, path string) error {
	delete(m.secrets, path)
	return nil
}

func (m *memSecretStore) WritePolicy(ctx context.Context, name, rules string) error {
	if m.failWritePolicy {
		return fmt.Errorf("policy engine unavailable")
	}
	m.policies[name] = rules
	return nil
}

func (m *memSecretStore) DeletePolicy(ctx context.Context, name string) error {
	delete(m.policies, name)
	return nil
}

func (m *memSecretStore) RolePolicies(ctx context.Context, role string) ([]string, error) {
	if policies, ok := m.roles[role]; ok {
		return policies, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memSecretStore) SetRolePolicies(ctx context.Context, role string, policies []string) error {
	m.roles[role] = policies
	return nil
}

type memCatalog struct {
	data map[string][]byte
}

func newMemCatalog() *memCatalog {
	return &memCatalog{data: map[string][]byte{}}
}

func (m *memCatalog) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memCatalog) Put(ctx context.Context, key string, value []byte) error {
	m.data[key] = value
	return nil
}

func (m *memCatalog) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *memCatalog) List(ctx context.Context, prefix string) ([]storage.KVEntry, error) {
	var entries []storage.KVEntry
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			entries = append(entries, storage.KVEntry{Key: k, Value: v})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// --- test helpers ---

func newTestServer() (*Server, *memSecretStore, *memCatalog) {
	store := newMemSecretStore()
	catalog := newMemCatalog()
	seedCatalog(catalog)

	types := registry.New(catalog)
	b := broker.New(store, catalog, types, zerolog.Nop())
	srv := NewServer(b, types, Config{ListenAddr: ":0"})
	return srv, store, catalog
}

func seedCatalog(catalog *memCatalog) {
	put := func(key string, v any) {
		raw, _ := json.Marshal(v)
		catalog.data[key] = raw
	}
	put("secret-types/api-key", map[string]any{
		"name":            "API Key",
		"format":          "string",
		"fields":          []string{"key", "api_url", "description"},
		"rotation_period": "90d",
	})
	put("secret-types/jwt", map[string]any{
		"name":            "JWT Signing Key",
		"format":          "pem",
		"fields":          []string{"private_key", "public_key", "key_id", "algorithm"},
		"rotation_period": "30d",
	})
	put("service-registry/billing-svc", map[string]any{
		"description":  "billing service",
		"secret_types": []string{"api-key"},
	})
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func getJSON(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func doDelete(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("DELETE", path, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decoding response: %v (body: %s)", err, w.Body.String())
	}
	return result
}

func createAPIKey(t *testing.T, handler http.Handler, owner string, consumers []string) *httptest.ResponseRecorder {
	t.Helper()
	return postJSON(t, handler, "/v1/secrets/create", map[string]any{
		"name":  "payment gateway key",
		"type":  "api-key",
		"owner": owner,
		"data": map[string]any{
			"key":         "sk_live_abc123",
			"api_url":     "https://api.payments.example.com",
			"description": "payment gateway",
		},
		"consumers":       consumers,
		"custom_metadata": map[string]string{"service": "payments"},
	})
}

// --- tests ---

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer()
	handler := srv.BuildRouter()

	w := getJSON(t, handler, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "ok" {
		t.Errorf("expected status=ok, got %v", body["status"])
	}
}

func TestCreateSecret(t *testing.T) {
	srv, store, catalog := newTestServer()
	handler := srv.BuildRouter()

	w := createAPIKey(t, handler, "payments-team", []string{"billing-svc"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	meta := body["metadata"].(map[string]any)
	if meta["type"] != "api-key" {
		t.Errorf("expected type=api-key, got %v", meta["type"])
	}
	if meta["path"] != "dynamic-secrets/api-key/payments-team" {
		t.Errorf("unexpected path %v", meta["path"])
	}
	if meta["service"] != "payments" {
		t.Errorf("expected service=payments, got %v", meta["service"])
	}

	if _, ok := store.secrets["api-key/payments-team"]; !ok {
		t.Error("secret payload not written to store")
	}
	if _, ok := catalog.data["secret-metadata/api-key/payments-team"]; !ok {
		t.Error("metadata not written to catalog")
	}
	if _, ok := store.policies["api-key-payments-team"]; !ok {
		t.Error("access policy not written")
	}
}

func TestCreateSecretMissingField(t *testing.T) {
	srv, store, catalog := newTestServer()
	handler := srv.BuildRouter()

	w := postJSON(t, handler, "/v1/secrets/create", map[string]any{
		"type":  "api-key",
		"owner": "payments-team",
		"data":  map[string]any{"key": "sk_live_abc123"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", w.Code, w.Body.String())
	}
	if len(store.secrets) != 0 {
		t.Error("no secret should be written on validation failure")
	}
	if _, ok := catalog.data["secret-metadata/api-key/payments-team"]; ok {
		t.Error("no metadata should be written on validation failure")
	}
}

func TestCreateSecretUnknownType(t *testing.T) {
	srv, _, _ := newTestServer()
	handler := srv.BuildRouter()

	w := postJSON(t, handler, "/v1/secrets/create", map[string]any{
		"type":  "ssh-cert",
		"owner": "infra-team",
		"data":  map[string]any{"key": "x"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", w.Code, w.Body.String())
	}
}

func TestCreateSecretPolicyFailureIsWarning(t *testing.T) {
	srv, store, _ := newTestServer()
	store.failWritePolicy = true
	handler := srv.BuildRouter()

	w := createAPIKey(t, handler, "payments-team", []string{"billing-svc"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create should succeed despite policy failure: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	warnings, _ := body["warnings"].([]any)
	if len(warnings) == 0 {
		t.Error("expected a warning for the failed policy write")
	}
	if _, ok := store.secrets["api-key/payments-team"]; !ok {
		t.Error("secret should still be written")
	}
}

func TestGetSecret(t *testing.T) {
	srv, _, _ := newTestServer()
	handler := srv.BuildRouter()
	createAPIKey(t, handler, "payments-team", nil)

	w := getJSON(t, handler, "/v1/secrets/api-key/payments-team")
	if w.Code != http.StatusOK {
		t.Fatalf("get failed: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	data := body["data"].(map[string]any)
	if data["key"] != "sk_live_abc123" {
		t.Errorf("expected key=sk_live_abc123, got %v", data["key"])
	}
	if data["created_at"] == nil || data["rotation_due"] == nil {
		t.Error("expected server-set timestamps in payload")
	}
}

func TestGetSecretNotFound(t *testing.T) {
	srv, _, _ := newTestServer()
	handler := srv.BuildRouter()

	w := getJSON(t, handler, "/v1/secrets/api-key/nope")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListSecrets(t *testing.T) {
	srv, _, _ := newTestServer()
	handler := srv.BuildRouter()
	createAPIKey(t, handler, "payments-team", nil)
	createAPIKey(t, handler, "search-team", nil)

	w := getJSON(t, handler, "/v1/secrets/api-key")
	if w.Code != http.StatusOK {
		t.Fatalf("list failed: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	secrets := body["secrets"].([]any)
	if len(secrets) != 2 {
		t.Errorf("expected 2 secrets, got %d", len(secrets))
	}
}

func TestRotateSecret(t *testing.T) {
	srv, store, _ := newTestServer()
	handler := srv.BuildRouter()
	createAPIKey(t, handler, "payments-team", nil)

	w := postJSON(t, handler, "/v1/secrets/api-key/payments-team/rotate", map[string]any{
		"key":         "sk_live_def456",
		"api_url":     "https://api.payments.example.com",
		"description": "payment gateway",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("rotate failed: %d %s", w.Code, w.Body.String())
	}
	if store.secrets["api-key/payments-team"]["key"] != "sk_live_def456" {
		t.Error("store should hold the rotated payload")
	}
}

func TestRotateSecretNotFound(t *testing.T) {
	srv, _, _ := newTestServer()
	handler := srv.BuildRouter()

	w := postJSON(t, handler, "/v1/secrets/api-key/nope/rotate", map[string]any{
		"key": "x", "api_url": "y", "description": "z",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", w.Code, w.Body.String())
	}
}

func TestDeleteSecret(t *testing.T) {
	srv, store, catalog := newTestServer()
	handler := srv.BuildRouter()
	createAPIKey(t, handler, "payments-team", nil)

	w := doDelete(t, handler, "/v1/secrets/api-key/payments-team")
	if w.Code != http.StatusOK {
		t.Fatalf("delete failed: %d %s", w.Code, w.Body.String())
	}
	if _, ok := store.secrets["api-key/payments-team"]; ok {
		t.Error("secret should be gone from the store")
	}
	if _, ok := catalog.data["secret-metadata/api-key/payments-team"]; ok {
		t.Error("metadata should be gone from the catalog")
	}
}

func TestConsumerSecrets(t *testing.T) {
	srv, _, _ := newTestServer()
	handler := srv.BuildRouter()
	createAPIKey(t, handler, "payments-team", []string{"billing-svc"})
	createAPIKey(t, handler, "search-team", []string{"other-svc"})

	w := getJSON(t, handler, "/v1/secrets/service/billing-svc")
	if w.Code != http.StatusOK {
		t.Fatalf("consumer secrets failed: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	secrets := body["secrets"].([]any)
	if len(secrets) != 1 {
		t.Fatalf("expected 1 accessible secret, got %d", len(secrets))
	}
	meta := secrets[0].(map[string]any)
	if meta["owner"] != "payments-team" {
		t.Errorf("expected payments-team secret, got owner=%v", meta["owner"])
	}
}

func TestConsumerSecretsUnknownConsumer(t *testing.T) {
	srv, _, _ := newTestServer()
	handler := srv.BuildRouter()

	w := getJSON(t, handler, "/v1/secrets/service/ghost-svc")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListTypes(t *testing.T) {
	srv, _, _ := newTestServer()
	handler := srv.BuildRouter()

	w := getJSON(t, handler, "/v1/secrets/types")
	if w.Code != http.StatusOK {
		t.Fatalf("types failed: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	types := body["types"].(map[string]any)
	if len(types) != 2 {
		t.Errorf("expected 2 types, got %d", len(types))
	}
	apiKey := types["api-key"].(map[string]any)
	if apiKey["rotation_period"] != "90d" {
		t.Errorf("expected rotation_period=90d, got %v", apiKey["rotation_period"])
	}
}
