package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/org/secretbroker/internal/broker"
	"github.com/org/secretbroker/internal/storage"
	"github.com/org/secretbroker/pkg/models"
)

// CreateSecretHandler handles POST /v1/secrets/create
func (s *Server) CreateSecretHandler(w http.ResponseWriter, r *http.Request) {
	var req broker.CreateSecretRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	result, err := s.broker.CreateSecret(r.Context(), req)
	if err != nil {
		writeBrokerError(w, err)
		return
	}

	secretsCreated.WithLabelValues(req.Type).Inc()
	if len(result.Warnings) > 0 {
		policyUpdateWarnings.Add(float64(len(result.Warnings)))
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":   "success",
		"metadata": result.Metadata,
		"warnings": result.Warnings,
	})
}

// GetSecretHandler handles GET /v1/secrets/{type}/{id}
func (s *Server) GetSecretHandler(w http.ResponseWriter, r *http.Request) {
	typeID := chi.URLParam(r, "type")
	secretID := chi.URLParam(r, "id")

	data, err := s.broker.GetSecret(r.Context(), typeID, secretID)
	if err != nil {
		writeBrokerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   data,
	})
}

// ListSecretsHandler handles GET /v1/secrets/{type}
func (s *Server) ListSecretsHandler(w http.ResponseWriter, r *http.Request) {
	typeID := chi.URLParam(r, "type")

	secrets, err := s.broker.ListSecrets(r.Context(), typeID)
	if err != nil {
		writeBrokerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"secrets": secrets,
	})
}

// RotateSecretHandler handles POST /v1/secrets/{type}/{id}/rotate
func (s *Server) RotateSecretHandler(w http.ResponseWriter, r *http.Request) {
	typeID := chi.URLParam(r, "type")
	secretID := chi.URLParam(r, "id")

	var data models.SecretData
	if err := decodeJSON(r, &data); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	if err := s.broker.RotateSecret(r.Context(), typeID, secretID, data); err != nil {
		writeBrokerError(w, err)
		return
	}

	secretsRotated.WithLabelValues(typeID).Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("secret %s/%s rotated", typeID, secretID),
	})
}

// DeleteSecretHandler handles DELETE /v1/secrets/{type}/{id}
func (s *Server) DeleteSecretHandler(w http.ResponseWriter, r *http.Request) {
	typeID := chi.URLParam(r, "type")
	secretID := chi.URLParam(r, "id")

	if err := s.broker.DeleteSecret(r.Context(), typeID, secretID); err != nil {
		writeBrokerError(w, err)
		return
	}

	secretsDeleted.WithLabelValues(typeID).Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("secret %s/%s deleted", typeID, secretID),
	})
}

// ConsumerSecretsHandler handles GET /v1/secrets/service/{consumer}
func (s *Server) ConsumerSecretsHandler(w http.ResponseWriter, r *http.Request) {
	consumerID := chi.URLParam(r, "consumer")

	secrets, err := s.broker.GetConsumerSecrets(r.Context(), consumerID)
	if err != nil {
		writeBrokerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"secrets": secrets,
	})
}

// ListTypesHandler handles GET /v1/secrets/types
func (s *Server) ListTypesHandler(w http.ResponseWriter, r *http.Request) {
	types, err := s.types.ListTypes(r.Context())
	if err != nil {
		writeBrokerError(w, err)
		return
	}

	byID := make(map[string]models.SecretType, len(types))
	for _, t := range types {
		byID[t.ID] = t
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"types":  byID,
	})
}

// HealthHandler handles GET /health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// writeBrokerError maps broker errors onto the HTTP status taxonomy:
// validation failures are 400, missing records 404, store failures 500.
func writeBrokerError(w http.ResponseWriter, err error) {
	var missing *broker.MissingFieldError
	switch {
	case errors.Is(err, broker.ErrInvalidType), errors.As(err, &missing):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
