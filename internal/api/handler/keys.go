package handler

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/tickettriage/internal/api/middleware"
	"github.com/kiranshivaraju/tickettriage/internal/api/response"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

// KeyAdminStore manages a tenant's API keys.
type KeyAdminStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
}

type createKeyRequest struct {
	Name   string   `json:"name"   validate:"required,max=100"`
	Scopes []string `json:"scopes" validate:"required,min=1,dive,oneof=read write admin"`
}

type createdKeyResponse struct {
	*models.APIKey
	Key string `json:"key"`
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/admin/keys.
// The raw key appears only in this response.
func NewCreateKeyHandler(s KeyAdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenant(w, r)
		if !ok {
			return
		}

		var req createKeyRequest
		if !decode(w, r, &req) {
			return
		}
		slices.Sort(req.Scopes)
		req.Scopes = slices.Compact(req.Scopes)

		gen, err := mw.GenerateKey()
		if err != nil {
			writeError(w, r, err, "API_KEY_NOT_FOUND")
			return
		}
		now := time.Now().UTC()
		key := &models.APIKey{
			ID:        uuid.New(),
			TenantID:  tenantID,
			Name:      req.Name,
			KeyHash:   gen.Hash,
			KeyPrefix: gen.Prefix,
			Scopes:    req.Scopes,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.CreateAPIKey(r.Context(), key); err != nil {
			writeError(w, r, err, "API_KEY_NOT_FOUND")
			return
		}
		response.Created(w, createdKeyResponse{APIKey: key, Key: gen.Raw})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/admin/keys.
func NewListKeysHandler(s KeyAdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenant(w, r)
		if !ok {
			return
		}
		keys, err := s.ListAPIKeys(r.Context(), tenantID)
		if err != nil {
			writeError(w, r, err, "API_KEY_NOT_FOUND")
			return
		}
		response.JSON(w, keys)
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /api/v1/admin/keys/{keyID}.
func NewRevokeKeyHandler(s KeyAdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenant(w, r)
		if !ok {
			return
		}
		keyID, ok := pathUUID(w, r, "keyID", "INVALID_KEY_ID")
		if !ok {
			return
		}
		if err := s.RevokeAPIKey(r.Context(), keyID, tenantID); err != nil {
			writeError(w, r, err, "API_KEY_NOT_FOUND")
			return
		}
		response.NoContent(w)
	}
}
