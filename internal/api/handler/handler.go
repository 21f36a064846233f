// Package handler implements the HTTP handlers of the triage API. Each
// constructor takes the narrow interface it needs and returns an
// http.HandlerFunc.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/tickettriage/internal/api/middleware"
	"github.com/kiranshivaraju/tickettriage/internal/api/response"
	"github.com/kiranshivaraju/tickettriage/internal/embedding"
	"github.com/kiranshivaraju/tickettriage/internal/store"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

const maxBodyBytes = 1 << 20

// ActorTypeHeader lets integrations attribute ticket changes to themselves.
const ActorTypeHeader = "X-Actor-Type"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. On failure it writes
// the 400 response and returns false.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				details[fe.Field()] = fieldMessage(fe)
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", details)
			return false
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return false
	}
	return true
}

func fieldMessage(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters long", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters long", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, param)
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	default:
		return fmt.Sprintf("%s failed validation for '%s'", field, fe.Tag())
	}
}

// tenant returns the authenticated tenant or writes a 401.
func tenant(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
	}
	return id, ok
}

// pathUUID parses a chi URL parameter or writes a 400 with code.
func pathUUID(w http.ResponseWriter, r *http.Request, param, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		response.Error(w, http.StatusBadRequest, code, fmt.Sprintf("Invalid %s format", param), nil)
		return uuid.Nil, false
	}
	return id, true
}

// actorType reads X-Actor-Type. Callers may act as user (default), system or
// webhook; the ai actor is reserved for the triage worker.
func actorType(w http.ResponseWriter, r *http.Request) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(r.Header.Get(ActorTypeHeader)))
	switch v {
	case "":
		return models.ActorUser, true
	case models.ActorUser, models.ActorSystem, models.ActorWebhook:
		return v, true
	}
	response.Error(w, http.StatusBadRequest, "INVALID_ACTOR_TYPE",
		"X-Actor-Type must be one of user, system, webhook", nil)
	return "", false
}

// writeError maps service and store errors onto the error envelope.
// notFoundCode names the missing resource for 404s.
func writeError(w http.ResponseWriter, r *http.Request, err error, notFoundCode string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, notFoundCode, "Resource not found", nil)
	case errors.Is(err, store.ErrInvalidInput):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, store.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, "CONFLICT", "Resource already exists", nil)
	case errors.Is(err, embedding.ErrEmbeddingUnavailable):
		response.Error(w, http.StatusServiceUnavailable, "EMBEDDING_UNAVAILABLE",
			"The embedding provider is not available", nil)
	case errors.Is(err, embedding.ErrEmbeddingRejected):
		response.Error(w, http.StatusBadGateway, "EMBEDDING_REJECTED",
			"The embedding provider rejected the request", nil)
	case errors.Is(err, store.ErrUnavailable):
		response.Error(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
			"The database is temporarily unavailable", nil)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
