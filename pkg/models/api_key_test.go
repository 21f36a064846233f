package models_test

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/tickettriage/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestScopesGrant(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		want   string
		ok     bool
	}{
		{"exact", []string{models.ScopeRead}, models.ScopeRead, true},
		{"missing", []string{models.ScopeRead}, models.ScopeWrite, false},
		{"admin implies read", []string{models.ScopeAdmin}, models.ScopeRead, true},
		{"admin implies write", []string{models.ScopeAdmin}, models.ScopeWrite, true},
		{"write does not imply admin", []string{models.ScopeRead, models.ScopeWrite}, models.ScopeAdmin, false},
		{"no scopes", nil, models.ScopeRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, models.ScopesGrant(tt.scopes, tt.want))
		})
	}
}

func TestAPIKey_Revoked(t *testing.T) {
	k := &models.APIKey{}
	assert.False(t, k.Revoked())

	now := time.Now()
	k.DeletedAt = &now
	assert.True(t, k.Revoked())
}

func TestKeyActor(t *testing.T) {
	assert.Equal(t, "api_key:zendesk", models.KeyActor("zendesk"))
}
