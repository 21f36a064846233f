package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Scopes an API key can carry. Admin satisfies every scope check.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

// APIKey is a tenant-bound credential used by helpdesk integrations and
// operators. Only the bcrypt hash is persisted; the raw key is returned once.
type APIKey struct {
	ID         uuid.UUID  `db:"id"           json:"id"`
	TenantID   uuid.UUID  `db:"tenant_id"    json:"tenant_id"`
	Name       string     `db:"name"         json:"name"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	KeyPrefix  string     `db:"key_prefix"   json:"key_prefix"`
	Scopes     []string   `db:"scopes"       json:"scopes"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	DeletedAt  *time.Time `db:"deleted_at"   json:"-"`
	CreatedAt  time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"   json:"updated_at"`
}

// Revoked reports whether the key has been soft-deleted.
func (k *APIKey) Revoked() bool {
	return k.DeletedAt != nil
}

// ScopesGrant reports whether a key holding scopes may act with scope.
func ScopesGrant(scopes []string, scope string) bool {
	return slices.Contains(scopes, scope) || slices.Contains(scopes, ScopeAdmin)
}

// KeyActor is the audit actor recorded for requests made with the named key.
func KeyActor(name string) string {
	return "api_key:" + name
}
