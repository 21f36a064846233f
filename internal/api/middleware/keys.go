package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/kiranshivaraju/tickettriage/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	// KeyPrefixLen is the number of leading key characters stored in clear for lookup.
	KeyPrefixLen = 8
	keyTag       = "tt_"
	keyRandBytes = 24
)

const (
	ScopeRead  = models.ScopeRead
	ScopeWrite = models.ScopeWrite
	ScopeAdmin = models.ScopeAdmin
)

var knownScopes = []string{ScopeRead, ScopeWrite, ScopeAdmin}

// ValidScope reports whether s is a scope API keys can carry.
func ValidScope(s string) bool {
	return slices.Contains(knownScopes, s)
}

// GeneratedKey is a freshly minted API key. Raw is shown once; only Hash is stored.
type GeneratedKey struct {
	Raw    string
	Prefix string
	Hash   string
}

// GenerateKey creates a random API key and its bcrypt hash.
func GenerateKey() (GeneratedKey, error) {
	buf := make([]byte, keyRandBytes)
	if _, err := rand.Read(buf); err != nil {
		return GeneratedKey{}, fmt.Errorf("read random bytes: %w", err)
	}
	raw := keyTag + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return GeneratedKey{}, fmt.Errorf("hash api key: %w", err)
	}
	return GeneratedKey{Raw: raw, Prefix: raw[:KeyPrefixLen], Hash: string(hash)}, nil
}
