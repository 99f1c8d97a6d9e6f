package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/btouchard/craftlist/internal/config"
)

const tokenPrefix = "cl_"

// Identity is the holder of a valid API token.
type Identity struct {
	Name   string
	UserID int64
}

// GenerateToken returns a new random API token and its SHA-256 hex digest.
// Only the digest belongs in the configuration.
func GenerateToken() (token, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	token = tokenPrefix + hex.EncodeToString(b)
	return token, HashToken(token), nil
}

// HashToken returns the SHA-256 hex digest of token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

type tokenEntry struct {
	hash     []byte
	identity Identity
}

// TokenSet validates bearer tokens against the configured digests.
type TokenSet struct {
	entries []tokenEntry
}

// NewTokenSet builds a TokenSet from configured entries. Entries are
// expected to have passed config validation.
func NewTokenSet(entries []config.APITokenEntry) *TokenSet {
	ts := &TokenSet{}
	for _, e := range entries {
		h, err := hex.DecodeString(e.TokenHash)
		if err != nil {
			continue
		}
		ts.entries = append(ts.entries, tokenEntry{
			hash:     h,
			identity: Identity{Name: e.Name, UserID: e.UserID},
		})
	}
	return ts
}

// Len returns the number of usable tokens.
func (ts *TokenSet) Len() int { return len(ts.entries) }

// Lookup returns the identity owning token.
// Every entry is compared so timing does not reveal which one matched.
func (ts *TokenSet) Lookup(token string) (Identity, bool) {
	sum := sha256.Sum256([]byte(token))

	var found Identity
	ok := false
	for _, e := range ts.entries {
		if subtle.ConstantTimeCompare(sum[:], e.hash) == 1 {
			found = e.identity
			ok = true
		}
	}
	return found, ok
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by WithIdentity.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
