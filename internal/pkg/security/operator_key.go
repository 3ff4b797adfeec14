package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HashOperatorKey returns the hex SHA-256 of a trimmed operator key.
func HashOperatorKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// OperatorGuard checks the privileged operator credential. Only the hash of
// the configured key is held in memory.
type OperatorGuard struct {
	keyHash []byte
}

func NewOperatorGuard(key string) *OperatorGuard {
	if strings.TrimSpace(key) == "" {
		return &OperatorGuard{}
	}
	return &OperatorGuard{keyHash: []byte(HashOperatorKey(key))}
}

// Allows reports whether presented matches the configured operator key.
// A guard without a configured key allows nobody.
func (g *OperatorGuard) Allows(presented string) bool {
	if g == nil || len(g.keyHash) == 0 || strings.TrimSpace(presented) == "" {
		return false
	}
	return subtle.ConstantTimeCompare(g.keyHash, []byte(HashOperatorKey(presented))) == 1
}
