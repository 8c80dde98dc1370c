package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

func hashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
