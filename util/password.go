package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
)

// The JWT secret keys both access token signatures and the stored password hashes.
var (
	jwtMutex      sync.RWMutex
	jwtSecretByte = []byte(os.Getenv("JWTSECRET"))
)

func passwordMAC(password string) []byte {
	h := hmac.New(sha256.New, GetJWTSecretByte())
	h.Write([]byte(password))
	return h.Sum(nil)
}

// HashPassword returns the hex HMAC-SHA256 of password under the JWT secret.
func HashPassword(password string) string {
	return hex.EncodeToString(passwordMAC(password))
}

// VerifyPassword reports whether password hashes to hashed, comparing in constant time.
func VerifyPassword(password, hashed string) bool {
	want, err := hex.DecodeString(hashed)
	if err != nil {
		return false
	}
	return hmac.Equal(passwordMAC(password), want)
}

// SetJWTSecret replaces the secret. Tests that depend on a fixed secret must not run in parallel.
func SetJWTSecret(secret string) {
	jwtMutex.Lock()
	defer jwtMutex.Unlock()
	jwtSecretByte = []byte(secret)
}

// GetJWTSecretByte returns a copy of the current secret.
func GetJWTSecretByte() []byte {
	jwtMutex.RLock()
	defer jwtMutex.RUnlock()
	return append([]byte(nil), jwtSecretByte...)
}
