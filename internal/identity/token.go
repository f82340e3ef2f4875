package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Plaintext bearer tokens travel as "<id>|<secret>". The secret never touches
// storage; lookups go through the digest.

var errMalformedToken = errors.New("identity: malformed token")

// NewPlainToken mints a token id plus a random secret.
func NewPlainToken() (id, secret string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	return uuid.NewString(), base64.RawURLEncoding.EncodeToString(raw), nil
}

// ComposeToken joins id and secret into the wire format handed to clients.
func ComposeToken(id, secret string) string {
	return id + "|" + secret
}

// SplitToken parses the wire format back into id and secret.
func SplitToken(token string) (id, secret string, err error) {
	id, secret, ok := strings.Cut(token, "|")
	if !ok || id == "" || secret == "" {
		return "", "", errMalformedToken
	}
	return id, secret, nil
}

// HashSecret returns the hex SHA-256 digest stored for a token secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// SecretMatches compares a presented secret against the stored digest in
// constant time.
func SecretMatches(secret, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashSecret(secret)), []byte(storedHash)) == 1
}
