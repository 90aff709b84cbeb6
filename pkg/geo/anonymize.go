package geo

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// TokenLength is the length of an anonymized IP token in hex characters.
const TokenLength = 16

// Anonymizer turns IP addresses into short opaque tokens with a keyed
// BLAKE2b hash. The same address and salt always give the same token.
type Anonymizer struct {
	key []byte
}

// NewAnonymizer returns an anonymizer keyed by salt.
func NewAnonymizer(salt string) *Anonymizer {
	// blake2b keys are at most 64 bytes.
	key := blake2b.Sum256([]byte(salt))
	return &Anonymizer{key: key[:]}
}

// Anonymize returns the token for ip, or "" for an empty ip.
func (a *Anonymizer) Anonymize(ip string) string {
	if ip == "" {
		return ""
	}
	h, err := blake2b.New256(a.key)
	if err != nil {
		// Unreachable: the key is always 32 bytes.
		panic(err)
	}
	h.Write([]byte(ip))
	return hex.EncodeToString(h.Sum(nil))[:TokenLength]
}
