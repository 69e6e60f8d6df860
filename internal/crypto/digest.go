package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

const digestPrefix = "sha256:"

// DigestHex returns the SHA-256 digest as lowercase hex.
func DigestHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestWithPrefix returns the SHA-256 digest with the "sha256:" prefix.
func DigestWithPrefix(data []byte) string {
	return digestPrefix + DigestHex(data)
}

// Fingerprint is the prefixed digest of v's canonical JSON.
func Fingerprint(v any) (string, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return DigestWithPrefix(canonical), nil
}
