package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainModule is the domain prefix for module fingerprints.
// Version suffix enables future algorithm migration.
const DomainModule = "hwpipe/module/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes a content hash of an operation tree. Two trees that
// are structurally equal (ignoring locations) have the same fingerprint.
func Fingerprint(op *Operation) (string, error) {
	canonical, err := MarshalCanonical(canonicalTree(op))
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainModule, canonical), nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests.
func MustFingerprint(op *Operation) string {
	fp, err := Fingerprint(op)
	if err != nil {
		panic(err)
	}
	return fp
}
