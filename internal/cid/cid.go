// Package cid computes content identifiers for record payloads.
//
// A CID is the SHA-256 of the payload's canonical JSON with domain
// separation, so the same payload always yields the same identifier and
// any payload change yields a different one.
package cid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefix for record content addressing.
// Version suffix enables future algorithm migration.
const domainRecord = "lexhost/record/v1"

// FromRecord computes the content identifier for a record payload.
// Returns an error if the payload cannot be canonically marshaled.
func FromRecord(payload map[string]any) (string, error) {
	canonical, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("cid: marshal record: %w", err)
	}
	return hashWithDomain(domainRecord, canonical), nil
}

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
