package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainStatement separates statement fingerprints from other hashes.
const DomainStatement = "wodrun/statement/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes a content hash over a statement's fragments and
// child shape. Two statements with the same fingerprint compile to
// structurally identical blocks. Ids and source positions are excluded.
func Fingerprint(stmt *Statement) (string, error) {
	frags := make(Array, len(stmt.Fragments))
	for i, f := range stmt.Fragments {
		value := f.Value
		if value == nil {
			value = Null{}
		}
		frags[i] = Object{
			"kind":  String(f.Kind),
			"value": value,
		}
	}
	shape := make(Array, len(stmt.Children))
	for i, g := range stmt.Children {
		shape[i] = Int(len(g))
	}
	canonical, err := MarshalCanonical(Object{
		"fragments": frags,
		"children":  shape,
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint statement %d: %w", stmt.ID, err)
	}
	return hashWithDomain(DomainStatement, canonical), nil
}
