package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainSpec   = "trivet/spec/v1"
	DomainClause = "trivet/clause/v1"
	DomainBundle = "trivet/bundle/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte separator prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SpecHash computes the content hash of a parsed specification document.
// Stable across runs for byte-equivalent spec content, independent of
// map iteration order.
func SpecHash(doc map[string]any) (string, error) {
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("SpecHash: marshal: %w", err)
	}
	return hashWithDomain(DomainSpec, canonical), nil
}

// ClauseID computes the content-addressed ID for a clause.
//
// The index disambiguates textually identical clauses within the same
// scope and kind; everything else is derived from spec content, so the
// same spec always yields the same clause IDs.
func ClauseID(scope string, kind ClauseKind, index int, expression string) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"scope":      scope,
		"kind":       string(kind),
		"index":      index,
		"expression": expression,
	})
	if err != nil {
		return "", fmt.Errorf("ClauseID: marshal: %w", err)
	}
	return hashWithDomain(DomainClause, canonical), nil
}

// BundleID computes the content-addressed ID of a proof bundle record.
// A bundle is uniquely determined by the run it archives and the spec
// content it was verified against.
func BundleID(runID, specHash string) string {
	return hashWithDomain(DomainBundle, []byte(runID+"\x00"+specHash))
}

// MustClauseID is like ClauseID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustClauseID(scope string, kind ClauseKind, index int, expression string) string {
	id, err := ClauseID(scope, kind, index, expression)
	if err != nil {
		panic(err)
	}
	return id
}

// RunIDGenerator produces run identifiers.
// Implemented by UUIDv7Generator (production) and a fixed generator in
// internal/testutil (tests).
type RunIDGenerator interface {
	NewRunID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, making run IDs
// sortable by creation time, which keeps bundle listings chronological
// without a separate counter.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewRunID creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) NewRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}
