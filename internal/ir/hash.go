package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainGraph = "cortex/graph/v1"
	DomainTick  = "cortex/tick/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// GraphHash returns the content hash of a graph description. Two
// descriptions hash equal iff their canonical encodings are identical.
func GraphHash(g *GraphSpec) (string, error) {
	canonical, err := MarshalCanonical(g.ToIR())
	if err != nil {
		return "", fmt.Errorf("GraphHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainGraph, canonical), nil
}

// TickID returns a stable identifier for one tick of a session.
func TickID(sessionID string, tick int64) (string, error) {
	canonical, err := MarshalCanonical(IRObject{
		"session_id": IRString(sessionID),
		"tick":       IRInt(tick),
	})
	if err != nil {
		return "", fmt.Errorf("TickID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTick, canonical), nil
}

// MustGraphHash is like GraphHash but panics on error.
// Use only in tests or when the description is known to be valid.
func MustGraphHash(g *GraphSpec) string {
	h, err := GraphHash(g)
	if err != nil {
		panic(err)
	}
	return h
}
