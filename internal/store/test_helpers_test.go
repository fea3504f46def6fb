package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// pragma reads a pragma's current value.
func pragma(t *testing.T, s *Store, name string) string {
	t.Helper()
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		t.Fatalf("PRAGMA %s: %v", name, err)
	}
	return value
}

// createTestSession writes a session with minimal required fields.
func createTestSession(t *testing.T, s *Store, id string) Session {
	t.Helper()
	sess := Session{
		ID:            id,
		GraphName:     "chain",
		GraphHash:     "test-hash",
		Seed:          42,
		EngineVersion: "0.1.0",
		IRVersion:     "1",
	}
	if err := s.WriteSession(context.Background(), sess); err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
	return sess
}

// createTestTick creates a tick record with one active output.
func createTestTick(sessionID string, seq, tick int64) TickRecord {
	return TickRecord{
		ID:        fmt.Sprintf("%s-tick-%d", sessionID, tick),
		SessionID: sessionID,
		Seq:       seq,
		Tick:      tick,
		Request:   "learn",
		Outputs: []OutputRecord{
			{ID: 1, Name: "top", Active: true, Vector: []float64{1, 5, 1, 1, 0.25, 0.25}},
			{ID: 2, Name: "idle"},
		},
	}
}
