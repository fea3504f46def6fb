package store

import (
	"context"
	"fmt"
	"sort"
)

// EventKind distinguishes the entries of a session history.
type EventKind string

const (
	EventTick       EventKind = "tick"
	EventResolution EventKind = "resolution"
)

// Event is one entry of a session history. Exactly one of Tick and
// Resolution is set, matching Kind.
type Event struct {
	Seq        int64             `json:"seq"`
	Kind       EventKind         `json:"kind"`
	Tick       *TickRecord       `json:"tick,omitempty"`
	Resolution *ResolutionRecord `json:"resolution,omitempty"`
}

// ReplaySession returns the ticks and resolutions of a session merged
// into one history ordered by seq.
//
// Returns an empty slice (not nil) if the session recorded nothing.
func (s *Store) ReplaySession(ctx context.Context, sessionID string) ([]Event, error) {
	ticks, err := s.ReadTicks(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("replay session %s: %w", sessionID, err)
	}
	resolutions, err := s.ReadResolutions(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("replay session %s: %w", sessionID, err)
	}

	events := make([]Event, 0, len(ticks)+len(resolutions))
	for i := range ticks {
		events = append(events, Event{Seq: ticks[i].Seq, Kind: EventTick, Tick: &ticks[i]})
	}
	for i := range resolutions {
		events = append(events, Event{Seq: resolutions[i].Seq, Kind: EventResolution, Resolution: &resolutions[i]})
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

// LastSeq returns the highest seq recorded for a session, or 0 if none.
func (s *Store) LastSeq(ctx context.Context, sessionID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM (
			SELECT seq FROM ticks WHERE session_id = ?
			UNION ALL
			SELECT seq FROM resolutions WHERE session_id = ?
		)
	`, sessionID, sessionID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq for %s: %w", sessionID, err)
	}
	return seq, nil
}
