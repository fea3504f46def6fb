package store

import (
	"context"
	"fmt"
)

// ReadSession returns the session with the given id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, graph_name, graph_hash, seed, engine_version, ir_version
		FROM sessions
		WHERE id = ?
	`, id).Scan(
		&sess.ID,
		&sess.GraphName,
		&sess.GraphHash,
		&sess.Seed,
		&sess.EngineVersion,
		&sess.IRVersion,
	)
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// ListSessions returns every session ordered by id. UUIDv7 ids sort in
// creation order.
//
// Returns an empty slice (not nil) if no sessions exist.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, graph_name, graph_hash, seed, engine_version, ir_version
		FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(
			&sess.ID,
			&sess.GraphName,
			&sess.GraphHash,
			&sess.Seed,
			&sess.EngineVersion,
			&sess.IRVersion,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadTicks returns every tick of a session ordered by seq.
//
// Returns an empty slice (not nil) if the session recorded no ticks.
func (s *Store) ReadTicks(ctx context.Context, sessionID string) ([]TickRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, seq, tick, request, outputs
		FROM ticks
		WHERE session_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	ticks := []TickRecord{}
	for rows.Next() {
		var (
			rec     TickRecord
			outputs string
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Seq, &rec.Tick, &rec.Request, &outputs); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		if rec.Outputs, err = unmarshalOutputs(outputs); err != nil {
			return nil, fmt.Errorf("tick %s: %w", rec.ID, err)
		}
		ticks = append(ticks, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}
	return ticks, nil
}

// ReadResolutions returns every resolution of a session ordered by seq.
//
// Returns an empty slice (not nil) if the session recorded none.
func (s *Store) ReadResolutions(ctx context.Context, sessionID string) ([]ResolutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, tick, row, col, resolved, inputs
		FROM resolutions
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query resolutions: %w", err)
	}
	defer rows.Close()

	resolutions := []ResolutionRecord{}
	for rows.Next() {
		var (
			rec    ResolutionRecord
			inputs string
		)
		if err := rows.Scan(&rec.SessionID, &rec.Seq, &rec.Tick, &rec.Row, &rec.Col, &rec.Resolved, &inputs); err != nil {
			return nil, fmt.Errorf("scan resolution: %w", err)
		}
		if rec.Inputs, err = unmarshalInputs(inputs); err != nil {
			return nil, fmt.Errorf("resolution seq %d: %w", rec.Seq, err)
		}
		resolutions = append(resolutions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resolutions: %w", err)
	}
	return resolutions, nil
}
