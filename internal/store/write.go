package store

import (
	"context"
	"fmt"
)

// WriteSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, graph_name, graph_hash, seed, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		sess.GraphName,
		sess.GraphHash,
		sess.Seed,
		sess.EngineVersion,
		sess.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteTick inserts a tick record. Re-recording the same tick of a
// session is silently ignored.
//
// The session must already exist (foreign key constraint).
func (s *Store) WriteTick(ctx context.Context, rec TickRecord) error {
	outputs, err := marshalOutputs(rec.Outputs)
	if err != nil {
		return fmt.Errorf("write tick: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ticks (id, session_id, seq, tick, request, outputs)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		rec.ID,
		rec.SessionID,
		rec.Seq,
		rec.Tick,
		rec.Request,
		outputs,
	)
	if err != nil {
		return fmt.Errorf("write tick: %w", err)
	}
	return nil
}

// WriteResolution inserts a resolution record keyed by (session, seq).
// Duplicate writes are silently ignored.
//
// The session must already exist (foreign key constraint).
func (s *Store) WriteResolution(ctx context.Context, rec ResolutionRecord) error {
	inputs, err := marshalInputs(rec.Inputs)
	if err != nil {
		return fmt.Errorf("write resolution: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resolutions (session_id, seq, tick, row, col, resolved, inputs)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`,
		rec.SessionID,
		rec.Seq,
		rec.Tick,
		rec.Row,
		rec.Col,
		rec.Resolved,
		inputs,
	)
	if err != nil {
		return fmt.Errorf("write resolution: %w", err)
	}
	return nil
}
