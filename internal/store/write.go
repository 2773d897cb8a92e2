package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// BeginRun records a run. Re-recording an existing run id is a no-op.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	var resumed sql.NullInt64
	if run.ResumedFrom != 0 {
		resumed = sql.NullInt64{Int64: run.ResumedFrom, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, stream, resumed_from)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Stream, resumed)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", run.ID, err)
	}
	return nil
}

// WriteCheckpoint stores a selector snapshot and returns its id.
//
// The digest is computed here over Data. Writing the same (run_id, seq)
// twice keeps the first row and returns its id.
func (s *Store) WriteCheckpoint(ctx context.Context, cp CheckpointRecord) (int64, error) {
	if len(cp.Data) == 0 {
		return 0, errors.New("write checkpoint: empty data")
	}
	digest := CheckpointDigest(cp.Data)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, stream, seq, digest, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`, cp.RunID, cp.Stream, cp.Seq, digest, cp.Data)
	if err != nil {
		return 0, fmt.Errorf("write checkpoint: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("write checkpoint: %w", err)
	}
	if rows == 1 {
		return res.LastInsertId()
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM checkpoints WHERE run_id = ? AND seq = ?`,
		cp.RunID, cp.Seq,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("write checkpoint: lookup existing: %w", err)
	}
	return id, nil
}

// WriteArtifact records an emitted artifact. Idempotent on (run_id, seq).
func (s *Store) WriteArtifact(ctx context.Context, rec ArtifactRecord) error {
	files, err := marshalFiles(rec.Artifact.Files)
	if err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	digest, err := ArtifactDigest(rec.Artifact)
	if err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts (run_id, seq, label, files, digest)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`, rec.RunID, rec.Seq, rec.Artifact.Label, files, digest)
	if err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}
