package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LatestCheckpoint returns the most recently written checkpoint for stream.
// The stored digest is verified; a mismatch is an error, not a miss.
func (s *Store) LatestCheckpoint(ctx context.Context, stream string) (CheckpointRecord, bool, error) {
	var cp CheckpointRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, stream, seq, digest, data
		FROM checkpoints
		WHERE stream = ?
		ORDER BY id DESC
		LIMIT 1
	`, stream).Scan(&cp.ID, &cp.RunID, &cp.Stream, &cp.Seq, &cp.Digest, &cp.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return CheckpointRecord{}, false, nil
	}
	if err != nil {
		return CheckpointRecord{}, false, fmt.Errorf("read checkpoint: %w", err)
	}

	if got := CheckpointDigest(cp.Data); got != cp.Digest {
		return CheckpointRecord{}, false, fmt.Errorf("read checkpoint %d: digest mismatch (stored %s, computed %s)", cp.ID, cp.Digest, got)
	}
	return cp, true, nil
}

// ReadArtifacts returns all artifacts of a run ordered by seq, id.
// Returns an empty slice (not nil) when the run emitted nothing.
func (s *Store) ReadArtifacts(ctx context.Context, runID string) ([]ArtifactRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, seq, label, files, digest
		FROM artifacts
		WHERE run_id = ?
		ORDER BY seq ASC, id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	records := []ArtifactRecord{}
	for rows.Next() {
		var (
			rec   ArtifactRecord
			files string
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Seq, &rec.Artifact.Label, &files, &rec.Digest); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		rec.Artifact.Files, err = unmarshalFiles(files)
		if err != nil {
			return nil, fmt.Errorf("artifact %d: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return records, nil
}

// ListRuns returns the runs recorded for stream in insertion order.
func (s *Store) ListRuns(ctx context.Context, stream string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stream, resumed_from
		FROM runs
		WHERE stream = ?
		ORDER BY rowid ASC
	`, stream)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			run     Run
			resumed sql.NullInt64
		)
		if err := rows.Scan(&run.ID, &run.Stream, &resumed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.ResumedFrom = resumed.Int64
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
