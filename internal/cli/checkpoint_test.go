package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bepsel/internal/selector"
	"github.com/roach88/bepsel/internal/store"
)

// seedDatabase runs part1 then part2 (resumed) into a fresh database.
func seedDatabase(t *testing.T) (string, SelectResult, SelectResult) {
	t.Helper()
	db := filepath.Join(t.TempDir(), "bepsel.db")

	out, _, err := executeCLI(t, nil, "--format", "json", "select", part1, "--db", db, "--stream", "ci")
	require.NoError(t, err)
	first := decodeSelect(t, out)

	out, _, err = executeCLI(t, nil, "--format", "json", "select", part2, "--db", db, "--stream", "ci", "--resume")
	require.NoError(t, err)
	second := decodeSelect(t, out)

	return db, first, second
}

func TestCheckpointShow(t *testing.T) {
	db, _, second := seedDatabase(t)

	out, _, err := executeCLI(t, nil, "--format", "json", "checkpoint", "show", "--db", db, "--stream", "ci")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   CheckpointInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	info := resp.Data
	assert.Equal(t, int64(2), info.ID)
	assert.Equal(t, second.RunID, info.RunID)
	assert.Equal(t, "ci", info.Stream)
	assert.Equal(t, int64(1), info.Seq)
	assert.Equal(t, selector.AspectKind, info.Kind)
	assert.Equal(t, selector.CheckpointVersion, info.Version)
	assert.Positive(t, info.Bytes)
	assert.Len(t, info.Digest, 64)
	assert.Equal(t, selector.Stats{Consumed: 2}, info.Stats)
}

func TestCheckpointShow_Text(t *testing.T) {
	db, _, _ := seedDatabase(t)

	out, _, err := executeCLI(t, nil, "checkpoint", "show", "--db", db, "--stream", "ci")
	require.NoError(t, err)
	assert.Contains(t, out, "checkpoint 2 (stream ci, run ")
	assert.Contains(t, out, "kind: bepsel.aspect v1")
	assert.Contains(t, out, "pending 0, resolved 0, consumed 2")
}

func TestCheckpointShow_NoCheckpoint(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")

	out, _, err := executeCLI(t, nil, "checkpoint", "show", "--db", db, "--stream", "nothing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "Error [E002]: no checkpoint for stream nothing\n", out)
}

func TestCheckpointShow_RequiresDB(t *testing.T) {
	_, _, err := executeCLI(t, nil, "checkpoint", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
}

func TestCheckpointRuns(t *testing.T) {
	db, first, second := seedDatabase(t)

	out, _, err := executeCLI(t, nil, "--format", "json", "checkpoint", "runs", "--db", db, "--stream", "ci")
	require.NoError(t, err)

	var resp struct {
		Status string  `json:"status"`
		Data   RunList `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []store.Run{
		{ID: first.RunID, Stream: "ci"},
		{ID: second.RunID, Stream: "ci", ResumedFrom: 1},
	}, resp.Data.Runs)

	out, _, err = executeCLI(t, nil, "checkpoint", "runs", "--db", db, "--stream", "ci")
	require.NoError(t, err)
	assert.Contains(t, out, "2 run(s) for stream ci")
	assert.Contains(t, out, second.RunID+" (resumed from checkpoint 1)")
}

func TestCheckpointRuns_UnknownStream(t *testing.T) {
	db, _, _ := seedDatabase(t)

	out, _, err := executeCLI(t, nil, "checkpoint", "runs", "--db", db, "--stream", "other")
	require.NoError(t, err)
	assert.Equal(t, "No runs recorded for stream other.\n", out)
}
