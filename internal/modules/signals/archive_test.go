package signals

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kabuplan/kabuplan/internal/domain"
)

func TestArchiveWriteAndReadRun(t *testing.T) {
	dir := t.TempDir()
	archive, err := NewArchive(dir, zerolog.Nop())
	require.NoError(t, err)

	asOf := time.Date(2024, 6, 3, 15, 30, 0, 0, time.UTC)
	sigs := sampleSignals("run-1", asOf)

	require.NoError(t, archive.WriteRun("run-1", asOf, sigs))

	jsonPath := filepath.Join(dir, "2024-06-03_run-1.json")
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)

	var envelope struct {
		RunID   string          `json:"run_id"`
		AsOf    string          `json:"as_of"`
		Signals []domain.Signal `json:"signals"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, "run-1", envelope.RunID)
	assert.Equal(t, "2024-06-03", envelope.AsOf)
	require.Len(t, envelope.Signals, 2)
	assert.Equal(t, "7203", envelope.Signals[0].Ticker)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp")
	}

	got, err := archive.ReadRun(asOf, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(300), got[0].SuggestedQty)
}

func TestArchiveWritesMsgpackTwin(t *testing.T) {
	dir := t.TempDir()
	archive, err := NewArchive(dir, zerolog.Nop())
	require.NoError(t, err)

	asOf := time.Date(2024, 6, 3, 15, 30, 0, 0, time.UTC)
	require.NoError(t, archive.WriteRun("run-1", asOf, sampleSignals("run-1", asOf)))

	data, err := os.ReadFile(filepath.Join(dir, "2024-06-03_run-1.msgpack"))
	require.NoError(t, err)

	var envelope archiveEnvelope
	require.NoError(t, msgpack.Unmarshal(data, &envelope))
	assert.Equal(t, "run-1", envelope.RunID)
	require.Len(t, envelope.Signals, 2)
}

func TestArchiveEmptyRun(t *testing.T) {
	dir := t.TempDir()
	archive, err := NewArchive(dir, zerolog.Nop())
	require.NoError(t, err)

	asOf := time.Date(2024, 6, 3, 15, 30, 0, 0, time.UTC)
	require.NoError(t, archive.WriteRun("run-empty", asOf, nil))

	got, err := archive.ReadRun(asOf, "run-empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestArchiveMissingRun(t *testing.T) {
	dir := t.TempDir()
	archive, err := NewArchive(dir, zerolog.Nop())
	require.NoError(t, err)

	_, err = archive.ReadRun(time.Now(), "no-such-run")
	assert.Error(t, err)
}
