package signals

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kabuplan/kabuplan/internal/domain"
)

// Archive writes one pair of files per run: a human-readable JSON array
// and a compact msgpack twin. Files are written atomically via a temp
// file rename so a crashed run never leaves a half-written archive.
type Archive struct {
	dir string
	log zerolog.Logger
}

// NewArchive creates an archive rooted at dir, creating it if needed.
func NewArchive(dir string, log zerolog.Logger) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive dir %s: %w", dir, err)
	}
	return &Archive{
		dir: dir,
		log: log.With().Str("component", "signal_archive").Logger(),
	}, nil
}

// archiveEnvelope is the on-disk record for one run.
type archiveEnvelope struct {
	RunID     string          `json:"run_id" msgpack:"run_id"`
	AsOf      string          `json:"as_of" msgpack:"as_of"`
	CreatedAt string          `json:"created_at" msgpack:"created_at"`
	Signals   []domain.Signal `json:"signals" msgpack:"signals"`
}

// WriteRun archives a run's signals. The JSON file is written first; a
// msgpack failure after that is logged and not fatal, the JSON copy is
// the authoritative one.
func (a *Archive) WriteRun(runID string, asOf time.Time, sigs []domain.Signal) error {
	if sigs == nil {
		sigs = []domain.Signal{}
	}
	envelope := archiveEnvelope{
		RunID:     runID,
		AsOf:      asOf.Format("2006-01-02"),
		CreatedAt: asOf.UTC().Format(time.RFC3339),
		Signals:   sigs,
	}

	base := fmt.Sprintf("%s_%s", asOf.Format("2006-01-02"), runID)

	jsonData, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode archive json: %w", err)
	}
	if err := a.writeAtomic(base+".json", jsonData); err != nil {
		return err
	}

	packed, err := msgpack.Marshal(envelope)
	if err != nil {
		a.log.Error().Err(err).Str("run_id", runID).Msg("Failed to encode msgpack archive")
		return nil
	}
	if err := a.writeAtomic(base+".msgpack", packed); err != nil {
		a.log.Error().Err(err).Str("run_id", runID).Msg("Failed to write msgpack archive")
		return nil
	}

	a.log.Info().
		Str("run_id", runID).
		Int("signals", len(sigs)).
		Str("file", base+".json").
		Msg("Run archived")
	return nil
}

// ReadRun loads an archived run back from its JSON file.
func (a *Archive) ReadRun(asOf time.Time, runID string) ([]domain.Signal, error) {
	path := filepath.Join(a.dir, fmt.Sprintf("%s_%s.json", asOf.Format("2006-01-02"), runID))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive %s: %w", path, err)
	}
	var envelope archiveEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode archive %s: %w", path, err)
	}
	return envelope.Signals, nil
}

func (a *Archive) writeAtomic(name string, data []byte) error {
	final := filepath.Join(a.dir, name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write archive %s: %w", name, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize archive %s: %w", name, err)
	}
	return nil
}
