package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielpatrickdp/continuity/internal/cipher"
)

// #region layout
const (
	backupDir  = "backups"
	summaryDir = "mission_critical"
)

// Sealer encrypts payloads before they reach disk.
type Sealer interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(envelope []byte) ([]byte, error)
}

type layout struct {
	root string
}

func (l layout) primary(id string) string {
	return filepath.Join(l.root, id+".json")
}

func (l layout) backup(id string) string {
	return filepath.Join(l.root, backupDir, id+"_backup.json")
}

func (l layout) summary(id string) string {
	return filepath.Join(l.root, summaryDir, "mission_"+id+".json")
}

func (l layout) paths(id string) []string {
	return []string{l.primary(id), l.backup(id), l.summary(id)}
}

func (l layout) ensure() error {
	for _, dir := range []string{l.root, filepath.Join(l.root, backupDir), filepath.Join(l.root, summaryDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// validSessionID rejects anything that could escape the storage root.
func validSessionID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

// #endregion layout

// #region encode

func encodePayload(v any, sealer Sealer) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	if sealer == nil {
		return data, nil
	}
	sealed, err := sealer.Encrypt(data)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return sealed, nil
}

func decodePayload(data []byte, sealer Sealer, v any) error {
	if cipher.IsSealed(data) {
		if sealer == nil {
			return errors.New("record is sealed but encryption is disabled")
		}
		plain, err := sealer.Decrypt(data)
		if err != nil {
			return err
		}
		data = plain
	}
	return json.Unmarshal(data, v)
}

// #endregion encode

// #region write

// writeFileAtomic replaces path via a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// writeAll attempts all three locations and reports each outcome.
func (l layout) writeAll(rec StateRecord, sealer Sealer) WriteReport {
	report := WriteReport{SessionID: rec.SessionID}

	full, fullErr := encodePayload(rec, sealer)
	summary, summaryErr := encodePayload(summarize(rec), sealer)

	write := func(loc Location, path string, data []byte, encErr error) {
		err := encErr
		if err == nil {
			err = writeFileAtomic(path, data)
		}
		if err != nil {
			err = fmt.Errorf("%s write %s: %w", loc, path, err)
		}
		report.Results = append(report.Results, LocationResult{Location: loc, Path: path, Err: err})
	}

	write(LocationPrimary, l.primary(rec.SessionID), full, fullErr)
	write(LocationBackup, l.backup(rec.SessionID), full, fullErr)
	write(LocationSummary, l.summary(rec.SessionID), summary, summaryErr)
	return report
}

func summarize(rec StateRecord) missionSummary {
	critical := make([]MemoryAnchor, 0, len(rec.MemoryAnchors))
	for _, a := range rec.MemoryAnchors {
		if a.Importance == ImportanceCritical {
			critical = append(critical, a)
		}
	}
	return missionSummary{
		SessionID:      rec.SessionID,
		Mission:        rec.MissionContext,
		EmotionalState: rec.EmotionalState,
		KeyAnchors:     critical,
	}
}

// #endregion write

// #region read

// readRecord loads and validates the primary record for id.
func (l layout) readRecord(id string, sealer Sealer) (StateRecord, error) {
	data, err := os.ReadFile(l.primary(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StateRecord{}, &NotFoundError{SessionID: id}
		}
		return StateRecord{}, fmt.Errorf("read session %s: %w", id, err)
	}

	var rec StateRecord
	if err := decodePayload(data, sealer, &rec); err != nil {
		return StateRecord{}, &CorruptRecordError{SessionID: id, Err: err}
	}
	if err := checkShape(id, rec); err != nil {
		return StateRecord{}, &CorruptRecordError{SessionID: id, Err: err}
	}
	return rec, nil
}

func checkShape(id string, rec StateRecord) error {
	if rec.SessionID != id {
		return fmt.Errorf("session_id %q does not match file", rec.SessionID)
	}
	if rec.CreatedAt.IsZero() {
		return errors.New("missing created_at")
	}
	if len(rec.MemoryAnchors) == 0 {
		return errors.New("missing memory_anchors")
	}
	for i, a := range rec.MemoryAnchors {
		switch a.Importance {
		case ImportanceCritical, ImportanceHigh, ImportanceMedium:
		default:
			return fmt.Errorf("anchor %d: unknown importance %q", i, a.Importance)
		}
		if a.Weight < 0 || a.Weight > 1 {
			return fmt.Errorf("anchor %d: weight %v out of range", i, a.Weight)
		}
	}
	return nil
}

// #endregion read
