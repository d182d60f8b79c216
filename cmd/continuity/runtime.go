package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/continuity/internal/cipher"
	"github.com/danielpatrickdp/continuity/internal/config"
	"github.com/danielpatrickdp/continuity/internal/logging"
	"github.com/danielpatrickdp/continuity/internal/metrics"
	"github.com/danielpatrickdp/continuity/internal/state"
)

// #region runtime

// runtime holds the collaborators shared by the state commands.
type runtime struct {
	store   *state.Store
	audit   *logging.Audit
	metrics *metrics.Metrics
}

func openRuntime(cfg config.Config, log *zap.Logger) (*runtime, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.AuditDB), 0o700); err != nil {
		return nil, fmt.Errorf("audit dir: %w", err)
	}
	audit, err := logging.OpenAudit(cfg.AuditDB)
	if err != nil {
		return nil, err
	}

	var sealer state.Sealer
	if cfg.EncryptionEnabled {
		s, err := cipher.NewSealer(cfg.KeyFile)
		if err != nil {
			audit.Close()
			return nil, fmt.Errorf("encryption key: %w", err)
		}
		sealer = s
	}

	mission, err := missionProfile(cfg)
	if err != nil {
		audit.Close()
		return nil, err
	}

	met := metrics.New()
	store, err := state.NewStore(state.Config{
		Root:     cfg.StoragePath,
		Mission:  mission,
		Sealer:   sealer,
		Recorder: audit,
		Metrics:  met,
		Logger:   log,
	})
	if err != nil {
		audit.Close()
		return nil, err
	}
	return &runtime{store: store, audit: audit, metrics: met}, nil
}

func (r *runtime) Close() error {
	return r.audit.Close()
}

// resume makes id current, or the newest stored session when id is empty.
// It returns "" when there is nothing to resume.
func (r *runtime) resume(id string) (string, error) {
	if id == "" {
		sessions, err := r.store.List()
		if err != nil {
			return "", err
		}
		if len(sessions) == 0 {
			return "", nil
		}
		id = sessions[0].SessionID
	}
	if _, err := r.store.Restore(id); err != nil {
		return "", err
	}
	return id, nil
}

func missionProfile(cfg config.Config) (state.MissionProfile, error) {
	mp := state.MissionProfile{
		PrimaryMission: cfg.Profile.Mission,
		CaseReference:  cfg.Profile.CaseReference,
		CriticalDates:  cfg.CriticalDates(),
	}
	if cfg.TargetDeadline == "" {
		return mp, nil
	}
	for _, d := range cfg.Deadlines {
		if d.Name != cfg.TargetDeadline {
			continue
		}
		at, err := d.Time()
		if err != nil {
			return state.MissionProfile{}, fmt.Errorf("target deadline: %w", err)
		}
		mp.Target = at
	}
	return mp, nil
}

// #endregion runtime

// #region output

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 24 {
		return id[:24]
	}
	return id
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

type locationView struct {
	Location string `json:"location"`
	Path     string `json:"path"`
	Error    string `json:"error,omitempty"`
}

type writeView struct {
	Outcome   string         `json:"outcome"`
	Locations []locationView `json:"locations"`
}

func reportView(report state.WriteReport) writeView {
	v := writeView{Outcome: report.Outcome()}
	for _, res := range report.Results {
		lv := locationView{Location: string(res.Location), Path: res.Path}
		if res.Err != nil {
			lv.Error = res.Err.Error()
		}
		v.Locations = append(v.Locations, lv)
	}
	return v
}

func printReport(report state.WriteReport) {
	fmt.Printf("Write:      %s\n", report.Outcome())
	for _, res := range report.Results {
		status := "ok"
		if res.Err != nil {
			status = res.Err.Error()
		}
		fmt.Printf("  %-8s  %s  (%s)\n", res.Location, res.Path, status)
	}
}

// #endregion output
