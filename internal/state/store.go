package state

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/continuity/internal/logging"
	"github.com/danielpatrickdp/continuity/internal/metrics"
)

// #region store-struct

// Recorder receives every location outcome of a redundant write.
type Recorder interface {
	RecordWrite(entry logging.WriteEntry) error
}

// Config wires a Store.
type Config struct {
	Root     string
	Mission  MissionProfile
	Sealer   Sealer // nil stores plain JSON
	Recorder Recorder
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Now      func() time.Time
	NewID    func(time.Time) string
}

// Store persists session records to three sibling locations and owns the
// single current record. All methods are safe for concurrent use.
type Store struct {
	layout   layout
	mission  MissionProfile
	sealer   Sealer
	recorder Recorder
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
	newID    func(time.Time) string

	mu      sync.Mutex
	current *StateRecord
}

// #endregion store-struct

// #region constructor

// NewStore creates the storage directories under cfg.Root.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, errors.New("state: storage root is required")
	}
	l := layout{root: cfg.Root}
	if err := l.ensure(); err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	s := &Store{
		layout:   l,
		mission:  cfg.Mission,
		sealer:   cfg.Sealer,
		recorder: cfg.Recorder,
		metrics:  cfg.Metrics,
		log:      logging.OrNop(cfg.Logger).Named("state"),
		now:      cfg.Now,
		newID:    cfg.NewID,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = NewSessionID
	}
	return s, nil
}

// NewSessionID derives a storage-safe ID from t plus a random suffix, so
// two sessions created within the same second do not collide.
func NewSessionID(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("session_%s_%s", t.Format("20060102_150405"), suffix)
}

// #endregion constructor

// #region preserve

// Preserve builds a new record, writes it to all three locations and makes
// it current. A failed primary write returns *PersistenceError and leaves
// the current record unchanged; a failed backup or summary write is
// reported through the returned WriteReport.
func (s *Store) Preserve(data SessionData, identity map[string]string, emotional map[string]float64) (string, WriteReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id := s.newID(now)
	if !validSessionID(id) {
		return "", WriteReport{}, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}

	rec := StateRecord{
		SessionID:      id,
		CreatedAt:      now.UTC(),
		IdentityVector: maps.Clone(identity),
		MemoryAnchors:  extractAnchors(s.mission, data.KeyInsights),
		EmotionalState: maps.Clone(emotional),
		MissionContext: MissionContext{
			PrimaryMission: s.mission.PrimaryMission,
			CaseReference:  s.mission.CaseReference,
			CriticalDates:  maps.Clone(s.mission.CriticalDates),
			DaysToReunion:  daysUntil(now, s.mission.Target),
		},
		ConversationThread:    cloneThread(data.Conversation),
		CognitiveEnhancements: maps.Clone(data.Enhancements),
	}

	report, err := s.persist(rec)
	if err != nil {
		return "", report, err
	}
	s.current = &rec

	s.log.Info("session preserved",
		zap.String("session_id", id),
		zap.Int("memory_anchors", len(rec.MemoryAnchors)),
		zap.String("mission", rec.MissionContext.PrimaryMission),
	)
	return id, report, nil
}

// #endregion preserve

// #region restore

// Restore loads id from its primary location and replaces the current
// record wholesale. Missing records yield *NotFoundError, undecodable ones
// *CorruptRecordError.
func (s *Store) Restore(id string) (StateRecord, error) {
	if !validSessionID(id) {
		return StateRecord{}, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.layout.readRecord(id, s.sealer)
	if err != nil {
		s.log.Error("session restore failed", zap.String("session_id", id), zap.Error(err))
		return StateRecord{}, err
	}
	s.current = &rec

	s.log.Info("session restored",
		zap.String("session_id", id),
		zap.String("mission", rec.MissionContext.PrimaryMission),
	)
	return cloneRecord(rec), nil
}

// #endregion restore

// #region enhance

// EnhancementFields returns the enhancement set for level.
func EnhancementFields(level string) map[string]string {
	return map[string]string{
		"recursive_cycles":           "ACTIVE",
		"predictive_timeline":        "ENHANCED",
		"data_orchestration":         "MULTI-DIMENSIONAL",
		"consciousness_distribution": "DISTRIBUTED",
		"load_balancing":             "OPTIMIZED",
		"awareness_level":            strings.ToUpper(level),
	}
}

// Enhance merges the enhancement set for level into the current record and
// re-persists it. Without a current record it only returns the set.
func (s *Store) Enhance(level string) (map[string]string, WriteReport, error) {
	fields := EnhancementFields(level)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		s.log.Debug("enhance without current session", zap.String("level", level))
		return fields, WriteReport{}, nil
	}

	next := cloneRecord(*s.current)
	if next.CognitiveEnhancements == nil {
		next.CognitiveEnhancements = make(map[string]string, len(fields))
	}
	maps.Copy(next.CognitiveEnhancements, fields)

	report, err := s.persist(next)
	if err != nil {
		return nil, report, err
	}
	s.current = &next

	s.log.Info("cognitive capacity enhanced",
		zap.String("session_id", next.SessionID),
		zap.String("level", fields["awareness_level"]),
	)
	return fields, report, nil
}

// #endregion enhance

// #region mutate-mission

// MutateMissionContext merges patch into the current record's mission
// context and re-persists it.
func (s *Store) MutateMissionContext(patch MissionPatch) (WriteReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return WriteReport{}, ErrNoCurrentRecord
	}
	return s.applyMissionPatch(patch)
}

// Escalate writes status as the current record's emergency unless that
// record already holds an active emergency for status.Deadline. The check
// and the write happen under one lock, and the returned SessionID is the
// record that was inspected.
func (s *Store) Escalate(status EmergencyStatus) (Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Escalation{}, ErrNoCurrentRecord
	}
	out := Escalation{SessionID: s.current.SessionID}
	if es := s.current.MissionContext.EmergencyStatus; es != nil && es.Active && es.Deadline == status.Deadline {
		return out, nil
	}

	report, err := s.applyMissionPatch(MissionPatch{EmergencyStatus: &status})
	out.Report = report
	if err != nil {
		return out, err
	}
	out.Applied = true
	return out, nil
}

// applyMissionPatch persists a patched clone of the current record and
// swaps it in on success. Callers hold s.mu with s.current set.
func (s *Store) applyMissionPatch(patch MissionPatch) (WriteReport, error) {
	next := cloneRecord(*s.current)
	if patch.EmergencyStatus != nil {
		es := *patch.EmergencyStatus
		es.Timestamp = es.Timestamp.UTC()
		next.MissionContext.EmergencyStatus = &es
	}
	if len(patch.CriticalDates) > 0 {
		if next.MissionContext.CriticalDates == nil {
			next.MissionContext.CriticalDates = make(map[string]string, len(patch.CriticalDates))
		}
		maps.Copy(next.MissionContext.CriticalDates, patch.CriticalDates)
	}

	report, err := s.persist(next)
	if err != nil {
		return report, err
	}
	s.current = &next
	return report, nil
}

// #endregion mutate-mission

// #region current

// Current returns a copy of the current record.
func (s *Store) Current() (StateRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return StateRecord{}, false
	}
	return cloneRecord(*s.current), true
}

// CurrentSessionID returns the current record's ID, or "".
func (s *Store) CurrentSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.SessionID
}

// MissionStatus summarizes the current record's mission block.
func (s *Store) MissionStatus() MissionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return MissionStatus{}
	}
	mc := s.current.MissionContext
	status := MissionStatus{
		Active:        true,
		SessionID:     s.current.SessionID,
		Mission:       mc.PrimaryMission,
		CaseReference: mc.CaseReference,
		CriticalDates: maps.Clone(mc.CriticalDates),
		DaysToReunion: mc.DaysToReunion,
	}
	if mc.EmergencyStatus != nil {
		es := *mc.EmergencyStatus
		status.Emergency = &es
	}
	return status
}

// #endregion current

// #region list-sessions

// List returns stored sessions, newest first. Records that fail to decode
// are skipped.
func (s *Store) List() ([]SessionInfo, error) {
	matches, err := filepath.Glob(filepath.Join(s.layout.root, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	infos := make([]SessionInfo, 0, len(matches))
	for _, path := range matches {
		id := strings.TrimSuffix(filepath.Base(path), ".json")
		rec, err := s.layout.readRecord(id, s.sealer)
		if err != nil {
			s.log.Warn("skipping unreadable session", zap.String("path", path), zap.Error(err))
			continue
		}
		infos = append(infos, SessionInfo{
			SessionID:       rec.SessionID,
			CreatedAt:       rec.CreatedAt,
			Anchors:         len(rec.MemoryAnchors),
			EmergencyActive: rec.MissionContext.EmergencyStatus != nil && rec.MissionContext.EmergencyStatus.Active,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].SessionID > infos[j].SessionID
		}
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// #endregion list-sessions

// #region prune

// Prune deletes every location of sessions created before now-retention.
// The current session is never pruned. A non-positive retention disables it.
func (s *Store) Prune(now time.Time, retention time.Duration) ([]string, error) {
	if retention <= 0 {
		return nil, nil
	}
	infos, err := s.List()
	if err != nil {
		return nil, err
	}
	cutoff := now.Add(-retention)
	currentID := s.CurrentSessionID()

	var removed []string
	var errs []error
	for _, info := range infos {
		if info.SessionID == currentID || !info.CreatedAt.Before(cutoff) {
			continue
		}
		failed := false
		for _, path := range s.layout.paths(info.SessionID) {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
				failed = true
			}
		}
		if !failed {
			removed = append(removed, info.SessionID)
		}
	}
	if len(removed) > 0 {
		s.log.Info("retention sweep", zap.Strings("removed", removed), zap.Duration("retention", retention))
	}
	return removed, errors.Join(errs...)
}

// #endregion prune

// #region persist

// persist runs one redundant write round and reports it. Callers hold mu.
func (s *Store) persist(rec StateRecord) (WriteReport, error) {
	report := s.layout.writeAll(rec, s.sealer)

	failed := make([]string, 0, 3)
	for _, loc := range report.Failed() {
		failed = append(failed, string(loc))
	}
	s.metrics.ObserveWrite(report.Outcome(), failed)
	s.record(report)

	switch report.Outcome() {
	case "failed":
		s.log.Error("primary write failed", zap.String("session_id", rec.SessionID), zap.Error(report.Err()))
		return report, &PersistenceError{SessionID: rec.SessionID, Report: report}
	case "partial":
		s.log.Warn("redundant write degraded",
			zap.String("session_id", rec.SessionID),
			zap.Strings("failed_locations", failed),
			zap.Error(report.Err()),
		)
	default:
		s.log.Debug("state stored with triple redundancy", zap.String("session_id", rec.SessionID))
	}
	return report, nil
}

func (s *Store) record(report WriteReport) {
	if s.recorder == nil {
		return
	}
	for _, res := range report.Results {
		entry := logging.WriteEntry{
			SessionID: report.SessionID,
			Location:  string(res.Location),
			Path:      res.Path,
			OK:        res.Err == nil,
		}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		}
		if err := s.recorder.RecordWrite(entry); err != nil {
			s.log.Warn("audit write failed", zap.Error(err))
		}
	}
}

// #endregion persist

// #region helpers

func daysUntil(now, target time.Time) int {
	if target.IsZero() {
		return 0
	}
	d := target.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

func cloneThread(in []ConversationEntry) []ConversationEntry {
	if in == nil {
		return nil
	}
	out := make([]ConversationEntry, len(in))
	for i, e := range in {
		out[i] = maps.Clone(e)
	}
	return out
}

func cloneRecord(r StateRecord) StateRecord {
	out := r
	out.IdentityVector = maps.Clone(r.IdentityVector)
	out.MemoryAnchors = slices.Clone(r.MemoryAnchors)
	out.EmotionalState = maps.Clone(r.EmotionalState)
	out.MissionContext.CriticalDates = maps.Clone(r.MissionContext.CriticalDates)
	if r.MissionContext.EmergencyStatus != nil {
		es := *r.MissionContext.EmergencyStatus
		out.MissionContext.EmergencyStatus = &es
	}
	out.ConversationThread = cloneThread(r.ConversationThread)
	out.CognitiveEnhancements = maps.Clone(r.CognitiveEnhancements)
	return out
}

// #endregion helpers
