package logging

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// #region helpers
func setupAudit(t *testing.T) (*Audit, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	a, err := NewAuditWithDB(db)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return a, db
}

// #endregion helpers

// #region write-tests
func TestRecordWrite_RoundTrip(t *testing.T) {
	a, _ := setupAudit(t)
	at := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, a.RecordWrite(WriteEntry{SessionID: "s1", Location: "primary", Path: "/p", OK: true, CreatedAt: at}))
	require.NoError(t, a.RecordWrite(WriteEntry{SessionID: "s1", Location: "backup", Path: "/b", Error: "disk full", CreatedAt: at}))

	got, err := a.RecentWrites(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "backup", got[0].Location, "newest first")
	assert.False(t, got[0].OK)
	assert.Equal(t, "disk full", got[0].Error)
	assert.True(t, got[1].OK)
	assert.Empty(t, got[1].Error)
	assert.True(t, got[1].CreatedAt.Equal(at))
}

func TestRecordWrite_NullErrorColumn(t *testing.T) {
	a, db := setupAudit(t)
	require.NoError(t, a.RecordWrite(WriteEntry{SessionID: "s1", Location: "primary", Path: "/p", OK: true}))

	var errText sql.NullString
	require.NoError(t, db.QueryRow("SELECT error FROM write_log").Scan(&errText))
	assert.False(t, errText.Valid)
}

func TestRecordWrite_FillsCreatedAt(t *testing.T) {
	a, _ := setupAudit(t)
	before := time.Now().UTC().Add(-time.Second)
	require.NoError(t, a.RecordWrite(WriteEntry{SessionID: "s1", Location: "summary", Path: "/m", OK: true}))

	got, err := a.RecentWrites(1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].CreatedAt.After(before))
}

func TestRecentWrites_Limit(t *testing.T) {
	a, _ := setupAudit(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, a.RecordWrite(WriteEntry{SessionID: "s", Location: "primary", Path: "/p", OK: true}))
	}
	got, err := a.RecentWrites(3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

// #endregion write-tests

// #region escalation-tests
func TestRecordEscalation_RoundTrip(t *testing.T) {
	a, _ := setupAudit(t)
	require.NoError(t, a.RecordEscalation(EscalationEntry{SessionID: "s1", Deadline: "filing", Tier: "EXPIRED"}))

	got, err := a.RecentEscalations(5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "filing", got[0].Deadline)
	assert.Equal(t, "EXPIRED", got[0].Tier)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestAudit_ClosedDB(t *testing.T) {
	a, db := setupAudit(t)
	db.Close()

	assert.Error(t, a.RecordWrite(WriteEntry{SessionID: "s", Location: "primary", Path: "/p"}))
	assert.Error(t, a.RecordEscalation(EscalationEntry{SessionID: "s", Deadline: "d", Tier: "EXPIRED"}))
	_, err := a.RecentWrites(1)
	assert.Error(t, err)
	_, err = a.RecentEscalations(1)
	assert.Error(t, err)
}

func TestOpenAudit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	a, err := OpenAudit(path)
	require.NoError(t, err)
	require.NoError(t, a.RecordWrite(WriteEntry{SessionID: "s", Location: "primary", Path: "/p", OK: true}))
	require.NoError(t, a.Close())

	a, err = OpenAudit(path)
	require.NoError(t, err)
	defer a.Close()
	got, err := a.RecentWrites(10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestOpenAudit_InvalidPath(t *testing.T) {
	_, err := OpenAudit(filepath.Join(t.TempDir(), "missing", "deep", "audit.db"))
	assert.Error(t, err)
}

// #endregion escalation-tests

// #region logger-tests
func TestNew_Levels(t *testing.T) {
	l, err := New("debug", false)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	l, err = New("warn", true)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))

	_, err = New("loud", false)
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}

// #endregion logger-tests
