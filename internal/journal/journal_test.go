package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndRecent(t *testing.T) {
	db := newTestDB(t)

	now := time.Now().Truncate(time.Second)
	batch := []Transition{
		{SessionID: "s1", ProjectPath: "/proj/a", From: "waiting", To: "thinking", At: now.Add(-2 * time.Second)},
		{SessionID: "s2", ProjectPath: "/proj/b", From: "thinking", To: "idle", At: now},
	}
	require.NoError(t, db.RecordTransitions(batch))

	got, err := db.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Newest insert first
	assert.Equal(t, "s2", got[0].SessionID)
	assert.Equal(t, "idle", got[0].To)
	assert.True(t, got[0].At.Equal(now))
	assert.Equal(t, "s1", got[1].SessionID)
}

func TestRecentLimit(t *testing.T) {
	db := newTestDB(t)

	var batch []Transition
	for i := 0; i < 10; i++ {
		batch = append(batch, Transition{
			SessionID: "s", ProjectPath: "/p", From: "a", To: "b", At: time.Now(),
		})
	}
	require.NoError(t, db.RecordTransitions(batch))

	got, err := db.Recent(3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestEmptyBatchIsNoOp(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.RecordTransitions(nil))

	got, err := db.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.RecordTransitions([]Transition{
		{SessionID: "s1", ProjectPath: "/p", From: "waiting", To: "gone", At: time.Now()},
	}))
	require.NoError(t, db.Close())

	db2, err := Open(path)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Recent(5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "gone", got[0].To)
}

func TestPrune(t *testing.T) {
	db := newTestDB(t)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, db.RecordTransitions([]Transition{
		{SessionID: "old", ProjectPath: "/p", From: "a", To: "b", At: old},
		{SessionID: "new", ProjectPath: "/p", From: "a", To: "b", At: time.Now()},
	}))

	n, err := db.Prune(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := db.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].SessionID)
}
