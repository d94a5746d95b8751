package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/horizon/internal/history"
	"github.com/roach88/horizon/internal/ir"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for range 3 {
		s, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	for _, table := range []string{"history_entries", "history_saves", "history_meta"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		assert.NoError(t, err, "table %q", table)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)
	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_MigratesOldSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE history_saves (
			seq     INTEGER PRIMARY KEY AUTOINCREMENT,
			id      TEXT NOT NULL UNIQUE,
			entries INTEGER NOT NULL
		);
		INSERT INTO history_saves (id, entries) VALUES ('old', 4);
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	saves, err := s.Saves(context.Background())
	require.NoError(t, err)
	require.Len(t, saves, 1)
	assert.Equal(t, Save{Seq: 1, ID: "old", Entries: 4, Added: 0}, saves[0])
}

func TestOpen_DropsStaleHashVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveHistory(ctx, history.Snapshot{"a": {1: []byte("1")}}))
	_, err = s.db.Exec(`UPDATE history_meta SET value = '0' WHERE key = 'hash_version'`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.LoadHistory(ctx)
	require.NoError(t, err)
	assert.Zero(t, got.Len())

	var version string
	require.NoError(t, s.db.QueryRow(`SELECT value FROM history_meta WHERE key = 'hash_version'`).Scan(&version))
	assert.Equal(t, ir.HashVersion, version)
	assert.Len(t, mustSaves(t, s), 1)
}

func TestOpen_KeepsCurrentHashVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveHistory(ctx, history.Snapshot{"a": {1: []byte("1")}}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.LoadHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
}

func TestClose_Nil(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}

func TestHistory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	snap := history.Snapshot{
		"a": {1: []byte("1"), 0xffffffffffffffff: []byte("2")},
		"b": {42: []byte(`{"x":1}`)},
	}
	require.NoError(t, s.SaveHistory(ctx, snap))

	got, err := s.LoadHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Entries: 3, WriteTypes: 2, Saves: 1}, st)
}

func TestHistory_FirstWriteWins(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	ids := []string{"save-a", "save-b"}
	s.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := s.SaveHistoryInfo(ctx, history.Snapshot{"a": {7: []byte("old")}})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Added)

	second, err := s.SaveHistoryInfo(ctx, history.Snapshot{"a": {7: []byte("new"), 8: []byte("x")}})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Entries)
	assert.Equal(t, 1, second.Added)

	got, err := s.LoadHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), got["a"][7])

	saves := mustSaves(t, s)
	require.Len(t, saves, 2)
	assert.Equal(t, "save-a", saves[0].ID)
	assert.Equal(t, "save-b", saves[1].ID)
	assert.Less(t, saves[0].Seq, saves[1].Seq)
}

func TestHistory_Empty(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	got, err := s.LoadHistory(ctx)
	require.NoError(t, err)
	assert.Zero(t, got.Len())

	saves, err := s.Saves(ctx)
	require.NoError(t, err)
	assert.Empty(t, saves)
}

func TestHash_Format(t *testing.T) {
	assert.Equal(t, "000000000000002a", formatHash(42))
	h, err := parseHash("ffffffffffffffff")
	require.NoError(t, err)
	assert.Equal(t, uint64(0xffffffffffffffff), h)

	_, err = parseHash("zz")
	assert.Error(t, err)
}

func mustSaves(t *testing.T, s *Store) []Save {
	t.Helper()
	saves, err := s.Saves(context.Background())
	require.NoError(t, err)
	return saves
}
