package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/entres/errors"
)

func TestOpen(t *testing.T) {
	t.Run("opens database successfully", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(dbPath, nil)
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		var journalMode string
		require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
		assert.Equal(t, "wal", journalMode)

		var foreignKeys int
		require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
		assert.Equal(t, 1, foreignKeys)

		var busyTimeout int
		require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
		assert.Equal(t, SQLiteBusyTimeoutMS, busyTimeout)
	})

	t.Run("returns error for invalid path", func(t *testing.T) {
		db, err := Open("/invalid/nonexistent/path/db.sqlite", nil)

		// If Open() succeeds (lazy connection on some platforms), Ping() will fail
		if err == nil && db != nil {
			err = db.Ping()
			db.Close()
		}
		assert.Error(t, err)
	})

	t.Run("logs with provided logger", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)
		db.Close()
	})
}

func TestFuzzyDistanceFunction(t *testing.T) {
	db, err := Open(":memory:", nil)
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	tests := []struct {
		a, b string
		want int64
	}{
		{"Neo", "neo", 0},
		{"Anderson", "Andersen", 1},
		{"Trinity", "Trinty", 1},
		{"Morpheus", "Smith", 7},
	}
	for _, tt := range tests {
		var got int64
		require.NoError(t, db.QueryRow("SELECT fuzzy_distance(?, ?)", tt.a, tt.b).Scan(&got))
		assert.Equal(t, tt.want, got, "%s vs %s", tt.a, tt.b)
	}

	// JSON numbers and nulls never fuzzy-match text
	var got int64
	require.NoError(t, db.QueryRow("SELECT fuzzy_distance(NULL, 'neo')").Scan(&got))
	assert.Greater(t, got, int64(1000))
}

func TestIsDatabaseClosed(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	db.Close()

	_, err = db.Exec("SELECT 1")
	assert.True(t, IsDatabaseClosed(err))
	assert.True(t, IsDatabaseClosed(errors.Wrap(ErrDatabaseClosed, "shutdown")))
	assert.False(t, IsDatabaseClosed(nil))
	assert.False(t, IsDatabaseClosed(errors.New("disk full")))
	assert.False(t, IsBusy(errors.New("disk full")))
}

func TestDateMillisFunction(t *testing.T) {
	db, err := Open(":memory:", nil)
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	var ms float64
	require.NoError(t, db.QueryRow("SELECT date_ms('1999-03-31', '')").Scan(&ms))
	assert.Equal(t, float64(922838400000), ms)

	require.NoError(t, db.QueryRow("SELECT date_ms('31/03/1999', '02/01/2006')").Scan(&ms))
	assert.Equal(t, float64(922838400000), ms)

	// Unparseable dates come back as NULL
	var isNull bool
	require.NoError(t, db.QueryRow("SELECT date_ms('not a date', '') IS NULL").Scan(&isNull))
	assert.True(t, isNull)
	require.NoError(t, db.QueryRow("SELECT date_ms(42, '') IS NULL").Scan(&isNull))
	assert.True(t, isNull)
}
