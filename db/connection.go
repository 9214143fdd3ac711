package db

import (
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/internal/util"
)

// DriverName is the database/sql driver registered by this package. It is
// go-sqlite3 with the entres SQL functions and per-connection pragmas installed.
const DriverName = "sqlite3_entres"

// SQLiteBusyTimeoutMS is how long a connection waits on a locked database
const SQLiteBusyTimeoutMS = 5000

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			// Pragmas are per connection, so set them on every connection the pool opens
			for _, pragma := range []string{
				"PRAGMA foreign_keys = ON",
				fmt.Sprintf("PRAGMA busy_timeout = %d", SQLiteBusyTimeoutMS),
			} {
				if _, err := conn.Exec(pragma, nil); err != nil {
					return errors.Wrapf(err, "failed to apply %q", pragma)
				}
			}
			if err := conn.RegisterFunc("fuzzy_distance", FuzzyDistance, true); err != nil {
				return errors.Wrap(err, "failed to register fuzzy_distance")
			}
			if err := conn.RegisterFunc("date_ms", DateMillis, true); err != nil {
				return errors.Wrap(err, "failed to register date_ms")
			}
			return nil
		},
	})
}

// FuzzyDistance is the Levenshtein distance between two values after lower-casing.
// Registered as the SQL function fuzzy_distance(a, b). Non-text arguments are
// compared through their text form; NULL never matches.
func FuzzyDistance(a, b interface{}) int64 {
	as, aok := sqlText(a)
	bs, bok := sqlText(b)
	if !aok || !bok {
		return 1 << 31
	}
	return int64(fuzzy.LevenshteinDistance(strings.ToLower(as), strings.ToLower(bs)))
}

func sqlText(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return "", false
	}
}

// DateMillis parses a document date with an optional Go layout and returns
// Unix milliseconds. Registered as date_ms(value, layout). Values that do not
// parse return NaN, which SQLite stores as NULL so comparisons never match.
func DateMillis(value interface{}, layout string) float64 {
	t, ok := util.ParseTime(value, layout)
	if !ok {
		if b, isBytes := value.([]byte); isBytes {
			t, ok = util.ParseTime(string(b), layout)
		}
	}
	if !ok {
		return math.NaN()
	}
	return float64(t.UnixMilli())
}

// Open opens a SQLite database at the specified path with optimized settings.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path)
	}
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Enable WAL mode for concurrent reads during writes (persistent, file databases only)
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to enable WAL mode")
		}
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"path", path,
			"wal_mode", path != ":memory:",
			"foreign_keys", true,
		)
	}

	return db, nil
}

// OpenWithMigrations opens the database and applies all pending migrations
func OpenWithMigrations(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(path, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}

	if err := Migrate(db, logger); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", path)
	}

	return db, nil
}
