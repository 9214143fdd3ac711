package commands

import (
	"database/sql"

	"github.com/teranos/entres/am"
	"github.com/teranos/entres/db"
	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/logger"
)

// openDatabase opens and migrates a database using the specified path.
// If dbPath is empty, it loads from am config (DB_PATH overrides). Uses logger.Logger
// for db operations.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		path, err := am.GetDatabasePath()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get database path")
		}
		if path == "" {
			dbPath = "entres.db"
		} else {
			dbPath = path
		}
	}

	return db.OpenWithMigrations(dbPath, logger.Logger)
}
