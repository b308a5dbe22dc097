package store

import (
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name:    "sqlite",
	builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	types: map[ColumnType]string{
		ColumnID:     "INTEGER PRIMARY KEY AUTOINCREMENT",
		ColumnString: "TEXT NOT NULL",
		ColumnDouble: "REAL NOT NULL",
		ColumnData:   "BLOB",
		ColumnBool:   "BOOLEAN NOT NULL DEFAULT 1",
	},
}

// SQLiteBackend implements Backend using SQLite.
// It uses the pure Go modernc.org/sqlite driver.
type SQLiteBackend struct {
	sqlBackend
}

// NewSQLite opens the SQLite database at dbPath.
// The database file is created if it doesn't exist; the schema is not.
func NewSQLite(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	return &SQLiteBackend{sqlBackend{db: db, dialect: sqliteDialect}}, nil
}
