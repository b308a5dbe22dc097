package store

import (
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
)

var mysqlDialect = dialect{
	name:    "mysql",
	builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	types: map[ColumnType]string{
		ColumnID:     "BIGINT AUTO_INCREMENT PRIMARY KEY",
		ColumnString: "VARCHAR(255) NOT NULL",
		ColumnDouble: "DOUBLE NOT NULL",
		ColumnData:   "LONGBLOB NOT NULL",
		ColumnBool:   "BOOLEAN NOT NULL DEFAULT TRUE",
	},
	inlineIndex: true,
}

// MySQLBackend implements Backend using MySQL.
type MySQLBackend struct {
	sqlBackend
}

// NewMySQL creates a MySQL backend on an existing connection pool.
// The backend takes ownership of db and closes it on Close.
func NewMySQL(db *sql.DB) *MySQLBackend {
	return &MySQLBackend{sqlBackend{db: db, dialect: mysqlDialect}}
}

// NewMySQLFromDSN creates a MySQL backend from a DSN.
// The DSN format is: user:password@tcp(host:port)/database
func NewMySQLFromDSN(dsn string) (*MySQLBackend, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: invalid dsn: %w", err)
	}
	// Report matched rows, not changed rows, from UPDATE.
	cfg.ClientFoundRows = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to create connector: %w", err)
	}
	db := sql.OpenDB(connector)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: failed to connect: %w", err)
	}

	return NewMySQL(db), nil
}
