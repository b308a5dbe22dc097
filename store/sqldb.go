package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// sqlBackend implements Backend on top of database/sql.
// SQLiteBackend and MySQLBackend embed it with their own dialect.
type sqlBackend struct {
	db      *sql.DB
	dialect dialect
}

// CreateSchema creates the session table and index if they don't exist.
func (b *sqlBackend) CreateSchema(ctx context.Context) error {
	for _, stmt := range b.dialect.createStatements() {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: failed to create schema: %w", b.dialect.name, err)
		}
	}
	return nil
}

// DropSchema drops the session table.
func (b *sqlBackend) DropSchema(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, b.dialect.dropStatement()); err != nil {
		return fmt.Errorf("%s: failed to drop schema: %w", b.dialect.name, err)
	}
	return nil
}

// FindLive returns the newest live row for session.
func (b *sqlBackend) FindLive(ctx context.Context, session string, now float64) (*Row, error) {
	query, args, err := b.dialect.findLive(session, now).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", b.dialect.name, err)
	}
	return b.queryRow(ctx, query, args...)
}

// FindByID returns the row with the given id.
func (b *sqlBackend) FindByID(ctx context.Context, id int64) (*Row, error) {
	query, args, err := b.dialect.findByID(id).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", b.dialect.name, err)
	}
	return b.queryRow(ctx, query, args...)
}

// Insert persists a new row and returns the id assigned by the database.
func (b *sqlBackend) Insert(ctx context.Context, row Row) (int64, error) {
	query, args, err := b.dialect.insert(row).ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to build insert: %w", b.dialect.name, err)
	}

	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to insert session: %w", b.dialect.name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to read inserted id: %w", b.dialect.name, err)
	}
	return id, nil
}

// Update overwrites the row with row.ID.
func (b *sqlBackend) Update(ctx context.Context, row Row) error {
	if !row.ID.Valid {
		return fmt.Errorf("%s: cannot update a row without id", b.dialect.name)
	}

	query, args, err := b.dialect.update(row).ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build update: %w", b.dialect.name, err)
	}

	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: failed to update session: %w", b.dialect.name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to read affected rows: %w", b.dialect.name, err)
	}
	if n == 0 {
		// MySQL reports 0 when the values are unchanged, so confirm the row exists.
		if _, err := b.FindByID(ctx, row.ID.Int64); err != nil {
			return err
		}
	}
	return nil
}

// ExpireBefore marks every row with expires < now as dead.
func (b *sqlBackend) ExpireBefore(ctx context.Context, now float64) (int64, error) {
	query, args, err := b.dialect.expireBefore(now).ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to build sweep: %w", b.dialect.name, err)
	}

	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to sweep sessions: %w", b.dialect.name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to read affected rows: %w", b.dialect.name, err)
	}
	return n, nil
}

// CountLive counts the live rows for session.
func (b *sqlBackend) CountLive(ctx context.Context, session string, now float64) (int, error) {
	query, args, err := b.dialect.countLive(session, now).ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to build query: %w", b.dialect.name, err)
	}

	var count int
	if err := b.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: failed to count sessions: %w", b.dialect.name, err)
	}
	return count, nil
}

// Close closes the database connection.
func (b *sqlBackend) Close() error {
	return b.db.Close()
}

func (b *sqlBackend) queryRow(ctx context.Context, query string, args ...any) (*Row, error) {
	var row Row
	err := b.db.QueryRowContext(ctx, query, args...).Scan(
		&row.ID,
		&row.Session,
		&row.Expires,
		&row.Data,
		&row.Alive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to scan session: %w", b.dialect.name, err)
	}
	return &row, nil
}
