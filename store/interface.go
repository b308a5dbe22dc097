package store

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNoRows is returned by lookups that match nothing.
// Callers treat it as "absent", never as a failure.
var ErrNoRows = errors.New("store: no rows in result set")

// Row is the persisted form of one session record.
// This mirrors the root Record type to avoid circular imports.
type Row struct {
	// ID is assigned by the backend on insert. Invalid means "not yet persisted".
	ID      sql.NullInt64
	Session string
	// Expires is the expiry as epoch seconds.
	Expires float64
	// Data is the payload in storage encoding (standard base64 text).
	Data  []byte
	Alive bool
}

// Backend defines the relational table a SessionStore persists into.
// Implementations must be safe for concurrent use.
type Backend interface {
	// CreateSchema creates the session table and its index if absent.
	CreateSchema(ctx context.Context) error

	// DropSchema drops the session table. Used by migration tooling.
	DropSchema(ctx context.Context) error

	// FindLive returns the newest row (greatest id) for session that is
	// alive and whose expires is >= now. Returns ErrNoRows if none match.
	FindLive(ctx context.Context, session string, now float64) (*Row, error)

	// FindByID returns the row with the given id, dead or alive.
	FindByID(ctx context.Context, id int64) (*Row, error)

	// Insert persists a new row and returns its assigned id.
	// row.ID is ignored.
	Insert(ctx context.Context, row Row) (int64, error)

	// Update overwrites session, expires, data and alive of the row with
	// row.ID. Returns ErrNoRows if the id does not exist.
	Update(ctx context.Context, row Row) error

	// ExpireBefore sets alive=false on every live row whose expires < now,
	// regardless of session key, and returns the number of rows changed.
	ExpireBefore(ctx context.Context, now float64) (int64, error)

	// CountLive counts rows for session that are alive with expires > now.
	CountLive(ctx context.Context, session string, now float64) (int, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Locker serializes operations on a single session key.
// Implementations must be safe for concurrent use.
type Locker interface {
	// Lock blocks until the key is held or ctx is done.
	// The returned func releases the key; it is safe to call once.
	Lock(ctx context.Context, key string) (func(), error)

	// Close releases any resources held by the locker.
	Close() error
}
