package bifrost

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"math"
	"time"

	"github.com/aadithya-v/bifrost/store"
)

// DefaultTTL is how long a session lives after creation or a touch.
const DefaultTTL = 3600 * time.Second

// RecordID is a row identifier that may not be assigned yet.
// The zero value is unassigned.
type RecordID struct {
	value    int64
	assigned bool
}

// NewRecordID returns an assigned identifier.
func NewRecordID(id int64) RecordID {
	return RecordID{value: id, assigned: true}
}

// Value returns the identifier and whether it has been assigned.
func (id RecordID) Value() (int64, bool) {
	return id.value, id.assigned
}

// Assigned reports whether the record has been persisted.
func (id RecordID) Assigned() bool {
	return id.assigned
}

// Record is one row of the session table.
//
// A record is live while its alive flag is set and Expires lies in the
// future. Once the flag is cleared it is never set again.
type Record struct {
	ID      RecordID
	Session string
	Data    []byte
	Expires time.Time
	alive   bool
}

// NewRecord creates an unsaved, alive record expiring ttl from now.
// A ttl <= 0 uses DefaultTTL.
func NewRecord(session string, data []byte, ttl time.Duration) *Record {
	return newRecordAt(time.Now(), session, data, ttl)
}

// NewRecordWithID is NewRecord for a record that already has a row id.
func NewRecordWithID(id int64, session string, data []byte, ttl time.Duration) *Record {
	r := NewRecord(session, data, ttl)
	r.ID = NewRecordID(id)
	return r
}

func newRecordAt(now time.Time, session string, data []byte, ttl time.Duration) *Record {
	r := &Record{
		Session: session,
		Data:    data,
		alive:   true,
	}
	r.touchAt(now, ttl)
	return r
}

// Touch pushes Expires to ttl from now. It does not revive an expired record.
func (r *Record) Touch(ttl time.Duration) {
	r.touchAt(time.Now(), ttl)
}

func (r *Record) touchAt(now time.Time, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	// Stored as float epoch seconds; millisecond precision survives the trip.
	r.Expires = now.Add(ttl).Truncate(time.Millisecond)
}

// IsAlive reports whether the record is live now.
func (r *Record) IsAlive() bool {
	return r.IsAliveAt(time.Now())
}

// IsAliveAt reports whether the record is live at now. If Expires has
// passed, the alive flag is cleared in memory; save the record to persist it.
func (r *Record) IsAliveAt(now time.Time) bool {
	if !r.Expires.After(now) {
		r.alive = false
	}
	return r.alive
}

// Expire clears the alive flag.
func (r *Record) Expire() {
	r.alive = false
}

// Serialize converts the record to its persisted row.
func (r *Record) Serialize() store.Row {
	row := store.Row{
		Session: r.Session,
		Expires: epochSeconds(r.Expires),
		Data:    encodePayload(r.Data),
		Alive:   r.alive,
	}
	if id, ok := r.ID.Value(); ok {
		row.ID = sql.NullInt64{Int64: id, Valid: true}
	}
	return row
}

// Deserialize rebuilds a record from a persisted row.
// Malformed rows fail with a *DecodingError.
func Deserialize(row store.Row) (*Record, error) {
	if !row.ID.Valid {
		return nil, &DecodingError{Field: "id", Err: errMissing}
	}
	if math.IsNaN(row.Expires) || math.IsInf(row.Expires, 0) || row.Expires < 0 {
		return nil, &DecodingError{Field: "expires", Err: errOutOfRange}
	}
	// Drivers may scan an empty BLOB as nil; that decodes to an empty payload.
	data, err := decodePayload(row.Data)
	if err != nil {
		return nil, &DecodingError{Field: "data", Err: err}
	}

	return &Record{
		ID:      NewRecordID(row.ID.Int64),
		Session: row.Session,
		Data:    data,
		Expires: fromEpochSeconds(row.Expires),
		alive:   row.Alive,
	}, nil
}

var (
	errMissing    = errors.New("missing value")
	errOutOfRange = errors.New("value out of range")
)

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1e3
}

func fromEpochSeconds(s float64) time.Time {
	return time.UnixMilli(int64(math.Round(s * 1e3)))
}

func encodePayload(data []byte) []byte {
	buf := make([]byte, base64.StdEncoding.EncodedLen(len(data)))
	base64.StdEncoding.Encode(buf, data)
	return buf
}

func decodePayload(enc []byte) ([]byte, error) {
	buf := make([]byte, base64.StdEncoding.DecodedLen(len(enc)))
	n, err := base64.StdEncoding.Decode(buf, enc)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
