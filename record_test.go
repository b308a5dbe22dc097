package bifrost

import (
	"database/sql"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/aadithya-v/bifrost/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordID(t *testing.T) {
	var unset RecordID
	assert.False(t, unset.Assigned())

	zero := NewRecordID(0)
	assert.True(t, zero.Assigned(), "id 0 is a real id, not 'new'")
	v, ok := zero.Value()
	assert.Equal(t, int64(0), v)
	assert.True(t, ok)
}

func TestNewRecord(t *testing.T) {
	before := time.Now()
	r := NewRecord("abc", []byte{1, 2, 3}, 0)

	assert.False(t, r.ID.Assigned())
	assert.Equal(t, "abc", r.Session)
	assert.Equal(t, []byte{1, 2, 3}, r.Data)
	assert.True(t, r.IsAlive())
	assert.WithinDuration(t, before.Add(DefaultTTL), r.Expires, time.Second)

	r = NewRecordWithID(7, "abc", nil, time.Minute)
	id, ok := r.ID.Value()
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
	assert.WithinDuration(t, time.Now().Add(time.Minute), r.Expires, time.Second)
}

func TestRecordIsAliveFlipsFlag(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := newRecordAt(now, "abc", nil, time.Minute)

	assert.True(t, r.IsAliveAt(now))
	assert.True(t, r.IsAliveAt(now.Add(59*time.Second)))

	// expires == now is no longer live
	assert.False(t, r.IsAliveAt(now.Add(time.Minute)))

	// the flag stays cleared even when asked about an earlier time
	assert.False(t, r.IsAliveAt(now))
	assert.False(t, r.Serialize().Alive)
}

func TestRecordTouch(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := newRecordAt(now, "abc", nil, time.Minute)

	r.touchAt(now.Add(30*time.Second), time.Minute)
	assert.Equal(t, now.Add(90*time.Second), r.Expires)

	r.touchAt(now, 0)
	assert.Equal(t, now.Add(DefaultTTL), r.Expires)
}

func TestRecordExpireIsPermanent(t *testing.T) {
	now := time.Now()
	r := newRecordAt(now, "abc", nil, time.Hour)
	r.Expire()
	assert.False(t, r.IsAliveAt(now))

	r.touchAt(now, time.Hour)
	assert.False(t, r.IsAliveAt(now), "touch must not resurrect a dead record")
}

func TestRecordSerializeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 891234567, time.UTC)

	tests := []struct {
		name string
		rec  *Record
	}{
		{
			name: "binary payload",
			rec:  newRecordAt(now, "abc", []byte{0, 1, 2, 255, '\n'}, time.Hour),
		},
		{
			name: "empty payload",
			rec:  newRecordAt(now, "abc", []byte{}, time.Hour),
		},
		{
			name: "expired record",
			rec: func() *Record {
				r := newRecordAt(now, "abc", []byte("x"), time.Hour)
				r.Expire()
				return r
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.rec.ID = NewRecordID(42)
			row := tt.rec.Serialize()

			assert.Equal(t, sql.NullInt64{Int64: 42, Valid: true}, row.ID)
			assert.Equal(t, "abc", row.Session)

			got, err := Deserialize(row)
			require.NoError(t, err)
			assert.Equal(t, tt.rec.ID, got.ID)
			assert.Equal(t, tt.rec.Session, got.Session)
			assert.Equal(t, tt.rec.Data, got.Data)
			assert.True(t, tt.rec.Expires.Equal(got.Expires), "expires %v != %v", tt.rec.Expires, got.Expires)
			assert.Equal(t, tt.rec.alive, got.alive)

			assert.Equal(t, row, got.Serialize())
		})
	}
}

func TestRecordSerializeUnsaved(t *testing.T) {
	row := NewRecord("abc", []byte("hi"), 0).Serialize()
	assert.False(t, row.ID.Valid)
	assert.Equal(t, []byte("aGk="), row.Data)
	assert.True(t, row.Alive)
}

func TestDeserializeErrors(t *testing.T) {
	valid := store.Row{
		ID:      sql.NullInt64{Int64: 1, Valid: true},
		Session: "abc",
		Expires: 1700000000.5,
		Data:    []byte("AQID"),
		Alive:   true,
	}

	tests := []struct {
		name   string
		modify func(*store.Row)
		field  string
	}{
		{name: "missing id", modify: func(r *store.Row) { r.ID = sql.NullInt64{} }, field: "id"},
		{name: "nan expires", modify: func(r *store.Row) { r.Expires = math.NaN() }, field: "expires"},
		{name: "infinite expires", modify: func(r *store.Row) { r.Expires = math.Inf(1) }, field: "expires"},
		{name: "negative expires", modify: func(r *store.Row) { r.Expires = -1 }, field: "expires"},
		{name: "bad base64", modify: func(r *store.Row) { r.Data = []byte("not base64!") }, field: "data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := valid
			tt.modify(&row)

			rec, err := Deserialize(row)
			assert.Nil(t, rec)

			var decErr *DecodingError
			require.True(t, errors.As(err, &decErr), "got %v", err)
			assert.Equal(t, tt.field, decErr.Field)
		})
	}

	rec, err := Deserialize(valid)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, rec.Data)
	assert.Equal(t, time.UnixMilli(1700000000500), rec.Expires)
}

func TestDeserializeEmptySession(t *testing.T) {
	rec, err := Deserialize(store.Row{
		ID:      sql.NullInt64{Int64: 1, Valid: true},
		Expires: 1,
		Data:    []byte("CQ=="),
		Alive:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "", rec.Session)
	assert.Equal(t, []byte{9}, rec.Data)
	assert.Equal(t, store.Row{
		ID:      sql.NullInt64{Int64: 1, Valid: true},
		Expires: 1,
		Data:    []byte("CQ=="),
		Alive:   true,
	}, rec.Serialize())
}

func TestDeserializeNilData(t *testing.T) {
	rec, err := Deserialize(store.Row{
		ID:      sql.NullInt64{Int64: 1, Valid: true},
		Session: "abc",
		Expires: 1,
	})
	require.NoError(t, err)
	assert.Empty(t, rec.Data)
}
