package store

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
)

// TableName is the table every SQL backend persists session rows into.
const TableName = "session_data"

// ColumnType is the logical type of a session table column.
// Each backend maps it onto its own SQL type.
type ColumnType string

const (
	ColumnID     ColumnType = "id"
	ColumnString ColumnType = "string"
	ColumnDouble ColumnType = "double"
	ColumnData   ColumnType = "data"
	ColumnBool   ColumnType = "bool"
)

// Column declares one column of the session table.
type Column struct {
	Name string
	Type ColumnType
}

// Schema declares the session table for migration tooling.
// Column order matches the scan order used by every backend.
var Schema = []Column{
	{Name: "id", Type: ColumnID},
	{Name: "session", Type: ColumnString},
	{Name: "expires", Type: ColumnDouble},
	{Name: "data", Type: ColumnData},
	{Name: "alive", Type: ColumnBool},
}

const indexName = "idx_session_data_live"

// columnNames returns the names of Schema in declaration order.
func columnNames() []string {
	names := make([]string, len(Schema))
	for i, c := range Schema {
		names[i] = c.Name
	}
	return names
}

// dialect holds what differs between SQL backends.
type dialect struct {
	// name prefixes error messages, e.g. "sqlite".
	name    string
	builder squirrel.StatementBuilderType
	types   map[ColumnType]string
	// inlineIndex puts the index inside CREATE TABLE (MySQL has no
	// CREATE INDEX IF NOT EXISTS).
	inlineIndex bool
}

// createStatements returns the idempotent DDL for the session table.
func (d dialect) createStatements() []string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", TableName)
	for i, c := range Schema {
		fmt.Fprintf(&b, "\t%s %s", c.Name, d.types[c.Type])
		if i < len(Schema)-1 || d.inlineIndex {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	if d.inlineIndex {
		fmt.Fprintf(&b, "\tINDEX %s (session, alive, expires)\n", indexName)
	}
	b.WriteString(")")

	stmts := []string{b.String()}
	if !d.inlineIndex {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s (session, alive, expires)",
			indexName, TableName,
		))
	}
	return stmts
}

func (d dialect) dropStatement() string {
	return "DROP TABLE IF EXISTS " + TableName
}

func (d dialect) findLive(session string, now float64) squirrel.SelectBuilder {
	return d.builder.
		Select(columnNames()...).
		From(TableName).
		Where(squirrel.Eq{"session": session, "alive": true}).
		Where(squirrel.GtOrEq{"expires": now}).
		OrderBy("id DESC").
		Limit(1)
}

func (d dialect) findByID(id int64) squirrel.SelectBuilder {
	return d.builder.
		Select(columnNames()...).
		From(TableName).
		Where(squirrel.Eq{"id": id})
}

func (d dialect) insert(row Row) squirrel.InsertBuilder {
	return d.builder.
		Insert(TableName).
		Columns("session", "expires", "data", "alive").
		Values(row.Session, row.Expires, row.Data, row.Alive)
}

func (d dialect) update(row Row) squirrel.UpdateBuilder {
	return d.builder.
		Update(TableName).
		Set("session", row.Session).
		Set("expires", row.Expires).
		Set("data", row.Data).
		Set("alive", row.Alive).
		Where(squirrel.Eq{"id": row.ID.Int64})
}

func (d dialect) expireBefore(now float64) squirrel.UpdateBuilder {
	return d.builder.
		Update(TableName).
		Set("alive", false).
		Where(squirrel.Eq{"alive": true}).
		Where(squirrel.Lt{"expires": now})
}

func (d dialect) countLive(session string, now float64) squirrel.SelectBuilder {
	return d.builder.
		Select("COUNT(*)").
		From(TableName).
		Where(squirrel.Eq{"session": session, "alive": true}).
		Where(squirrel.Gt{"expires": now})
}
