package datasource

import (
	"fmt"
	"strings"
)

// Column is a column of a table as reported by INFORMATION_SCHEMA.
type Column struct {
	Name     string
	DataType string
	Nullable bool
}

// TableSchema describes one table.
type TableSchema struct {
	Schema  string
	Name    string
	Columns []Column
}

// UniqueID identifies the table across schemas.
func (t TableSchema) UniqueID() string {
	return t.Schema + "." + t.Name
}

// Describe renders the table as a CREATE TABLE statement.
func (t TableSchema) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE [%s].[%s] (\n", t.Schema, t.Name)
	for i, c := range t.Columns {
		null := "NOT NULL"
		if c.Nullable {
			null = "NULL"
		}
		fmt.Fprintf(&b, "  [%s] %s %s", c.Name, c.DataType, null)
		if i < len(t.Columns)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString(");")
	return b.String()
}

// columnRow is one row of the INFORMATION_SCHEMA.COLUMNS query.
type columnRow struct {
	schema   string
	table    string
	column   string
	dataType string
	nullable string
}

// groupColumns folds ordered column rows into tables, keeping the order in
// which tables first appear.
func groupColumns(rows []columnRow) []TableSchema {
	var tables []TableSchema
	index := make(map[string]int)

	for _, r := range rows {
		key := r.schema + "." + r.table
		i, ok := index[key]
		if !ok {
			i = len(tables)
			index[key] = i
			tables = append(tables, TableSchema{Schema: r.schema, Name: r.table})
		}
		tables[i].Columns = append(tables[i].Columns, Column{
			Name:     r.column,
			DataType: r.dataType,
			Nullable: strings.EqualFold(r.nullable, "YES"),
		})
	}
	return tables
}
