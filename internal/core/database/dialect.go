package db

import (
	"strconv"
	"strings"
)

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

func (d dialect) String() string {
	if d == dialectSQLite {
		return "sqlite"
	}
	return "postgres"
}

// rebind rewrites '?' placeholders to '$n' for Postgres.
// Queries must not contain literal question marks.
func (d dialect) rebind(q string) string {
	if d != dialectPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (d dialect) metaTableQuery() string {
	if d == dialectSQLite {
		return `SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'simplifai_meta')`
	}
	return `SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'simplifai_meta'
		)`
}
