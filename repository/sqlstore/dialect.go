package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/nijaru/reelflow/errors"
)

const (
	driverSQLite   = "sqlite3"
	driverPostgres = "postgres"
)

type dialect struct {
	name     string
	schema   string
	pragmas  []string
	numbered bool
	isUnique func(error) bool
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case driverSQLite, "sqlite":
		return dialect{
			name:   driverSQLite,
			schema: sqliteSchema,
			pragmas: []string{
				"PRAGMA foreign_keys = ON",
				"PRAGMA journal_mode = WAL",
				"PRAGMA synchronous = NORMAL",
				"PRAGMA temp_store = MEMORY",
				"PRAGMA cache_size = -2000", // Use up to 2MB of memory for cache
			},
			isUnique: isSQLiteUnique,
		}, nil
	case driverPostgres, "postgresql":
		return dialect{
			name:     driverPostgres,
			schema:   postgresSchema,
			numbered: true,
			isUnique: isPostgresUnique,
		}, nil
	}
	return dialect{}, fmt.Errorf("unknown driver %q", driver)
}

// rebind rewrites ? placeholders into $n for drivers that need numbered
// parameters. Queries in this package never contain literal question marks.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isSQLiteUnique(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func isPostgresUnique(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505"
}
