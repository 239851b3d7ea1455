package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect covers the syntax differences between the supported databases.
type Dialect interface {
	Name() string
	// Driver is the database/sql driver name.
	Driver() string
	Placeholder(n int) string
	Quote(ident string) string
	// Match renders a pattern match of column against the bound pattern.
	Match(column, placeholder string) string
	// Pattern turns a literal into a match pattern. Unanchored ends match anything.
	Pattern(literal string, anchorStart, anchorEnd bool) string
	Limit(skip, take int) string
	// OrdersTime reports whether stored timestamps compare chronologically.
	OrdersTime() bool
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx":
		return Postgres{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	}
	return nil, fmt.Errorf("unsupported sql dialect %q", name)
}

type Postgres struct{}

func (Postgres) Name() string   { return "postgres" }
func (Postgres) Driver() string { return "pgx" }

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) Quote(ident string) string { return quoteIdent(ident) }

func (Postgres) Match(column, placeholder string) string {
	return fmt.Sprintf(`CAST(%s AS TEXT) LIKE %s ESCAPE '\'`, column, placeholder)
}

func (Postgres) Pattern(literal string, anchorStart, anchorEnd bool) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(literal)
	return wrap(escaped, "%", anchorStart, anchorEnd)
}

func (Postgres) Limit(skip, take int) string {
	var b strings.Builder
	if take > 0 {
		fmt.Fprintf(&b, " LIMIT %d", take)
	}
	if skip > 0 {
		fmt.Fprintf(&b, " OFFSET %d", skip)
	}
	return b.String()
}

func (Postgres) OrdersTime() bool { return true }

// SQLite matches with GLOB because its LIKE ignores ASCII case.
type SQLite struct{}

func (SQLite) Name() string   { return "sqlite" }
func (SQLite) Driver() string { return "sqlite3" }

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) Quote(ident string) string { return quoteIdent(ident) }

func (SQLite) Match(column, placeholder string) string {
	return fmt.Sprintf("CAST(%s AS TEXT) GLOB %s", column, placeholder)
}

func (SQLite) Pattern(literal string, anchorStart, anchorEnd bool) string {
	escaped := strings.NewReplacer(`[`, `[[]`, `*`, `[*]`, `?`, `[?]`).Replace(literal)
	return wrap(escaped, "*", anchorStart, anchorEnd)
}

func (SQLite) Limit(skip, take int) string {
	switch {
	case take > 0 && skip > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", take, skip)
	case take > 0:
		return fmt.Sprintf(" LIMIT %d", take)
	case skip > 0:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", skip)
	}
	return ""
}

// OrdersTime is false: the driver stores timestamps as text with a variable
// number of fractional digits.
func (SQLite) OrdersTime() bool { return false }

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func wrap(s, wild string, anchorStart, anchorEnd bool) string {
	if !anchorStart {
		s = wild + s
	}
	if !anchorEnd {
		s += wild
	}
	return s
}
