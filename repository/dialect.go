package repository

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect holds the SQL that differs between the supported engines. It is chosen
// once at startup from the configured driver.
type Dialect struct {
	Name string

	groupConcat  func(expr string) string
	concat       func(parts ...string) string
	wrapSubquery func(sub string) string
	ascNullsLast bool // engine sorts NULL after values in ascending order
	regexpOp     string
	notRegexpOp  string
}

// MySQL materializes IN-subqueries through an extra derived table. Without it
// MySQL rejects LIMIT inside IN (...) and re-evaluates grouped subqueries per row,
// which makes NOT IN conditions unusably slow.
var MySQL = Dialect{
	Name: "mysql",
	groupConcat: func(expr string) string {
		return "GROUP_CONCAT(" + expr + ")"
	},
	concat: func(parts ...string) string {
		return "CONCAT(" + strings.Join(parts, ", ") + ")"
	},
	wrapSubquery: func(sub string) string {
		return "SELECT * FROM (" + sub + ") mysqlhack"
	},
	regexpOp:    "REGEXP",
	notRegexpOp: "NOT REGEXP",
}

var PostgreSQL = Dialect{
	Name: "postgres",
	groupConcat: func(expr string) string {
		return "string_agg(" + expr + ", ',')"
	},
	concat: func(parts ...string) string {
		return strings.Join(parts, " || ")
	},
	wrapSubquery: func(sub string) string {
		return sub
	},
	ascNullsLast: true,
	regexpOp:     "~",
	notRegexpOp:  "!~",
}

// DialectFor maps a configured driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql":
		return MySQL, nil
	case "postgres", "pgsql", "postgresql":
		return PostgreSQL, nil
	default:
		return Dialect{}, fmt.Errorf("no SQL dialect for driver %q", driver)
	}
}

// GroupConcat aggregates expr of a group into one comma separated string.
func (d Dialect) GroupConcat(expr string) string {
	return d.groupConcat(expr)
}

// Concat joins string expressions.
func (d Dialect) Concat(parts ...string) string {
	return d.concat(parts...)
}

// Subquery returns sub in the form it must take inside IN (...).
func (d Dialect) Subquery(sub string) string {
	return d.wrapSubquery(sub)
}

// AscNullsFirst orders col ascending with NULLs ahead of every value.
func (d Dialect) AscNullsFirst(col string) string {
	if d.ascNullsLast {
		return col + " ASC NULLS FIRST"
	}
	return col + " ASC"
}

// Paginate renders the LIMIT/OFFSET tail. A non-positive limit means unlimited.
func (d Dialect) Paginate(limit, offset int) string {
	var sb strings.Builder
	if limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(limit))
	} else if offset > 0 && d.Name == MySQL.Name {
		// MySQL has no OFFSET without LIMIT
		sb.WriteString(" LIMIT 18446744073709551615")
	}
	if offset > 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(offset))
	}
	return sb.String()
}
