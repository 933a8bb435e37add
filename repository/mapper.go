package repository

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"musiclib/model"

	"gorm.io/gorm"
)

// tablePrefixToken is replaced with the configured table prefix right before a
// statement is executed.
const tablePrefixToken = "*PREFIX*"

// SortBy selects the ORDER BY clause of list queries.
type SortBy int

const (
	SortNone SortBy = iota
	SortName
	SortParent
	SortNewest
	SortPlayCount
	SortLastPlayed
)

// ParseSortBy maps the API's sort keys to SortBy. Unknown keys mean no sorting.
func ParseSortBy(s string) SortBy {
	switch strings.ToLower(s) {
	case "name":
		return SortName
	case "parent":
		return SortParent
	case "newest":
		return SortNewest
	case "play_count", "playcount":
		return SortPlayCount
	case "last_played", "lastplayed":
		return SortLastPlayed
	default:
		return SortNone
	}
}

// Page bounds a list query. A non-positive Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

// NoPage fetches every row.
var NoPage = Page{}

// entityMapper composes user scoped SELECT statements for one entity table and
// hydrates rows into T. Entities plug in their row projection, sort clause
// selector and rule set.
type entityMapper[T any] struct {
	db         *gorm.DB
	dialect    Dialect
	prefix     string
	table      string // unprefixed table name
	nameColumn string
	projection string // SELECT ... FROM ... JOIN ..., without WHERE
	sortClause func(sortBy SortBy, invert bool) string
	rules      *RuleSet
}

// tableRef is the table name as written in statements, before prefix substitution.
func (m *entityMapper[T]) tableRef() string {
	return tablePrefixToken + m.table
}

func (m *entityMapper[T]) col(column string) string {
	return m.tableRef() + "." + column
}

func (m *entityMapper[T]) prepare(sql string) string {
	return strings.ReplaceAll(sql, tablePrefixToken, m.prefix)
}

func (m *entityMapper[T]) selectEntities(condition, extension string) string {
	sql := m.projection + " WHERE " + condition
	if extension != "" {
		sql += " " + extension
	}
	return sql
}

func (m *entityMapper[T]) selectUserEntities(condition, extension string) string {
	all := m.col("user_id") + " = ?"
	if condition != "" {
		all += " AND (" + condition + ")"
	}
	return m.selectEntities(all, extension)
}

// defaultSortClause is the ordering every entity understands.
func (m *entityMapper[T]) defaultSortClause(sortBy SortBy, invert bool) string {
	switch sortBy {
	case SortName:
		return "ORDER BY LOWER(" + m.col(m.nameColumn) + ") " + direction(invert, "ASC", "DESC")
	case SortNewest:
		return "ORDER BY " + m.col("id") + " " + direction(invert, "DESC", "ASC")
	default:
		return ""
	}
}

func direction(invert bool, normal, inverted string) string {
	if invert {
		return inverted
	}
	return normal
}

func (m *entityMapper[T]) findEntities(ctx context.Context, sql string, page Page, args ...interface{}) ([]T, error) {
	entities := make([]T, 0)
	query := m.prepare(sql) + m.dialect.Paginate(page.Limit, page.Offset)
	if err := m.db.WithContext(ctx).Raw(query, args...).Scan(&entities).Error; err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", m.table, err)
	}
	return entities, nil
}

// findEntity returns the only row matched by sql.
func (m *entityMapper[T]) findEntity(ctx context.Context, sql string, args ...interface{}) (*T, error) {
	entities, err := m.findEntities(ctx, sql, NoPage, args...)
	if err != nil {
		return nil, err
	}
	switch len(entities) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &entities[0], nil
	default:
		return nil, ErrMultipleFound
	}
}

// scan runs an arbitrary query and scans its rows into dest.
func (m *entityMapper[T]) scan(ctx context.Context, dest interface{}, sql string, args ...interface{}) error {
	if err := m.db.WithContext(ctx).Raw(m.prepare(sql), args...).Scan(dest).Error; err != nil {
		return fmt.Errorf("failed to query %s: %w", m.table, err)
	}
	return nil
}

// execute runs a statement and reports how many rows it touched.
func (m *entityMapper[T]) execute(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	res := m.db.WithContext(ctx).Exec(m.prepare(sql), args...)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update %s: %w", m.table, res.Error)
	}
	return res.RowsAffected, nil
}

// FindAll lists the user's entities.
func (m *entityMapper[T]) FindAll(ctx context.Context, userID string, sortBy SortBy, invert bool, page Page) ([]T, error) {
	sql := m.selectUserEntities("", m.sortClause(sortBy, invert))
	return m.findEntities(ctx, sql, page, userID)
}

// Find returns one entity of the user by id.
func (m *entityMapper[T]) Find(ctx context.Context, id int64, userID string) (*T, error) {
	sql := m.selectUserEntities(m.col("id")+" = ?", "")
	return m.findEntity(ctx, sql, userID, id)
}

// FindByIDs returns the user's entities among ids, in no particular order.
func (m *entityMapper[T]) FindByIDs(ctx context.Context, ids []int64, userID string) ([]T, error) {
	if len(ids) == 0 {
		return []T{}, nil
	}
	sql := m.selectUserEntities(m.col("id")+" IN "+questionMarks(len(ids)), "")
	return m.findEntities(ctx, sql, NoPage, append([]interface{}{userID}, int64Args(ids)...)...)
}

// Count returns how many entities the user owns.
func (m *entityMapper[T]) Count(ctx context.Context, userID string) (int64, error) {
	var count int64
	sql := "SELECT COUNT(*) FROM " + m.tableRef() + " WHERE user_id = ?"
	if err := m.scan(ctx, &count, sql, userID); err != nil {
		return 0, err
	}
	return count, nil
}

// FindAllByName matches the name column case-insensitively, either exactly or
// as a substring when fuzzy is set.
func (m *entityMapper[T]) FindAllByName(ctx context.Context, name string, userID string, fuzzy bool, page Page) ([]T, error) {
	param := name
	op := "="
	if fuzzy {
		param = substringPattern(name)
		op = "LIKE"
	}
	condition := "LOWER(" + m.col(m.nameColumn) + ") " + op + " LOWER(?)"
	sql := m.selectUserEntities(condition, m.sortClause(SortName, false))
	return m.findEntities(ctx, sql, page, userID, param)
}

// FindAllStarred lists the entities the user flagged as favorite.
func (m *entityMapper[T]) FindAllStarred(ctx context.Context, userID string, page Page) ([]T, error) {
	sql := m.selectUserEntities(m.col("starred")+" IS NOT NULL", m.sortClause(SortName, false))
	return m.findEntities(ctx, sql, page, userID)
}

// FindAllAdvanced combines advanced search rules with conjunction ("and" or "or").
// With random set the matching rows are shuffled and the page is taken from the
// shuffled list.
func (m *entityMapper[T]) FindAllAdvanced(ctx context.Context, conjunction string, rules []model.AdvancedRule,
	random bool, sortBy SortBy, invert bool, userID string, page Page) ([]T, error) {
	var glue string
	switch strings.ToLower(conjunction) {
	case "and", "":
		glue = " AND "
	case "or":
		glue = " OR "
	default:
		return nil, fmt.Errorf("%w: conjunction %q", ErrInvalidOperator, conjunction)
	}

	conditions := make([]string, 0, len(rules))
	args := []interface{}{userID}
	for _, rule := range rules {
		op, err := ResolveOperator(rule.Operator, rule.Input, userID, m.dialect)
		if err != nil {
			return nil, err
		}
		rc := RuleContext{
			Op:         op,
			Dialect:    m.dialect,
			Table:      m.tableRef(),
			NameColumn: m.nameColumn,
			UserID:     userID,
		}
		frag, err := m.rules.Condition(rule.Rule, rc)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, "("+frag.SQL+")")
		args = append(args, frag.Bind(rc)...)
	}

	extension := ""
	if !random {
		extension = m.sortClause(sortBy, invert)
	}
	sql := m.selectUserEntities(strings.Join(conditions, glue), extension)

	if !random {
		return m.findEntities(ctx, sql, page, args...)
	}
	entities, err := m.findEntities(ctx, sql, NoPage, args...)
	if err != nil {
		return nil, err
	}
	rand.Shuffle(len(entities), func(i, j int) {
		entities[i], entities[j] = entities[j], entities[i]
	})
	return applyPage(entities, page), nil
}

func applyPage[T any](items []T, page Page) []T {
	if page.Offset >= len(items) {
		return []T{}
	}
	items = items[max(page.Offset, 0):]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}

// questionMarks renders a parenthesized list of n placeholders. An empty list
// renders as (NULL), which matches nothing.
func questionMarks(n int) string {
	if n <= 0 {
		return "(NULL)"
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?,", n), ",") + ")"
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE wildcards in user input.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// substringPattern turns s into a LIKE pattern matching any string containing s.
func substringPattern(s string) string {
	return "%" + escapeLike(s) + "%"
}
