package repository

import "errors"

var (
	// ErrNotFound is returned by single-entity lookups that match no row.
	ErrNotFound = errors.New("entity not found")
	// ErrMultipleFound is returned by single-entity lookups that match more than one row.
	ErrMultipleFound = errors.New("multiple entities found")
	// ErrUnsupportedRule is returned for advanced search rules no rule set knows.
	ErrUnsupportedRule = errors.New("unsupported search rule")
	// ErrInvalidOperator is returned for operator tokens outside the whitelist, or
	// tokens a rule cannot be combined with.
	ErrInvalidOperator = errors.New("invalid search operator")
)
