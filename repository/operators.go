package repository

import (
	"fmt"
	"strconv"
	"strings"
)

// OperatorKind tells rules what shape of operand an operator carries.
type OperatorKind int

const (
	// BinaryOperator compares against one bound parameter.
	BinaryOperator OperatorKind = iota
	// NullTestOperator is IS NULL / IS NOT NULL and binds nothing.
	NullTestOperator
	// LimitOperator carries a row count in Op; Param is the user id.
	LimitOperator
)

// SQLOperator is an operator token resolved into SQL. Op is always one of a
// fixed set of strings, or a formatted integer for LimitOperator.
type SQLOperator struct {
	Op    string
	Conv  string // function applied to both sides, e.g. LOWER
	Param interface{}
	Kind  OperatorKind
}

// Negative reports whether Op excludes matches; alternatives over several
// columns must then be AND-ed rather than OR-ed.
func (o SQLOperator) Negative() bool {
	switch o.Op {
	case "NOT LIKE", "!=", "NOT REGEXP", "!~":
		return true
	}
	return false
}

// Apply wraps expr in the operator's conversion function.
func (o SQLOperator) Apply(expr string) string {
	return o.Conv + "(" + expr + ")"
}

var numericOperators = map[string]string{
	">=": ">=",
	"<=": "<=",
	"=":  "=",
	"!=": "!=",
	"<>": "!=",
	">":  ">",
	"<":  "<",
}

// ResolveOperator converts an advanced search operator token and its input to SQL.
// userID is bound in place of the input for row-limit operators, whose count
// becomes part of the statement text.
func ResolveOperator(token, input, userID string, d Dialect) (SQLOperator, error) {
	const conv = "LOWER"
	switch strings.ToLower(token) {
	case "contain":
		return SQLOperator{Op: "LIKE", Conv: conv, Param: substringPattern(input)}, nil
	case "notcontain":
		return SQLOperator{Op: "NOT LIKE", Conv: conv, Param: substringPattern(input)}, nil
	case "start":
		return SQLOperator{Op: "LIKE", Conv: conv, Param: escapeLike(input) + "%"}, nil
	case "end":
		return SQLOperator{Op: "LIKE", Conv: conv, Param: "%" + escapeLike(input)}, nil
	case "equal":
		return SQLOperator{Op: "=", Conv: conv, Param: input}, nil
	case "ne":
		return SQLOperator{Op: "!=", Conv: conv, Param: input}, nil
	case "sounds":
		// PostgreSQL needs the fuzzystrmatch extension
		return SQLOperator{Op: "=", Conv: "SOUNDEX", Param: input}, nil
	case "notsounds":
		return SQLOperator{Op: "!=", Conv: "SOUNDEX", Param: input}, nil
	case "regexp":
		return SQLOperator{Op: d.regexpOp, Conv: conv, Param: input}, nil
	case "notregexp":
		return SQLOperator{Op: d.notRegexpOp, Conv: conv, Param: input}, nil
	case "true":
		return SQLOperator{Op: "IS NOT NULL", Kind: NullTestOperator}, nil
	case "false":
		return SQLOperator{Op: "IS NULL", Kind: NullTestOperator}, nil
	case "limit":
		n, err := strconv.Atoi(strings.TrimSpace(input))
		if err != nil || n <= 0 {
			return SQLOperator{}, fmt.Errorf("%w: limit %q is not a positive integer", ErrInvalidOperator, input)
		}
		return SQLOperator{Op: strconv.Itoa(n), Param: userID, Kind: LimitOperator}, nil
	case "before":
		return SQLOperator{Op: "<", Param: input}, nil
	case "after":
		return SQLOperator{Op: ">", Param: input}, nil
	}

	op, ok := numericOperators[token]
	if !ok {
		return SQLOperator{}, fmt.Errorf("%w: %q", ErrInvalidOperator, token)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(input), 10, 64)
	if err != nil {
		return SQLOperator{}, fmt.Errorf("%w: %q expects a number, got %q", ErrInvalidOperator, token, input)
	}
	return SQLOperator{Op: op, Param: n}, nil
}
