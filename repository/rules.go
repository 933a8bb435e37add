package repository

import (
	"fmt"
	"sort"
)

// Fragment is a boolean SQL expression and the number of placeholders in it.
// The first UserParams placeholders are bound to the caller's user id, the
// rest to the rule's operand.
type Fragment struct {
	SQL        string
	Arity      int
	UserParams int
}

// Bind returns the parameters for the fragment's placeholders in order.
func (f Fragment) Bind(c RuleContext) []interface{} {
	args := make([]interface{}, 0, f.Arity)
	for i := 0; i < f.Arity; i++ {
		if i < f.UserParams {
			args = append(args, c.UserID)
		} else {
			args = append(args, c.Op.Param)
		}
	}
	return args
}

// RuleContext is what a rule handler renders its fragment from.
type RuleContext struct {
	Op         SQLOperator
	Dialect    Dialect
	Table      string // the entity table as referenced in the statement
	NameColumn string
	UserID     string
}

func (c RuleContext) col(column string) string {
	return c.Table + "." + column
}

// RuleHandler renders one named rule.
type RuleHandler func(c RuleContext) (Fragment, error)

// RuleSet maps rule names to handlers. Names it does not know are looked up in
// the fallback set.
type RuleSet struct {
	handlers map[string]RuleHandler
	fallback *RuleSet
}

func NewRuleSet(fallback *RuleSet) *RuleSet {
	return &RuleSet{handlers: make(map[string]RuleHandler), fallback: fallback}
}

// Register adds or replaces a rule.
func (s *RuleSet) Register(name string, h RuleHandler) *RuleSet {
	s.handlers[name] = h
	return s
}

// Alias makes alias behave like target. target is resolved on use, so it may
// live in the fallback set.
func (s *RuleSet) Alias(alias, target string) *RuleSet {
	s.handlers[alias] = func(c RuleContext) (Fragment, error) {
		h, ok := s.lookup(target)
		if !ok {
			return Fragment{}, fmt.Errorf("%w: %q (alias of %q)", ErrUnsupportedRule, alias, target)
		}
		return h(c)
	}
	return s
}

func (s *RuleSet) lookup(name string) (RuleHandler, bool) {
	for set := s; set != nil; set = set.fallback {
		if h, ok := set.handlers[name]; ok {
			return h, true
		}
	}
	return nil, false
}

// Condition renders rule with the given context.
func (s *RuleSet) Condition(rule string, c RuleContext) (Fragment, error) {
	h, ok := s.lookup(rule)
	if !ok {
		return Fragment{}, fmt.Errorf("%w: %q", ErrUnsupportedRule, rule)
	}
	return h(c)
}

// Names lists every rule reachable through s, fallbacks included.
func (s *RuleSet) Names() []string {
	seen := make(map[string]struct{})
	for set := s; set != nil; set = set.fallback {
		for name := range set.handlers {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// compare renders "expr op ?" for rules taking a plain operand.
func compare(expr string) RuleHandler {
	return func(c RuleContext) (Fragment, error) {
		if err := requireKind(c, BinaryOperator); err != nil {
			return Fragment{}, err
		}
		return Fragment{SQL: expr + " " + c.Op.Op + " ?", Arity: 1}, nil
	}
}

// compareText renders "conv(expr) op conv(?)".
func compareText(expr string) RuleHandler {
	return func(c RuleContext) (Fragment, error) {
		if err := requireKind(c, BinaryOperator); err != nil {
			return Fragment{}, err
		}
		return Fragment{SQL: textCondition(c, expr), Arity: 1}, nil
	}
}

// nullTest renders "expr IS [NOT] NULL".
func nullTest(expr string) RuleHandler {
	return func(c RuleContext) (Fragment, error) {
		if err := requireKind(c, NullTestOperator); err != nil {
			return Fragment{}, err
		}
		return Fragment{SQL: expr + " " + c.Op.Op}, nil
	}
}

func textCondition(c RuleContext, expr string) string {
	return c.Op.Apply(expr) + " " + c.Op.Op + " " + c.Op.Apply("?")
}

func requireKind(c RuleContext, kind OperatorKind) error {
	if c.Op.Kind != kind {
		return fmt.Errorf("%w: %q cannot be used with this rule", ErrInvalidOperator, c.Op.Op)
	}
	return nil
}

// GenericRules are the rules every entity table supports. Handlers resolve
// columns against RuleContext.Table so the set can be shared.
func GenericRules() *RuleSet {
	s := NewRuleSet(nil)
	s.Register("title", func(c RuleContext) (Fragment, error) {
		return compareText(c.col(c.NameColumn))(c)
	})
	s.Register("my_flagged", func(c RuleContext) (Fragment, error) {
		return nullTest(c.col("starred"))(c)
	})
	s.Register("favorite", func(c RuleContext) (Fragment, error) {
		if err := requireKind(c, BinaryOperator); err != nil {
			return Fragment{}, err
		}
		sql := "(" + textCondition(c, c.col(c.NameColumn)) + " AND " + c.col("starred") + " IS NOT NULL)"
		return Fragment{SQL: sql, Arity: 1}, nil
	})
	s.Register("myrating", func(c RuleContext) (Fragment, error) {
		return compare(c.col("rating"))(c)
	})
	s.Register("added", func(c RuleContext) (Fragment, error) {
		return compare(c.col("created"))(c)
	})
	s.Register("updated", func(c RuleContext) (Fragment, error) {
		return compare(c.col("updated"))(c)
	})
	s.Register("mbid", func(c RuleContext) (Fragment, error) {
		return compare(c.col("mbid"))(c)
	})
	s.Register("recent_added", recentBy("created"))
	s.Register("recent_updated", recentBy("updated"))
	return s
}

// recentBy selects the user's newest rows by column; the row count travels in
// the operator slot.
func recentBy(column string) RuleHandler {
	return func(c RuleContext) (Fragment, error) {
		if err := requireKind(c, LimitOperator); err != nil {
			return Fragment{}, err
		}
		sub := "SELECT id FROM " + c.Table + " WHERE user_id = ? AND " + column + " IS NOT NULL" +
			" ORDER BY " + column + " DESC LIMIT " + c.Op.Op
		return Fragment{SQL: c.col("id") + " IN (" + c.Dialect.Subquery(sub) + ")", Arity: 1}, nil
	}
}
