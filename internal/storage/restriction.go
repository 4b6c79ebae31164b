// Package storage provides the storage query and mutation interfaces the
// engine depends on, a composable restriction tree for row filters, and a
// database/sql implementation of both interfaces.
package storage

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Op represents a comparison operator
type Op int

const (
	OpEq Op = iota
	OpNotEq
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpIsNull
	OpIsNotNull
)

// Condition is one field comparison inside a restriction
type Condition struct {
	Field string
	Op    Op
	Value interface{}
}

// Restriction is a tree of conditions combined with AND or OR. Restrictions
// compose: soft-delete exclusion, versioning visibility and caller filters
// are built independently and merged into one tree.
type Restriction struct {
	conditions []*Condition
	groups     []*Restriction
	or         bool
}

// And creates a restriction whose members are combined with AND
func And() *Restriction { return &Restriction{} }

// Or creates a restriction whose members are combined with OR
func Or() *Restriction { return &Restriction{or: true} }

// Eq adds an equality condition
func (r *Restriction) Eq(field string, value interface{}) *Restriction {
	return r.add(field, OpEq, value)
}

// NotEq adds an inequality condition
func (r *Restriction) NotEq(field string, value interface{}) *Restriction {
	return r.add(field, OpNotEq, value)
}

// Gt adds a greater-than condition
func (r *Restriction) Gt(field string, value interface{}) *Restriction {
	return r.add(field, OpGt, value)
}

// In adds a set-membership condition
func (r *Restriction) In(field string, values []interface{}) *Restriction {
	return r.add(field, OpIn, values)
}

// IsNull adds an IS NULL condition
func (r *Restriction) IsNull(field string) *Restriction {
	return r.add(field, OpIsNull, nil)
}

// Group nests another restriction
func (r *Restriction) Group(group *Restriction) *Restriction {
	if group != nil && !group.Empty() {
		r.groups = append(r.groups, group)
	}
	return r
}

func (r *Restriction) add(field string, op Op, value interface{}) *Restriction {
	r.conditions = append(r.conditions, &Condition{Field: field, Op: op, Value: value})
	return r
}

// Empty reports whether the restriction has no members
func (r *Restriction) Empty() bool {
	return r == nil || (len(r.conditions) == 0 && len(r.groups) == 0)
}

// ToSQL renders the restriction as parameterized SQL. Field names are quoted;
// values bind through placeholders, never string concatenation.
func (r *Restriction) ToSQL(paramCounter *int, args *[]interface{}) (string, error) {
	if r.Empty() {
		return "", nil
	}

	parts := make([]string, 0, len(r.conditions)+len(r.groups))
	for _, cond := range r.conditions {
		sql, err := conditionToSQL(cond, paramCounter, args)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	for _, group := range r.groups {
		sql, err := group.ToSQL(paramCounter, args)
		if err != nil {
			return "", err
		}
		if sql != "" {
			parts = append(parts, fmt.Sprintf("(%s)", sql))
		}
	}

	connector := " AND "
	if r.or {
		connector = " OR "
	}
	return strings.Join(parts, connector), nil
}

func conditionToSQL(cond *Condition, paramCounter *int, args *[]interface{}) (string, error) {
	field := pq.QuoteIdentifier(cond.Field)

	bind := func(v interface{}) string {
		*args = append(*args, v)
		placeholder := fmt.Sprintf("$%d", *paramCounter)
		*paramCounter++
		return placeholder
	}

	switch cond.Op {
	case OpEq:
		return fmt.Sprintf("%s = %s", field, bind(cond.Value)), nil
	case OpNotEq:
		return fmt.Sprintf("%s != %s", field, bind(cond.Value)), nil
	case OpGt:
		return fmt.Sprintf("%s > %s", field, bind(cond.Value)), nil
	case OpGte:
		return fmt.Sprintf("%s >= %s", field, bind(cond.Value)), nil
	case OpLt:
		return fmt.Sprintf("%s < %s", field, bind(cond.Value)), nil
	case OpLte:
		return fmt.Sprintf("%s <= %s", field, bind(cond.Value)), nil
	case OpIn:
		values, ok := cond.Value.([]interface{})
		if !ok {
			return "", fmt.Errorf("IN operator requires []interface{} value")
		}
		if len(values) == 0 {
			// IN with an empty set matches nothing
			return "FALSE", nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = bind(v)
		}
		return fmt.Sprintf("%s IN (%s)", field, strings.Join(placeholders, ", ")), nil
	case OpIsNull:
		return fmt.Sprintf("%s IS NULL", field), nil
	case OpIsNotNull:
		return fmt.Sprintf("%s IS NOT NULL", field), nil
	default:
		return "", fmt.Errorf("unsupported operator: %v", cond.Op)
	}
}
