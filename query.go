// Copyright (c) qualia authors.
// SPDX-License-Identifier: MPL-2.0

package qualia

import (
	"fmt"
	"regexp"
	"strings"
)

// QueryNode is a compiled query tree over an object's properties. It is a
// tagged variant, not an inheritance hierarchy: compile is a total function
// pattern-matching on the node's kind.
type QueryNode struct {
	kind     queryKind
	name     string
	value    PropValue
	pattern  string
	children []QueryNode
}

type queryKind int

const (
	queryEmpty queryKind = iota
	queryPropEqual
	queryPropLike
	queryAnd
)

// Empty is a QueryNode that matches every object.
func Empty() QueryNode {
	return QueryNode{kind: queryEmpty}
}

// PropEqual returns a QueryNode matching objects whose property name equals
// value. If name is IdentityField, the comparison is against the object_id
// column directly.
func PropEqual(name string, value PropValue) QueryNode {
	return QueryNode{kind: queryPropEqual, name: name, value: value}
}

// PropLike returns a QueryNode matching objects whose property name (read
// as text) matches pattern, case-insensitively. pattern is split on spaces
// into words that must appear in that order, and * inside a word stands for
// zero or more word characters (see compileLikePattern).
func PropLike(name, pattern string) QueryNode {
	return QueryNode{kind: queryPropLike, name: name, pattern: pattern}
}

// And returns a QueryNode matching objects that match every child. And with
// zero children is equivalent to Empty.
func And(children ...QueryNode) QueryNode {
	if len(children) == 0 {
		return Empty()
	}
	return QueryNode{kind: queryAnd, children: children}
}

// compiled is the result of compiling a QueryNode: a SQL boolean expression
// and the ordered parameters it references by '?' placeholder.
type compiled struct {
	where string
	args  []any
}

// compile is the total function that pattern-matches on the node's kind and
// produces a where-clause fragment plus its parameters. And joins children
// with " AND " and concatenates their parameters in child order.
func (n QueryNode) compile() (compiled, error) {
	switch n.kind {
	case queryEmpty:
		return compiled{where: "1 = 1"}, nil

	case queryPropEqual:
		if n.name == IdentityField {
			num, ok := n.value.AsNumber()
			if !ok {
				return compiled{}, fmt.Errorf("%w: %s must be compared against a Number", ErrUsage, IdentityField)
			}
			return compiled{where: "objects.object_id = ?", args: []any{num}}, nil
		}
		if num, ok := n.value.AsNumber(); ok {
			// No CAST here: json_extract already returns an INTEGER
			// storage class for a JSON number. A string-valued property
			// compares as TEXT against this INTEGER parameter, and
			// SQLite never considers the two storage classes equal, so a
			// Number query correctly never matches a String property
			// instead of CAST coercing non-numeric text to 0.
			return compiled{
				where: "json_extract(objects.properties, ?) = ?",
				args:  []any{jsonPath(n.name), num},
			}, nil
		}
		str, _ := n.value.AsString()
		return compiled{
			where: "json_extract(objects.properties, ?) = ?",
			args:  []any{jsonPath(n.name), str},
		}, nil

	case queryPropLike:
		pattern, err := compileLikePattern(n.pattern)
		if err != nil {
			return compiled{}, err
		}
		return compiled{
			where: "QUALIA_REGEXP(?, CAST(json_extract(objects.properties, ?) AS TEXT))",
			args:  []any{pattern, jsonPath(n.name)},
		}, nil

	case queryAnd:
		wheres := make([]string, 0, len(n.children))
		var args []any
		for _, child := range n.children {
			c, err := child.compile()
			if err != nil {
				return compiled{}, err
			}
			wheres = append(wheres, "("+c.where+")")
			args = append(args, c.args...)
		}
		if len(wheres) == 0 {
			return compiled{where: "1 = 1"}, nil
		}
		return compiled{where: strings.Join(wheres, " AND "), args: args}, nil

	default:
		return compiled{}, fmt.Errorf("%w: unknown query node kind %d", ErrUsage, n.kind)
	}
}

// jsonPath renders a dotted property name as a SQLite json_extract path.
func jsonPath(name string) string {
	return "$." + name
}

// compileLikePattern implements §4.B's PropLike pattern syntax: split on
// spaces, discard empty tokens, every remaining token is a word that must
// appear in order (other words may appear between them). Inside a token, *
// stands for zero or more word characters; everything else is literal.
// Each token becomes \btoken\b with * expanded to \w*, tokens are joined
// with .*?, and the whole expression runs case-insensitively.
func compileLikePattern(pattern string) (string, error) {
	fields := strings.Fields(pattern)
	if len(fields) == 0 {
		return "(?i)", nil
	}
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		parts := strings.Split(field, "*")
		escaped := make([]string, len(parts))
		for i, part := range parts {
			escaped[i] = regexp.QuoteMeta(part)
		}
		tokens = append(tokens, `\b`+strings.Join(escaped, `\w*`)+`\b`)
	}
	return "(?i)" + strings.Join(tokens, ".*?"), nil
}
