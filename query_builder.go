// Copyright (c) qualia authors.
// SPDX-License-Identifier: MPL-2.0

package qualia

// QueryBuilder is a fluent, chainable accumulator of conjunctive query
// criteria. It is a three-state builder internally (no criteria yet, one
// criterion, or several ANDed together) that collapses to a single
// QueryNode on Build.
//
// QB is the canonical empty builder value and the root of every chain:
//
//	qualia.QB().Equal("name", qualia.String("alice")).Build()
type QueryBuilder struct {
	nodes []QueryNode
}

// QB returns the canonical empty QueryBuilder.
func QB() QueryBuilder {
	return QueryBuilder{}
}

// Q is an alias for QB matching the short form used throughout the test
// suite and examples (Q().ID(...), Q().Like(...)).
func Q() QueryBuilder {
	return QB()
}

func (b QueryBuilder) with(n QueryNode) QueryBuilder {
	nodes := make([]QueryNode, len(b.nodes), len(b.nodes)+1)
	copy(nodes, b.nodes)
	nodes = append(nodes, n)
	return QueryBuilder{nodes: nodes}
}

// ID appends a PropEqual criterion against IdentityField.
func (b QueryBuilder) ID(id int64) QueryBuilder {
	return b.with(PropEqual(IdentityField, Number(id)))
}

// Equal appends a PropEqual criterion.
func (b QueryBuilder) Equal(name string, value PropValue) QueryBuilder {
	return b.with(PropEqual(name, value))
}

// Like appends a PropLike criterion.
func (b QueryBuilder) Like(name, pattern string) QueryBuilder {
	return b.with(PropLike(name, pattern))
}

// Build collapses the accumulated criteria into a single QueryNode: Empty
// with no criteria, the bare node with exactly one, or an And of all of
// them otherwise.
func (b QueryBuilder) Build() QueryNode {
	switch len(b.nodes) {
	case 0:
		return Empty()
	case 1:
		return b.nodes[0]
	default:
		return And(b.nodes...)
	}
}
