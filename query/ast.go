/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package query implements the filter language used by find, update, delete
// and the $match stage.
//
// Filters such as `{"type": {"$ne": "a"}, "tags": {"$in": ["tag2", "tag1-a"]}}`
// are parsed into an AST once and evaluated against each record.
package query

import (
	"github.com/suparena/docstore/document"
)

// Operator represents a field predicate operator (e.g., $eq, $gt, $in).
type Operator string

const (
	OpEq        Operator = "$eq"
	OpNe        Operator = "$ne"
	OpGt        Operator = "$gt"
	OpGte       Operator = "$gte"
	OpLt        Operator = "$lt"
	OpLte       Operator = "$lte"
	OpIn        Operator = "$in"
	OpNin       Operator = "$nin"
	OpExists    Operator = "$exists"
	OpSize      Operator = "$size"
	OpElemMatch Operator = "$elemMatch"
	OpNot       Operator = "$not"
)

// Node is the common interface for all nodes in the filter AST.
type Node interface {
	// Matches reports whether the record satisfies the node. It must not
	// modify the record.
	Matches(doc *document.Document) bool
}

// Matches reports whether doc satisfies the filter node. A nil node matches
// every record.
func Matches(doc *document.Document, node Node) bool {
	if node == nil {
		return true
	}
	return node.Matches(doc)
}

// LogicalNode represents $and, $or and $nor over child nodes.
type LogicalNode struct {
	Operator string // $and, $or, $nor
	Children []Node
}

func (n *LogicalNode) Matches(doc *document.Document) bool {
	switch n.Operator {
	case "$and":
		for _, child := range n.Children {
			if !child.Matches(doc) {
				return false
			}
		}
		return true
	case "$or":
		for _, child := range n.Children {
			if child.Matches(doc) {
				return true
			}
		}
		return false
	case "$nor":
		for _, child := range n.Children {
			if child.Matches(doc) {
				return false
			}
		}
		return true
	}
	return false
}

// FieldNode represents a single operator applied to the value(s) at Path.
type FieldNode struct {
	Path     string
	Operator Operator
	Value    document.Value   // operand for comparisons, $exists and $size
	Values   []document.Value // candidates for $in and $nin
}

func (n *FieldNode) Matches(doc *document.Document) bool {
	switch n.Operator {
	case OpExists, OpSize:
		return n.test(candidates(doc, n.Path, false))
	}
	return n.test(candidates(doc, n.Path, true))
}

// test evaluates the operator against the candidate values found at the path.
// An empty candidate list means the field is absent.
func (n *FieldNode) test(cands []document.Value) bool {
	switch n.Operator {
	case OpEq:
		return containsEqual(cands, n.Value)
	case OpNe:
		return !containsEqual(cands, n.Value)
	case OpGt, OpGte, OpLt, OpLte:
		for _, c := range cands {
			if !document.Comparable(c, n.Value) {
				continue
			}
			cmp := document.Compare(c, n.Value)
			switch n.Operator {
			case OpGt:
				if cmp > 0 {
					return true
				}
			case OpGte:
				if cmp >= 0 {
					return true
				}
			case OpLt:
				if cmp < 0 {
					return true
				}
			case OpLte:
				if cmp <= 0 {
					return true
				}
			}
		}
		return false
	case OpIn:
		for _, want := range n.Values {
			if containsEqual(cands, want) {
				return true
			}
		}
		return false
	case OpNin:
		if len(n.Values) == 0 {
			return false
		}
		for _, want := range n.Values {
			if containsEqual(cands, want) {
				return false
			}
		}
		return true
	case OpExists:
		return (len(cands) > 0) == n.Value.Truthy()
	case OpSize:
		for _, c := range cands {
			if c.Kind() == document.KindArray && float64(len(c.ArrayValue())) == n.Value.NumberValue() {
				return true
			}
		}
		return false
	}
	return false
}

// ElemMatchNode matches when at least one element of the array at Path
// satisfies the nested filter. Documents inside the array are matched against
// Filter as records of their own; scalar elements are tested against
// Predicates, the operator-only form such as {"$gte": 80, "$lt": 90}.
type ElemMatchNode struct {
	Path       string
	Filter     Node
	Predicates []*FieldNode
}

func (n *ElemMatchNode) Matches(doc *document.Document) bool {
	for _, c := range candidates(doc, n.Path, false) {
		if c.Kind() != document.KindArray {
			continue
		}
		for _, elem := range c.ArrayValue() {
			if n.matchElem(elem) {
				return true
			}
		}
	}
	return false
}

func (n *ElemMatchNode) matchElem(elem document.Value) bool {
	if n.Filter != nil {
		if elem.Kind() != document.KindDocument {
			return false
		}
		return n.Filter.Matches(elem.DocumentValue())
	}
	cands := expand(elem)
	for _, p := range n.Predicates {
		if !p.test(cands) {
			return false
		}
	}
	return true
}

// NotNode negates the operator expression applied to a single field.
type NotNode struct {
	Child Node
}

func (n *NotNode) Matches(doc *document.Document) bool {
	return !n.Child.Matches(doc)
}

func containsEqual(cands []document.Value, want document.Value) bool {
	if want.IsNull() && len(cands) == 0 {
		// null matches an absent field
		return true
	}
	for _, c := range cands {
		if document.Equal(c, want) {
			return true
		}
	}
	return false
}

// candidates collects the values reachable at path. Arrays of documents met
// along the path are traversed element-wise. When expandLeaf is set, an array
// found at the end of the path contributes both itself and its elements.
func candidates(doc *document.Document, path string, expandLeaf bool) []document.Value {
	var out []document.Value
	collect(document.Doc(doc), splitPath(path), expandLeaf, &out)
	return out
}

func collect(cur document.Value, parts []string, expandLeaf bool, out *[]document.Value) {
	if len(parts) == 0 {
		if expandLeaf {
			*out = append(*out, expand(cur)...)
		} else {
			*out = append(*out, cur)
		}
		return
	}
	switch cur.Kind() {
	case document.KindDocument:
		next, ok := cur.DocumentValue().Get(parts[0])
		if ok {
			collect(next, parts[1:], expandLeaf, out)
		}
	case document.KindArray:
		elems := cur.ArrayValue()
		if idx, ok := arrayIndex(parts[0]); ok && idx < len(elems) {
			collect(elems[idx], parts[1:], expandLeaf, out)
		}
		for _, e := range elems {
			if e.Kind() == document.KindDocument {
				collect(e, parts, expandLeaf, out)
			}
		}
	}
}

func expand(v document.Value) []document.Value {
	if v.Kind() != document.KindArray {
		return []document.Value{v}
	}
	out := make([]document.Value, 0, len(v.ArrayValue())+1)
	out = append(out, v)
	return append(out, v.ArrayValue()...)
}
