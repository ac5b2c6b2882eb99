/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package query

import (
	"strconv"
	"strings"

	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/errors"
)

// Parse converts a filter mapping into an AST.
// filter: { "scores": { "$elemMatch": { "type": "quiz", "score": { "$gte": 80 } } }, "name": "Aimee Zank" }
//
// A nil or empty filter matches every record. Malformed predicates yield an
// InvalidFilterError.
func Parse(filter any) (Node, error) {
	if filter == nil {
		return &LogicalNode{Operator: "$and"}, nil
	}
	d, err := document.FromMap(filter)
	if err != nil {
		return nil, errors.NewInvalidFilterError("", "%v", err)
	}
	return ParseDocument(d)
}

// MustParse is like Parse but panics on error.
func MustParse(filter any) Node {
	n, err := Parse(filter)
	if err != nil {
		panic(err)
	}
	return n
}

// ParseDocument converts an already decoded filter document into an AST.
// Sibling keys are combined with a logical AND.
func ParseDocument(filter *document.Document) (Node, error) {
	nodes := make([]Node, 0, filter.Len())
	var parseErr error

	filter.Range(func(key string, val document.Value) bool {
		var n Node
		n, parseErr = parseEntry(key, val)
		if parseErr != nil {
			return false
		}
		nodes = append(nodes, n)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return &LogicalNode{Operator: "$and", Children: nodes}, nil
}

func parseEntry(key string, val document.Value) (Node, error) {
	switch key {
	case "$and", "$or", "$nor":
		// Handle logical operators
		if val.Kind() != document.KindArray || len(val.ArrayValue()) == 0 {
			return nil, errors.NewInvalidFilterError(key, "value must be a non-empty array")
		}
		list := val.ArrayValue()
		children := make([]Node, 0, len(list))
		for i, item := range list {
			if item.Kind() != document.KindDocument {
				return nil, errors.NewInvalidFilterError(key+"."+strconv.Itoa(i), "element must be a document")
			}
			child, err := ParseDocument(item.DocumentValue())
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return &LogicalNode{Operator: key, Children: children}, nil
	}
	if strings.HasPrefix(key, "$") {
		return nil, errors.NewInvalidFilterError(key, "unknown top-level operator")
	}
	if key == "" {
		return nil, errors.NewInvalidFilterError(key, "empty field name")
	}

	// check if val is an operator document like { "$gt": 25 }
	if mixesOperators(val) {
		return nil, errors.NewInvalidFilterError(key, "cannot mix operators and fields")
	}
	if isOperatorDocument(val) {
		return parseOperators(key, val.DocumentValue())
	}
	// Implicit $eq
	return &FieldNode{Path: key, Operator: OpEq, Value: val}, nil
}

// parseOperators builds the conjunction of every operator applied to path.
func parseOperators(path string, ops *document.Document) (Node, error) {
	nodes := make([]Node, 0, ops.Len())
	var parseErr error

	ops.Range(func(op string, arg document.Value) bool {
		var n Node
		n, parseErr = parseOperator(path, Operator(op), arg)
		if parseErr != nil {
			return false
		}
		nodes = append(nodes, n)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return &LogicalNode{Operator: "$and", Children: nodes}, nil
}

func parseOperator(path string, op Operator, arg document.Value) (Node, error) {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		return &FieldNode{Path: path, Operator: op, Value: arg}, nil
	case OpIn, OpNin:
		if arg.Kind() != document.KindArray {
			return nil, errors.NewInvalidFilterError(path, "%s needs an array", op)
		}
		return &FieldNode{Path: path, Operator: op, Values: arg.ArrayValue()}, nil
	case OpExists:
		return &FieldNode{Path: path, Operator: op, Value: document.Bool(arg.Truthy())}, nil
	case OpSize:
		if !arg.IsNumber() || arg.NumberValue() < 0 {
			return nil, errors.NewInvalidFilterError(path, "$size needs a non-negative number")
		}
		return &FieldNode{Path: path, Operator: op, Value: arg}, nil
	case OpElemMatch:
		if arg.Kind() != document.KindDocument {
			return nil, errors.NewInvalidFilterError(path, "$elemMatch needs a document")
		}
		sub := arg.DocumentValue()
		if isOperatorDocument(arg) && !hasLogicalKey(sub) {
			preds, err := parseValuePredicates(path, sub)
			if err != nil {
				return nil, err
			}
			return &ElemMatchNode{Path: path, Predicates: preds}, nil
		}
		filter, err := ParseDocument(sub)
		if err != nil {
			return nil, err
		}
		return &ElemMatchNode{Path: path, Filter: filter}, nil
	case OpNot:
		if !isOperatorDocument(arg) {
			return nil, errors.NewInvalidFilterError(path, "$not needs an operator document")
		}
		child, err := parseOperators(path, arg.DocumentValue())
		if err != nil {
			return nil, err
		}
		return &NotNode{Child: child}, nil
	}
	return nil, errors.NewInvalidFilterError(path, "unknown operator %s", op)
}

// parseValuePredicates parses the operator-only $elemMatch form, where each
// operator is applied to the array element itself.
func parseValuePredicates(path string, ops *document.Document) ([]*FieldNode, error) {
	preds := make([]*FieldNode, 0, ops.Len())
	var parseErr error
	ops.Range(func(op string, arg document.Value) bool {
		var n Node
		n, parseErr = parseOperator(path, Operator(op), arg)
		if parseErr != nil {
			return false
		}
		fn, ok := n.(*FieldNode)
		if !ok {
			parseErr = errors.NewInvalidFilterError(path, "%s is not supported inside a scalar $elemMatch", op)
			return false
		}
		preds = append(preds, fn)
		return true
	})
	return preds, parseErr
}

// isOperatorDocument reports whether every key of a document value is an
// operator. An empty document is a literal.
func isOperatorDocument(v document.Value) bool {
	if v.Kind() != document.KindDocument || v.DocumentValue().Len() == 0 {
		return false
	}
	all := true
	v.DocumentValue().Range(func(k string, _ document.Value) bool {
		if !strings.HasPrefix(k, "$") {
			all = false
			return false
		}
		return true
	})
	return all
}

// mixesOperators reports whether a document value has both operator and
// plain field keys.
func mixesOperators(v document.Value) bool {
	if v.Kind() != document.KindDocument {
		return false
	}
	var ops, fields int
	v.DocumentValue().Range(func(k string, _ document.Value) bool {
		if strings.HasPrefix(k, "$") {
			ops++
		} else {
			fields++
		}
		return true
	})
	return ops > 0 && fields > 0
}

func hasLogicalKey(d *document.Document) bool {
	return d.Has("$and") || d.Has("$or") || d.Has("$nor")
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func arrayIndex(part string) (int, bool) {
	idx, err := strconv.Atoi(part)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}
