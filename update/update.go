/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package update parses and applies update expressions such as
// `{"$set": {"tags": ["tag2", "tag3", "super"]}}` to a single record.
package update

import (
	"math"
	"strconv"
	"strings"

	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/query"
)

// Operator names an update operator.
type Operator string

const (
	OpSet      Operator = "$set"
	OpUnset    Operator = "$unset"
	OpInc      Operator = "$inc"
	OpPush     Operator = "$push"
	OpAddToSet Operator = "$addToSet"
	OpPull     Operator = "$pull"
	OpAddField Operator = "$addField"
)

// Update is a parsed update expression. Operations are applied in the order
// they were declared.
type Update struct {
	ops []operation
}

type operation struct {
	op   Operator
	path string
	arg  document.Value
	// values appended by $push and $addToSet
	each []document.Value
	// element predicate of $pull
	match func(document.Value) bool
}

// Parse converts an update mapping into an Update. Keys must be known update
// operators whose argument is a field mapping; `_id` can not be targeted.
func Parse(update any) (*Update, error) {
	if update == nil {
		return nil, errors.NewInvalidUpdateError("", "update is empty")
	}
	d, err := document.FromMap(update)
	if err != nil {
		return nil, errors.NewInvalidUpdateError("", "%v", err)
	}
	return ParseDocument(d)
}

// MustParse is like Parse but panics on error.
func MustParse(update any) *Update {
	u, err := Parse(update)
	if err != nil {
		panic(err)
	}
	return u
}

// ParseDocument converts an already decoded update document.
func ParseDocument(d *document.Document) (*Update, error) {
	if d.Len() == 0 {
		return nil, errors.NewInvalidUpdateError("", "update is empty")
	}

	u := &Update{}
	var parseErr error
	d.Range(func(key string, val document.Value) bool {
		op := Operator(key)
		switch op {
		case OpSet, OpUnset, OpInc, OpPush, OpAddToSet, OpPull, OpAddField:
		default:
			if strings.HasPrefix(key, "$") {
				parseErr = errors.NewInvalidUpdateError(key, "unknown update operator")
			} else {
				parseErr = errors.NewInvalidUpdateError(key, "update document must only contain operators")
			}
			return false
		}
		if val.Kind() != document.KindDocument || val.DocumentValue().Len() == 0 {
			parseErr = errors.NewInvalidUpdateError(key, "argument must be a non-empty document")
			return false
		}
		val.DocumentValue().Range(func(path string, arg document.Value) bool {
			var o operation
			o, parseErr = parseOperation(op, path, arg)
			if parseErr != nil {
				return false
			}
			u.ops = append(u.ops, o)
			return true
		})
		return parseErr == nil
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return u, nil
}

func parseOperation(op Operator, path string, arg document.Value) (operation, error) {
	if path == "" {
		return operation{}, errors.NewInvalidUpdateError(string(op), "empty field name")
	}
	if path == document.IDField || strings.HasPrefix(path, document.IDField+".") {
		return operation{}, errors.NewInvalidUpdateError(string(op), "field %s is immutable", document.IDField)
	}

	o := operation{op: op, path: path, arg: arg}
	switch op {
	case OpInc:
		if !arg.IsNumber() {
			return o, errors.NewInvalidUpdateError(string(op), "increment for %s must be a number", path)
		}
	case OpPush, OpAddToSet:
		o.each = []document.Value{arg}
		if arg.Kind() == document.KindDocument {
			if each, ok := arg.DocumentValue().Get("$each"); ok {
				if each.Kind() != document.KindArray {
					return o, errors.NewInvalidUpdateError(string(op), "$each for %s must be an array", path)
				}
				o.each = each.ArrayValue()
			}
		}
	case OpPull:
		m, err := pullMatcher(path, arg)
		if err != nil {
			return o, err
		}
		o.match = m
	}
	return o, nil
}

// pullMatcher builds the element predicate of a $pull. An operator document
// such as {"$in": ["tag2", "tag1-a"]} is applied to each element, a plain
// document is a filter over document elements, anything else is compared by
// equality.
func pullMatcher(path string, arg document.Value) (func(document.Value) bool, error) {
	if arg.Kind() != document.KindDocument || arg.DocumentValue().Len() == 0 {
		return func(elem document.Value) bool { return document.Equal(elem, arg) }, nil
	}

	sub := arg.DocumentValue()
	operators := true
	sub.Range(func(k string, _ document.Value) bool {
		operators = strings.HasPrefix(k, "$")
		return operators
	})

	if operators {
		node, err := query.ParseDocument(document.New().Set("v", arg))
		if err != nil {
			return nil, errors.NewInvalidUpdateError(string(OpPull), "condition for %s: %v", path, err)
		}
		return func(elem document.Value) bool {
			return node.Matches(document.New().Set("v", elem))
		}, nil
	}

	node, err := query.ParseDocument(sub)
	if err != nil {
		return nil, errors.NewInvalidUpdateError(string(OpPull), "condition for %s: %v", path, err)
	}
	return func(elem document.Value) bool {
		return elem.Kind() == document.KindDocument && node.Matches(elem.DocumentValue())
	}, nil
}

// Apply mutates doc in place and reports whether any field changed. On error
// doc may be partially updated; callers apply updates to a copy.
func (u *Update) Apply(doc *document.Document) (bool, error) {
	changed := false
	for _, o := range u.ops {
		c, err := o.apply(doc)
		if err != nil {
			return false, err
		}
		changed = changed || c
	}
	return changed, nil
}

func (o operation) apply(doc *document.Document) (bool, error) {
	cur, exists := getPath(doc, o.path)

	switch o.op {
	case OpSet:
		if exists && document.Equal(cur, o.arg) {
			return false, nil
		}
		return o.set(doc, o.arg.Clone())

	case OpAddField:
		if exists {
			return false, nil
		}
		return o.set(doc, o.arg.Clone())

	case OpUnset:
		return doc.DeletePath(o.path), nil

	case OpInc:
		if !exists {
			return o.set(doc, o.arg)
		}
		if !cur.IsNumber() {
			return false, errors.NewInvalidUpdateError(string(o.op), "cannot increment non-numeric field %s", o.path)
		}
		if o.arg.NumberValue() == 0 {
			return false, nil
		}
		return o.set(doc, document.Number(cur.NumberValue()+o.arg.NumberValue()))

	case OpPush, OpAddToSet:
		var elems []document.Value
		if exists {
			if cur.Kind() != document.KindArray {
				return false, errors.NewInvalidUpdateError(string(o.op), "field %s is not an array", o.path)
			}
			elems = append(elems, cur.ArrayValue()...)
		}
		before := len(elems)
		for _, v := range o.each {
			if o.op == OpAddToSet && contains(elems, v) {
				continue
			}
			elems = append(elems, v.Clone())
		}
		if exists && len(elems) == before {
			return false, nil
		}
		return o.set(doc, document.Array(elems...))

	case OpPull:
		if !exists {
			return false, nil
		}
		if cur.Kind() != document.KindArray {
			return false, errors.NewInvalidUpdateError(string(o.op), "field %s is not an array", o.path)
		}
		kept := make([]document.Value, 0, len(cur.ArrayValue()))
		for _, elem := range cur.ArrayValue() {
			if !o.match(elem) {
				kept = append(kept, elem)
			}
		}
		if len(kept) == len(cur.ArrayValue()) {
			return false, nil
		}
		return o.set(doc, document.Array(kept...))
	}
	return false, errors.NewInvalidUpdateError(string(o.op), "unknown update operator")
}

func (o operation) set(doc *document.Document, v document.Value) (bool, error) {
	if v.IsNumber() && math.IsInf(v.NumberValue(), 0) {
		return false, errors.NewInvalidUpdateError(string(o.op), "result for %s overflows", o.path)
	}
	if !doc.SetPath(o.path, v) {
		return false, errors.NewInvalidUpdateError(string(o.op), "cannot create field in path %s", o.path)
	}
	return true, nil
}

// getPath resolves path without fanning out over arrays; only numeric
// segments may step into an array.
func getPath(doc *document.Document, path string) (document.Value, bool) {
	cur := document.Doc(doc)
	for _, part := range strings.Split(path, ".") {
		switch cur.Kind() {
		case document.KindDocument:
			next, ok := cur.DocumentValue().Get(part)
			if !ok {
				return document.Value{}, false
			}
			cur = next
		case document.KindArray:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(cur.ArrayValue()) {
				return document.Value{}, false
			}
			cur = cur.ArrayValue()[idx]
		default:
			return document.Value{}, false
		}
	}
	return cur, true
}

func contains(elems []document.Value, v document.Value) bool {
	for _, e := range elems {
		if document.Equal(e, v) {
			return true
		}
	}
	return false
}
