/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package pipeline

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/suparena/docstore/document"
)

// Expr is a compiled aggregation expression evaluated against one record.
// Eval reports ok=false when the expression resolves to a missing value.
type Expr interface {
	Eval(root *document.Document) (v document.Value, ok bool, err error)
}

// ParseExpression compiles an expression value:
//
//	"$scores.score"                          field path
//	"$$ROOT"                                 the current record
//	{"$arrayElemAt": ["$scores.score", -1]}  operator
//	{"name": "$name", "n": 1}                object expression
//	["$a", "$b"]                             array expression
//
// Anything else is a literal.
func ParseExpression(v document.Value) (Expr, error) {
	switch v.Kind() {
	case document.KindString:
		s := v.StringValue()
		switch {
		case s == "$$ROOT":
			return rootExpr{}, nil
		case strings.HasPrefix(s, "$$ROOT."):
			return fieldExpr{path: strings.TrimPrefix(s, "$$ROOT.")}, nil
		case strings.HasPrefix(s, "$$"):
			return nil, fmt.Errorf("unknown variable %s", s)
		case s == "$":
			return nil, fmt.Errorf("empty field path")
		case strings.HasPrefix(s, "$"):
			return fieldExpr{path: s[1:]}, nil
		}
		return literalExpr{v: v}, nil

	case document.KindArray:
		items := make([]Expr, 0, len(v.ArrayValue()))
		for _, item := range v.ArrayValue() {
			e, err := ParseExpression(item)
			if err != nil {
				return nil, err
			}
			items = append(items, e)
		}
		return arrayExpr{items: items}, nil

	case document.KindDocument:
		d := v.DocumentValue()
		keys := d.Keys()
		if len(keys) == 1 && strings.HasPrefix(keys[0], "$") {
			arg, _ := d.Get(keys[0])
			return parseOperatorExpr(keys[0], arg)
		}
		obj := objectExpr{keys: keys, exprs: make([]Expr, 0, len(keys))}
		for _, k := range keys {
			if strings.HasPrefix(k, "$") {
				return nil, fmt.Errorf("expression operator %s must be the only field", k)
			}
			arg, _ := d.Get(k)
			e, err := ParseExpression(arg)
			if err != nil {
				return nil, err
			}
			obj.exprs = append(obj.exprs, e)
		}
		return obj, nil
	}
	return literalExpr{v: v}, nil
}

type literalExpr struct{ v document.Value }

func (e literalExpr) Eval(*document.Document) (document.Value, bool, error) {
	return e.v, true, nil
}

type rootExpr struct{}

func (rootExpr) Eval(root *document.Document) (document.Value, bool, error) {
	return document.Doc(root), true, nil
}

type fieldExpr struct{ path string }

func (e fieldExpr) Eval(root *document.Document) (document.Value, bool, error) {
	v, ok := root.Lookup(e.path)
	return v, ok, nil
}

type arrayExpr struct{ items []Expr }

func (e arrayExpr) Eval(root *document.Document) (document.Value, bool, error) {
	out := make([]document.Value, 0, len(e.items))
	for _, item := range e.items {
		v, ok, err := item.Eval(root)
		if err != nil {
			return document.Value{}, false, err
		}
		if !ok {
			v = document.Null()
		}
		out = append(out, v)
	}
	return document.Array(out...), true, nil
}

type objectExpr struct {
	keys  []string
	exprs []Expr
}

func (e objectExpr) Eval(root *document.Document) (document.Value, bool, error) {
	out := document.NewWithCapacity(len(e.keys))
	for i, k := range e.keys {
		v, ok, err := e.exprs[i].Eval(root)
		if err != nil {
			return document.Value{}, false, err
		}
		if ok {
			out.Set(k, v)
		}
	}
	return document.Doc(out), true, nil
}

// operatorExpr applies a named operator to its evaluated arguments.
type operatorExpr struct {
	op   string
	args []Expr
	fn   operatorFunc
}

func (e operatorExpr) Eval(root *document.Document) (document.Value, bool, error) {
	vals := make([]document.Value, len(e.args))
	present := make([]bool, len(e.args))
	for i, a := range e.args {
		v, ok, err := a.Eval(root)
		if err != nil {
			return document.Value{}, false, err
		}
		vals[i], present[i] = v, ok
	}
	v, ok, err := e.fn(vals, present)
	if err != nil {
		return document.Value{}, false, fmt.Errorf("%s: %w", e.op, err)
	}
	return v, ok, nil
}

type operatorFunc func(args []document.Value, present []bool) (document.Value, bool, error)

// arity bounds for each operator; hi < 0 means unbounded
var operators = map[string]struct {
	lo, hi int
	fn     operatorFunc
}{
	"$arrayElemAt": {2, 2, arrayElemAt},
	"$size":        {1, 1, size},
	"$add":         {0, -1, add},
	"$subtract":    {2, 2, subtract},
	"$multiply":    {0, -1, multiply},
	"$divide":      {2, 2, divide},
	"$concat":      {0, -1, concat},
	"$ifNull":      {2, -1, ifNull},
	"$first":       {1, 1, firstElem},
	"$last":        {1, 1, lastElem},
	"$sum":         {1, -1, arraySum},
	"$avg":         {1, -1, arrayAvg},
	"$min":         {1, -1, arrayMin},
	"$max":         {1, -1, arrayMax},
}

func parseOperatorExpr(op string, arg document.Value) (Expr, error) {
	if op == "$literal" {
		return literalExpr{v: arg}, nil
	}
	spec, ok := operators[op]
	if !ok {
		return nil, fmt.Errorf("unknown expression operator %s", op)
	}

	var raw []document.Value
	if arg.Kind() == document.KindArray {
		raw = arg.ArrayValue()
	} else {
		raw = []document.Value{arg}
	}
	if len(raw) < spec.lo || (spec.hi >= 0 && len(raw) > spec.hi) {
		return nil, fmt.Errorf("%s takes %s, got %d", op, arityString(spec.lo, spec.hi), len(raw))
	}

	args := make([]Expr, 0, len(raw))
	for _, r := range raw {
		e, err := ParseExpression(r)
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	return operatorExpr{op: op, args: args, fn: spec.fn}, nil
}

func arityString(lo, hi int) string {
	switch {
	case lo == hi:
		return fmt.Sprintf("exactly %d argument(s)", lo)
	case hi < 0:
		return fmt.Sprintf("at least %d argument(s)", lo)
	}
	return fmt.Sprintf("%d to %d arguments", lo, hi)
}

func nullish(v document.Value, ok bool) bool {
	return !ok || v.IsNull()
}

func arrayElemAt(args []document.Value, present []bool) (document.Value, bool, error) {
	if nullish(args[0], present[0]) || nullish(args[1], present[1]) {
		return document.Null(), true, nil
	}
	if args[0].Kind() != document.KindArray {
		return document.Value{}, false, fmt.Errorf("first argument must be an array, got %s", args[0].Kind())
	}
	idx, ok := integral(args[1])
	if !ok {
		return document.Value{}, false, fmt.Errorf("index must be an integer, got %s", args[1])
	}
	arr := args[0].ArrayValue()
	if idx < 0 {
		idx += len(arr)
	}
	if idx < 0 || idx >= len(arr) {
		// out of range leaves the field missing
		return document.Value{}, false, nil
	}
	return arr[idx], true, nil
}

func size(args []document.Value, present []bool) (document.Value, bool, error) {
	if !present[0] || args[0].Kind() != document.KindArray {
		return document.Value{}, false, fmt.Errorf("argument must be an array")
	}
	return document.Int(len(args[0].ArrayValue())), true, nil
}

func add(args []document.Value, present []bool) (document.Value, bool, error) {
	var sum float64
	var date *time.Time
	for i, a := range args {
		if nullish(a, present[i]) {
			return document.Null(), true, nil
		}
		switch a.Kind() {
		case document.KindNumber:
			sum += a.NumberValue()
		case document.KindDate:
			if date != nil {
				return document.Value{}, false, fmt.Errorf("only one date allowed")
			}
			t := a.DateValue()
			date = &t
		default:
			return document.Value{}, false, fmt.Errorf("unsupported argument type %s", a.Kind())
		}
	}
	if date != nil {
		return document.Date(date.Add(time.Duration(sum) * time.Millisecond)), true, nil
	}
	return document.Number(sum), true, nil
}

func subtract(args []document.Value, present []bool) (document.Value, bool, error) {
	if nullish(args[0], present[0]) || nullish(args[1], present[1]) {
		return document.Null(), true, nil
	}
	a, b := args[0], args[1]
	switch {
	case a.IsNumber() && b.IsNumber():
		return document.Number(a.NumberValue() - b.NumberValue()), true, nil
	case a.Kind() == document.KindDate && b.Kind() == document.KindDate:
		return document.Number(float64(a.DateValue().Sub(b.DateValue()).Milliseconds())), true, nil
	case a.Kind() == document.KindDate && b.IsNumber():
		return document.Date(a.DateValue().Add(-time.Duration(b.NumberValue()) * time.Millisecond)), true, nil
	}
	return document.Value{}, false, fmt.Errorf("cannot subtract %s from %s", b.Kind(), a.Kind())
}

func multiply(args []document.Value, present []bool) (document.Value, bool, error) {
	product := 1.0
	for i, a := range args {
		if nullish(a, present[i]) {
			return document.Null(), true, nil
		}
		if !a.IsNumber() {
			return document.Value{}, false, fmt.Errorf("unsupported argument type %s", a.Kind())
		}
		product *= a.NumberValue()
	}
	return document.Number(product), true, nil
}

func divide(args []document.Value, present []bool) (document.Value, bool, error) {
	if nullish(args[0], present[0]) || nullish(args[1], present[1]) {
		return document.Null(), true, nil
	}
	if !args[0].IsNumber() || !args[1].IsNumber() {
		return document.Value{}, false, fmt.Errorf("arguments must be numbers")
	}
	if args[1].NumberValue() == 0 {
		return document.Value{}, false, fmt.Errorf("division by zero")
	}
	return document.Number(args[0].NumberValue() / args[1].NumberValue()), true, nil
}

func concat(args []document.Value, present []bool) (document.Value, bool, error) {
	var sb strings.Builder
	for i, a := range args {
		if nullish(a, present[i]) {
			return document.Null(), true, nil
		}
		if a.Kind() != document.KindString {
			return document.Value{}, false, fmt.Errorf("arguments must be strings, got %s", a.Kind())
		}
		sb.WriteString(a.StringValue())
	}
	return document.String(sb.String()), true, nil
}

func ifNull(args []document.Value, present []bool) (document.Value, bool, error) {
	last := len(args) - 1
	for i := 0; i < last; i++ {
		if !nullish(args[i], present[i]) {
			return args[i], true, nil
		}
	}
	return args[last], present[last], nil
}

func firstElem(args []document.Value, present []bool) (document.Value, bool, error) {
	return edgeElem(args, present, true)
}

func lastElem(args []document.Value, present []bool) (document.Value, bool, error) {
	return edgeElem(args, present, false)
}

func edgeElem(args []document.Value, present []bool, first bool) (document.Value, bool, error) {
	if nullish(args[0], present[0]) {
		return document.Null(), true, nil
	}
	if args[0].Kind() != document.KindArray {
		return document.Value{}, false, fmt.Errorf("argument must be an array, got %s", args[0].Kind())
	}
	arr := args[0].ArrayValue()
	if len(arr) == 0 {
		return document.Value{}, false, nil
	}
	if first {
		return arr[0], true, nil
	}
	return arr[len(arr)-1], true, nil
}

// operands flattens the arguments of the array forms of $sum, $avg, $min and
// $max: a single array argument is reduced over its elements.
func operands(args []document.Value, present []bool) []document.Value {
	if len(args) == 1 {
		if !present[0] {
			return nil
		}
		if args[0].Kind() == document.KindArray {
			return args[0].ArrayValue()
		}
		return args[:1]
	}
	out := make([]document.Value, 0, len(args))
	for i, a := range args {
		if present[i] {
			out = append(out, a)
		}
	}
	return out
}

func arraySum(args []document.Value, present []bool) (document.Value, bool, error) {
	acc := newAccumulator(AccSum)
	for _, v := range operands(args, present) {
		acc.add(v, true)
	}
	v, ok := acc.result()
	return v, ok, nil
}

func arrayAvg(args []document.Value, present []bool) (document.Value, bool, error) {
	acc := newAccumulator(AccAvg)
	for _, v := range operands(args, present) {
		acc.add(v, true)
	}
	v, ok := acc.result()
	return v, ok, nil
}

func arrayMin(args []document.Value, present []bool) (document.Value, bool, error) {
	acc := newAccumulator(AccMin)
	for _, v := range operands(args, present) {
		acc.add(v, true)
	}
	v, ok := acc.result()
	return v, ok, nil
}

func arrayMax(args []document.Value, present []bool) (document.Value, bool, error) {
	acc := newAccumulator(AccMax)
	for _, v := range operands(args, present) {
		acc.add(v, true)
	}
	v, ok := acc.result()
	return v, ok, nil
}

func integral(v document.Value) (int, bool) {
	if !v.IsNumber() {
		return 0, false
	}
	n := v.NumberValue()
	if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
		return 0, false
	}
	return int(n), true
}
