/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package pipeline

import (
	"fmt"
	"strings"

	"github.com/suparena/docstore/document"
)

// Accumulator operators usable in $group and $bucket outputs.
const (
	AccAvg      = "$avg"
	AccSum      = "$sum"
	AccMin      = "$min"
	AccMax      = "$max"
	AccCount    = "$count"
	AccFirst    = "$first"
	AccLast     = "$last"
	AccPush     = "$push"
	AccAddToSet = "$addToSet"
)

// Accumulator is a named output field computed over every record of a group,
// e.g. averageScore: {$avg: {$arrayElemAt: ["$scores.score", -1]}}.
type Accumulator struct {
	Name string
	Op   string
	Expr Expr
}

type accumulatorState interface {
	add(v document.Value, ok bool)
	result() (document.Value, bool)
}

func parseAccumulators(spec *document.Document, skip string) ([]Accumulator, error) {
	out := make([]Accumulator, 0, spec.Len())
	var parseErr error
	spec.Range(func(name string, v document.Value) bool {
		if name == skip {
			return true
		}
		var acc Accumulator
		acc, parseErr = parseAccumulator(name, v)
		if parseErr != nil {
			return false
		}
		out = append(out, acc)
		return true
	})
	return out, parseErr
}

func parseAccumulator(name string, v document.Value) (Accumulator, error) {
	if strings.Contains(name, ".") || strings.HasPrefix(name, "$") {
		return Accumulator{}, fmt.Errorf("invalid output field name %q", name)
	}
	if v.Kind() != document.KindDocument || v.DocumentValue().Len() != 1 {
		return Accumulator{}, fmt.Errorf("field %s must be an accumulator document with a single operator", name)
	}
	op := v.DocumentValue().Keys()[0]
	arg, _ := v.DocumentValue().Get(op)

	switch op {
	case AccCount:
		if arg.Kind() != document.KindDocument || arg.DocumentValue().Len() != 0 {
			return Accumulator{}, fmt.Errorf("%s for field %s takes an empty document", op, name)
		}
		return Accumulator{Name: name, Op: op}, nil
	case AccAvg, AccSum, AccMin, AccMax, AccFirst, AccLast, AccPush, AccAddToSet:
		e, err := ParseExpression(arg)
		if err != nil {
			return Accumulator{}, fmt.Errorf("field %s: %w", name, err)
		}
		return Accumulator{Name: name, Op: op, Expr: e}, nil
	}
	return Accumulator{}, fmt.Errorf("unknown accumulator %s for field %s", op, name)
}

func newAccumulator(op string) accumulatorState {
	switch op {
	case AccAvg:
		return &avgAcc{}
	case AccSum:
		return &sumAcc{}
	case AccMin:
		return &extremeAcc{sign: -1}
	case AccMax:
		return &extremeAcc{sign: 1}
	case AccCount:
		return &countAcc{}
	case AccFirst:
		return &firstAcc{}
	case AccLast:
		return &lastAcc{}
	case AccPush:
		return &pushAcc{}
	case AccAddToSet:
		return &pushAcc{unique: true}
	}
	panic("pipeline: unknown accumulator " + op)
}

// group accumulates one output record.
type group struct {
	key    document.Value
	states []accumulatorState
}

func newGroup(key document.Value, accs []Accumulator) *group {
	g := &group{key: key, states: make([]accumulatorState, len(accs))}
	for i, a := range accs {
		g.states[i] = newAccumulator(a.Op)
	}
	return g
}

func (g *group) add(doc *document.Document, accs []Accumulator) error {
	for i, a := range accs {
		if a.Expr == nil {
			g.states[i].add(document.Null(), true)
			continue
		}
		v, ok, err := a.Expr.Eval(doc)
		if err != nil {
			return fmt.Errorf("field %s: %w", a.Name, err)
		}
		g.states[i].add(v, ok)
	}
	return nil
}

func (g *group) emit(out *document.Document, accs []Accumulator) {
	for i, a := range accs {
		if v, ok := g.states[i].result(); ok {
			out.Set(a.Name, v)
		}
	}
}

type avgAcc struct {
	sum float64
	n   int
}

func (a *avgAcc) add(v document.Value, ok bool) {
	if ok && v.IsNumber() {
		a.sum += v.NumberValue()
		a.n++
	}
}

func (a *avgAcc) result() (document.Value, bool) {
	if a.n == 0 {
		return document.Null(), true
	}
	return document.Number(a.sum / float64(a.n)), true
}

type sumAcc struct{ sum float64 }

func (a *sumAcc) add(v document.Value, ok bool) {
	if ok && v.IsNumber() {
		a.sum += v.NumberValue()
	}
}

func (a *sumAcc) result() (document.Value, bool) {
	return document.Number(a.sum), true
}

// extremeAcc keeps the minimum (sign -1) or maximum (sign 1), ignoring null
// and missing values.
type extremeAcc struct {
	sign int
	seen bool
	best document.Value
}

func (a *extremeAcc) add(v document.Value, ok bool) {
	if !ok || v.IsNull() {
		return
	}
	if !a.seen || document.Compare(v, a.best)*a.sign > 0 {
		a.best, a.seen = v, true
	}
}

func (a *extremeAcc) result() (document.Value, bool) {
	if !a.seen {
		return document.Null(), true
	}
	return a.best, true
}

type countAcc struct{ n int }

func (a *countAcc) add(document.Value, bool) { a.n++ }

func (a *countAcc) result() (document.Value, bool) {
	return document.Int(a.n), true
}

type firstAcc struct {
	seen bool
	v    document.Value
}

func (a *firstAcc) add(v document.Value, ok bool) {
	if a.seen {
		return
	}
	a.seen = true
	if ok {
		a.v = v
	}
}

func (a *firstAcc) result() (document.Value, bool) {
	return a.v, true
}

type lastAcc struct{ v document.Value }

func (a *lastAcc) add(v document.Value, ok bool) {
	if ok {
		a.v = v
	} else {
		a.v = document.Null()
	}
}

func (a *lastAcc) result() (document.Value, bool) {
	return a.v, true
}

type pushAcc struct {
	unique bool
	vals   []document.Value
}

func (a *pushAcc) add(v document.Value, ok bool) {
	if !ok {
		return
	}
	if a.unique {
		for _, e := range a.vals {
			if document.Equal(e, v) {
				return
			}
		}
	}
	a.vals = append(a.vals, v)
}

func (a *pushAcc) result() (document.Value, bool) {
	return document.Array(a.vals...), true
}
