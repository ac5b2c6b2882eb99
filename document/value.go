/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package document

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind is the type tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindDocument
	KindArray
	KindObjectID
	KindBool
	KindDate
)

var kindNames = [...]string{
	KindNull:     "null",
	KindNumber:   "number",
	KindString:   "string",
	KindDocument: "document",
	KindArray:    "array",
	KindObjectID: "objectId",
	KindBool:     "bool",
	KindDate:     "date",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Value is a dynamically-typed field value. The zero Value is null.
//
// Values holding arrays or documents share their backing storage when copied;
// use Clone before mutating a Value that is reachable from another record.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	t    time.Time
	id   primitive.ObjectID
	arr  []Value
	doc  *Document
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int returns a numeric value for an integer.
func Int(n int) Value { return Value{kind: KindNumber, n: float64(n)} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Date returns a date value. The time is normalized to UTC with millisecond precision.
func Date(t time.Time) Value {
	return Value{kind: KindDate, t: t.UTC().Truncate(time.Millisecond)}
}

// ObjectID returns an identifier value.
func ObjectID(id primitive.ObjectID) Value { return Value{kind: KindObjectID, id: id} }

// Array returns an array value holding vs.
func Array(vs ...Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{kind: KindArray, arr: vs}
}

// Doc returns a value holding the nested document d.
func Doc(d *Document) Value {
	if d == nil {
		d = New()
	}
	return Value{kind: KindDocument, doc: d}
}

// Kind returns the type tag of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNumber reports whether v is numeric.
func (v Value) IsNumber() bool { return v.kind == KindNumber }

// BoolValue returns the boolean held by v.
func (v Value) BoolValue() bool { return v.b }

// NumberValue returns the number held by v.
func (v Value) NumberValue() float64 { return v.n }

// StringValue returns the string held by v.
func (v Value) StringValue() string { return v.s }

// DateValue returns the time held by v.
func (v Value) DateValue() time.Time { return v.t }

// ObjectIDValue returns the identifier held by v.
func (v Value) ObjectIDValue() primitive.ObjectID { return v.id }

// ArrayValue returns the elements held by v. The slice is not copied.
func (v Value) ArrayValue() []Value { return v.arr }

// DocumentValue returns the document held by v, or nil.
func (v Value) DocumentValue() *Document { return v.doc }

// Truthy reports whether v counts as true in boolean expression context.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0
	default:
		return true
	}
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		out := make([]Value, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Clone()
		}
		return Value{kind: KindArray, arr: out}
	case KindDocument:
		return Value{kind: KindDocument, doc: v.doc.Clone()}
	default:
		return v
	}
}

// Equal reports whether a and b are deeply equal.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// canonical order of kinds when comparing values of different types
var kindRank = [...]int{
	KindNull:     0,
	KindNumber:   1,
	KindString:   2,
	KindDocument: 3,
	KindArray:    4,
	KindObjectID: 5,
	KindBool:     6,
	KindDate:     7,
}

// Compare returns -1, 0 or 1 depending on whether a sorts before, equal to or
// after b. Values of different kinds are ordered by kind:
// null < number < string < document < array < objectId < bool < date.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		return cmpInt(kindRank[a.kind], kindRank[b.kind])
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindNumber:
		return cmpFloat(a.n, b.n)
	case KindString:
		return strings.Compare(a.s, b.s)
	case KindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	case KindDate:
		return a.t.Compare(b.t)
	case KindObjectID:
		return bytes.Compare(a.id[:], b.id[:])
	case KindArray:
		for i := 0; i < len(a.arr) && i < len(b.arr); i++ {
			if c := Compare(a.arr[i], b.arr[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(a.arr), len(b.arr))
	case KindDocument:
		return compareDocuments(a.doc, b.doc)
	}
	return 0
}

// Comparable reports whether a and b belong to the same type class, which is
// required for range predicates and bucket boundaries.
func Comparable(a, b Value) bool {
	return a.kind == b.kind
}

func compareDocuments(a, b *Document) int {
	ak, bk := a.Keys(), b.Keys()
	for i := 0; i < len(ak) && i < len(bk); i++ {
		if c := strings.Compare(ak[i], bk[i]); c != 0 {
			return c
		}
		av, _ := a.Get(ak[i])
		bv, _ := b.Get(bk[i])
		if c := Compare(av, bv); c != 0 {
			return c
		}
	}
	return cmpInt(len(ak), len(bk))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	// NaN sorts before every other number
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Interface converts v back into a plain Go value: nil, bool, float64, string,
// time.Time, primitive.ObjectID, []any or map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindDate:
		return v.t
	case KindObjectID:
		return v.id
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	case KindDocument:
		return v.doc.Map()
	}
	return nil
}

// String implements fmt.Stringer using the JSON encoding of v.
func (v Value) String() string {
	return string(AppendJSON(nil, v))
}
