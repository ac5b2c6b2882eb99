/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package document

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/go-openapi/strfmt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FromAny converts a plain Go value into a Value.
//
// Supported inputs are nil, bool, every integer and float type, string,
// time.Time, strfmt.DateTime, primitive.DateTime, primitive.ObjectID,
// strfmt.ObjectId, Value, *Document, bson.D, bson.M, bson.A, map[string]T and
// slices. Unordered maps are read in sorted key order with "_id" first.
func FromAny(in any) (Value, error) {
	switch x := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case *Document:
		if x == nil {
			return Null(), nil
		}
		return Doc(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Number(float64(x)), nil
	case int8:
		return Number(float64(x)), nil
	case int16:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint8:
		return Number(float64(x)), nil
	case uint16:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case float32:
		return Number(float64(x)), nil
	case float64:
		return Number(x), nil
	case string:
		return String(x), nil
	case time.Time:
		return Date(x), nil
	case *time.Time:
		if x == nil {
			return Null(), nil
		}
		return Date(*x), nil
	case strfmt.DateTime:
		return Date(time.Time(x)), nil
	case *strfmt.DateTime:
		if x == nil {
			return Null(), nil
		}
		return Date(time.Time(*x)), nil
	case primitive.DateTime:
		return Date(x.Time()), nil
	case primitive.ObjectID:
		return ObjectID(x), nil
	case strfmt.ObjectId:
		return ObjectID(primitive.ObjectID(x)), nil
	case primitive.Null, primitive.Undefined:
		return Null(), nil
	case bson.D:
		d := NewWithCapacity(len(x))
		for _, e := range x {
			v, err := FromAny(e.Value)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", e.Key, err)
			}
			d.Set(e.Key, v)
		}
		return Doc(d), nil
	case bson.M:
		return fromStringMap(map[string]any(x))
	case map[string]any:
		return fromStringMap(x)
	case bson.A:
		return fromSlice([]any(x))
	case []any:
		return fromSlice(x)
	case []Value:
		return Array(x...), nil
	case []*Document:
		out := make([]Value, len(x))
		for i, d := range x {
			out[i] = Doc(d)
		}
		return Array(out...), nil
	}
	return fromReflect(reflect.ValueOf(in))
}

// MustFromAny is like FromAny but panics on unsupported input. It is meant for
// literals in tests and fixtures.
func MustFromAny(in any) Value {
	v, err := FromAny(in)
	if err != nil {
		panic(err)
	}
	return v
}

// FromMap builds a document from a plain mapping (bson.D, bson.M,
// map[string]any or *Document).
func FromMap(in any) (*Document, error) {
	v, err := FromAny(in)
	if err != nil {
		return nil, err
	}
	if v.kind != KindDocument {
		return nil, fmt.Errorf("expected a document, got %s", v.kind)
	}
	return v.doc, nil
}

// MustFromMap is like FromMap but panics on error.
func MustFromMap(in any) *Document {
	d, err := FromMap(in)
	if err != nil {
		panic(err)
	}
	return d
}

func fromStringMap(m map[string]any) (Value, error) {
	d := NewWithCapacity(len(m))
	for _, k := range sortedKeys(m) {
		v, err := FromAny(m[k])
		if err != nil {
			return Value{}, fmt.Errorf("field %q: %w", k, err)
		}
		d.Set(k, v)
	}
	return Doc(d), nil
}

func fromSlice(in []any) (Value, error) {
	out := make([]Value, len(in))
	for i, e := range in {
		v, err := FromAny(e)
		if err != nil {
			return Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return Array(out...), nil
}

// fromReflect handles typed slices and maps such as []string or map[string]int.
func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Array(), nil
		}
		out := make([]Value, rv.Len())
		for i := range out {
			v, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = v
		}
		return Array(out...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return fromStringMap(m)
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		return FromAny(rv.Elem().Interface())
	case reflect.Invalid:
		return Null(), nil
	}
	return Value{}, fmt.Errorf("unsupported value type %s", rv.Type())
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == IDField || keys[j] == IDField {
			return keys[i] == IDField && keys[j] != IDField
		}
		return keys[i] < keys[j]
	})
	return keys
}
