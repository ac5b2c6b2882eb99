/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package document

import (
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// IDField is the name of the identifier field every stored record carries.
const IDField = "_id"

// Document is an ordered mapping from field name to Value. Fields keep their
// insertion order; overwriting a field keeps its position.
//
// A Document is not safe for concurrent mutation.
type Document struct {
	keys   []string
	values map[string]Value
}

// New returns an empty document.
func New() *Document {
	return &Document{values: make(map[string]Value)}
}

// NewWithCapacity returns an empty document with room for n fields.
func NewWithCapacity(n int) *Document {
	return &Document{keys: make([]string, 0, n), values: make(map[string]Value, n)}
}

// Len returns the number of fields.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns the field names in order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Has reports whether the top-level field exists.
func (d *Document) Has(key string) bool {
	if d == nil {
		return false
	}
	_, ok := d.values[key]
	return ok
}

// Get returns the top-level field value.
func (d *Document) Get(key string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	v, ok := d.values[key]
	return v, ok
}

// Set creates or overwrites a top-level field.
func (d *Document) Set(key string, v Value) *Document {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
	return d
}

// Delete removes a top-level field and reports whether it existed.
func (d *Document) Delete(key string) bool {
	if _, ok := d.values[key]; !ok {
		return false
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	return true
}

// Range calls fn for every field in order until fn returns false.
func (d *Document) Range(fn func(key string, v Value) bool) {
	if d == nil {
		return
	}
	for _, k := range d.keys {
		if !fn(k, d.values[k]) {
			return
		}
	}
}

// ID returns the record identifier, if any.
func (d *Document) ID() (Value, bool) {
	return d.Get(IDField)
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := NewWithCapacity(len(d.keys))
	for _, k := range d.keys {
		out.keys = append(out.keys, k)
		out.values[k] = d.values[k].Clone()
	}
	return out
}

// Equal reports whether d and o hold the same fields in the same order with
// deeply equal values.
func (d *Document) Equal(o *Document) bool {
	return compareDocuments(d, o) == 0
}

// Lookup resolves a dotted path. Arrays met along the way are traversed
// element-wise, so "scores.score" over an array of score documents yields an
// array of the scores. A numeric path segment addresses an array index.
func (d *Document) Lookup(path string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	return lookupValue(Doc(d), splitPath(path))
}

func lookupValue(cur Value, parts []string) (Value, bool) {
	if len(parts) == 0 {
		return cur, true
	}
	switch cur.kind {
	case KindDocument:
		next, ok := cur.doc.Get(parts[0])
		if !ok {
			return Value{}, false
		}
		return lookupValue(next, parts[1:])
	case KindArray:
		if idx, err := strconv.Atoi(parts[0]); err == nil {
			if idx < 0 || idx >= len(cur.arr) {
				return Value{}, false
			}
			return lookupValue(cur.arr[idx], parts[1:])
		}
		out := make([]Value, 0, len(cur.arr))
		for _, e := range cur.arr {
			if e.kind != KindDocument {
				continue
			}
			if v, ok := lookupValue(e, parts); ok {
				out = append(out, v)
			}
		}
		return Array(out...), true
	}
	return Value{}, false
}

// SetPath assigns v at a dotted path, creating intermediate documents as
// needed. It returns false when a non-document value is in the way.
func (d *Document) SetPath(path string, v Value) bool {
	parts := splitPath(path)
	cur := d
	for i, p := range parts {
		if i == len(parts)-1 {
			cur.Set(p, v)
			return true
		}
		next, ok := cur.Get(p)
		switch {
		case !ok:
			child := New()
			cur.Set(p, Doc(child))
			cur = child
		case next.kind == KindDocument:
			cur = next.doc
		case next.kind == KindArray:
			idx, err := strconv.Atoi(parts[i+1])
			if err != nil || idx < 0 || idx >= len(next.arr) {
				return false
			}
			if i+1 == len(parts)-1 {
				next.arr[idx] = v
				return true
			}
			elem := next.arr[idx]
			if elem.kind != KindDocument {
				return false
			}
			return elem.doc.SetPath(strings.Join(parts[i+2:], "."), v)
		default:
			return false
		}
	}
	return true
}

// DeletePath removes the field at a dotted path and reports whether it existed.
func (d *Document) DeletePath(path string) bool {
	parts := splitPath(path)
	cur := d
	for i, p := range parts {
		if i == len(parts)-1 {
			return cur.Delete(p)
		}
		next, ok := cur.Get(p)
		if !ok || next.kind != KindDocument {
			return false
		}
		cur = next.doc
	}
	return false
}

// Map converts d into a plain map. Field order is lost.
func (d *Document) Map() map[string]any {
	out := make(map[string]any, d.Len())
	d.Range(func(k string, v Value) bool {
		out[k] = v.Interface()
		return true
	})
	return out
}

// D converts d into an ordered bson.D, recursively converting nested documents.
func (d *Document) D() bson.D {
	out := make(bson.D, 0, d.Len())
	d.Range(func(k string, v Value) bool {
		out = append(out, bson.E{Key: k, Value: toBSON(v)})
		return true
	})
	return out
}

func toBSON(v Value) any {
	switch v.kind {
	case KindArray:
		out := make(bson.A, len(v.arr))
		for i, e := range v.arr {
			out[i] = toBSON(e)
		}
		return out
	case KindDocument:
		return v.doc.D()
	}
	return v.Interface()
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}
