/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package document

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/valyala/fastjson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ParseJSON parses a JSON text into a Value, keeping object field order.
//
// MongoDB extended JSON wrappers are recognised: {"$oid": hex},
// {"$date": rfc3339 | millis | {"$numberLong": millis}}, {"$numberInt": s},
// {"$numberLong": s} and {"$numberDouble": s}.
func ParseJSON(data []byte) (Value, error) {
	var p fastjson.Parser
	jv, err := p.ParseBytes(data)
	if err != nil {
		return Value{}, fmt.Errorf("cannot parse json: %w", err)
	}
	return FromJSONValue(jv)
}

// ParseJSONDocument parses a JSON object into a Document.
func ParseJSONDocument(data []byte) (*Document, error) {
	v, err := ParseJSON(data)
	if err != nil {
		return nil, err
	}
	if v.kind != KindDocument {
		return nil, fmt.Errorf("expected a json object, got %s", v.kind)
	}
	return v.doc, nil
}

// FromJSONValue converts an already parsed fastjson value.
func FromJSONValue(jv *fastjson.Value) (Value, error) {
	switch jv.Type() {
	case fastjson.TypeNull:
		return Null(), nil
	case fastjson.TypeTrue:
		return Bool(true), nil
	case fastjson.TypeFalse:
		return Bool(false), nil
	case fastjson.TypeNumber:
		f, err := jv.Float64()
		if err != nil {
			return Value{}, err
		}
		return Number(f), nil
	case fastjson.TypeString:
		b, err := jv.StringBytes()
		if err != nil {
			return Value{}, err
		}
		return String(string(b)), nil
	case fastjson.TypeArray:
		items, err := jv.Array()
		if err != nil {
			return Value{}, err
		}
		out := make([]Value, len(items))
		for i, item := range items {
			v, err := FromJSONValue(item)
			if err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = v
		}
		return Array(out...), nil
	case fastjson.TypeObject:
		obj, err := jv.Object()
		if err != nil {
			return Value{}, err
		}
		if v, ok, err := fromExtendedJSON(obj); ok || err != nil {
			return v, err
		}
		d := NewWithCapacity(obj.Len())
		var visitErr error
		obj.Visit(func(key []byte, item *fastjson.Value) {
			if visitErr != nil {
				return
			}
			v, err := FromJSONValue(item)
			if err != nil {
				visitErr = fmt.Errorf("field %q: %w", key, err)
				return
			}
			d.Set(string(key), v)
		})
		if visitErr != nil {
			return Value{}, visitErr
		}
		return Doc(d), nil
	}
	return Value{}, fmt.Errorf("unsupported json type %s", jv.Type())
}

func fromExtendedJSON(obj *fastjson.Object) (Value, bool, error) {
	if obj.Len() != 1 {
		return Value{}, false, nil
	}
	var (
		key  string
		item *fastjson.Value
	)
	obj.Visit(func(k []byte, v *fastjson.Value) {
		key, item = string(k), v
	})
	switch key {
	case "$oid":
		hex, err := item.StringBytes()
		if err != nil {
			return Value{}, true, fmt.Errorf("$oid: %w", err)
		}
		id, err := primitive.ObjectIDFromHex(string(hex))
		if err != nil {
			return Value{}, true, fmt.Errorf("$oid: %w", err)
		}
		return ObjectID(id), true, nil
	case "$date":
		t, err := parseExtendedDate(item)
		if err != nil {
			return Value{}, true, fmt.Errorf("$date: %w", err)
		}
		return Date(t), true, nil
	case "$numberInt", "$numberLong", "$numberDouble":
		s, err := item.StringBytes()
		if err != nil {
			return Value{}, true, fmt.Errorf("%s: %w", key, err)
		}
		f, err := strconv.ParseFloat(string(s), 64)
		if err != nil {
			return Value{}, true, fmt.Errorf("%s: %w", key, err)
		}
		return Number(f), true, nil
	}
	return Value{}, false, nil
}

func parseExtendedDate(item *fastjson.Value) (time.Time, error) {
	switch item.Type() {
	case fastjson.TypeString:
		s, _ := item.StringBytes()
		dt, err := strfmt.ParseDateTime(string(s))
		if err != nil {
			return time.Time{}, err
		}
		return time.Time(dt), nil
	case fastjson.TypeNumber:
		ms, err := item.Int64()
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms), nil
	case fastjson.TypeObject:
		s := item.GetStringBytes("$numberLong")
		if s == nil {
			return time.Time{}, fmt.Errorf("unsupported date object")
		}
		ms, err := strconv.ParseInt(string(s), 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms), nil
	}
	return time.Time{}, fmt.Errorf("unsupported date type %s", item.Type())
}

// Key returns an encoding of v for use as a map key. Values that are Equal
// have the same key; both signs of zero encode as 0.
func Key(v Value) string {
	return string(AppendJSON(nil, canonical(v)))
}

func canonical(v Value) Value {
	switch v.kind {
	case KindNumber:
		if v.n == 0 {
			return Number(0)
		}
	case KindArray:
		elems := make([]Value, len(v.arr))
		for i, e := range v.arr {
			elems[i] = canonical(e)
		}
		return Array(elems...)
	case KindDocument:
		d := NewWithCapacity(v.doc.Len())
		v.doc.Range(func(k string, e Value) bool {
			d.Set(k, canonical(e))
			return true
		})
		return Doc(d)
	}
	return v
}

// AppendJSON appends the relaxed extended JSON encoding of v to dst.
func AppendJSON(dst []byte, v Value) []byte {
	var a fastjson.Arena
	return toJSONValue(&a, v).MarshalTo(dst)
}

func toJSONValue(a *fastjson.Arena, v Value) *fastjson.Value {
	switch v.kind {
	case KindBool:
		if v.b {
			return a.NewTrue()
		}
		return a.NewFalse()
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			o := a.NewObject()
			o.Set("$numberDouble", a.NewString(strconv.FormatFloat(v.n, 'g', -1, 64)))
			return o
		}
		return a.NewNumberFloat64(v.n)
	case KindString:
		return a.NewString(v.s)
	case KindDate:
		o := a.NewObject()
		o.Set("$date", a.NewString(strfmt.DateTime(v.t).String()))
		return o
	case KindObjectID:
		o := a.NewObject()
		o.Set("$oid", a.NewString(v.id.Hex()))
		return o
	case KindArray:
		arr := a.NewArray()
		for i, e := range v.arr {
			arr.SetArrayItem(i, toJSONValue(a, e))
		}
		return arr
	case KindDocument:
		o := a.NewObject()
		v.doc.Range(func(k string, e Value) bool {
			o.Set(k, toJSONValue(a, e))
			return true
		})
		return o
	}
	return a.NewNull()
}

// MarshalJSON implements json.Marshaler, keeping field order.
func (d *Document) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return AppendJSON(nil, Doc(d)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Document) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSONDocument(data)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return AppendJSON(nil, v), nil
}
