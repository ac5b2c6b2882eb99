/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package document

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONKeepsOrder(t *testing.T) {
	d, err := ParseJSONDocument([]byte(`{"z": 1, "a": [true, null, "x"], "m": {"k": 2.5}}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"z", "a", "m"}, d.Keys())
	v, _ := d.Lookup("m.k")
	assert.Equal(t, 2.5, v.NumberValue())
	v, _ = d.Get("a")
	require.Len(t, v.ArrayValue(), 3)
	assert.True(t, v.ArrayValue()[1].IsNull())
}

func TestParseExtendedJSON(t *testing.T) {
	d, err := ParseJSONDocument([]byte(`{
		"_id": {"$oid": "5f1d7a3c9b1e8a2e4c3d2b1a"},
		"createdAt": {"$date": "2020-07-26T12:00:00.000Z"},
		"updatedAt": {"$date": 1595764800000},
		"n": {"$numberLong": "42"}
	}`))
	require.NoError(t, err)

	id, _ := d.Get("_id")
	assert.Equal(t, KindObjectID, id.Kind())
	assert.Equal(t, "5f1d7a3c9b1e8a2e4c3d2b1a", id.ObjectIDValue().Hex())

	created, _ := d.Get("createdAt")
	updated, _ := d.Get("updatedAt")
	want := time.Date(2020, 7, 26, 12, 0, 0, 0, time.UTC)
	assert.True(t, want.Equal(created.DateValue()))
	assert.True(t, want.Equal(updated.DateValue()))

	n, _ := d.Get("n")
	assert.Equal(t, 42.0, n.NumberValue())

	_, err = ParseJSONDocument([]byte(`{"_id": {"$oid": "nope"}}`))
	assert.Error(t, err)
}

func TestMarshalJSON(t *testing.T) {
	d := studentDoc()
	d.Set("when", Date(time.Date(2020, 7, 26, 12, 0, 0, 0, time.UTC)))

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "Aimee Zank",
		"scores": [
			{"type": "exam", "score": 70},
			{"type": "quiz", "score": 80},
			{"type": "homework", "score": 38}
		],
		"when": {"$date": "2020-07-26T12:00:00.000Z"}
	}`, string(out))

	var back Document
	require.NoError(t, json.Unmarshal(out, &back))
	assert.True(t, d.Equal(&back))
}

func TestKeyMatchesEqual(t *testing.T) {
	negZero := Number(math.Copysign(0, -1))
	require.True(t, Equal(Int(0), negZero))
	assert.Equal(t, Key(Int(0)), Key(negZero))

	nested := Doc(New().Set("n", negZero).Set("l", Array(negZero, Int(1))))
	plain := Doc(New().Set("n", Int(0)).Set("l", Array(Int(0), Int(1))))
	assert.Equal(t, Key(plain), Key(nested))

	assert.NotEqual(t, Key(Int(1)), Key(String("1")))
	assert.Equal(t, "-0", negZero.String(), "encoding itself keeps the sign")
}
