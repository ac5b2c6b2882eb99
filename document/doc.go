/*
Package document defines the schemaless record model shared by the store, the
query matcher, the update applier and the aggregation engine.

A Value is a tagged union over null, bool, number, string, date, objectId,
array and nested document. A Document is an ordered field-name-to-Value
mapping:

	d := document.New().
	    Set("name", document.String("Aimee Zank")).
	    Set("scores", document.Array(document.Int(70), document.Int(80), document.Int(38)))

	v, ok := d.Lookup("scores.2") // 38, true

Plain Go values cross the boundary through FromAny/FromMap (bson.D keeps field
order, bson.M and map[string]any are read in sorted key order) and leave it
through Map, D and Interface. ParseJSON and MarshalJSON speak relaxed
MongoDB extended JSON.
*/
package document
