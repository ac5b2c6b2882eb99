/*
Package docstore provides an in-process document store with a MongoDB-style
query language, update operators and an aggregation pipeline engine.

Records are schemaless ordered documents grouped into named collections.
Filters, updates and pipelines are written with the bson.D, bson.M and bson.A
types of the MongoDB Go driver, so existing query documents can be reused as-is.

Key Features:
  - Query operators: $eq, $ne, $gt, $gte, $lt, $lte, $in, $nin, $exists, $size,
    $elemMatch, $not, $and, $or, $nor
  - Update operators: $set, $unset, $inc, $push, $addToSet, $pull
  - Pipeline stages: $match, $project, $addFields, $group, $bucket, $facet,
    $sort, $skip, $limit, $count, $unwind
  - Atomic multi-record writes and consistent snapshot reads
  - Typed collections over bson-tagged Go structs
  - Bulk loading from JSON files and DynamoDB tables

Basic Usage:

	db := docstore.NewDatabase()

	_, err := db.InsertMany(ctx, "users", []any{
	    bson.M{"firstName": "Ann", "department": "a"},
	    bson.M{"firstName": "Bob", "department": "b"},
	})

	res, err := db.Aggregate(ctx, "users", bson.A{
	    bson.M{"$group": bson.M{"_id": "$department", "n": bson.M{"$sum": 1}}},
	})

Typed access:

	registry.BindCollection[Student]("students")
	students, _ := docstore.GetTypedCollection[Student](db)
	top, err := students.Find(ctx, bson.M{"scores.score": bson.M{"$gt": 90}})

For more information, see the documentation at https://github.com/suparena/docstore
*/
package docstore
