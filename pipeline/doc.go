/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

/*
Package pipeline implements the aggregation engine.

A pipeline is parsed once into a closed set of stage values and then run over
a snapshot of records:

	p, err := pipeline.Parse(bson.A{
	    bson.M{"$match": bson.M{"scores": bson.M{"$elemMatch": bson.M{"type": "homework", "score": bson.M{"$lte": 40}}}}},
	    bson.M{"$project": bson.D{{Key: "_id", Value: 0}, {Key: "name", Value: 1},
	        {Key: "homework", Value: bson.M{"$arrayElemAt": bson.A{"$scores.score", -1}}}}},
	    bson.M{"$sort": bson.M{"homework": -1}},
	})
	out, err := pipeline.Run(ctx, docs, p)

Supported stages are $match, $project, $addFields, $group, $bucket, $facet,
$sort, $limit, $skip, $count and $unwind. Each stage consumes the full output
of the previous one. Per-stage durations are exported as
docstore_pipeline_stage_duration_seconds summaries.
*/
package pipeline
