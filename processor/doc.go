/*
Package processor replays YAML scenarios against a docstore database.

A scenario is an ordered list of steps. Each step names an operation, the
collection it targets and the operation arguments written in YAML with the
usual MongoDB operator syntax:

	name: articles
	steps:
	  - op: insertMany
	    collection: articles
	    generate: {kind: article, count: 5, set: {type: a}}
	  - op: updateMany
	    collection: articles
	    filter: {type: a}
	    update: {$set: {tags: [tag1-a, tag2-a, tag3]}}
	  - op: aggregate
	    collection: articles
	    print: true
	    pipeline:
	      - $group: {_id: $type, n: {$sum: 1}}

Records of an insertMany step come from an inline documents list, a registered
generator (see the fixtures package) or a source: a JSON file or a DynamoDB
table.

Mapping order is kept, so sort keys and projections apply in the order they
are written. Steps never abort a run: a failing step is logged, recorded in its
StepResult and the next step runs.

The demo scenario bundled with the package walks through users, articles and
students, ending with score buckets computed per subject.
*/
package processor
