/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package pipeline

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/errors"
)

func student(name string, exam, quiz, homework int) *document.Document {
	return document.MustFromMap(bson.D{
		{Key: "_id", Value: name},
		{Key: "name", Value: name},
		{Key: "scores", Value: bson.A{
			bson.D{{Key: "type", Value: "exam"}, {Key: "score", Value: exam}},
			bson.D{{Key: "type", Value: "quiz"}, {Key: "score", Value: quiz}},
			bson.D{{Key: "type", Value: "homework"}, {Key: "score", Value: homework}},
		}},
	})
}

func students() []*document.Document {
	return []*document.Document{
		student("Aimee Zank", 70, 80, 38),
		student("Aurelia Menendez", 95, 82, 30),
		student("Corliss Zuk", 61, 72, 89),
		student("Bao Ziglar", 85, 90, 55),
		student("Zachary Langlais", 5, 10, 20),
	}
}

func run(t *testing.T, docs []*document.Document, p any) []bson.D {
	t.Helper()
	parsed, err := Parse(p)
	require.NoError(t, err)
	out, err := Run(context.Background(), docs, parsed)
	require.NoError(t, err)
	return toD(out)
}

func toD(docs []*document.Document) []bson.D {
	out := make([]bson.D, len(docs))
	for i, d := range docs {
		out[i] = d.D()
	}
	return out
}

func TestProjectArrayElemAt(t *testing.T) {
	got := run(t, []*document.Document{student("Aimee Zank", 70, 80, 38)}, bson.A{
		bson.M{"$project": bson.D{
			{Key: "_id", Value: 0},
			{Key: "name", Value: 1},
			{Key: "homework", Value: bson.M{"$arrayElemAt": bson.A{"$scores.score", -1}}},
			{Key: "quiz", Value: bson.M{"$arrayElemAt": bson.A{"$scores.score", 1}}},
			{Key: "missing", Value: bson.M{"$arrayElemAt": bson.A{"$scores.score", 7}}},
		}},
	})

	want := []bson.D{{
		{Key: "name", Value: "Aimee Zank"},
		{Key: "homework", Value: 38.0},
		{Key: "quiz", Value: 80.0},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("project mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectPathsThroughArrays(t *testing.T) {
	in := []*document.Document{document.MustFromMap(bson.D{
		{Key: "_id", Value: 1},
		{Key: "name", Value: "Aimee Zank"},
		{Key: "scores", Value: bson.A{
			bson.D{{Key: "type", Value: "exam"}, {Key: "score", Value: 70}, {Key: "week", Value: 1}},
			"late",
			bson.D{{Key: "type", Value: "quiz"}, {Key: "score", Value: 80}, {Key: "week", Value: 2}},
		}},
	})}

	t.Run("Inclusion", func(t *testing.T) {
		got := run(t, in, bson.A{bson.M{"$project": bson.D{
			{Key: "_id", Value: 0},
			{Key: "scores.score", Value: 1},
			{Key: "scores.type", Value: 1},
		}}})
		want := []bson.D{{
			{Key: "scores", Value: bson.A{
				bson.D{{Key: "score", Value: 70.0}, {Key: "type", Value: "exam"}},
				bson.D{{Key: "score", Value: 80.0}, {Key: "type", Value: "quiz"}},
			}},
		}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("inclusion mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Exclusion", func(t *testing.T) {
		got := run(t, in, bson.A{bson.M{"$project": bson.D{
			{Key: "scores.type", Value: 0},
			{Key: "scores.week", Value: 0},
		}}})
		want := []bson.D{{
			{Key: "_id", Value: 1.0},
			{Key: "name", Value: "Aimee Zank"},
			{Key: "scores", Value: bson.A{
				bson.D{{Key: "score", Value: 70.0}},
				"late",
				bson.D{{Key: "score", Value: 80.0}},
			}},
		}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("exclusion mismatch (-want +got):\n%s", diff)
		}

		week, ok := in[0].Lookup("scores.week")
		require.True(t, ok, "input must not be modified")
		assert.Equal(t, `[1,2]`, week.String())
	})
}

func TestWorstHomeworkPipeline(t *testing.T) {
	got := run(t, students(), bson.A{
		bson.M{"$match": bson.M{"scores": bson.M{"$elemMatch": bson.D{{Key: "type", Value: "homework"}, {Key: "score", Value: bson.M{"$lte": 40}}}}}},
		bson.M{"$project": bson.D{
			{Key: "_id", Value: 0},
			{Key: "name", Value: 1},
			{Key: "homework", Value: bson.M{"$arrayElemAt": bson.A{"$scores.score", -1}}},
		}},
		bson.M{"$sort": bson.M{"homework": -1}},
	})

	want := []bson.D{
		{{Key: "name", Value: "Aimee Zank"}, {Key: "homework", Value: 38.0}},
		{{Key: "name", Value: "Aurelia Menendez"}, {Key: "homework", Value: 30.0}},
		{{Key: "name", Value: "Zachary Langlais"}, {Key: "homework", Value: 20.0}},
	}
	assert.Equal(t, want, got)
}

func TestSequentialMatchEqualsAnd(t *testing.T) {
	homework := bson.M{"scores": bson.M{"$elemMatch": bson.M{"type": "homework", "score": bson.M{"$lte": 40}}}}
	quiz := bson.M{"scores": bson.M{"$elemMatch": bson.M{"type": "quiz", "score": bson.M{"$gte": 80}}}}

	sequential := run(t, students(), bson.A{bson.M{"$match": homework}, bson.M{"$match": quiz}})
	combined := run(t, students(), bson.A{bson.M{"$match": bson.M{"$and": bson.A{homework, quiz}}}})

	assert.Equal(t, combined, sequential)
	require.Len(t, sequential, 2)
}

func TestGroupAverage(t *testing.T) {
	got := run(t, students(), bson.A{
		bson.M{"$group": bson.D{
			{Key: "_id", Value: "homework"},
			{Key: "averageScore", Value: bson.M{"$avg": bson.M{"$arrayElemAt": bson.A{"$scores.score", -1}}}},
			{Key: "n", Value: bson.M{"$count": bson.M{}}},
		}},
	})

	require.Len(t, got, 1)
	assert.Equal(t, bson.D{
		{Key: "_id", Value: "homework"},
		{Key: "averageScore", Value: (38.0 + 30 + 89 + 55 + 20) / 5},
		{Key: "n", Value: 5.0},
	}, got[0])
}

func TestGroupByFieldFirstSeenOrder(t *testing.T) {
	docs := []*document.Document{
		document.MustFromMap(bson.D{{Key: "type", Value: "b"}, {Key: "n", Value: 1}}),
		document.MustFromMap(bson.D{{Key: "type", Value: "a"}, {Key: "n", Value: 2}}),
		document.MustFromMap(bson.D{{Key: "type", Value: "b"}, {Key: "n", Value: 3}}),
		document.MustFromMap(bson.D{{Key: "n", Value: 4}}),
	}
	got := run(t, docs, bson.A{
		bson.M{"$group": bson.D{
			{Key: "_id", Value: "$type"},
			{Key: "total", Value: bson.M{"$sum": "$n"}},
			{Key: "max", Value: bson.M{"$max": "$n"}},
			{Key: "first", Value: bson.M{"$first": "$n"}},
			{Key: "all", Value: bson.M{"$push": "$n"}},
		}},
	})

	want := []bson.D{
		{{Key: "_id", Value: "b"}, {Key: "total", Value: 4.0}, {Key: "max", Value: 3.0}, {Key: "first", Value: 1.0}, {Key: "all", Value: bson.A{1.0, 3.0}}},
		{{Key: "_id", Value: "a"}, {Key: "total", Value: 2.0}, {Key: "max", Value: 2.0}, {Key: "first", Value: 2.0}, {Key: "all", Value: bson.A{2.0}}},
		{{Key: "_id", Value: nil}, {Key: "total", Value: 4.0}, {Key: "max", Value: 4.0}, {Key: "first", Value: 4.0}, {Key: "all", Value: bson.A{4.0}}},
	}
	assert.Equal(t, want, got)
}

func bucketStage(index int) bson.M {
	score := bson.M{"$arrayElemAt": bson.A{"$scores.score", index}}
	return bson.M{"$bucket": bson.D{
		{Key: "groupBy", Value: score},
		{Key: "boundaries", Value: bson.A{0, 40, 60, 101}},
		{Key: "default", Value: "Other"},
		{Key: "output", Value: bson.M{"average": bson.M{"$avg": score}}},
	}}
}

func TestBucketSingleStudent(t *testing.T) {
	got := run(t, []*document.Document{student("Aimee Zank", 70, 80, 38)}, bson.A{bucketStage(-1)})

	want := []bson.D{{{Key: "_id", Value: 0.0}, {Key: "count", Value: 1.0}, {Key: "average", Value: 38.0}}}
	assert.Equal(t, want, got)
}

func TestBucketCountsEveryRecordOnce(t *testing.T) {
	docs := append(students(), student("Out Of Range", 150, 150, 150))
	got := run(t, docs, bson.A{bucketStage(0)})

	want := []bson.D{
		{{Key: "_id", Value: 0.0}, {Key: "count", Value: 1.0}, {Key: "average", Value: 5.0}},
		{{Key: "_id", Value: 60.0}, {Key: "count", Value: 4.0}, {Key: "average", Value: (70.0 + 95 + 61 + 85) / 4}},
		{{Key: "_id", Value: "Other"}, {Key: "count", Value: 1.0}, {Key: "average", Value: 150.0}},
	}
	assert.Equal(t, want, got)

	var total float64
	for _, b := range got {
		total += b.Map()["count"].(float64)
	}
	assert.Equal(t, float64(len(docs)), total)
}

func TestBucketWithoutDefaultFails(t *testing.T) {
	p := MustParse(bson.A{bson.M{"$bucket": bson.M{
		"groupBy":    "$n",
		"boundaries": bson.A{0, 10},
	}}})
	_, err := Run(context.Background(), []*document.Document{document.MustFromMap(bson.M{"n": 11})}, p)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidPipeline(err))
}

func TestFacetEqualsIndependentRuns(t *testing.T) {
	docs := students()
	got := run(t, docs, bson.A{bson.M{"$facet": bson.D{
		{Key: "exam", Value: bson.A{bucketStage(0)}},
		{Key: "quiz", Value: bson.A{bucketStage(1)}},
		{Key: "homework", Value: bson.A{bucketStage(2)}},
	}}})
	require.Len(t, got, 1)

	for i, name := range []string{"exam", "quiz", "homework"} {
		alone := run(t, docs, bson.A{bucketStage(i)})
		facet, ok := document.MustFromMap(got[0]).Get(name)
		require.True(t, ok, name)

		var fromFacet []bson.D
		for _, v := range facet.ArrayValue() {
			fromFacet = append(fromFacet, v.DocumentValue().D())
		}
		assert.Equal(t, alone, fromFacet, name)
	}
}

func TestSortIsStable(t *testing.T) {
	docs := make([]*document.Document, 0, 6)
	for i, typ := range []string{"b", "a", "b", "a", "c", "a"} {
		docs = append(docs, document.MustFromMap(bson.D{{Key: "seq", Value: i}, {Key: "type", Value: typ}}))
	}
	got := run(t, docs, bson.A{bson.M{"$sort": bson.M{"type": 1}}})

	var seq []float64
	for _, d := range got {
		seq = append(seq, d.Map()["seq"].(float64))
	}
	assert.Equal(t, []float64{1, 3, 5, 0, 2, 4}, seq)
}

func TestSortMultiKeyAndMixedKinds(t *testing.T) {
	docs := []*document.Document{
		document.MustFromMap(bson.D{{Key: "k", Value: "x"}, {Key: "v", Value: 1}}),
		document.MustFromMap(bson.D{{Key: "k", Value: 2}, {Key: "v", Value: 1}}),
		document.MustFromMap(bson.D{{Key: "v", Value: 3}}),
		document.MustFromMap(bson.D{{Key: "k", Value: 2}, {Key: "v", Value: 5}}),
	}
	got := run(t, docs, bson.A{bson.M{"$sort": bson.D{{Key: "k", Value: 1}, {Key: "v", Value: -1}}}})

	var vs []float64
	for _, d := range got {
		vs = append(vs, d.Map()["v"].(float64))
	}
	// missing < number < string
	assert.Equal(t, []float64{3, 5, 1, 1}, vs)
}

func TestAddFields(t *testing.T) {
	got := run(t, []*document.Document{student("Aimee Zank", 70, 80, 38)}, bson.A{
		bson.M{"$addFields": bson.D{
			{Key: "marked", Value: true},
			{Key: "total", Value: bson.M{"$sum": "$scores.score"}},
			{Key: "best", Value: bson.M{"$max": "$scores.score"}},
		}},
		bson.M{"$project": bson.M{"scores": 0}},
	})

	want := []bson.D{{
		{Key: "_id", Value: "Aimee Zank"},
		{Key: "name", Value: "Aimee Zank"},
		{Key: "marked", Value: true},
		{Key: "total", Value: 188.0},
		{Key: "best", Value: 80.0},
	}}
	assert.Equal(t, want, got)
}

func TestLimitSkipCountUnwind(t *testing.T) {
	got := run(t, students(), bson.A{
		bson.M{"$unwind": "$scores"},
		bson.M{"$match": bson.M{"scores.type": "quiz"}},
		bson.M{"$skip": 1},
		bson.M{"$limit": 2},
		bson.M{"$project": bson.D{{Key: "_id", Value: 0}, {Key: "score", Value: "$scores.score"}}},
	})
	assert.Equal(t, []bson.D{{{Key: "score", Value: 82.0}}, {{Key: "score", Value: 72.0}}}, got)

	counted := run(t, students(), bson.A{bson.M{"$unwind": "$scores"}, bson.M{"$count": "n"}})
	assert.Equal(t, []bson.D{{{Key: "n", Value: 15.0}}}, counted)
}

func TestRunDoesNotModifyInput(t *testing.T) {
	docs := students()
	before := toD(docs)
	run(t, docs, bson.A{
		bson.M{"$addFields": bson.M{"marked": true}},
		bson.M{"$unwind": "$scores"},
		bson.M{"$sort": bson.M{"name": -1}},
	})
	assert.Equal(t, before, toD(docs))
}

func TestRunHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, students(), MustParse(bson.A{bson.M{"$match": bson.M{}}}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		pipeline any
	}{
		{"not an array", bson.M{"$match": bson.M{}}},
		{"unknown stage", bson.A{bson.M{"$lookup": bson.M{}}}},
		{"two keys", bson.A{bson.D{{Key: "$match", Value: bson.M{}}, {Key: "$sort", Value: bson.M{"a": 1}}}}},
		{"bad filter", bson.A{bson.M{"$match": bson.M{"a": bson.M{"$near": 1}}}}},
		{"mixed projection", bson.A{bson.M{"$project": bson.M{"a": 1, "b": 0}}}},
		{"group without id", bson.A{bson.M{"$group": bson.M{"n": bson.M{"$sum": 1}}}}},
		{"unknown accumulator", bson.A{bson.M{"$group": bson.M{"_id": nil, "n": bson.M{"$median": "$x"}}}}},
		{"boundaries not ascending", bson.A{bson.M{"$bucket": bson.M{"groupBy": "$x", "boundaries": bson.A{0, 60, 40}}}}},
		{"boundaries too short", bson.A{bson.M{"$bucket": bson.M{"groupBy": "$x", "boundaries": bson.A{0}}}}},
		{"boundaries mixed types", bson.A{bson.M{"$bucket": bson.M{"groupBy": "$x", "boundaries": bson.A{0, "a"}}}}},
		{"default inside range", bson.A{bson.M{"$bucket": bson.M{"groupBy": "$x", "boundaries": bson.A{0, 10}, "default": 5}}}},
		{"nested facet", bson.A{bson.M{"$facet": bson.M{"a": bson.A{bson.M{"$facet": bson.M{"b": bson.A{}}}}}}}},
		{"bad sort direction", bson.A{bson.M{"$sort": bson.M{"a": 2}}}},
		{"zero limit", bson.A{bson.M{"$limit": 0}}},
		{"unknown expression", bson.A{bson.M{"$project": bson.M{"a": bson.M{"$regex": "x"}}}}},
		{"arity", bson.A{bson.M{"$project": bson.M{"a": bson.M{"$arrayElemAt": bson.A{"$x"}}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.pipeline)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidPipeline(err), "expected InvalidPipelineError, got %v", err)
		})
	}
}

func TestRuntimeExpressionError(t *testing.T) {
	p := MustParse(bson.A{bson.M{"$project": bson.M{"x": bson.M{"$arrayElemAt": bson.A{"$name", 0}}}}})
	_, err := Run(context.Background(), students(), p)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidPipeline(err))

	var pe *errors.InvalidPipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 0, pe.Stage)
	assert.Equal(t, "$project", pe.Op)
}

func TestGroupTreatsSignedZerosAsOneKey(t *testing.T) {
	in := []*document.Document{
		document.New().Set("k", document.Int(0)).Set("v", document.Int(1)),
		document.New().Set("k", document.Number(math.Copysign(0, -1))).Set("v", document.Int(2)),
	}
	got := run(t, in, bson.A{bson.M{"$group": bson.D{
		{Key: "_id", Value: "$k"},
		{Key: "total", Value: bson.M{"$sum": "$v"}},
	}}})
	require.Len(t, got, 1)
	assert.Equal(t, 3.0, got[0][1].Value)
}

func TestSortArraysByMinOrMax(t *testing.T) {
	in := []*document.Document{
		document.New().Set("_id", document.String("pair")).Set("k", document.Array(document.Int(5), document.Int(1))),
		document.New().Set("_id", document.String("three")).Set("k", document.Int(3)),
		document.New().Set("_id", document.String("four")).Set("k", document.Int(4)),
	}
	ids := func(docs []bson.D) []any {
		out := make([]any, len(docs))
		for i, d := range docs {
			out[i] = d[0].Value
		}
		return out
	}

	asc := run(t, in, bson.A{bson.M{"$sort": bson.M{"k": 1}}})
	assert.Equal(t, []any{"pair", "three", "four"}, ids(asc))

	desc := run(t, in, bson.A{bson.M{"$sort": bson.M{"k": -1}}})
	assert.Equal(t, []any{"pair", "four", "three"}, ids(desc))
}
