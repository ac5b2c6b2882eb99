/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package processor

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/suparena/docstore"
	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/errors"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func number(t *testing.T, d *document.Document, path string) float64 {
	t.Helper()
	v, ok := d.Lookup(path)
	require.True(t, ok, path)
	return v.NumberValue()
}

func TestDemoScenario(t *testing.T) {
	ctx := context.Background()
	db := docstore.NewDatabase(docstore.WithLogger(quietLogger()))
	var out bytes.Buffer
	p := New(db, WithLogger(quietLogger()), WithOutput(&out), WithFiles(DemoFiles()))

	sc, err := Demo()
	require.NoError(t, err)
	report, err := p.Run(ctx, sc)
	require.NoError(t, err)
	require.Empty(t, report.Failed())
	require.Len(t, report.Steps, 24)

	steps := report.Steps
	// users
	assert.Equal(t, 2, steps[3].InsertedCount)
	assert.Equal(t, 1, steps[6].DeletedCount)
	assert.Equal(t, 2, steps[7].MatchedCount)
	assert.Equal(t, 2, steps[8].Count)
	// articles
	assert.Equal(t, 5, steps[9].InsertedCount)
	assert.Equal(t, 5, steps[12].ModifiedCount)
	assert.Equal(t, 10, steps[13].ModifiedCount)
	assert.Equal(t, 15, steps[14].Count)
	assert.Equal(t, 15, steps[15].ModifiedCount)
	// students
	assert.Equal(t, 24, steps[16].InsertedCount)
	assert.Equal(t, 6, steps[17].Count)
	assert.Equal(t, 2, steps[18].Count)
	assert.Equal(t, 2, steps[19].Count)
	require.Equal(t, 1, steps[20].Count)
	assert.InDelta(t, 63.97862286082462, number(t, steps[20].Documents[0], "averageScore"), 1e-9)
	assert.True(t, steps[21].Skipped)
	assert.Equal(t, 7, steps[22].Count)

	// worst homework, sorted descending, projected to name and homework
	worst := steps[17].Documents
	assert.Equal(t, []string{"name", "homework"}, worst[0].Keys())
	for i := 1; i < len(worst); i++ {
		assert.GreaterOrEqual(t, number(t, worst[i-1], "homework"), number(t, worst[i], "homework"))
	}

	for _, d := range steps[22].Documents {
		marked, _ := d.Get("marked")
		assert.True(t, marked.BoolValue())
	}

	facets := steps[23].Facets
	require.Len(t, facets, 3)
	want := map[string][][3]float64{
		"exam":     {{0, 11, 16.539889334868754}, {40, 3, 52.4677223958174}, {60, 10, 74.95551523332516}},
		"quiz":     {{0, 7, 17.760106154470012}, {40, 5, 50.135400705089445}, {60, 12, 82.97031956815765}},
		"homework": {{0, 6, 24.690591499446956}, {40, 2, 46.17724527692181}, {60, 16, 80.93680681932908}},
	}
	for name, buckets := range want {
		got := facets[name]
		require.Len(t, got, len(buckets), name)
		for i, b := range buckets {
			assert.Equal(t, b[0], number(t, got[i], "_id"), name)
			assert.Equal(t, b[1], number(t, got[i], "count"), name)
			assert.InDelta(t, b[2], number(t, got[i], "average"), 1e-9, name)
		}
	}

	// department b users share one generated first name
	renamed, err := db.Find(ctx, "users", bson.M{"department": "b"})
	require.NoError(t, err)
	require.Len(t, renamed, 2)
	first, _ := renamed[0].Get("firstName")
	second, _ := renamed[1].Get("firstName")
	assert.NotEmpty(t, first.StringValue())
	assert.Equal(t, first.StringValue(), second.StringValue())

	// aggregation never modifies the stored records
	n, err := db.CountDocuments(ctx, "students", bson.M{"marked": true})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = db.CountDocuments(ctx, "articles", bson.M{"tags": bson.M{"$in": bson.A{"tag2", "tag1-a"}}})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Contains(t, out.String(), "[17] import students: 24 records were inserted")
	assert.Contains(t, out.String(), "[22] delete students with homework score up to 60: skipped")
	assert.Contains(t, out.String(), "  homework:\n")
}

func TestRunContinuesAfterFailure(t *testing.T) {
	sc, err := ParseScenario([]byte(`
name: failures
steps:
  - op: find
    collection: missing
  - op: insertMany
    collection: users
    documents: [{_id: 1, name: a}, {_id: 2, name: b}]
  - op: insertOne
    collection: users
    document: {_id: 1, name: duplicate}
  - op: aggregate
    collection: users
    pipeline: [{$bogus: 1}]
  - op: updateMany
    collection: users
    filter: {}
    update: {$inc: {name: 1}}
  - op: drop
    collection: nothing
  - op: count
    collection: users
    filter: {name: {$in: [a, b]}}
`))
	require.NoError(t, err)

	db := docstore.NewDatabase(docstore.WithLogger(quietLogger()))
	report, err := New(db, WithLogger(quietLogger())).Run(context.Background(), sc)
	require.NoError(t, err)
	require.Len(t, report.Steps, 7)

	steps := report.Steps
	assert.True(t, errors.IsCollectionNotFound(steps[0].Err))
	assert.NoError(t, steps[1].Err)
	assert.True(t, errors.IsAlreadyExists(steps[2].Err))
	assert.True(t, errors.IsInvalidPipeline(steps[3].Err))
	assert.True(t, errors.IsInvalidUpdate(steps[4].Err))
	assert.True(t, errors.IsCollectionNotFound(steps[5].Err))
	assert.NoError(t, steps[6].Err)
	assert.Equal(t, 2, steps[6].Count)
	assert.Len(t, report.Failed(), 5)
	assert.Contains(t, steps[0].Summary(), "failed:")
}

func TestGeneratedValues(t *testing.T) {
	sc, err := ParseScenario([]byte(`
steps:
  - op: insertOne
    collection: users
    document: {_id: 1, firstName: {$generate: firstName}, tags: [{$generate: word}, fixed]}
  - op: insertMany
    collection: users
    documents: [{_id: 2, lastName: {$generate: lastName}}]
  - op: updateMany
    collection: users
    filter: {}
    update: {$set: {nickname: {$generate: word}}}
  - op: insertOne
    collection: users
    document: {_id: 3, firstName: {$generate: zodiac}}
`))
	require.NoError(t, err)

	db := docstore.NewDatabase(docstore.WithLogger(quietLogger()))
	report, err := New(db, WithLogger(quietLogger())).Run(context.Background(), sc)
	require.NoError(t, err)
	require.Len(t, report.Failed(), 1)
	assert.Error(t, report.Steps[3].Err)

	docs, err := db.Find(context.Background(), "users", nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, path := range []string{"firstName", "tags.0", "nickname"} {
		v, ok := docs[0].Lookup(path)
		require.True(t, ok, path)
		assert.Equal(t, document.KindString, v.Kind(), path)
	}
	fixed, _ := docs[0].Lookup("tags.1")
	assert.Equal(t, "fixed", fixed.StringValue())
	last, _ := docs[1].Get("lastName")
	assert.NotEmpty(t, last.StringValue())

	// one value per step, shared by every updated record
	a, _ := docs[0].Get("nickname")
	b, _ := docs[1].Get("nickname")
	assert.Equal(t, a.StringValue(), b.StringValue())
}

func TestFindStepOptions(t *testing.T) {
	sc, err := ParseScenario([]byte(`
steps:
  - op: insertMany
    collection: nums
    documents: [{n: 3}, {n: 1}, {n: 2}, {n: 5}, {n: 4}]
  - op: find
    collection: nums
    sort: {n: -1}
    projection: {_id: 0, n: 1}
    skip: 1
    limit: 2
    print: true
`))
	require.NoError(t, err)

	var out bytes.Buffer
	db := docstore.NewDatabase(docstore.WithLogger(quietLogger()))
	report, err := New(db, WithLogger(quietLogger()), WithOutput(&out)).Run(context.Background(), sc)
	require.NoError(t, err)

	docs := report.Steps[1].Documents
	require.Len(t, docs, 2)
	assert.Equal(t, 4.0, number(t, docs[0], "n"))
	assert.Equal(t, 3.0, number(t, docs[1], "n"))
	assert.Contains(t, out.String(), `  {"n":4}`)
}

func TestFileSourceOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"_id": 1, "name": "solo"}`+"\n"), 0o600))

	sc, err := ParseScenario([]byte(`
steps:
  - op: insertMany
    collection: students
    source: {file: students.json}
`))
	require.NoError(t, err)

	db := docstore.NewDatabase(docstore.WithLogger(quietLogger()))
	p := New(db, WithLogger(quietLogger()), WithFiles(DemoFiles()), WithFileOverride(DemoStudentsFile, path))
	report, err := p.Run(context.Background(), sc)
	require.NoError(t, err)
	require.NoError(t, report.Steps[0].Err)
	assert.Equal(t, 1, report.Steps[0].InsertedCount)
}

type fakeScanner struct {
	items []map[string]types.AttributeValue
}

func (f *fakeScanner) Scan(context.Context, *sdk.ScanInput, ...func(*sdk.Options)) (*sdk.ScanOutput, error) {
	return &sdk.ScanOutput{Items: f.items}, nil
}

func TestDynamoDBSource(t *testing.T) {
	scanner := &fakeScanner{items: []map[string]types.AttributeValue{
		{"id": &types.AttributeValueMemberS{Value: "s1"}, "grade": &types.AttributeValueMemberN{Value: "91"}},
		{"id": &types.AttributeValueMemberS{Value: "s2"}, "grade": &types.AttributeValueMemberN{Value: "42"}},
	}}
	sc, err := ParseScenario([]byte(`
steps:
  - op: insertMany
    collection: grades
    source: {dynamodb: {idAttribute: id}}
  - op: find
    collection: grades
    filter: {_id: s1}
`))
	require.NoError(t, err)

	db := docstore.NewDatabase(docstore.WithLogger(quietLogger()))

	// without a client the step fails and the run goes on
	report, err := New(db, WithLogger(quietLogger())).Run(context.Background(), sc)
	require.NoError(t, err)
	assert.Error(t, report.Steps[0].Err)

	p := New(db, WithLogger(quietLogger()), WithScanClient(func(context.Context) (sdk.ScanAPIClient, error) {
		return scanner, nil
	}, "grades"))
	report, err = p.Run(context.Background(), sc)
	require.NoError(t, err)
	require.Empty(t, report.Failed())
	assert.Equal(t, 2, report.Steps[0].InsertedCount)
	require.Equal(t, 1, report.Steps[1].Count)
	assert.Equal(t, 91.0, number(t, report.Steps[1].Documents[0], "grade"))
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	sc, err := Demo()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := New(docstore.NewDatabase(), WithLogger(quietLogger())).Run(ctx, sc)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Steps)
}
