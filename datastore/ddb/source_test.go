/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"errors"
	"testing"
	"time"

	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/docstore/storagemodels"
)

// fakeScanner serves pre-built pages, failing the first failures calls.
type fakeScanner struct {
	pages    [][]map[string]types.AttributeValue
	failures []error
	calls    int
	inputs   []sdk.ScanInput
}

func (f *fakeScanner) Scan(_ context.Context, in *sdk.ScanInput, _ ...func(*sdk.Options)) (*sdk.ScanOutput, error) {
	f.calls++
	f.inputs = append(f.inputs, *in)
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}

	page := 0
	if in.ExclusiveStartKey != nil {
		page = int(in.ExclusiveStartKey["page"].(*types.AttributeValueMemberN).Value[0] - '0')
	}
	out := &sdk.ScanOutput{Items: f.pages[page]}
	if page+1 < len(f.pages) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"page": &types.AttributeValueMemberN{Value: string(rune('0' + page + 1))},
		}
	}
	return out, nil
}

func studentItem(id, name string, homework string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id":   &types.AttributeValueMemberS{Value: id},
		"name": &types.AttributeValueMemberS{Value: name},
		"scores": &types.AttributeValueMemberL{Value: []types.AttributeValue{
			&types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
				"type":  &types.AttributeValueMemberS{Value: "homework"},
				"score": &types.AttributeValueMemberN{Value: homework},
			}},
		}},
	}
}

func TestSourceScansAllPages(t *testing.T) {
	scanner := &fakeScanner{pages: [][]map[string]types.AttributeValue{
		{studentItem("1", "Aimee Zank", "38"), studentItem("2", "Aurelia Menendez", "30")},
		{studentItem("3", "Corliss Zuk", "89")},
	}}

	var progress []storagemodels.StreamProgress
	src := NewSource(scanner, "students",
		WithIDAttribute("id"),
		WithStreamOptions(
			storagemodels.WithPageSize(2),
			storagemodels.WithProgressHandler(func(p storagemodels.StreamProgress) {
				progress = append(progress, p)
			}),
		),
	)

	docs, err := src.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, []string{"_id", "name", "scores"}, docs[0].Keys())
	id, _ := docs[2].ID()
	assert.Equal(t, "3", id.StringValue())
	score, ok := docs[0].Lookup("scores.0.score")
	require.True(t, ok)
	assert.Equal(t, 38.0, score.NumberValue())

	require.Len(t, progress, 2)
	assert.Equal(t, int64(3), progress[1].ItemsRead)
	assert.Equal(t, 2, progress[1].PagesRead)
	assert.Equal(t, int32(2), *scanner.inputs[0].Limit)
	assert.Equal(t, "students", *scanner.inputs[0].TableName)
}

func TestSourceRetriesThrottling(t *testing.T) {
	scanner := &fakeScanner{
		pages:    [][]map[string]types.AttributeValue{{studentItem("1", "Aimee Zank", "38")}},
		failures: []error{&types.ProvisionedThroughputExceededException{}, &types.InternalServerError{}},
	}
	src := NewSource(scanner, "students", WithStreamOptions(storagemodels.WithRetryBackoff(time.Millisecond)))

	docs, err := src.Documents(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, 3, scanner.calls)
}

func TestSourceGivesUp(t *testing.T) {
	scanner := &fakeScanner{failures: []error{
		&types.RequestLimitExceeded{}, &types.RequestLimitExceeded{}, &types.RequestLimitExceeded{},
	}}
	src := NewSource(scanner, "students", WithStreamOptions(
		storagemodels.WithMaxRetries(2),
		storagemodels.WithRetryBackoff(time.Millisecond),
	))

	_, err := src.Documents(context.Background())
	require.Error(t, err)
	var limit *types.RequestLimitExceeded
	assert.True(t, errors.As(err, &limit))
	assert.Equal(t, 3, scanner.calls)
}

func TestSourceDoesNotRetryPermanentErrors(t *testing.T) {
	scanner := &fakeScanner{failures: []error{&types.ResourceNotFoundException{}}}
	src := NewSource(scanner, "missing")

	_, err := src.Documents(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, scanner.calls)
}

func TestSourceMaxItems(t *testing.T) {
	scanner := &fakeScanner{pages: [][]map[string]types.AttributeValue{
		{studentItem("1", "a", "1"), studentItem("2", "b", "2")},
		{studentItem("3", "c", "3")},
	}}
	src := NewSource(scanner, "students", WithStreamOptions(storagemodels.WithMaxItems(2)))

	docs, err := src.Documents(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Equal(t, 1, scanner.calls)
}
