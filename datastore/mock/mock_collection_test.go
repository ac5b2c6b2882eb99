/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package mock_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/suparena/docstore/datastore/mock"
	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/errors"
)

func TestMockCollection(t *testing.T) {
	ctx := context.Background()

	t.Run("Delegates", func(t *testing.T) {
		m := mock.New("users")
		assert.Equal(t, "users", m.Name())

		_, err := m.InsertMany(ctx, []any{
			bson.D{{Key: "_id", Value: 1}, {Key: "department", Value: "a"}},
			bson.D{{Key: "_id", Value: 2}, {Key: "department", Value: "b"}},
		})
		require.NoError(t, err)

		n, err := m.CountDocuments(ctx, bson.D{{Key: "department", Value: "a"}})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		del, err := m.DeleteMany(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, del.DeletedCount)
		assert.Equal(t, 1, m.Calls("InsertMany"))
		assert.Equal(t, 1, m.Calls("DeleteMany"))
	})

	t.Run("ErrorSimulation", func(t *testing.T) {
		m := mock.New("users")

		insertErr := errors.NewValidationError("record", "rejected")
		m.WithInsertError(insertErr)
		_, err := m.InsertOne(ctx, bson.D{{Key: "a", Value: 1}})
		assert.Equal(t, insertErr, err)
		_, err = m.InsertMany(ctx, []any{bson.D{{Key: "a", Value: 1}}})
		assert.Equal(t, insertErr, err)

		m.WithFindError(errors.ErrClosed).
			WithUpdateError(errors.ErrClosed).
			WithDeleteError(errors.ErrClosed).
			WithAggregateError(errors.ErrClosed)

		_, err = m.Find(ctx, nil)
		assert.ErrorIs(t, err, errors.ErrClosed)
		_, err = m.CountDocuments(ctx, nil)
		assert.ErrorIs(t, err, errors.ErrClosed)
		_, err = m.UpdateMany(ctx, nil, bson.D{{Key: "$set", Value: bson.D{{Key: "a", Value: 2}}}})
		assert.ErrorIs(t, err, errors.ErrClosed)
		_, err = m.DeleteOne(ctx, nil)
		assert.ErrorIs(t, err, errors.ErrClosed)
		_, err = m.Aggregate(ctx, bson.A{})
		assert.ErrorIs(t, err, errors.ErrClosed)

		assert.Equal(t, 1, m.Calls("InsertOne"))
		assert.Equal(t, 1, m.Calls("Aggregate"))
	})

	t.Run("Reset", func(t *testing.T) {
		m := mock.New("users").WithInsertError(errors.ErrClosed)
		_, err := m.InsertOne(ctx, bson.D{{Key: "a", Value: 1}})
		require.Error(t, err)

		m.Reset()
		assert.Equal(t, 0, m.Calls("InsertOne"))
		_, err = m.InsertOne(ctx, bson.D{{Key: "a", Value: 1}})
		require.NoError(t, err)

		docs, err := m.Find(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})
}

func TestMockSource(t *testing.T) {
	ctx := context.Background()
	rec := document.New().Set("_id", document.Int(1)).Set("name", document.String("aimee Zank"))
	src := &mock.Source{Records: []*document.Document{rec}}

	docs, err := src.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.True(t, rec.Equal(docs[0]))

	docs[0].Set("name", document.String("changed"))
	name, _ := rec.Get("name")
	assert.Equal(t, "aimee Zank", name.StringValue())

	src.Err = errors.ErrInvalidInput
	_, err = src.Documents(ctx)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}
