/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/errors"
)

func TestCollectionLifecycle(t *testing.T) {
	db := NewDatabase()

	_, err := db.CreateCollection("users")
	require.NoError(t, err)

	_, err = db.CreateCollection("users")
	assert.True(t, errors.IsAlreadyExists(err))

	_, err = db.CreateCollection("")
	assert.True(t, errors.IsValidationError(err))

	db.Collection("articles")
	assert.Equal(t, []string{"articles", "users"}, db.ListCollectionNames())

	require.NoError(t, db.DropCollection("users"))
	assert.Equal(t, []string{"articles"}, db.ListCollectionNames())

	err = db.DropCollection("users")
	assert.True(t, errors.IsCollectionNotFound(err))
	assert.True(t, errors.IsNotFound(err))
}

func TestNameBasedOperations(t *testing.T) {
	ctx := context.Background()
	db := NewDatabase()

	res, err := db.InsertMany(ctx, "users", []any{
		bson.M{"firstName": "Ann", "department": "a"},
		bson.M{"firstName": "Bob", "department": "b"},
		bson.M{"firstName": "Cid", "department": "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.InsertedCount)

	_, err = db.InsertOne(ctx, "users", bson.M{"firstName": "Dee", "department": "c"})
	require.NoError(t, err)

	upd, err := db.UpdateMany(ctx, "users", bson.M{"department": "a"}, bson.M{"$set": bson.M{"active": true}})
	require.NoError(t, err)
	assert.Equal(t, 2, upd.ModifiedCount)

	upd, err = db.UpdateOne(ctx, "users", bson.M{"department": "c"}, bson.M{"$set": bson.M{"active": false}})
	require.NoError(t, err)
	assert.Equal(t, 1, upd.MatchedCount)

	n, err := db.CountDocuments(ctx, "users", bson.M{"active": true})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	del, err := db.DeleteOne(ctx, "users", bson.M{"department": "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, del.DeletedCount)

	found, err := db.Find(ctx, "users", bson.M{"department": "a"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	name, _ := found[0].Get("firstName")
	assert.Equal(t, "Cid", name.StringValue())

	agg, err := db.Aggregate(ctx, "users", bson.A{
		bson.M{"$group": bson.M{"_id": "$department", "n": bson.M{"$sum": 1}}},
		bson.M{"$sort": bson.M{"_id": 1}},
	})
	require.NoError(t, err)
	require.Len(t, agg.Documents, 3)
	first, _ := agg.Documents[0].ID()
	assert.Equal(t, "a", first.StringValue())

	del, err = db.DeleteMany(ctx, "users", bson.M{})
	require.NoError(t, err)
	assert.Equal(t, 3, del.DeletedCount)
}

func TestOperationsOnMissingCollection(t *testing.T) {
	ctx := context.Background()
	db := NewDatabase()

	_, err := db.Find(ctx, "missing", nil)
	assert.True(t, errors.IsCollectionNotFound(err))
	_, err = db.DeleteMany(ctx, "missing", nil)
	assert.True(t, errors.IsCollectionNotFound(err))
	_, err = db.UpdateMany(ctx, "missing", nil, bson.M{"$set": bson.M{"a": 1}})
	assert.True(t, errors.IsCollectionNotFound(err))
	_, err = db.Aggregate(ctx, "missing", bson.A{})
	assert.True(t, errors.IsCollectionNotFound(err))
	assert.Empty(t, db.ListCollectionNames(), "reads must not create collections")
}

func TestDroppedCollectionIsEmptied(t *testing.T) {
	ctx := context.Background()
	db := NewDatabase()
	c := db.Collection("users")
	_, err := c.InsertOne(ctx, bson.M{"a": 1})
	require.NoError(t, err)

	require.NoError(t, db.DropCollection("users"))
	n, err := c.CountDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// recreating yields a fresh collection
	_, err = db.InsertOne(ctx, "users", bson.M{"a": 2})
	require.NoError(t, err)
	n, err = db.CountDocuments(ctx, "users", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	db := NewDatabase()
	_, err := db.InsertOne(ctx, "users", bson.M{"a": 1})
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err = db.InsertOne(ctx, "users", bson.M{"a": 1})
	assert.ErrorIs(t, err, errors.ErrClosed)
	_, err = db.CreateCollection("more")
	assert.ErrorIs(t, err, errors.ErrClosed)
	assert.Nil(t, db.Collection("users"))
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	db := NewDatabase()
	src := datastore.SourceFunc(func(context.Context) ([]*document.Document, error) {
		return []*document.Document{
			document.New().Set("_id", document.Int(0)).Set("name", document.String("Aimee Zank")),
			document.New().Set("_id", document.Int(1)).Set("name", document.String("Aurelia Menendez")),
		}, nil
	})

	res, err := db.Load(ctx, "students", src)
	require.NoError(t, err)
	assert.Equal(t, 2, res.InsertedCount)

	failing := datastore.SourceFunc(func(context.Context) ([]*document.Document, error) {
		return nil, fmt.Errorf("boom")
	})
	_, err = db.Load(ctx, "students", failing)
	assert.EqualError(t, err, "boom")
}

func TestDatabaseThreadSafety(t *testing.T) {
	ctx := context.Background()
	db := NewDatabase()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			_, err := db.InsertOne(ctx, fmt.Sprintf("c%d", id%3), bson.M{"n": id})
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			db.ListCollectionNames()
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"c0", "c1", "c2"}, db.ListCollectionNames())
	total := 0
	for _, name := range db.ListCollectionNames() {
		n, err := db.CountDocuments(ctx, name, nil)
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, 10, total)
}
