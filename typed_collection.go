/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/registry"
	"github.com/suparena/docstore/storagemodels"
)

// TypedCollection provides type-safe access to a collection whose records
// map onto the Go type T through its bson struct tags.
type TypedCollection[T any] struct {
	coll datastore.Collection
}

// NewTypedCollection wraps c for records of type T
func NewTypedCollection[T any](c datastore.Collection) *TypedCollection[T] {
	return &TypedCollection[T]{coll: c}
}

// GetTypedCollection returns a TypedCollection over the collection bound to T
// with registry.BindCollection.
func GetTypedCollection[T any](db *Database) (*TypedCollection[T], error) {
	name, err := registry.CollectionFor[T]()
	if err != nil {
		return nil, err
	}
	c := db.Collection(name)
	if c == nil {
		return nil, fmt.Errorf("collection %q: database closed", name)
	}
	return NewTypedCollection[T](c), nil
}

// Collection returns the underlying untyped collection
func (tc *TypedCollection[T]) Collection() datastore.Collection {
	return tc.coll
}

// InsertMany encodes and appends items
func (tc *TypedCollection[T]) InsertMany(ctx context.Context, items []T) (*storagemodels.InsertManyResult, error) {
	records := make([]any, len(items))
	for i := range items {
		d, err := encode(items[i])
		if err != nil {
			return nil, fmt.Errorf("failed to encode item %d: %w", i, err)
		}
		records[i] = d
	}
	return tc.coll.InsertMany(ctx, records)
}

// InsertOne encodes and appends item
func (tc *TypedCollection[T]) InsertOne(ctx context.Context, item T) (*storagemodels.InsertOneResult, error) {
	d, err := encode(item)
	if err != nil {
		return nil, fmt.Errorf("failed to encode item: %w", err)
	}
	return tc.coll.InsertOne(ctx, d)
}

// Find decodes the records matching filter
func (tc *TypedCollection[T]) Find(ctx context.Context, filter any, opts ...storagemodels.FindOption) ([]T, error) {
	docs, err := tc.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](docs)
}

// FindOne decodes the first record matching filter. The boolean is false when
// nothing matched.
func (tc *TypedCollection[T]) FindOne(ctx context.Context, filter any) (T, bool, error) {
	var zero T
	docs, err := tc.coll.Find(ctx, filter, storagemodels.WithLimit(1))
	if err != nil || len(docs) == 0 {
		return zero, false, err
	}
	item, err := decode[T](docs[0])
	if err != nil {
		return zero, false, err
	}
	return item, true, nil
}

// UpdateMany applies update to every record matching filter
func (tc *TypedCollection[T]) UpdateMany(ctx context.Context, filter, update any) (*storagemodels.UpdateResult, error) {
	return tc.coll.UpdateMany(ctx, filter, update)
}

// DeleteMany removes every record matching filter
func (tc *TypedCollection[T]) DeleteMany(ctx context.Context, filter any) (*storagemodels.DeleteResult, error) {
	return tc.coll.DeleteMany(ctx, filter)
}

// Aggregate runs pipeline and decodes its output records into R.
func Aggregate[R, T any](ctx context.Context, tc *TypedCollection[T], pipeline any) ([]R, error) {
	res, err := tc.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	return decodeAll[R](res.Documents)
}

func encode(v any) (bson.D, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func decode[T any](d *document.Document) (T, error) {
	var out T
	raw, err := bson.Marshal(d.D())
	if err != nil {
		return out, fmt.Errorf("failed to encode record: %w", err)
	}
	if err := bson.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode record into %T: %w", out, err)
	}
	return out, nil
}

func decodeAll[T any](docs []*document.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		item, err := decode[T](d)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
