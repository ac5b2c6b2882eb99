/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"

	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/storagemodels"
)

// Collection is the operation surface of one named collection. Filters,
// updates and pipelines accept bson.D, bson.M, map[string]any or
// *document.Document; records are returned as deep copies.
type Collection interface {
	Name() string

	InsertOne(ctx context.Context, record any) (*storagemodels.InsertOneResult, error)

	InsertMany(ctx context.Context, records []any) (*storagemodels.InsertManyResult, error)

	DeleteOne(ctx context.Context, filter any) (*storagemodels.DeleteResult, error)

	DeleteMany(ctx context.Context, filter any) (*storagemodels.DeleteResult, error)

	UpdateOne(ctx context.Context, filter, update any) (*storagemodels.UpdateResult, error)

	UpdateMany(ctx context.Context, filter, update any) (*storagemodels.UpdateResult, error)

	Find(ctx context.Context, filter any, opts ...storagemodels.FindOption) ([]*document.Document, error)

	CountDocuments(ctx context.Context, filter any) (int, error)

	Aggregate(ctx context.Context, pipeline any) (*storagemodels.AggregateResult, error)
}

// Source produces records for bulk loading into a collection.
type Source interface {
	Documents(ctx context.Context) ([]*document.Document, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]*document.Document, error)

// Documents calls f(ctx).
func (f SourceFunc) Documents(ctx context.Context) ([]*document.Document, error) {
	return f(ctx)
}
