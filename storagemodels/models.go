/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import (
	"github.com/suparena/docstore/document"
)

// InsertManyResult reports the outcome of an insertMany call.
type InsertManyResult struct {
	// InsertedCount is the number of records added to the collection.
	InsertedCount int
	// InsertedIDs holds the _id of each inserted record, in input order.
	InsertedIDs []document.Value
}

// InsertOneResult reports the outcome of an insertOne call.
type InsertOneResult struct {
	InsertedID document.Value
}

// DeleteResult reports the outcome of deleteOne and deleteMany.
type DeleteResult struct {
	DeletedCount int
}

// UpdateResult reports the outcome of updateOne and updateMany.
type UpdateResult struct {
	// MatchedCount is the number of records selected by the filter.
	MatchedCount int
	// ModifiedCount is the number of matched records that actually changed.
	ModifiedCount int
}

// AggregateResult holds the output of an aggregation. When the last stage is
// a $facet, Facets exposes each named sub-pipeline output as well.
type AggregateResult struct {
	Documents []*document.Document
	Facets    map[string][]*document.Document
}

// FindOptions narrows and orders the output of find.
type FindOptions struct {
	// Sort is a sort specification such as bson.D{{Key: "createdAt", Value: -1}}.
	Sort any
	// Projection is a $project specification.
	Projection any
	Skip       int
	// Limit of 0 means no limit.
	Limit int
}

// FindOption is a functional option for find.
type FindOption func(*FindOptions)

// WithSort orders the results.
func WithSort(spec any) FindOption {
	return func(o *FindOptions) { o.Sort = spec }
}

// WithProjection reshapes the results.
func WithProjection(spec any) FindOption {
	return func(o *FindOptions) { o.Projection = spec }
}

// WithSkip drops the first n results.
func WithSkip(n int) FindOption {
	return func(o *FindOptions) { o.Skip = n }
}

// WithLimit caps the number of results.
func WithLimit(n int) FindOption {
	return func(o *FindOptions) { o.Limit = n }
}

// NewFindOptions applies opts over the zero value.
func NewFindOptions(opts ...FindOption) FindOptions {
	var o FindOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
