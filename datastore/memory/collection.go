/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package memory provides the in-process implementation of datastore.Collection.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/charmbracelet/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/pipeline"
	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/storagemodels"
	"github.com/suparena/docstore/update"
)

var _ datastore.Collection = (*Collection)(nil)

// Collection is an ordered sequence of records with unique _id values.
// Writers serialize on the collection lock; readers copy the records they
// need under the read lock and evaluate without holding it.
type Collection struct {
	mu      sync.RWMutex
	name    string
	records []*document.Document
	ids     map[string]struct{}
	logger  *log.Logger
}

// Option configures a Collection.
type Option func(*Collection)

// WithLogger sets the logger used for operation tracing.
func WithLogger(l *log.Logger) Option {
	return func(c *Collection) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates an empty collection.
func New(name string, opts ...Option) *Collection {
	c := &Collection{
		name:   name,
		ids:    make(map[string]struct{}),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Len returns the number of stored records.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Snapshot returns deep copies of every record in insertion order.
func (c *Collection) Snapshot() []*document.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneAll(c.records)
}

// InsertOne stores a single record.
func (c *Collection) InsertOne(ctx context.Context, record any) (*storagemodels.InsertOneResult, error) {
	res, err := c.insert(ctx, "insertOne", []any{record})
	if err != nil {
		return nil, err
	}
	return &storagemodels.InsertOneResult{InsertedID: res.InsertedIDs[0]}, nil
}

// InsertMany stores records in order. Records without an _id get a new
// ObjectID. Nothing is inserted when any record is invalid or its _id is
// already taken.
func (c *Collection) InsertMany(ctx context.Context, records []any) (*storagemodels.InsertManyResult, error) {
	return c.insert(ctx, "insertMany", records)
}

func (c *Collection) insert(ctx context.Context, op string, records []any) (res *storagemodels.InsertManyResult, err error) {
	defer func() { c.observe(op, err) }()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs := make([]*document.Document, 0, len(records))
	for i, r := range records {
		d, err := document.FromMap(r)
		if err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("records[%d]", i), err.Error())
		}
		docs = append(docs, withID(d))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	batch := make(map[string]struct{}, len(docs))
	ids := make([]document.Value, 0, len(docs))
	for _, d := range docs {
		id, _ := d.ID()
		key := idKey(id)
		if _, taken := c.ids[key]; taken {
			return nil, errors.NewAlreadyExistsError(c.name, id.String())
		}
		if _, taken := batch[key]; taken {
			return nil, errors.NewAlreadyExistsError(c.name, id.String())
		}
		batch[key] = struct{}{}
		ids = append(ids, id)
	}
	for key := range batch {
		c.ids[key] = struct{}{}
	}
	c.records = append(c.records, docs...)
	c.updateSize()

	c.logger.Debug("records inserted", "collection", c.name, "op", op, "count", len(docs))
	return &storagemodels.InsertManyResult{InsertedCount: len(docs), InsertedIDs: ids}, nil
}

// withID returns a copy of d with _id as its first field, generating an
// ObjectID when d has none.
func withID(d *document.Document) *document.Document {
	out := document.NewWithCapacity(d.Len() + 1)
	if id, ok := d.ID(); ok {
		out.Set(document.IDField, id.Clone())
	} else {
		out.Set(document.IDField, document.ObjectID(primitive.NewObjectID()))
	}
	d.Range(func(k string, v document.Value) bool {
		if k != document.IDField {
			out.Set(k, v.Clone())
		}
		return true
	})
	return out
}

func idKey(id document.Value) string {
	return document.Key(id)
}

// DeleteOne removes the first record, in insertion order, matching filter.
func (c *Collection) DeleteOne(ctx context.Context, filter any) (*storagemodels.DeleteResult, error) {
	return c.delete(ctx, "deleteOne", filter, 1)
}

// DeleteMany removes every record matching filter.
func (c *Collection) DeleteMany(ctx context.Context, filter any) (*storagemodels.DeleteResult, error) {
	return c.delete(ctx, "deleteMany", filter, -1)
}

func (c *Collection) delete(ctx context.Context, op string, filter any, limit int) (res *storagemodels.DeleteResult, err error) {
	defer func() { c.observe(op, err) }()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	node, err := query.Parse(filter)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.records[:0:0]
	deleted := 0
	for _, d := range c.records {
		if (limit < 0 || deleted < limit) && query.Matches(d, node) {
			id, _ := d.ID()
			delete(c.ids, idKey(id))
			deleted++
			continue
		}
		kept = append(kept, d)
	}
	if deleted > 0 {
		c.records = kept
		c.updateSize()
	}

	c.logger.Debug("records deleted", "collection", c.name, "op", op, "count", deleted)
	return &storagemodels.DeleteResult{DeletedCount: deleted}, nil
}

// UpdateOne applies update to the first record matching filter.
func (c *Collection) UpdateOne(ctx context.Context, filter, upd any) (*storagemodels.UpdateResult, error) {
	return c.update(ctx, "updateOne", filter, upd, 1)
}

// UpdateMany applies update to every record matching filter. Updates are
// applied to copies and committed together, so a failure leaves the
// collection unchanged.
func (c *Collection) UpdateMany(ctx context.Context, filter, upd any) (*storagemodels.UpdateResult, error) {
	return c.update(ctx, "updateMany", filter, upd, -1)
}

func (c *Collection) update(ctx context.Context, op string, filter, upd any, limit int) (res *storagemodels.UpdateResult, err error) {
	defer func() { c.observe(op, err) }()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	node, err := query.Parse(filter)
	if err != nil {
		return nil, err
	}
	u, err := update.Parse(upd)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	type pending struct {
		index int
		doc   *document.Document
	}
	var changes []pending
	matched := 0
	for i, d := range c.records {
		if limit >= 0 && matched >= limit {
			break
		}
		if !query.Matches(d, node) {
			continue
		}
		matched++
		nd := d.Clone()
		changed, err := u.Apply(nd)
		if err != nil {
			id, _ := d.ID()
			c.logger.Warn("update failed", "collection", c.name, "op", op, "id", id.String(), "err", err)
			return nil, err
		}
		if changed {
			changes = append(changes, pending{index: i, doc: nd})
		}
	}
	for _, p := range changes {
		c.records[p.index] = p.doc
	}

	c.logger.Debug("records updated", "collection", c.name, "op", op, "matched", matched, "modified", len(changes))
	return &storagemodels.UpdateResult{MatchedCount: matched, ModifiedCount: len(changes)}, nil
}

// Find returns copies of the records matching filter.
func (c *Collection) Find(ctx context.Context, filter any, opts ...storagemodels.FindOption) (out []*document.Document, err error) {
	defer func() { c.observe("find", err) }()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	node, err := query.Parse(filter)
	if err != nil {
		return nil, err
	}
	p, err := findPipeline(storagemodels.NewFindOptions(opts...))
	if err != nil {
		return nil, err
	}

	out = c.matching(node)
	if len(p) == 0 {
		return out, nil
	}
	return pipeline.Run(ctx, out, p)
}

// findPipeline expresses find options as sort, skip, limit and project stages.
func findPipeline(o storagemodels.FindOptions) (pipeline.Pipeline, error) {
	var stages bson.A
	if o.Sort != nil {
		stages = append(stages, bson.M{"$sort": o.Sort})
	}
	if o.Skip > 0 {
		stages = append(stages, bson.M{"$skip": o.Skip})
	}
	if o.Limit > 0 {
		stages = append(stages, bson.M{"$limit": o.Limit})
	}
	if o.Projection != nil {
		stages = append(stages, bson.M{"$project": o.Projection})
	}
	if len(stages) == 0 {
		return nil, nil
	}
	return pipeline.Parse(stages)
}

// CountDocuments returns the number of records matching filter.
func (c *Collection) CountDocuments(ctx context.Context, filter any) (n int, err error) {
	defer func() { c.observe("countDocuments", err) }()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	node, err := query.Parse(filter)
	if err != nil {
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.records {
		if query.Matches(d, node) {
			n++
		}
	}
	return n, nil
}

// Aggregate runs a pipeline over a snapshot of the collection.
func (c *Collection) Aggregate(ctx context.Context, p any) (res *storagemodels.AggregateResult, err error) {
	defer func() { c.observe("aggregate", err) }()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed, err := pipeline.Parse(p)
	if err != nil {
		return nil, err
	}

	out, err := pipeline.Run(ctx, c.Snapshot(), parsed)
	if err != nil {
		c.logger.Warn("aggregate failed", "collection", c.name, "err", err)
		return nil, err
	}
	return NewAggregateResult(parsed, out), nil
}

// NewAggregateResult wraps pipeline output. When the last stage is a $facet
// the named facet outputs are exposed through Facets.
func NewAggregateResult(p pipeline.Pipeline, out []*document.Document) *storagemodels.AggregateResult {
	res := &storagemodels.AggregateResult{Documents: out}
	if len(p) == 0 || len(out) != 1 {
		return res
	}
	if _, ok := p[len(p)-1].(*pipeline.FacetStage); !ok {
		return res
	}
	res.Facets = make(map[string][]*document.Document, out[0].Len())
	out[0].Range(func(name string, v document.Value) bool {
		docs := make([]*document.Document, 0, len(v.ArrayValue()))
		for _, e := range v.ArrayValue() {
			docs = append(docs, e.DocumentValue())
		}
		res.Facets[name] = docs
		return true
	})
	return res
}

func (c *Collection) matching(node query.Node) []*document.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*document.Document, 0)
	for _, d := range c.records {
		if query.Matches(d, node) {
			out = append(out, d.Clone())
		}
	}
	return out
}

func (c *Collection) observe(op string, err error) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`docstore_operations_total{collection=%q,op=%q}`, c.name, op)).Inc()
	if err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`docstore_operation_errors_total{collection=%q,op=%q}`, c.name, op)).Inc()
		c.logger.Debug("operation failed", "collection", c.name, "op", op, "err", err)
	}
}

// Drop removes every record. Handles obtained before the drop see an empty
// collection.
func (c *Collection) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = nil
	c.ids = make(map[string]struct{})
	c.updateSize()
	c.logger.Debug("collection dropped", "collection", c.name)
}

// updateSize must be called with the write lock held.
func (c *Collection) updateSize() {
	metrics.GetOrCreateGauge(fmt.Sprintf(`docstore_documents{collection=%q}`, c.name), nil).Set(float64(len(c.records)))
}

func cloneAll(docs []*document.Document) []*document.Document {
	out := make([]*document.Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out
}
