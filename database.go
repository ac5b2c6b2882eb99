/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/datastore/memory"
	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/storagemodels"
)

// Database is a thread-safe registry of named in-memory collections.
// Collections are created on first write, as a document database does.
type Database struct {
	mu          sync.RWMutex
	collections map[string]*memory.Collection
	logger      *log.Logger
	closed      bool
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger handed to every collection of the database.
func WithLogger(l *log.Logger) Option {
	return func(db *Database) {
		if l != nil {
			db.logger = l
		}
	}
}

// NewDatabase creates an empty Database.
func NewDatabase(opts ...Option) *Database {
	db := &Database{
		collections: make(map[string]*memory.Collection),
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// CreateCollection creates an empty collection. It fails with an
// AlreadyExistsError when the name is taken.
func (db *Database) CreateCollection(name string) (datastore.Collection, error) {
	if name == "" {
		return nil, errors.NewValidationError("name", "collection name must not be empty")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if _, exists := db.collections[name]; exists {
		return nil, errors.NewAlreadyExistsError("collection", name)
	}
	c := memory.New(name, memory.WithLogger(db.logger))
	db.collections[name] = c
	db.logger.Debug("collection created", "collection", name)
	return c, nil
}

// DropCollection removes a collection and all of its records.
func (db *Database) DropCollection(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.checkOpen(); err != nil {
		return err
	}
	c, exists := db.collections[name]
	if !exists {
		return errors.NewCollectionNotFoundError(name)
	}
	c.Drop()
	delete(db.collections, name)
	return nil
}

// Collection returns the named collection, creating it when missing. It
// returns nil once the database is closed.
func (db *Database) Collection(name string) datastore.Collection {
	c, err := db.collection(name, true)
	if err != nil {
		return nil
	}
	return c
}

// ListCollectionNames returns the collection names in sorted order.
func (db *Database) ListCollectionNames() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.collections))
	for k := range db.collections {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Close releases every collection. Later calls fail with errors.ErrClosed.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	for _, c := range db.collections {
		c.Drop()
	}
	db.collections = nil
	db.closed = true
	db.logger.Debug("database closed")
	return nil
}

// collection resolves name. With create set, a missing collection is created;
// otherwise a CollectionNotFoundError is returned.
func (db *Database) collection(name string, create bool) (*memory.Collection, error) {
	db.mu.RLock()
	c, exists := db.collections[name]
	closed := db.closed
	db.mu.RUnlock()
	if closed {
		return nil, errors.ErrClosed
	}
	if exists {
		return c, nil
	}
	if !create {
		return nil, errors.NewCollectionNotFoundError(name)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	// Re-check after acquiring write lock
	if c, exists := db.collections[name]; exists {
		return c, nil
	}
	c = memory.New(name, memory.WithLogger(db.logger))
	db.collections[name] = c
	return c, nil
}

// checkOpen must be called with the lock held.
func (db *Database) checkOpen() error {
	if db.closed {
		return errors.ErrClosed
	}
	return nil
}

// InsertMany appends records to the named collection, creating it when missing.
func (db *Database) InsertMany(ctx context.Context, name string, records []any) (*storagemodels.InsertManyResult, error) {
	c, err := db.collection(name, true)
	if err != nil {
		return nil, err
	}
	return c.InsertMany(ctx, records)
}

// InsertOne appends one record to the named collection, creating it when missing.
func (db *Database) InsertOne(ctx context.Context, name string, record any) (*storagemodels.InsertOneResult, error) {
	c, err := db.collection(name, true)
	if err != nil {
		return nil, err
	}
	return c.InsertOne(ctx, record)
}

// DeleteOne removes the earliest record of the named collection matching filter.
func (db *Database) DeleteOne(ctx context.Context, name string, filter any) (*storagemodels.DeleteResult, error) {
	c, err := db.collection(name, false)
	if err != nil {
		return nil, err
	}
	return c.DeleteOne(ctx, filter)
}

// DeleteMany removes every record of the named collection matching filter.
func (db *Database) DeleteMany(ctx context.Context, name string, filter any) (*storagemodels.DeleteResult, error) {
	c, err := db.collection(name, false)
	if err != nil {
		return nil, err
	}
	return c.DeleteMany(ctx, filter)
}

// UpdateOne applies update to the earliest record matching filter.
func (db *Database) UpdateOne(ctx context.Context, name string, filter, update any) (*storagemodels.UpdateResult, error) {
	c, err := db.collection(name, false)
	if err != nil {
		return nil, err
	}
	return c.UpdateOne(ctx, filter, update)
}

// UpdateMany applies update to every record matching filter.
func (db *Database) UpdateMany(ctx context.Context, name string, filter, update any) (*storagemodels.UpdateResult, error) {
	c, err := db.collection(name, false)
	if err != nil {
		return nil, err
	}
	return c.UpdateMany(ctx, filter, update)
}

// Find returns copies of the matching records in insertion order.
func (db *Database) Find(ctx context.Context, name string, filter any, opts ...storagemodels.FindOption) ([]*document.Document, error) {
	c, err := db.collection(name, false)
	if err != nil {
		return nil, err
	}
	return c.Find(ctx, filter, opts...)
}

// CountDocuments counts the records matching filter.
func (db *Database) CountDocuments(ctx context.Context, name string, filter any) (int, error) {
	c, err := db.collection(name, false)
	if err != nil {
		return 0, err
	}
	return c.CountDocuments(ctx, filter)
}

// Aggregate runs a pipeline over a snapshot of the named collection.
func (db *Database) Aggregate(ctx context.Context, name string, pipeline any) (*storagemodels.AggregateResult, error) {
	c, err := db.collection(name, false)
	if err != nil {
		return nil, err
	}
	return c.Aggregate(ctx, pipeline)
}

// Load inserts every record produced by src into the named collection.
func (db *Database) Load(ctx context.Context, name string, src datastore.Source) (*storagemodels.InsertManyResult, error) {
	docs, err := src.Documents(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]any, len(docs))
	for i, d := range docs {
		records[i] = d
	}
	return db.InsertMany(ctx, name, records)
}
