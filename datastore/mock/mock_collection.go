/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package mock provides a datastore.Collection for tests that delegates to an
// in-memory collection and can be told to fail individual operations.
package mock

import (
	"context"
	"sync"

	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/datastore/memory"
	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/storagemodels"
)

var _ datastore.Collection = (*Collection)(nil)

// Collection wraps a datastore.Collection with error injection and call counts.
type Collection struct {
	next datastore.Collection

	mu             sync.RWMutex
	insertError    error
	deleteError    error
	updateError    error
	findError      error
	aggregateError error
	calls          map[string]int
}

// New creates a mock over a fresh in-memory collection.
func New(name string) *Collection {
	return Wrap(memory.New(name))
}

// Wrap creates a mock delegating to next.
func Wrap(next datastore.Collection) *Collection {
	return &Collection{
		next:  next,
		calls: make(map[string]int),
	}
}

// WithInsertError makes InsertOne and InsertMany return err.
func (m *Collection) WithInsertError(err error) *Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertError = err
	return m
}

// WithDeleteError makes DeleteOne and DeleteMany return err.
func (m *Collection) WithDeleteError(err error) *Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteError = err
	return m
}

// WithUpdateError makes UpdateOne and UpdateMany return err.
func (m *Collection) WithUpdateError(err error) *Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateError = err
	return m
}

// WithFindError makes Find and CountDocuments return err.
func (m *Collection) WithFindError(err error) *Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findError = err
	return m
}

// WithAggregateError makes Aggregate return err.
func (m *Collection) WithAggregateError(err error) *Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggregateError = err
	return m
}

// Reset clears every injected error and call count.
func (m *Collection) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertError, m.deleteError, m.updateError = nil, nil, nil
	m.findError, m.aggregateError = nil, nil
	m.calls = make(map[string]int)
}

// Calls returns how many times the named method was called, failed calls
// included.
func (m *Collection) Calls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

func (m *Collection) enter(method string, injected *error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method]++
	return *injected
}

// Name returns the wrapped collection name.
func (m *Collection) Name() string {
	return m.next.Name()
}

func (m *Collection) InsertOne(ctx context.Context, record any) (*storagemodels.InsertOneResult, error) {
	if err := m.enter("InsertOne", &m.insertError); err != nil {
		return nil, err
	}
	return m.next.InsertOne(ctx, record)
}

func (m *Collection) InsertMany(ctx context.Context, records []any) (*storagemodels.InsertManyResult, error) {
	if err := m.enter("InsertMany", &m.insertError); err != nil {
		return nil, err
	}
	return m.next.InsertMany(ctx, records)
}

func (m *Collection) DeleteOne(ctx context.Context, filter any) (*storagemodels.DeleteResult, error) {
	if err := m.enter("DeleteOne", &m.deleteError); err != nil {
		return nil, err
	}
	return m.next.DeleteOne(ctx, filter)
}

func (m *Collection) DeleteMany(ctx context.Context, filter any) (*storagemodels.DeleteResult, error) {
	if err := m.enter("DeleteMany", &m.deleteError); err != nil {
		return nil, err
	}
	return m.next.DeleteMany(ctx, filter)
}

func (m *Collection) UpdateOne(ctx context.Context, filter, update any) (*storagemodels.UpdateResult, error) {
	if err := m.enter("UpdateOne", &m.updateError); err != nil {
		return nil, err
	}
	return m.next.UpdateOne(ctx, filter, update)
}

func (m *Collection) UpdateMany(ctx context.Context, filter, update any) (*storagemodels.UpdateResult, error) {
	if err := m.enter("UpdateMany", &m.updateError); err != nil {
		return nil, err
	}
	return m.next.UpdateMany(ctx, filter, update)
}

func (m *Collection) Find(ctx context.Context, filter any, opts ...storagemodels.FindOption) ([]*document.Document, error) {
	if err := m.enter("Find", &m.findError); err != nil {
		return nil, err
	}
	return m.next.Find(ctx, filter, opts...)
}

func (m *Collection) CountDocuments(ctx context.Context, filter any) (int, error) {
	if err := m.enter("CountDocuments", &m.findError); err != nil {
		return 0, err
	}
	return m.next.CountDocuments(ctx, filter)
}

func (m *Collection) Aggregate(ctx context.Context, pipeline any) (*storagemodels.AggregateResult, error) {
	if err := m.enter("Aggregate", &m.aggregateError); err != nil {
		return nil, err
	}
	return m.next.Aggregate(ctx, pipeline)
}

// Source is a datastore.Source serving fixed records or a fixed error.
type Source struct {
	Records []*document.Document
	Err     error
}

// Documents returns clones of the records, or Err.
func (s *Source) Documents(ctx context.Context) ([]*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]*document.Document, len(s.Records))
	for i, d := range s.Records {
		out[i] = d.Clone()
	}
	return out, nil
}
