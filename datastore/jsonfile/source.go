/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package jsonfile provides a bulk record source reading a JSON array of
// objects or a stream of JSON objects (JSON lines).
//
// Field order of every object is kept, and MongoDB extended JSON such as
// {"$oid": "..."} and {"$date": "..."} is decoded into ObjectID and Date values.
package jsonfile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/valyala/fastjson"

	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/storagemodels"
)

var _ datastore.Source = (*Source)(nil)

// Source decodes records from a JSON file or an in-memory buffer.
type Source struct {
	name    string
	read    func() ([]byte, error)
	options storagemodels.StreamOptions
	logger  *log.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStreamOptions sets the item limit, error and progress handlers.
func WithStreamOptions(opts ...storagemodels.StreamOption) Option {
	return func(s *Source) {
		for _, opt := range opts {
			opt(&s.options)
		}
	}
}

// New creates a Source reading the file at path when Documents is called.
func New(path string, opts ...Option) *Source {
	return newSource(path, func() ([]byte, error) { return os.ReadFile(path) }, opts)
}

// NewFromBytes creates a Source over data; name is used in errors and logs.
func NewFromBytes(name string, data []byte, opts ...Option) *Source {
	return newSource(name, func() ([]byte, error) { return data, nil }, opts)
}

func newSource(name string, read func() ([]byte, error), opts []Option) *Source {
	s := &Source{
		name:    name,
		read:    read,
		options: storagemodels.DefaultStreamOptions(),
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Documents decodes every record. A top-level array yields one record per
// element; otherwise the input is read as a sequence of JSON objects.
func (s *Source) Documents(ctx context.Context) ([]*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.read()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.name, err)
	}

	progress := storagemodels.StreamProgress{StartTime: time.Now(), PagesRead: 1}
	var docs []*document.Document
	add := func(i int, jv *fastjson.Value) (bool, error) {
		d, err := s.toDocument(jv)
		if err != nil {
			err = fmt.Errorf("%s: record %d: %w", s.name, i, err)
			if s.options.ErrorHandler == nil || !s.options.ErrorHandler(err) {
				return false, err
			}
			progress.Errors = append(progress.Errors, err)
			return true, nil
		}
		docs = append(docs, d)
		progress.ItemsRead++
		return s.options.MaxItems <= 0 || len(docs) < s.options.MaxItems, nil
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var p fastjson.Parser
		root, err := p.ParseBytes(trimmed)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %s: %w", s.name, err)
		}
		items, _ := root.Array()
		for i, item := range items {
			if i%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			more, err := add(i, item)
			if err != nil {
				return nil, err
			}
			if !more {
				break
			}
		}
	} else {
		var sc fastjson.Scanner
		sc.InitBytes(trimmed)
		for i := 0; sc.Next(); i++ {
			if i%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			more, err := add(i, sc.Value())
			if err != nil {
				return nil, err
			}
			if !more {
				break
			}
		}
		if err := sc.Error(); err != nil {
			return nil, fmt.Errorf("cannot parse %s: %w", s.name, err)
		}
	}

	if s.options.ProgressHandler != nil {
		progress.CurrentRate = progress.Rate(time.Now())
		s.options.ProgressHandler(progress)
	}
	s.logger.Debug("json records decoded", "source", s.name, "count", len(docs), "skipped", len(progress.Errors))
	return docs, nil
}

func (s *Source) toDocument(jv *fastjson.Value) (*document.Document, error) {
	if jv.Type() != fastjson.TypeObject {
		return nil, fmt.Errorf("expected a json object, got %s", jv.Type())
	}
	v, err := document.FromJSONValue(jv)
	if err != nil {
		return nil, err
	}
	if v.Kind() != document.KindDocument {
		return nil, fmt.Errorf("expected a document, got %s", v.Kind())
	}
	return v.DocumentValue(), nil
}
