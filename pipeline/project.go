/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package pipeline

import (
	"fmt"
	"strings"

	"github.com/suparena/docstore/document"
)

// fieldTree is the set of included paths of a $project stage. Paths sharing a
// prefix share a node so that fields of the same embedded records merge.
type fieldTree struct {
	keys     []string
	children map[string]*fieldTree
	whole    bool
}

func newFieldTree() *fieldTree {
	return &fieldTree{children: make(map[string]*fieldTree)}
}

func (t *fieldTree) add(path string) {
	n := t
	for _, part := range strings.Split(path, ".") {
		c, ok := n.children[part]
		if !ok {
			c = newFieldTree()
			n.children[part] = c
			n.keys = append(n.keys, part)
		}
		n = c
	}
	n.whole = true
}

// includeKey copies the included part of src's top-level field key into dst.
func (t *fieldTree) includeKey(dst, src *document.Document, key string) {
	c, ok := t.children[key]
	if !ok {
		return
	}
	v, ok := src.Get(key)
	if !ok {
		return
	}
	if c.whole {
		dst.Set(key, v.Clone())
		return
	}
	if pv, ok := c.project(v); ok {
		dst.Set(key, pv)
	}
}

// project keeps the paths below t. Arrays are walked element by element and
// keep their shape; scalars have no sub-fields and are dropped.
func (t *fieldTree) project(v document.Value) (document.Value, bool) {
	switch v.Kind() {
	case document.KindDocument:
		src := v.DocumentValue()
		dst := document.NewWithCapacity(len(t.keys))
		for _, k := range t.keys {
			t.includeKey(dst, src, k)
		}
		return document.Doc(dst), true
	case document.KindArray:
		elems := make([]document.Value, 0, len(v.ArrayValue()))
		for _, e := range v.ArrayValue() {
			if pe, ok := t.project(e); ok {
				elems = append(elems, pe)
			}
		}
		return document.Array(elems...), true
	}
	return document.Value{}, false
}

// excludePath removes path from d, descending into every element of the
// arrays it crosses. d is modified in place.
func excludePath(d *document.Document, parts []string) {
	if len(parts) == 1 {
		d.Delete(parts[0])
		return
	}
	if v, ok := d.Get(parts[0]); ok {
		excludeBelow(v, parts[1:])
	}
}

func excludeBelow(v document.Value, parts []string) {
	switch v.Kind() {
	case document.KindDocument:
		excludePath(v.DocumentValue(), parts)
	case document.KindArray:
		for _, e := range v.ArrayValue() {
			excludeBelow(e, parts)
		}
	}
}

func runProject(s *ProjectStage, in []*document.Document) ([]*document.Document, error) {
	out := make([]*document.Document, 0, len(in))
	if s.Exclude {
		for _, d := range in {
			nd := d.Clone()
			if s.ExcludeID {
				nd.Delete(document.IDField)
			}
			for _, f := range s.Fields {
				excludePath(nd, strings.Split(f.Path, "."))
			}
			out = append(out, nd)
		}
		return out, nil
	}

	included := newFieldTree()
	for _, f := range s.Fields {
		if f.Include {
			included.add(f.Path)
		}
	}
	for _, d := range in {
		nd := document.NewWithCapacity(len(s.Fields) + 1)
		if !s.ExcludeID {
			if id, ok := d.ID(); ok {
				nd.Set(document.IDField, id.Clone())
			}
		}
		emitted := make(map[string]bool, len(included.keys))
		for _, f := range s.Fields {
			if f.Include {
				top, _, _ := strings.Cut(f.Path, ".")
				if !emitted[top] {
					emitted[top] = true
					included.includeKey(nd, d, top)
				}
				continue
			}
			v, ok, err := f.Expr.Eval(d)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Path, err)
			}
			if ok {
				nd.SetPath(f.Path, v.Clone())
			}
		}
		out = append(out, nd)
	}
	return out, nil
}
