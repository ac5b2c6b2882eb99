/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"golang.org/x/sync/errgroup"

	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/query"
)

// Run executes p over docs. Stages run strictly in order; each consumes the
// complete output of the previous one. docs are treated as read-only, so the
// same snapshot may be shared between concurrent runs.
func Run(ctx context.Context, docs []*document.Document, p Pipeline) ([]*document.Document, error) {
	out := docs
	for i, st := range p {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		startTime := time.Now()
		next, err := runStage(ctx, st, out)
		metrics.GetOrCreateSummary(fmt.Sprintf(`docstore_pipeline_stage_duration_seconds{stage=%q}`, st.Name())).UpdateDuration(startTime)
		if err != nil {
			if errors.IsInvalidPipeline(err) || ctx.Err() != nil {
				return nil, err
			}
			return nil, errors.NewInvalidPipelineError(i, st.Name(), "%v", err)
		}
		out = next
	}
	return out, nil
}

func runStage(ctx context.Context, st Stage, in []*document.Document) ([]*document.Document, error) {
	switch s := st.(type) {
	case *MatchStage:
		return runMatch(s, in), nil
	case *ProjectStage:
		return runProject(s, in)
	case *AddFieldsStage:
		return runAddFields(s, in)
	case *GroupStage:
		return runGroup(s, in)
	case *BucketStage:
		return runBucket(s, in)
	case *FacetStage:
		return runFacet(ctx, s, in)
	case *SortStage:
		return runSort(s, in), nil
	case *LimitStage:
		if len(in) > s.N {
			return in[:s.N:s.N], nil
		}
		return in, nil
	case *SkipStage:
		if len(in) <= s.N {
			return []*document.Document{}, nil
		}
		return in[s.N:], nil
	case *CountStage:
		if len(in) == 0 {
			return []*document.Document{}, nil
		}
		return []*document.Document{document.New().Set(s.Field, document.Int(len(in)))}, nil
	case *UnwindStage:
		return runUnwind(s, in), nil
	}
	return nil, fmt.Errorf("unsupported stage %T", st)
}

func runMatch(s *MatchStage, in []*document.Document) []*document.Document {
	out := make([]*document.Document, 0, len(in))
	for _, d := range in {
		if query.Matches(d, s.Filter) {
			out = append(out, d)
		}
	}
	return out
}

func runAddFields(s *AddFieldsStage, in []*document.Document) ([]*document.Document, error) {
	out := make([]*document.Document, 0, len(in))
	for _, d := range in {
		nd := d.Clone()
		for _, f := range s.Fields {
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

func runGroup(s *GroupStage, in []*document.Document) ([]*document.Document, error) {
	index := make(map[string]*group)
	var order []*group

	for _, d := range in {
		key, ok, err := s.ID.Eval(d)
		if err != nil {
			return nil, fmt.Errorf("_id: %w", err)
		}
		if !ok {
			key = document.Null()
		}
		k := document.Key(key)
		g, found := index[k]
		if !found {
			g = newGroup(key.Clone(), s.Accumulators)
			index[k] = g
			order = append(order, g)
		}
		if err := g.add(d, s.Accumulators); err != nil {
			return nil, err
		}
	}

	out := make([]*document.Document, 0, len(order))
	for _, g := range order {
		nd := document.New().Set(document.IDField, g.key)
		g.emit(nd, s.Accumulators)
		out = append(out, nd)
	}
	return out, nil
}

func runBucket(s *BucketStage, in []*document.Document) ([]*document.Document, error) {
	counts := make([]int, len(s.Boundaries)) // last slot is the default bucket
	groups := make([]*group, len(s.Boundaries))
	def := len(s.Boundaries) - 1

	for _, d := range in {
		v, ok, err := s.GroupBy.Eval(d)
		if err != nil {
			return nil, fmt.Errorf("groupBy: %w", err)
		}
		if !ok {
			v = document.Null()
		}
		idx, found := bucketIndex(s.Boundaries, v)
		if !found {
			if !s.HasDefault {
				return nil, fmt.Errorf("value %s does not fall into any bucket and no default is specified", v)
			}
			idx = def
		}
		if groups[idx] == nil {
			key := s.Default
			if idx != def {
				key = s.Boundaries[idx]
			}
			groups[idx] = newGroup(key, s.Output)
		}
		counts[idx]++
		if err := groups[idx].add(d, s.Output); err != nil {
			return nil, err
		}
	}

	out := make([]*document.Document, 0, len(groups))
	for i, g := range groups {
		if g == nil {
			continue
		}
		nd := document.New().Set(document.IDField, g.key.Clone())
		if !s.CountDeclared {
			nd.Set("count", document.Int(counts[i]))
		}
		g.emit(nd, s.Output)
		out = append(out, nd)
	}
	return out, nil
}

func runFacet(ctx context.Context, s *FacetStage, in []*document.Document) ([]*document.Document, error) {
	results := make([][]*document.Document, len(s.Facets))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, f := range s.Facets {
		i, f := i, f
		eg.Go(func() error {
			res, err := Run(egCtx, in, f.Pipeline)
			if err != nil {
				return fmt.Errorf("facet %s: %w", f.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	nd := document.NewWithCapacity(len(s.Facets))
	for i, f := range s.Facets {
		vals := make([]document.Value, len(results[i]))
		for j, r := range results[i] {
			// a facet that passes records through must not alias the input
			vals[j] = document.Doc(r.Clone())
		}
		nd.Set(f.Name, document.Array(vals...))
	}
	return []*document.Document{nd}, nil
}

func runSort(s *SortStage, in []*document.Document) []*document.Document {
	out := make([]*document.Document, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		for _, k := range s.Keys {
			a, _ := out[i].Lookup(k.Path)
			b, _ := out[j].Lookup(k.Path)
			c := document.Compare(sortValue(a, k.Descending), sortValue(b, k.Descending))
			if c == 0 {
				continue
			}
			if k.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return out
}

// sortValue stands an array in for its smallest element in ascending order
// and its largest in descending order. An empty array sorts as null.
func sortValue(v document.Value, descending bool) document.Value {
	if v.Kind() != document.KindArray {
		return v
	}
	elems := v.ArrayValue()
	if len(elems) == 0 {
		return document.Null()
	}
	best := elems[0]
	for _, e := range elems[1:] {
		c := document.Compare(e, best)
		if (descending && c > 0) || (!descending && c < 0) {
			best = e
		}
	}
	return best
}

func runUnwind(s *UnwindStage, in []*document.Document) []*document.Document {
	out := make([]*document.Document, 0, len(in))
	for _, d := range in {
		v, ok := d.Lookup(s.Path)
		switch {
		case ok && v.Kind() == document.KindArray && len(v.ArrayValue()) > 0:
			for i, elem := range v.ArrayValue() {
				nd := d.Clone()
				nd.SetPath(s.Path, elem.Clone())
				if s.IncludeArrayIndex != "" {
					nd.Set(s.IncludeArrayIndex, document.Int(i))
				}
				out = append(out, nd)
			}
		case ok && !v.IsNull() && v.Kind() != document.KindArray:
			nd := d
			if s.IncludeArrayIndex != "" {
				nd = d.Clone()
				nd.Set(s.IncludeArrayIndex, document.Null())
			}
			out = append(out, nd)
		case s.PreserveNullAndEmptyArrays:
			nd := d
			if s.IncludeArrayIndex != "" {
				nd = d.Clone()
				nd.Set(s.IncludeArrayIndex, document.Null())
			}
			out = append(out, nd)
		}
	}
	return out
}
