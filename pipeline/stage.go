/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package pipeline

import (
	"fmt"
	"strings"

	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/query"
)

// Stage is one step of a Pipeline. The set of stages is closed; Run switches
// over every implementation.
type Stage interface {
	// Name returns the stage operator, e.g. "$match".
	Name() string
	stage()
}

// Pipeline is an ordered list of stages.
type Pipeline []Stage

// MatchStage keeps the records satisfying Filter.
type MatchStage struct {
	Filter query.Node
}

// ProjectField is one output field of a $project stage.
type ProjectField struct {
	Path    string
	Include bool
	Expr    Expr
}

// ProjectStage reshapes each record. In inclusion mode only Fields (and _id
// unless ExcludeID) are emitted; in exclusion mode Fields are removed.
type ProjectStage struct {
	Fields    []ProjectField
	Exclude   bool
	ExcludeID bool
}

// ComputedField is a field assigned from an expression.
type ComputedField struct {
	Path string
	Expr Expr
}

// AddFieldsStage merges computed fields into each record.
type AddFieldsStage struct {
	Fields []ComputedField
}

// GroupStage groups records by the ID expression.
type GroupStage struct {
	ID           Expr
	Accumulators []Accumulator
}

// BucketStage partitions records into [Boundaries[i], Boundaries[i+1]) ranges
// of the GroupBy expression.
type BucketStage struct {
	GroupBy    Expr
	Boundaries []document.Value
	Default    document.Value
	HasDefault bool
	Output     []Accumulator
	// CountDeclared is set when Output carries its own count field.
	CountDeclared bool
}

// Facet is a named sub-pipeline of a $facet stage.
type Facet struct {
	Name     string
	Pipeline Pipeline
}

// FacetStage runs every facet over the same input.
type FacetStage struct {
	Facets []Facet
}

// SortKey orders records by one field.
type SortKey struct {
	Path       string
	Descending bool
}

// SortStage orders records by Keys, left to right.
type SortStage struct {
	Keys []SortKey
}

// LimitStage keeps the first N records.
type LimitStage struct{ N int }

// SkipStage drops the first N records.
type SkipStage struct{ N int }

// CountStage emits a single record holding the number of input records.
type CountStage struct{ Field string }

// UnwindStage emits one record per element of the array at Path.
type UnwindStage struct {
	Path                       string
	IncludeArrayIndex          string
	PreserveNullAndEmptyArrays bool
}

func (*MatchStage) Name() string     { return "$match" }
func (*ProjectStage) Name() string   { return "$project" }
func (*AddFieldsStage) Name() string { return "$addFields" }
func (*GroupStage) Name() string     { return "$group" }
func (*BucketStage) Name() string    { return "$bucket" }
func (*FacetStage) Name() string     { return "$facet" }
func (*SortStage) Name() string      { return "$sort" }
func (*LimitStage) Name() string     { return "$limit" }
func (*SkipStage) Name() string      { return "$skip" }
func (*CountStage) Name() string     { return "$count" }
func (*UnwindStage) Name() string    { return "$unwind" }

func (*MatchStage) stage()     {}
func (*ProjectStage) stage()   {}
func (*AddFieldsStage) stage() {}
func (*GroupStage) stage()     {}
func (*BucketStage) stage()    {}
func (*FacetStage) stage()     {}
func (*SortStage) stage()      {}
func (*LimitStage) stage()     {}
func (*SkipStage) stage()      {}
func (*CountStage) stage()     {}
func (*UnwindStage) stage()    {}

// Parse compiles a pipeline given as a list of single-key stage documents:
//
//	[]bson.D{
//	    {{Key: "$match", Value: bson.M{"type": "a"}}},
//	    {{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
//	}
//
// Malformed stages yield an InvalidPipelineError naming the stage index.
func Parse(p any) (Pipeline, error) {
	v, err := document.FromAny(p)
	if err != nil {
		return nil, errors.NewInvalidPipelineError(-1, "", "%v", err)
	}
	return ParseValue(v)
}

// MustParse is like Parse but panics on error.
func MustParse(p any) Pipeline {
	out, err := Parse(p)
	if err != nil {
		panic(err)
	}
	return out
}

// ParseValue compiles an already decoded pipeline array.
func ParseValue(v document.Value) (Pipeline, error) {
	return parsePipeline(v, false)
}

func parsePipeline(v document.Value, inFacet bool) (Pipeline, error) {
	if v.Kind() != document.KindArray {
		return nil, errors.NewInvalidPipelineError(-1, "", "pipeline must be an array of stages, got %s", v.Kind())
	}
	out := make(Pipeline, 0, len(v.ArrayValue()))
	for i, raw := range v.ArrayValue() {
		if raw.Kind() != document.KindDocument || raw.DocumentValue().Len() != 1 {
			return nil, errors.NewInvalidPipelineError(i, "", "stage must be a document with exactly one field")
		}
		op := raw.DocumentValue().Keys()[0]
		arg, _ := raw.DocumentValue().Get(op)
		if inFacet && op == "$facet" {
			return nil, errors.NewInvalidPipelineError(i, op, "$facet is not allowed inside $facet")
		}
		st, err := parseStage(op, arg)
		if err != nil {
			if errors.IsInvalidPipeline(err) {
				return nil, err
			}
			return nil, errors.NewInvalidPipelineError(i, op, "%v", err)
		}
		out = append(out, st)
	}
	return out, nil
}

func parseStage(op string, arg document.Value) (Stage, error) {
	switch op {
	case "$match":
		return parseMatch(arg)
	case "$project":
		return parseProject(arg)
	case "$addFields", "$set":
		return parseAddFields(arg)
	case "$group":
		return parseGroup(arg)
	case "$bucket":
		return parseBucket(arg)
	case "$facet":
		return parseFacet(arg)
	case "$sort":
		return parseSort(arg)
	case "$limit":
		n, ok := integral(arg)
		if !ok || n <= 0 {
			return nil, fmt.Errorf("limit must be a positive integer")
		}
		return &LimitStage{N: n}, nil
	case "$skip":
		n, ok := integral(arg)
		if !ok || n < 0 {
			return nil, fmt.Errorf("skip must be a non-negative integer")
		}
		return &SkipStage{N: n}, nil
	case "$count":
		if arg.Kind() != document.KindString || !validFieldName(arg.StringValue()) {
			return nil, fmt.Errorf("count field must be a non-empty name without '$' or '.'")
		}
		return &CountStage{Field: arg.StringValue()}, nil
	case "$unwind":
		return parseUnwind(arg)
	}
	return nil, fmt.Errorf("unknown stage %s", op)
}

func parseMatch(arg document.Value) (Stage, error) {
	if arg.Kind() != document.KindDocument {
		return nil, fmt.Errorf("argument must be a document")
	}
	node, err := query.ParseDocument(arg.DocumentValue())
	if err != nil {
		return nil, err
	}
	return &MatchStage{Filter: node}, nil
}

func parseProject(arg document.Value) (Stage, error) {
	if arg.Kind() != document.KindDocument || arg.DocumentValue().Len() == 0 {
		return nil, fmt.Errorf("specification must be a non-empty document")
	}
	st := &ProjectStage{}
	var includes, excludes int
	var parseErr error

	arg.DocumentValue().Range(func(path string, v document.Value) bool {
		if path == "" || strings.HasPrefix(path, "$") {
			parseErr = fmt.Errorf("invalid field path %q", path)
			return false
		}
		flag, isFlag := projectionFlag(v)
		if path == document.IDField {
			switch {
			case isFlag && !flag:
				st.ExcludeID = true
				return true
			case isFlag:
				return true
			}
		}
		switch {
		case isFlag && flag:
			includes++
			st.Fields = append(st.Fields, ProjectField{Path: path, Include: true})
		case isFlag:
			excludes++
			st.Fields = append(st.Fields, ProjectField{Path: path})
		default:
			e, err := ParseExpression(v)
			if err != nil {
				parseErr = fmt.Errorf("field %s: %w", path, err)
				return false
			}
			includes++
			st.Fields = append(st.Fields, ProjectField{Path: path, Expr: e})
		}
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if includes > 0 && excludes > 0 {
		return nil, fmt.Errorf("cannot mix inclusion and exclusion")
	}
	st.Exclude = includes == 0
	return st, nil
}

// projectionFlag interprets 1/0 and true/false projection values.
func projectionFlag(v document.Value) (include bool, ok bool) {
	switch v.Kind() {
	case document.KindNumber, document.KindBool:
		return v.Truthy(), true
	}
	return false, false
}

func parseAddFields(arg document.Value) (Stage, error) {
	if arg.Kind() != document.KindDocument || arg.DocumentValue().Len() == 0 {
		return nil, fmt.Errorf("specification must be a non-empty document")
	}
	st := &AddFieldsStage{}
	var parseErr error
	arg.DocumentValue().Range(func(path string, v document.Value) bool {
		if path == "" || strings.HasPrefix(path, "$") {
			parseErr = fmt.Errorf("invalid field path %q", path)
			return false
		}
		e, err := ParseExpression(v)
		if err != nil {
			parseErr = fmt.Errorf("field %s: %w", path, err)
			return false
		}
		st.Fields = append(st.Fields, ComputedField{Path: path, Expr: e})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return st, nil
}

func parseGroup(arg document.Value) (Stage, error) {
	if arg.Kind() != document.KindDocument {
		return nil, fmt.Errorf("specification must be a document")
	}
	spec := arg.DocumentValue()
	idv, ok := spec.Get(document.IDField)
	if !ok {
		return nil, fmt.Errorf("a group specification must include an _id")
	}
	id, err := ParseExpression(idv)
	if err != nil {
		return nil, fmt.Errorf("_id: %w", err)
	}
	accs, err := parseAccumulators(spec, document.IDField)
	if err != nil {
		return nil, err
	}
	return &GroupStage{ID: id, Accumulators: accs}, nil
}

func parseBucket(arg document.Value) (Stage, error) {
	if arg.Kind() != document.KindDocument {
		return nil, fmt.Errorf("specification must be a document")
	}
	spec := arg.DocumentValue()
	st := &BucketStage{}

	var unknown string
	spec.Range(func(k string, _ document.Value) bool {
		switch k {
		case "groupBy", "boundaries", "default", "output":
			return true
		}
		unknown = k
		return false
	})
	if unknown != "" {
		return nil, fmt.Errorf("unrecognized option %s", unknown)
	}

	gb, ok := spec.Get("groupBy")
	if !ok {
		return nil, fmt.Errorf("groupBy is required")
	}
	e, err := ParseExpression(gb)
	if err != nil {
		return nil, fmt.Errorf("groupBy: %w", err)
	}
	st.GroupBy = e

	bv, ok := spec.Get("boundaries")
	if !ok || bv.Kind() != document.KindArray || len(bv.ArrayValue()) < 2 {
		return nil, fmt.Errorf("boundaries must be an array of at least 2 values")
	}
	st.Boundaries = bv.ArrayValue()
	for i := 1; i < len(st.Boundaries); i++ {
		prev, cur := st.Boundaries[i-1], st.Boundaries[i]
		if !document.Comparable(prev, cur) {
			return nil, fmt.Errorf("boundaries must all be of the same type, found %s and %s", prev.Kind(), cur.Kind())
		}
		if document.Compare(prev, cur) >= 0 {
			return nil, fmt.Errorf("boundaries must be sorted in strictly ascending order")
		}
	}

	if dv, ok := spec.Get("default"); ok {
		if inRange(st.Boundaries, dv) {
			return nil, fmt.Errorf("default must be outside the range of the boundaries")
		}
		st.Default, st.HasDefault = dv, true
	}

	if ov, ok := spec.Get("output"); ok {
		if ov.Kind() != document.KindDocument {
			return nil, fmt.Errorf("output must be a document")
		}
		accs, err := parseAccumulators(ov.DocumentValue(), "")
		if err != nil {
			return nil, err
		}
		st.Output = accs
		st.CountDeclared = ov.DocumentValue().Has("count")
	}
	return st, nil
}

// bucketIndex returns the index of the [b[i], b[i+1]) interval holding v.
func bucketIndex(bounds []document.Value, v document.Value) (int, bool) {
	if !document.Comparable(v, bounds[0]) {
		return 0, false
	}
	for i := 0; i < len(bounds)-1; i++ {
		if document.Compare(v, bounds[i]) >= 0 && document.Compare(v, bounds[i+1]) < 0 {
			return i, true
		}
	}
	return 0, false
}

func inRange(bounds []document.Value, v document.Value) bool {
	_, ok := bucketIndex(bounds, v)
	return ok
}

func parseFacet(arg document.Value) (Stage, error) {
	if arg.Kind() != document.KindDocument || arg.DocumentValue().Len() == 0 {
		return nil, fmt.Errorf("specification must be a non-empty document")
	}
	st := &FacetStage{}
	var parseErr error
	arg.DocumentValue().Range(func(name string, v document.Value) bool {
		if !validFieldName(name) {
			parseErr = fmt.Errorf("invalid facet name %q", name)
			return false
		}
		sub, err := parsePipeline(v, true)
		if err != nil {
			parseErr = fmt.Errorf("facet %s: %w", name, err)
			return false
		}
		st.Facets = append(st.Facets, Facet{Name: name, Pipeline: sub})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return st, nil
}

func parseSort(arg document.Value) (Stage, error) {
	if arg.Kind() != document.KindDocument || arg.DocumentValue().Len() == 0 {
		return nil, fmt.Errorf("sort specification must be a non-empty document")
	}
	st := &SortStage{}
	var parseErr error
	arg.DocumentValue().Range(func(path string, v document.Value) bool {
		dir, ok := integral(v)
		if !ok || (dir != 1 && dir != -1) {
			parseErr = fmt.Errorf("sort direction for %s must be 1 or -1", path)
			return false
		}
		st.Keys = append(st.Keys, SortKey{Path: path, Descending: dir < 0})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return st, nil
}

func parseUnwind(arg document.Value) (Stage, error) {
	st := &UnwindStage{}
	var path document.Value
	switch arg.Kind() {
	case document.KindString:
		path = arg
	case document.KindDocument:
		spec := arg.DocumentValue()
		path, _ = spec.Get("path")
		if v, ok := spec.Get("preserveNullAndEmptyArrays"); ok {
			if v.Kind() != document.KindBool {
				return nil, fmt.Errorf("preserveNullAndEmptyArrays must be a boolean")
			}
			st.PreserveNullAndEmptyArrays = v.BoolValue()
		}
		if v, ok := spec.Get("includeArrayIndex"); ok {
			if v.Kind() != document.KindString || !validFieldName(v.StringValue()) {
				return nil, fmt.Errorf("includeArrayIndex must be a field name")
			}
			st.IncludeArrayIndex = v.StringValue()
		}
	default:
		return nil, fmt.Errorf("argument must be a field path or a document")
	}
	if path.Kind() != document.KindString || len(path.StringValue()) < 2 || !strings.HasPrefix(path.StringValue(), "$") {
		return nil, fmt.Errorf("path must be a field path prefixed with '$'")
	}
	st.Path = path.StringValue()[1:]
	return st, nil
}

func validFieldName(s string) bool {
	return s != "" && !strings.HasPrefix(s, "$") && !strings.Contains(s, ".")
}
