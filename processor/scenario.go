/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package processor

import (
	"fmt"
	"os"
	"time"

	"github.com/go-openapi/strfmt"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gopkg.in/yaml.v3"

	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/fixtures"
)

// Step operations
const (
	OpCreate     = "create"
	OpDrop       = "drop"
	OpInsertOne  = "insertOne"
	OpInsertMany = "insertMany"
	OpDeleteOne  = "deleteOne"
	OpDeleteMany = "deleteMany"
	OpUpdateOne  = "updateOne"
	OpUpdateMany = "updateMany"
	OpFind       = "find"
	OpCount      = "count"
	OpAggregate  = "aggregate"
)

var knownOps = map[string]bool{
	OpCreate: true, OpDrop: true, OpInsertOne: true, OpInsertMany: true,
	OpDeleteOne: true, OpDeleteMany: true, OpUpdateOne: true, OpUpdateMany: true,
	OpFind: true, OpCount: true, OpAggregate: true,
}

// Scenario is an ordered list of operations replayed against a database.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step is one operation of a scenario.
type Step struct {
	Name       string `yaml:"name"`
	Op         string `yaml:"op"`
	Collection string `yaml:"collection"`
	// Disabled steps are reported as skipped.
	Disabled bool `yaml:"disabled"`
	// Print writes the returned records to the processor output.
	Print bool `yaml:"print"`

	Document  *Fragment `yaml:"document"`
	Documents *Fragment `yaml:"documents"`
	Generate  *Generate `yaml:"generate"`
	Source    *Source   `yaml:"source"`

	Filter   *Fragment `yaml:"filter"`
	Update   *Fragment `yaml:"update"`
	Pipeline *Fragment `yaml:"pipeline"`

	Sort       *Fragment `yaml:"sort"`
	Projection *Fragment `yaml:"projection"`
	Skip       int       `yaml:"skip"`
	Limit      int       `yaml:"limit"`
}

// Generate produces records with a registered generator.
type Generate struct {
	Kind  string    `yaml:"kind"`
	Count int       `yaml:"count"`
	Set   *Fragment `yaml:"set"`
}

// Source loads records from a JSON file or a DynamoDB table.
type Source struct {
	File     string          `yaml:"file"`
	DynamoDB *DynamoDBSource `yaml:"dynamodb"`
	MaxItems int             `yaml:"maxItems"`
}

// DynamoDBSource names the table to scan. An empty table falls back to the
// processor default.
type DynamoDBSource struct {
	Table       string `yaml:"table"`
	IDAttribute string `yaml:"idAttribute"`
}

// Fragment is a YAML value decoded into a document value with mapping order
// kept. {$oid: hex} and {$date: rfc3339} become ObjectID and Date values.
type Fragment struct {
	document.Value
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *Fragment) UnmarshalYAML(n *yaml.Node) error {
	v, err := valueFromNode(n)
	if err != nil {
		return err
	}
	f.Value = v
	return nil
}

// arg returns the fragment as an operation argument; an absent or null
// fragment is nil.
func (f *Fragment) arg() any {
	if f == nil || f.IsNull() {
		return nil
	}
	return f.Value
}

// resolve is arg with every {$generate: kind} replaced by a fixture value.
// Each call draws new values.
func (f *Fragment) resolve() (any, error) {
	if f.arg() == nil {
		return nil, nil
	}
	return expandGenerated(f.Value)
}

func expandGenerated(v document.Value) (document.Value, error) {
	switch v.Kind() {
	case document.KindDocument:
		d := v.DocumentValue()
		if kind, ok := d.Get("$generate"); ok && d.Len() == 1 && kind.Kind() == document.KindString {
			return fixtures.Value(kind.StringValue())
		}
		out := document.NewWithCapacity(d.Len())
		var err error
		d.Range(func(k string, e document.Value) bool {
			var x document.Value
			if x, err = expandGenerated(e); err != nil {
				return false
			}
			out.Set(k, x)
			return true
		})
		if err != nil {
			return document.Value{}, err
		}
		return document.Doc(out), nil
	case document.KindArray:
		elems := make([]document.Value, len(v.ArrayValue()))
		for i, e := range v.ArrayValue() {
			x, err := expandGenerated(e)
			if err != nil {
				return document.Value{}, err
			}
			elems[i] = x
		}
		return document.Array(elems...), nil
	}
	return v, nil
}

// LoadScenario reads and parses a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("cannot parse scenario: %w", err)
	}
	for i := range sc.Steps {
		if err := sc.Steps[i].validate(); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, sc.Steps[i].Name, err)
		}
	}
	return &sc, nil
}

func (s *Step) validate() error {
	if !knownOps[s.Op] {
		return errors.NewValidationError("op", fmt.Sprintf("unknown operation %q", s.Op))
	}
	if s.Collection == "" {
		return errors.NewValidationError("collection", "collection is required")
	}

	switch s.Op {
	case OpInsertOne:
		if s.Document == nil {
			return errors.NewValidationError("document", "insertOne requires a document")
		}
	case OpInsertMany:
		n := 0
		if s.Documents != nil {
			if s.Documents.Kind() != document.KindArray {
				return errors.NewValidationError("documents", "documents must be a list")
			}
			n++
		}
		if s.Generate != nil {
			if s.Generate.Kind == "" || s.Generate.Count <= 0 {
				return errors.NewValidationError("generate", "generate requires a kind and a positive count")
			}
			n++
		}
		if s.Source != nil {
			if (s.Source.File == "") == (s.Source.DynamoDB == nil) {
				return errors.NewValidationError("source", "source requires exactly one of file or dynamodb")
			}
			n++
		}
		if n != 1 {
			return errors.NewValidationError("documents", "insertMany requires exactly one of documents, generate or source")
		}
	case OpUpdateOne, OpUpdateMany:
		if s.Update == nil {
			return errors.NewValidationError("update", s.Op+" requires an update")
		}
	case OpAggregate:
		if s.Pipeline == nil || s.Pipeline.Kind() != document.KindArray {
			return errors.NewValidationError("pipeline", "aggregate requires a pipeline list")
		}
	}
	return nil
}

func valueFromNode(n *yaml.Node) (document.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return document.Null(), nil
		}
		return valueFromNode(n.Content[0])
	case yaml.AliasNode:
		return valueFromNode(n.Alias)
	case yaml.SequenceNode:
		elems := make([]document.Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := valueFromNode(c)
			if err != nil {
				return document.Value{}, err
			}
			elems = append(elems, v)
		}
		return document.Array(elems...), nil
	case yaml.MappingNode:
		d := document.NewWithCapacity(len(n.Content) / 2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode {
				return document.Value{}, fmt.Errorf("line %d: mapping keys must be scalars", k.Line)
			}
			if d.Has(k.Value) {
				return document.Value{}, fmt.Errorf("line %d: duplicate key %q", k.Line, k.Value)
			}
			v, err := valueFromNode(n.Content[i+1])
			if err != nil {
				return document.Value{}, err
			}
			d.Set(k.Value, v)
		}
		return extended(d, n.Line)
	case yaml.ScalarNode:
		var x any
		if err := n.Decode(&x); err != nil {
			return document.Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		v, err := document.FromAny(x)
		if err != nil {
			return document.Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	}
	return document.Value{}, fmt.Errorf("line %d: unsupported yaml node", n.Line)
}

func extended(d *document.Document, line int) (document.Value, error) {
	if d.Len() != 1 {
		return document.Doc(d), nil
	}
	if v, ok := d.Get("$oid"); ok && v.Kind() == document.KindString {
		id, err := primitive.ObjectIDFromHex(v.StringValue())
		if err != nil {
			return document.Value{}, fmt.Errorf("line %d: invalid $oid: %w", line, err)
		}
		return document.ObjectID(id), nil
	}
	if v, ok := d.Get("$date"); ok && v.Kind() == document.KindString {
		dt, err := strfmt.ParseDateTime(v.StringValue())
		if err != nil {
			return document.Value{}, fmt.Errorf("line %d: invalid $date: %w", line, err)
		}
		return document.Date(time.Time(dt)), nil
	}
	return document.Doc(d), nil
}
