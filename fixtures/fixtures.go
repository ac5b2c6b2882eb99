/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package fixtures generates synthetic user, article and student records and
// registers their generators with the registry package.
package fixtures

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/valyala/fastrand"

	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/registry"
)

// Record kinds registered by this package.
const (
	KindUser    = "user"
	KindArticle = "article"
	KindStudent = "student"
)

var (
	firstNames = []string{"Aimee", "Aurelia", "Corliss", "Demarcus", "Dodie", "Efrain", "Gisela", "Jessika", "Kam", "Leonida", "Marcus", "Nobuko", "Rae", "Salena", "Tandra", "Wilburn"}
	lastNames  = []string{"Zank", "Menendez", "Zuk", "Rost", "Staller", "Claw", "Levan", "Dagenais", "Hirst", "Lingle", "Blohm", "Meraz", "Kohli", "Olmos", "Meadows", "Lanz"}
	words      = []string{"alpha", "bridge", "cactus", "delta", "ember", "forest", "granite", "harbor", "island", "jungle", "kernel", "lantern", "meadow", "nebula", "orbit", "prism", "quartz", "river", "summit", "tundra"}
)

// ScoreTypes are the score kinds of a generated student, in order.
var ScoreTypes = []string{"exam", "quiz", "homework"}

func init() {
	registry.RegisterGenerator(KindUser, User)
	registry.RegisterGenerator(KindArticle, Article)
	registry.RegisterGenerator(KindStudent, Student)
}

func pick(list []string) string {
	return list[fastrand.Uint32n(uint32(len(list)))]
}

func now() document.Value {
	return document.Date(time.Now().UTC())
}

// User generates {firstName, lastName, department, createdAt}; department is null.
func User(int) *document.Document {
	return document.NewWithCapacity(4).
		Set("firstName", document.String(pick(firstNames))).
		Set("lastName", document.String(pick(lastNames))).
		Set("department", document.Null()).
		Set("createdAt", now())
}

// Article generates {name, description, type, tags, createdAt}; type is null
// and tags is empty.
func Article(int) *document.Document {
	desc := make([]string, 6)
	for i := range desc {
		desc[i] = pick(words)
	}
	return document.NewWithCapacity(5).
		Set("name", document.String(pick(words))).
		Set("description", document.String(strings.Join(desc, " "))).
		Set("type", document.Null()).
		Set("tags", document.Array()).
		Set("createdAt", now())
}

// Student generates {name, scores} with one score per ScoreTypes entry; the
// store assigns the _id.
func Student(int) *document.Document {
	scores := make([]document.Value, 0, len(ScoreTypes))
	for _, typ := range ScoreTypes {
		score := math.Round(float64(fastrand.Uint32n(10000))) / 100
		scores = append(scores, document.Doc(document.NewWithCapacity(2).
			Set("type", document.String(typ)).
			Set("score", document.Number(score))))
	}
	return document.NewWithCapacity(2).
		Set("name", document.String(pick(firstNames)+" "+pick(lastNames))).
		Set("scores", document.Array(scores...))
}

// Value kinds
const (
	ValueFirstName = "firstName"
	ValueLastName  = "lastName"
	ValueWord      = "word"
)

// Value returns a random value of kind, one of the Value* kinds.
func Value(kind string) (document.Value, error) {
	switch kind {
	case ValueFirstName:
		return document.String(pick(firstNames)), nil
	case ValueLastName:
		return document.String(pick(lastNames)), nil
	case ValueWord:
		return document.String(pick(words)), nil
	}
	return document.Value{}, fmt.Errorf("fixtures: unknown value kind %q", kind)
}

// Generate builds count records of kind. Every field of set replaces the
// generated field at the same path, so set{"department": "a"} produces users of
// department "a".
func Generate(kind string, count int, set *document.Document) ([]*document.Document, error) {
	gen, err := registry.GetGenerator(kind)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("fixtures: negative count %d", count)
	}

	out := make([]*document.Document, 0, count)
	for i := 0; i < count; i++ {
		d := gen(i)
		if set != nil {
			var failed string
			set.Range(func(path string, v document.Value) bool {
				if !d.SetPath(path, v.Clone()) {
					failed = path
					return false
				}
				return true
			})
			if failed != "" {
				return nil, fmt.Errorf("fixtures: cannot set %q on a %s record", failed, kind)
			}
		}
		out = append(out, d)
	}
	return out, nil
}
