/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package processor

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/VictoriaMetrics/metrics"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/charmbracelet/log"

	"github.com/suparena/docstore"
	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/datastore/ddb"
	"github.com/suparena/docstore/datastore/jsonfile"
	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/fixtures"
	"github.com/suparena/docstore/storagemodels"
)

// ScanClientFunc lazily provides the DynamoDB client of dynamodb sources.
type ScanClientFunc func(ctx context.Context) (sdk.ScanAPIClient, error)

// StepResult is the outcome of one scenario step.
type StepResult struct {
	Index      int
	Name       string
	Op         string
	Collection string
	Skipped    bool
	Err        error
	Duration   time.Duration

	InsertedCount int
	DeletedCount  int
	MatchedCount  int
	ModifiedCount int
	// Count is the number of records returned by find, count and aggregate.
	Count     int
	Documents []*document.Document
	Facets    map[string][]*document.Document
}

// Summary renders the result as one human readable line.
func (r StepResult) Summary() string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Err != nil:
		return "failed: " + r.Err.Error()
	}
	switch r.Op {
	case OpInsertOne, OpInsertMany:
		return fmt.Sprintf("%d records were inserted", r.InsertedCount)
	case OpDeleteOne, OpDeleteMany:
		return fmt.Sprintf("deleted %d records", r.DeletedCount)
	case OpUpdateOne, OpUpdateMany:
		return fmt.Sprintf("matched %d, updated %d records", r.MatchedCount, r.ModifiedCount)
	case OpFind, OpCount, OpAggregate:
		return fmt.Sprintf("%d records", r.Count)
	case OpCreate:
		return "collection created"
	case OpDrop:
		return "collection dropped"
	}
	return "done"
}

// Report collects the results of a scenario run in step order.
type Report struct {
	Scenario string
	Steps    []StepResult
}

// Failed returns the results of the steps that failed.
func (r *Report) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Processor replays scenarios against a database.
type Processor struct {
	db           *docstore.Database
	logger       *log.Logger
	out          io.Writer
	files        fs.FS
	aliases      map[string]string
	scanClient   ScanClientFunc
	defaultTable string
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithOutput sets where step summaries and printed records are written.
func WithOutput(w io.Writer) Option {
	return func(p *Processor) {
		p.out = w
	}
}

// WithFiles resolves source files against fsys before the local disk.
func WithFiles(fsys fs.FS) Option {
	return func(p *Processor) {
		p.files = fsys
	}
}

// WithFileOverride reads the source file name from path on disk instead.
func WithFileOverride(name, path string) Option {
	return func(p *Processor) {
		if path != "" {
			p.aliases[name] = path
		}
	}
}

// WithScanClient provides the client used by dynamodb sources, and the table
// scanned when a step names none.
func WithScanClient(fn ScanClientFunc, defaultTable string) Option {
	return func(p *Processor) {
		p.scanClient = fn
		p.defaultTable = defaultTable
	}
}

// New creates a Processor over db.
func New(db *docstore.Database, opts ...Option) *Processor {
	p := &Processor{
		db:      db,
		logger:  log.Default(),
		out:     io.Discard,
		aliases: make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes every step in order. A failing step is logged and recorded in
// its StepResult and the run continues; only context cancellation stops it.
func (p *Processor) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	report := &Report{Scenario: sc.Name, Steps: make([]StepResult, 0, len(sc.Steps))}
	p.logger.Info("scenario started", "scenario", sc.Name, "steps", len(sc.Steps))

	for i := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		st := &sc.Steps[i]
		res := StepResult{Index: i + 1, Name: st.Name, Op: st.Op, Collection: st.Collection}

		if st.Disabled {
			res.Skipped = true
		} else {
			start := time.Now()
			res.Err = p.runStep(ctx, st, &res)
			res.Duration = time.Since(start)
		}
		report.Steps = append(report.Steps, res)
		p.record(st, res)
	}

	p.logger.Info("scenario finished", "scenario", sc.Name, "steps", len(report.Steps), "failed", len(report.Failed()))
	return report, nil
}

func (p *Processor) record(st *Step, res StepResult) {
	status := "ok"
	switch {
	case res.Skipped:
		status = "skipped"
	case res.Err != nil:
		status = "failed"
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`docstore_scenario_steps_total{op=%q,status=%q}`, st.Op, status)).Inc()

	if res.Err != nil {
		p.logger.Error("step failed", "step", res.Index, "name", res.Name, "op", res.Op, "collection", res.Collection, "err", res.Err)
	} else {
		p.logger.Debug("step finished", "step", res.Index, "name", res.Name, "op", res.Op, "status", status, "duration", res.Duration)
	}

	fmt.Fprintf(p.out, "[%d] %s: %s\n", res.Index, stepTitle(st), res.Summary())
	if st.Print && res.Err == nil && !res.Skipped {
		p.print(res)
	}
}

func (p *Processor) print(res StepResult) {
	if res.Facets != nil && len(res.Documents) == 1 {
		res.Documents[0].Range(func(name string, _ document.Value) bool {
			fmt.Fprintf(p.out, "  %s:\n", name)
			for _, d := range res.Facets[name] {
				fmt.Fprintf(p.out, "    %s\n", document.Doc(d))
			}
			return true
		})
		return
	}
	for _, d := range res.Documents {
		fmt.Fprintf(p.out, "  %s\n", document.Doc(d))
	}
}

func stepTitle(st *Step) string {
	if st.Name != "" {
		return st.Name
	}
	return st.Op + " " + st.Collection
}

func (p *Processor) runStep(ctx context.Context, st *Step, res *StepResult) error {
	switch st.Op {
	case OpCreate:
		_, err := p.db.CreateCollection(st.Collection)
		return err
	case OpDrop:
		return p.db.DropCollection(st.Collection)
	case OpInsertOne:
		record, err := st.Document.resolve()
		if err != nil {
			return err
		}
		if _, err := p.db.InsertOne(ctx, st.Collection, record); err != nil {
			return err
		}
		res.InsertedCount = 1
		return nil
	case OpInsertMany:
		records, err := p.records(ctx, st)
		if err != nil {
			return err
		}
		out, err := p.db.InsertMany(ctx, st.Collection, records)
		if err != nil {
			return err
		}
		res.InsertedCount = out.InsertedCount
		return nil
	case OpDeleteOne, OpDeleteMany:
		del := p.db.DeleteMany
		if st.Op == OpDeleteOne {
			del = p.db.DeleteOne
		}
		filter, err := st.Filter.resolve()
		if err != nil {
			return err
		}
		out, err := del(ctx, st.Collection, filter)
		if err != nil {
			return err
		}
		res.DeletedCount = out.DeletedCount
		return nil
	case OpUpdateOne, OpUpdateMany:
		upd := p.db.UpdateMany
		if st.Op == OpUpdateOne {
			upd = p.db.UpdateOne
		}
		filter, err := st.Filter.resolve()
		if err != nil {
			return err
		}
		update, err := st.Update.resolve()
		if err != nil {
			return err
		}
		out, err := upd(ctx, st.Collection, filter, update)
		if err != nil {
			return err
		}
		res.MatchedCount, res.ModifiedCount = out.MatchedCount, out.ModifiedCount
		return nil
	case OpFind:
		filter, err := st.Filter.resolve()
		if err != nil {
			return err
		}
		docs, err := p.db.Find(ctx, st.Collection, filter, findOptions(st)...)
		if err != nil {
			return err
		}
		res.Documents, res.Count = docs, len(docs)
		return nil
	case OpCount:
		filter, err := st.Filter.resolve()
		if err != nil {
			return err
		}
		n, err := p.db.CountDocuments(ctx, st.Collection, filter)
		if err != nil {
			return err
		}
		res.Count = n
		return nil
	case OpAggregate:
		out, err := p.db.Aggregate(ctx, st.Collection, st.Pipeline.arg())
		if err != nil {
			return err
		}
		res.Documents, res.Facets, res.Count = out.Documents, out.Facets, len(out.Documents)
		return nil
	}
	return fmt.Errorf("unknown operation %q", st.Op)
}

func findOptions(st *Step) []storagemodels.FindOption {
	var opts []storagemodels.FindOption
	if sort := st.Sort.arg(); sort != nil {
		opts = append(opts, storagemodels.WithSort(sort))
	}
	if proj := st.Projection.arg(); proj != nil {
		opts = append(opts, storagemodels.WithProjection(proj))
	}
	if st.Skip > 0 {
		opts = append(opts, storagemodels.WithSkip(st.Skip))
	}
	if st.Limit > 0 {
		opts = append(opts, storagemodels.WithLimit(st.Limit))
	}
	return opts
}

// records resolves the records of an insertMany step.
func (p *Processor) records(ctx context.Context, st *Step) ([]any, error) {
	var docs []*document.Document
	switch {
	case st.Documents != nil:
		elems := st.Documents.ArrayValue()
		out := make([]any, len(elems))
		for i, e := range elems {
			v, err := expandGenerated(e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case st.Generate != nil:
		var set *document.Document
		if st.Generate.Set != nil && st.Generate.Set.Kind() == document.KindDocument {
			set = st.Generate.Set.DocumentValue()
		}
		generated, err := fixtures.Generate(st.Generate.Kind, st.Generate.Count, set)
		if err != nil {
			return nil, err
		}
		docs = generated
	case st.Source != nil:
		src, err := p.source(ctx, st.Source)
		if err != nil {
			return nil, err
		}
		loaded, err := src.Documents(ctx)
		if err != nil {
			return nil, err
		}
		docs = loaded
	}

	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out, nil
}

func (p *Processor) source(ctx context.Context, spec *Source) (datastore.Source, error) {
	streamOpts := []storagemodels.StreamOption{storagemodels.WithMaxItems(spec.MaxItems)}

	if spec.DynamoDB != nil {
		if p.scanClient == nil {
			return nil, fmt.Errorf("dynamodb source: no client configured")
		}
		table := spec.DynamoDB.Table
		if table == "" {
			table = p.defaultTable
		}
		if table == "" {
			return nil, fmt.Errorf("dynamodb source: no table configured")
		}
		client, err := p.scanClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb source: %w", err)
		}
		return ddb.NewSource(client, table,
			ddb.WithLogger(p.logger),
			ddb.WithIDAttribute(spec.DynamoDB.IDAttribute),
			ddb.WithStreamOptions(streamOpts...),
		), nil
	}

	opts := []jsonfile.Option{jsonfile.WithLogger(p.logger), jsonfile.WithStreamOptions(streamOpts...)}
	if path, ok := p.aliases[spec.File]; ok {
		return jsonfile.New(path, opts...), nil
	}
	if p.files != nil {
		data, err := fs.ReadFile(p.files, spec.File)
		if err == nil {
			return jsonfile.NewFromBytes(spec.File, data, opts...), nil
		}
	}
	return jsonfile.New(spec.File, opts...), nil
}
