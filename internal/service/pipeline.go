package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jask/vendrecon/internal/catalog"
	"github.com/jask/vendrecon/internal/database/repository"
	"github.com/jask/vendrecon/internal/dedup"
	"github.com/jask/vendrecon/internal/ledger"
	"github.com/jask/vendrecon/internal/location"
	"github.com/jask/vendrecon/internal/logging"
	"github.com/jask/vendrecon/internal/reconcile"
	"github.com/jask/vendrecon/internal/source"
	"github.com/jask/vendrecon/internal/tabular"
)

const (
	moduleName       = "pipeline"
	defaultBatchSize = 100
)

// LedgerStore persists ledger records keyed by dedup key.
type LedgerStore interface {
	UpsertBatch(ctx context.Context, runID string, records []reconcile.Record) (inserted, ignored int, err error)
}

// RunRecorder keeps the run history.
type RunRecorder interface {
	Start(ctx context.Context, run repository.ImportRun) error
	Finish(ctx context.Context, run repository.ImportRun) error
}

// Input is one export handed to the pipeline. Data, when non-nil, is used instead of reading
// Path; Name then only drives format and source detection.
type Input struct {
	Path   string
	Name   string
	Data   []byte
	System source.System // empty means detect from the file name
}

func (in Input) name() string {
	if in.Name != "" {
		return in.Name
	}
	return filepath.Base(in.Path)
}

func (in Input) open() (io.ReadCloser, error) {
	if in.Data != nil {
		return io.NopCloser(bytes.NewReader(in.Data)), nil
	}
	return os.Open(in.Path)
}

// Request is one pipeline run over a set of exports.
type Request struct {
	Inputs []Input
}

// FileSummary reports one input.
type FileSummary struct {
	Name         string        `json:"name"`
	System       source.System `json:"system"`
	Rows         int           `json:"rows"`
	Transactions int           `json:"transactions"`
	Skipped      int           `json:"skipped"`
	// Lookup marks a Product Sales Details export read only to price Order details items.
	Lookup bool `json:"lookup,omitempty"`
}

// Summary is the outcome of a run. On a failed store batch it still carries everything up to
// the failure, with Partial set.
type Summary struct {
	RunID             string                      `json:"runId"`
	Files             []FileSummary               `json:"files"`
	RawRows           int                         `json:"rawRows"`
	SkippedRows       int                         `json:"skippedRows"`
	TotalTransactions int                         `json:"totalTransactions"`
	DuplicatesRemoved int                         `json:"duplicatesRemoved"`
	ZeroValueDropped  int                         `json:"zeroValueDropped"`
	Direct            int                         `json:"direct"`
	Family            int                         `json:"family"`
	UnmappedRows      int                         `json:"unmappedRows"`
	Inserted          int                         `json:"inserted"`
	Ignored           int                         `json:"ignored"`
	BatchesCommitted  int                         `json:"batchesCommitted"`
	BatchesTotal      int                         `json:"batchesTotal"`
	MappingCoverage   decimal.Decimal             `json:"mappingCoverage"`
	UnmappedRevenue   decimal.Decimal             `json:"unmappedRevenue"`
	TotalRevenue      decimal.Decimal             `json:"totalRevenue"`
	TotalProfit       decimal.Decimal             `json:"totalProfit"`
	Unmapped          []reconcile.UnmappedProduct `json:"unmapped"`
	UnmappedLocations []string                    `json:"unmappedLocations"`
	CatalogCollisions []string                    `json:"catalogCollisions"`
	Warnings          []string                    `json:"warnings"`
	LedgerPath        string                      `json:"ledgerPath,omitempty"`
	Partial           bool                        `json:"partial"`
}

// Pipeline runs parse, reconcile, dedup, ledger output and the store upsert for a batch of
// exports. Store, Runs and Lock are optional.
type Pipeline struct {
	Logger logrus.FieldLogger
	Store  LedgerStore
	Runs   RunRecorder
	Lock   RunLock

	CatalogPath   string
	LocationsPath string
	// Catalog and Aliases are used when the matching path is empty.
	Catalog []catalog.Entry
	Aliases []location.Alias

	LedgerPath   string
	LedgerFormat ledger.Format
	UnmappedPath string

	BatchSize       int
	DedupResolution time.Duration
	// SourceOptions returns the per-provider overrides; nil keeps the provider defaults.
	SourceOptions func(source.System) source.Options
}

func (p *Pipeline) logger() logrus.FieldLogger {
	if p.Logger == nil {
		return logging.Discard()
	}
	return p.Logger
}

// Run executes one ingest. The run lock is held for the whole call and released on every
// return path.
func (p *Pipeline) Run(ctx context.Context, req Request) (sum Summary, err error) {
	if len(req.Inputs) == 0 {
		return sum, errors.New("no input files")
	}
	sum.RunID = uuid.NewString()
	log := p.logger().WithFields(logrus.Fields{"module": moduleName, "run_id": sum.RunID})

	lock := p.Lock
	if lock == nil {
		lock = NoopLock{}
	}
	release, err := lock.Acquire(ctx)
	if err != nil {
		return sum, err
	}
	defer func() {
		// ctx may already be cancelled here; the lock must still go.
		if rerr := release(context.Background()); rerr != nil {
			logging.LogError(log, moduleName, "Run", "release run lock", nil, rerr)
		}
	}()

	run := repository.ImportRun{
		ID:        sum.RunID,
		StartedAt: time.Now().UTC(),
		Status:    repository.RunRunning,
	}
	for _, in := range req.Inputs {
		run.Files = append(run.Files, in.name())
	}
	if p.Runs != nil {
		if err := p.Runs.Start(ctx, run); err != nil {
			return sum, fmt.Errorf("record run start: %w", err)
		}
		defer func() {
			p.finishRun(run, &sum, err, log)
		}()
	}

	log.WithField("files", run.Files).Info("ingest started")
	if err := p.run(ctx, req, &sum, log); err != nil {
		return sum, err
	}
	log.WithFields(logrus.Fields{
		"transactions": sum.TotalTransactions,
		"duplicates":   sum.DuplicatesRemoved,
		"inserted":     sum.Inserted,
		"coverage":     sum.MappingCoverage.String(),
	}).Info("ingest finished")
	return sum, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, sum *Summary, log logrus.FieldLogger) error {
	idx, err := p.loadCatalog(sum, log)
	if err != nil {
		return err
	}
	norm, err := p.loadAliases(sum, log)
	if err != nil {
		return err
	}

	plans, err := plan(req.Inputs)
	if err != nil {
		return err
	}
	details, err := p.salesDetails(ctx, plans, sum, log)
	if err != nil {
		return err
	}

	var txs []source.Transaction
	for _, pl := range plans {
		if pl.lookup {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := pl.name()
		batch, err := p.extract(pl, details)
		if err != nil {
			return err
		}
		sum.Files = append(sum.Files, FileSummary{
			Name:         name,
			System:       batch.System,
			Rows:         batch.Rows,
			Transactions: len(batch.Transactions),
			Skipped:      batch.Skipped,
		})
		sum.RawRows += batch.Rows
		sum.SkippedRows += batch.Skipped
		for _, w := range batch.Warnings {
			sum.Warnings = append(sum.Warnings, fmt.Sprintf("%s:%d: %s", name, w.Line, w.Message))
		}
		txs = append(txs, batch.Transactions...)
		log.WithFields(logrus.Fields{
			"file":    name,
			"system":  batch.System,
			"rows":    batch.Rows,
			"skipped": batch.Skipped,
		}).Debug("extracted export")
	}

	engine := reconcile.Engine{Index: idx, Locations: norm}
	records, stats := engine.Reconcile(txs)
	sum.ZeroValueDropped = stats.ZeroValueDropped

	records, removed := dedup.Deduplicate(records, dedup.Options{Resolution: p.DedupResolution})
	sum.DuplicatesRemoved = removed
	sum.TotalTransactions = len(records)

	stats = reconcile.Summarize(records)
	sum.Direct, sum.Family, sum.UnmappedRows = stats.Direct, stats.Family, stats.Unmapped
	sum.TotalRevenue = stats.TotalRevenue
	sum.UnmappedRevenue = stats.UnmappedRevenue
	sum.TotalProfit = stats.TotalProfit
	sum.MappingCoverage = stats.Coverage()
	sum.Unmapped = reconcile.UnmappedReport(records, idx)
	sum.UnmappedLocations = norm.Unmapped()

	if p.LedgerPath != "" {
		format := p.LedgerFormat
		if format == "" {
			format = ledger.FormatFor(p.LedgerPath)
		}
		if err := ledger.WriteFile(p.LedgerPath, format, records); err != nil {
			return fmt.Errorf("write ledger: %w", err)
		}
		sum.LedgerPath = p.LedgerPath
	}
	if p.UnmappedPath != "" {
		if err := ledger.WriteUnmapped(p.UnmappedPath, sum.Unmapped); err != nil {
			return fmt.Errorf("write unmapped report: %w", err)
		}
	}

	if p.Store == nil {
		return nil
	}
	return p.store(ctx, sum, records, log)
}

// store upserts records in sequential batches. The first failing batch stops the run;
// batches committed before it stay committed.
func (p *Pipeline) store(ctx context.Context, sum *Summary, records []reconcile.Record, log logrus.FieldLogger) error {
	size := p.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	sum.BatchesTotal = (len(records) + size - 1) / size
	for start := 0; start < len(records); start += size {
		if err := ctx.Err(); err != nil {
			sum.Partial = sum.BatchesCommitted > 0
			return fmt.Errorf("ingest cancelled after %d of %d batches: %w", sum.BatchesCommitted, sum.BatchesTotal, err)
		}
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		inserted, ignored, err := p.Store.UpsertBatch(ctx, sum.RunID, records[start:end])
		if err != nil {
			sum.Partial = sum.BatchesCommitted > 0
			logging.LogError(log, moduleName, "store", "upsert batch", logrus.Fields{
				"batch":     sum.BatchesCommitted + 1,
				"batches":   sum.BatchesTotal,
				"committed": sum.BatchesCommitted,
			}, err)
			return fmt.Errorf("store batch %d of %d: %w", sum.BatchesCommitted+1, sum.BatchesTotal, err)
		}
		sum.Inserted += inserted
		sum.Ignored += ignored
		sum.BatchesCommitted++
	}
	return nil
}

func (p *Pipeline) loadCatalog(sum *Summary, log logrus.FieldLogger) (*catalog.Index, error) {
	entries := p.Catalog
	if p.CatalogPath != "" {
		loaded, warnings, err := catalog.Load(p.CatalogPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			sum.Warnings = append(sum.Warnings, fmt.Sprintf("catalog %s not found; every product is unmapped", p.CatalogPath))
			log.WithField("path", p.CatalogPath).Warn("catalog not found")
		case err != nil:
			return nil, err
		}
		for _, w := range warnings {
			sum.Warnings = append(sum.Warnings, fmt.Sprintf("%s:%d: %s", filepath.Base(p.CatalogPath), w.Line, w.Message))
		}
		entries = loaded
	}
	idx := catalog.NewIndex(entries)
	for _, c := range idx.Collisions() {
		sum.CatalogCollisions = append(sum.CatalogCollisions, c.String())
		log.WithFields(logrus.Fields{
			"kind":    c.Kind,
			"value":   c.Value,
			"kept":    c.Kept,
			"ignored": c.Ignored,
		}).Warn("catalog collision")
	}
	return idx, nil
}

func (p *Pipeline) loadAliases(sum *Summary, log logrus.FieldLogger) (*location.Normalizer, error) {
	aliases := p.Aliases
	if p.LocationsPath != "" {
		loaded, warnings, err := location.LoadAliases(p.LocationsPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			sum.Warnings = append(sum.Warnings, fmt.Sprintf("location aliases %s not found; using cleaned names", p.LocationsPath))
			log.WithField("path", p.LocationsPath).Warn("location aliases not found")
		case err != nil:
			return nil, err
		}
		for _, w := range warnings {
			sum.Warnings = append(sum.Warnings, fmt.Sprintf("%s:%d: %s", filepath.Base(p.LocationsPath), w.Line, w.Message))
		}
		aliases = loaded
	}
	return location.New(aliases), nil
}

// planned is an input with its provider resolved.
type planned struct {
	Input
	system source.System
	// lookup inputs are Product Sales Details exports that price the Order details exports of
	// the same run instead of being ingested; ingesting both would count every sale twice.
	lookup bool
}

func plan(inputs []Input) ([]planned, error) {
	plans := make([]planned, len(inputs))
	orderDetails := false
	for i, in := range inputs {
		system := in.System
		if system == "" {
			detected, err := source.Detect(in.name())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", in.name(), err)
			}
			system = detected
		}
		plans[i] = planned{Input: in, system: system}
		if system == source.HahaAI && source.DetectHahaReport(in.name()) == source.HahaOrderDetails {
			orderDetails = true
		}
	}
	if orderDetails {
		for i := range plans {
			pl := &plans[i]
			pl.lookup = pl.system == source.HahaAI && source.DetectHahaReport(pl.name()) == source.HahaSalesDetails
		}
	}
	return plans, nil
}

func (p *Pipeline) options(system source.System) source.Options {
	if p.SourceOptions == nil {
		return source.Options{}
	}
	return p.SourceOptions(system)
}

// salesDetails reads the lookup inputs into one index. It returns nil when there are none.
func (p *Pipeline) salesDetails(ctx context.Context, plans []planned, sum *Summary, log logrus.FieldLogger) (source.SalesDetails, error) {
	var details source.SalesDetails
	for _, pl := range plans {
		if !pl.lookup {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if details == nil {
			details = make(source.SalesDetails)
		}
		adapter, err := source.For(pl.system, p.options(pl.system))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pl.name(), err)
		}
		var n int
		var warnings []tabular.Warning
		err = withRows(pl.Input, adapter.Config(), func(rows *tabular.Rows) error {
			var err error
			n, warnings, err = source.ReadSalesDetails(rows, details)
			return err
		})
		if err != nil {
			return nil, err
		}
		sum.Files = append(sum.Files, FileSummary{Name: pl.name(), System: pl.system, Rows: n, Lookup: true})
		for _, w := range warnings {
			sum.Warnings = append(sum.Warnings, fmt.Sprintf("%s:%d: %s", pl.name(), w.Line, w.Message))
		}
		log.WithFields(logrus.Fields{"file": pl.name(), "rows": n}).Debug("read sales details")
	}
	return details, nil
}

func (p *Pipeline) extract(pl planned, details source.SalesDetails) (source.Batch, error) {
	opts := p.options(pl.system)
	if details != nil {
		opts.SalesDetails = details
	}
	adapter, err := source.For(pl.system, opts)
	if err != nil {
		return source.Batch{}, fmt.Errorf("%s: %w", pl.name(), err)
	}
	var batch source.Batch
	err = withRows(pl.Input, adapter.Config(), func(rows *tabular.Rows) error {
		var err error
		batch, err = adapter.Extract(rows)
		return err
	})
	return batch, err
}

// withRows opens in with cfg, letting the file extension pick the framing, and hands the
// rows to fn.
func withRows(in Input, cfg tabular.Config, fn func(rows *tabular.Rows) error) error {
	name := in.name()
	if filepath.Ext(name) != "" {
		cfg.Format = tabular.FormatFor(name)
	}
	if cfg.Format == tabular.FormatDelimited && cfg.Delimiter == 0 {
		cfg.Delimiter = tabular.DelimiterFor(name)
	}

	rc, err := in.open()
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	rows, err := tabular.Open(rc, cfg)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	defer rows.Close()
	if err := fn(rows); err != nil {
		return fmt.Errorf("extract %s: %w", name, err)
	}
	return nil
}

func (p *Pipeline) finishRun(run repository.ImportRun, sum *Summary, runErr error, log logrus.FieldLogger) {
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.RawRows = sum.RawRows
	run.SkippedRows = sum.SkippedRows
	run.TotalTransactions = sum.TotalTransactions
	run.DuplicatesRemoved = sum.DuplicatesRemoved
	run.Inserted = sum.Inserted
	run.Ignored = sum.Ignored
	run.MappingCoverage = sum.MappingCoverage
	run.TotalRevenue = sum.TotalRevenue
	run.UnmappedRevenue = sum.UnmappedRevenue
	switch {
	case runErr == nil:
		run.Status = repository.RunSucceeded
	case sum.Partial:
		run.Status = repository.RunPartial
	default:
		run.Status = repository.RunFailed
	}
	if runErr != nil {
		msg := runErr.Error()
		run.Error = &msg
	}
	if err := p.Runs.Finish(context.Background(), run); err != nil {
		logging.LogError(log, moduleName, "finishRun", "record run finish", run.ID, err)
	}
}
