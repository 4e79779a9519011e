package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/jask/vendrecon/internal/config"
	"github.com/jask/vendrecon/internal/database"
	"github.com/jask/vendrecon/internal/database/repository"
	"github.com/jask/vendrecon/internal/logging"
	"github.com/jask/vendrecon/internal/service"
	"github.com/jask/vendrecon/internal/source"
)

const usage = `vendrecon reconciles vending POS exports into one ledger.

Usage:
  vendrecon ingest [flags] FILE...    parse, reconcile and store exports
  vendrecon ledger [flags]            query the stored ledger
  vendrecon reset [--yes]             wipe the stored ledger and run history

Run "vendrecon COMMAND --help" for flags.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cmd, rest := args[0], args[1:]

	var exec func(ctx context.Context, env *env, args []string) error
	flags := pflag.NewFlagSet("vendrecon "+cmd, pflag.ContinueOnError)
	flags.SetOutput(stderr)
	addCommonFlags(flags)

	switch cmd {
	case "ingest":
		exec = ingestCommand(flags)
	case "ledger":
		exec = ledgerCommand(flags)
	case "reset":
		exec = resetCommand(flags)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	if err := flags.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(stderr, errStyle.Render("config: ")+err.Error())
		return 1
	}
	e := &env{
		cfg:    cfg,
		log:    logging.NewWithOutput(cfg.Log.Level, cfg.Log.Format, stderr),
		stdout: stdout,
	}
	defer e.close()

	if err := exec(ctx, e, flags.Args()); err != nil {
		logging.LogError(e.log, "cli", cmd, "command failed", nil, err)
		fmt.Fprintln(stderr, errStyle.Render("error: ")+err.Error())
		return 1
	}
	return 0
}

func addCommonFlags(f *pflag.FlagSet) {
	f.String("db-driver", "", "ledger store driver (sqlite3, mysql)")
	f.String("dsn", "", "ledger store DSN; defaults to the sqlite file at --db")
	f.String("db", "", "sqlite database path")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-format", "", "log format (text, json)")
}

// env carries the per-invocation dependencies.
type env struct {
	cfg    config.Config
	log    *logrus.Logger
	stdout io.Writer
	db     *sql.DB
	redis  *redis.Client
}

func (e *env) close() {
	if e.db != nil {
		_ = e.db.Close()
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
}

// openStore migrates and opens the ledger store. It returns nil when no driver is configured.
func (e *env) openStore() (*sql.DB, error) {
	if e.db != nil || e.cfg.Database.Driver == "" {
		return e.db, nil
	}
	driver := e.cfg.Database.Driver
	dsn := e.cfg.Database.ResolvedDSN()
	if driver == database.DriverSQLite && e.cfg.Database.DSN == "" {
		if err := os.MkdirAll(filepath.Dir(e.cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}
	version, err := database.RunMigrations(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	e.log.WithFields(logrus.Fields{"driver": driver, "schema_version": version}).Debug("store ready")
	e.db = db
	return db, nil
}

func (e *env) runLock(ctx context.Context) (service.RunLock, error) {
	lc := e.cfg.Lock
	if lc.RedisAddr == "" {
		return service.NoopLock{}, nil
	}
	lock, rdb, err := service.DialRedisLock(ctx, lc.RedisAddr, lc.RedisPassword, lc.RedisDB, lc.Key, lc.TTL)
	if err != nil {
		return nil, err
	}
	e.redis = rdb
	return lock, nil
}

func ingestCommand(f *pflag.FlagSet) func(context.Context, *env, []string) error {
	system := f.String("system", "", "source system for every FILE (cantaloupe, nayax, haha_ai); detected from the file name when empty")
	asJSON := f.Bool("json", false, "print the summary as JSON")
	f.String("catalog", "", "product catalog (csv or xlsx)")
	f.String("locations", "", "location alias table (csv or xlsx)")
	f.String("ledger", "", "write the ledger file here")
	f.String("ledger-format", "", "ledger file format (csv, parquet, xlsx); defaults to the extension")
	f.String("unmapped-report", "", "write the unmapped products report here")
	f.String("timezone", "", "timezone of export timestamps")
	f.Duration("dedup-resolution", 0, "timestamp resolution of the dedup key")
	f.Int("batch-size", 0, "records per store transaction")
	f.String("redis", "", "redis address for the run lock")

	return func(ctx context.Context, e *env, files []string) error {
		if len(files) == 0 {
			return errors.New("ingest: no files given")
		}
		var sys source.System
		if *system != "" {
			parsed, err := source.ParseSystem(*system)
			if err != nil {
				return err
			}
			sys = parsed
		}
		loc, err := e.cfg.TimeLocation()
		if err != nil {
			return err
		}

		p := &service.Pipeline{
			Logger:          e.log,
			CatalogPath:     e.cfg.Catalog.Path,
			LocationsPath:   e.cfg.Locations.Path,
			LedgerPath:      e.cfg.Ledger.Path,
			LedgerFormat:    e.cfg.Ledger.LedgerFormat(),
			UnmappedPath:    e.cfg.Reports.UnmappedPath,
			BatchSize:       e.cfg.Database.BatchSize,
			DedupResolution: e.cfg.Ingest.DedupResolution,
			SourceOptions: func(s source.System) source.Options {
				return e.cfg.SourceOptions(s, loc)
			},
		}
		db, err := e.openStore()
		if err != nil {
			return err
		}
		if db != nil {
			p.Store = repository.NewLedgerRepo(db, e.cfg.Database.Driver)
			p.Runs = repository.NewRunRepo(db)
		}
		if p.Lock, err = e.runLock(ctx); err != nil {
			return err
		}

		req := service.Request{}
		for _, path := range files {
			req.Inputs = append(req.Inputs, service.Input{Path: path, System: sys})
		}
		start := time.Now()
		sum, runErr := p.Run(ctx, req)
		e.log.WithField("elapsed", time.Since(start).Round(time.Millisecond).String()).Debug("pipeline returned")
		if sum.RunID != "" && (runErr == nil || sum.TotalTransactions > 0) {
			if *asJSON {
				if err := writeJSON(e.stdout, sum); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(e.stdout, renderSummary(sum))
			}
		}
		return runErr
	}
}

func ledgerCommand(f *pflag.FlagSet) func(context.Context, *env, []string) error {
	from := f.String("from", "", "first date (YYYY-MM-DD)")
	to := f.String("to", "", "last date (YYYY-MM-DD)")
	locations := f.StringSlice("location", nil, "location display name; repeatable")
	tier := f.String("tier", "", "mapping tier (direct, family, unmapped)")
	limit := f.Int("limit", 50, "maximum rows to print; 0 prints all")
	asJSON := f.Bool("json", false, "print rows and totals as JSON")

	return func(ctx context.Context, e *env, _ []string) error {
		filter := repository.LedgerFilter{Locations: *locations, Tier: strings.ToLower(*tier), Limit: *limit}
		var err error
		if filter.From, err = parseDate("from", *from); err != nil {
			return err
		}
		if filter.To, err = parseDate("to", *to); err != nil {
			return err
		}
		db, err := e.openStore()
		if err != nil {
			return err
		}
		if db == nil {
			return errors.New("ledger: no store configured")
		}
		repo := repository.NewLedgerRepo(db, e.cfg.Database.Driver)
		entries, err := repo.List(ctx, filter)
		if err != nil {
			return err
		}
		filter.Limit = 0
		totals, err := repo.Totals(ctx, filter)
		if err != nil {
			return err
		}
		if *asJSON {
			return writeJSON(e.stdout, struct {
				Rows   []repository.LedgerEntry `json:"rows"`
				Totals repository.LedgerTotals  `json:"totals"`
			}{entries, totals})
		}
		fmt.Fprintln(e.stdout, renderLedger(entries, totals))
		return nil
	}
}

func resetCommand(f *pflag.FlagSet) func(context.Context, *env, []string) error {
	yes := f.Bool("yes", false, "confirm wiping the ledger and run history")

	return func(ctx context.Context, e *env, _ []string) error {
		if !*yes {
			return errors.New("reset: refusing without --yes")
		}
		db, err := e.openStore()
		if err != nil {
			return err
		}
		if db == nil {
			return errors.New("reset: no store configured")
		}
		m := &service.MaintenanceService{DB: db, Driver: e.cfg.Database.Driver}
		if err := m.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(e.stdout, goodStyle.Render("ledger and run history cleared"))
		return nil
	}
}

func parseDate(name, s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}
