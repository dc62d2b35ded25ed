package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/cartloom/promo-engine/internal/repository"
)

// The dump files hold one candidate code per line, tens of millions of
// lines each. A code is trusted only when it shows up in at least two
// dumps, so the pipeline makes two passes: one to sketch every file into a
// bloom filter, one to re-read each file and keep the codes that other
// sketches confirm.
const (
	sketchCapacity = 120_000_000
	sketchFPR      = 0.001
	logEvery       = 10_000_000
	codeLenMin     = 8
	codeLenMax     = 10
	upsertChunk    = 500
)

type options struct {
	dataDir      string
	databaseURL  string
	dumps        int
	discountType string
	value        string
	description  string
}

func parseOptions() (options, error) {
	var o options
	flag.StringVar(&o.dataDir, "data-dir", "data", "directory holding the couponbaseN.gz dumps")
	flag.StringVar(&o.databaseURL, "database-url", "", "PostgreSQL URL (falls back to DATABASE_URL)")
	flag.IntVar(&o.dumps, "files", 3, "number of couponbaseN.gz dumps to cross-check")
	flag.StringVar(&o.discountType, "discount-type", "percentage", "discount type for imported codes")
	flag.StringVar(&o.value, "value", "10", "discount value for imported codes")
	flag.StringVar(&o.description, "description", "Imported promo code: 10% off", "description for imported codes")
	flag.Parse()

	if o.databaseURL == "" {
		o.databaseURL = os.Getenv("DATABASE_URL")
	}
	switch {
	case o.databaseURL == "":
		return o, errors.New("set --database-url or DATABASE_URL")
	case o.dumps < 2:
		return o, errors.Errorf("cross-checking needs at least 2 dumps, got %d", o.dumps)
	}
	return o, nil
}

func main() {
	opts, err := parseOptions()
	if err != nil {
		slog.Error("bad invocation", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := ingest(ctx, opts); err != nil {
		slog.Error("ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("ingest finished")
}

func ingest(ctx context.Context, opts options) error {
	tmpl, err := templateFrom(opts)
	if err != nil {
		return err
	}
	dumps, err := locateDumps(opts.dataDir, opts.dumps)
	if err != nil {
		return err
	}

	slog.Info("sketching dumps", slog.Int("dumps", len(dumps)))
	sketches, err := sketchDumps(ctx, dumps)
	if err != nil {
		return errors.Wrap(err, "sketch dumps")
	}

	slog.Info("cross-checking dumps")
	codes, err := confirmedCodes(ctx, dumps, sketches)
	if err != nil {
		return errors.Wrap(err, "cross-check dumps")
	}
	slog.Info("codes confirmed", slog.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	pool, err := repository.NewPool(ctx, opts.databaseURL, 0)
	if err != nil {
		return errors.Wrap(err, "connect")
	}
	defer pool.Close()

	return importCodes(ctx, pool, codes, tmpl)
}

func locateDumps(dir string, n int) ([]string, error) {
	dumps := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("couponbase%d.gz", i))
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrap(err, "locate dump")
		}
		dumps = append(dumps, path)
	}
	return dumps, nil
}

// codeTemplate is the discount every confirmed code is imported as.
type codeTemplate struct {
	discountType string
	value        decimal.Decimal
	description  string
}

func templateFrom(opts options) (codeTemplate, error) {
	if opts.discountType != "percentage" && opts.discountType != "fixed_amount" {
		return codeTemplate{}, errors.Errorf("unsupported discount type %q", opts.discountType)
	}
	v, err := decimal.NewFromString(opts.value)
	if err != nil {
		return codeTemplate{}, errors.Wrap(err, "parse value")
	}
	return codeTemplate{
		discountType: opts.discountType,
		value:        v,
		description:  opts.description,
	}, nil
}

// sketchDumps builds one bloom filter per dump, all in parallel.
func sketchDumps(ctx context.Context, dumps []string) ([]*bloom.BloomFilter, error) {
	sketches := make([]*bloom.BloomFilter, len(dumps))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range dumps {
		g.Go(func() error {
			sketch := bloom.NewWithEstimates(sketchCapacity, sketchFPR)
			n, err := eachCode(ctx, path, sketch.AddString)
			if err != nil {
				return errors.Wrapf(err, "sketch %s", path)
			}
			slog.Info("dump sketched", slog.String("dump", path), slog.Uint64("codes", n))
			sketches[i] = sketch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sketches, nil
}

// confirmedCodes re-streams every dump and collects the codes that some
// other dump's sketch also contains. A code must surface from two separate
// dumps before it is trusted, which squeezes out the sketch false
// positives.
func confirmedCodes(ctx context.Context, dumps []string, sketches []*bloom.BloomFilter) ([]string, error) {
	perDump := make([]map[string]struct{}, len(dumps))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range dumps {
		g.Go(func() error {
			hits := make(map[string]struct{})
			_, err := eachCode(ctx, path, func(code string) {
				for j, sketch := range sketches {
					if j != i && sketch.TestString(code) {
						hits[code] = struct{}{}
						return
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "cross-check %s", path)
			}
			slog.Info("dump cross-checked", slog.String("dump", path), slog.Int("hits", len(hits)))
			perDump[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]int)
	for _, hits := range perDump {
		for code := range hits {
			seen[code]++
		}
	}
	var confirmed []string
	for code, n := range seen {
		if n >= 2 {
			confirmed = append(confirmed, code)
		}
	}
	return confirmed, nil
}

// eachCode streams one dump line by line, calling fn for every line inside
// the accepted length bounds. It reports how many codes it saw.
func eachCode(ctx context.Context, path string, fn func(string)) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrap(err, "gunzip")
	}
	defer func() { _ = gz.Close() }()

	var n uint64
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		code := sc.Text()
		if len(code) < codeLenMin || len(code) > codeLenMax {
			continue
		}
		if n++; n%logEvery == 0 {
			slog.Info("still streaming", slog.String("dump", path), slog.Uint64("codes", n))
		}
		fn(code)
	}
	return n, errors.Wrap(sc.Err(), "scan")
}

const upsertCodeSQL = `
INSERT INTO discounts (id, kind, code, name, description, discount_type, value, scope)
VALUES ($1, 'coupon', $2, $3, $4, $5, $6, 'cart')
ON CONFLICT (id) DO UPDATE SET
	discount_type = EXCLUDED.discount_type,
	value = EXCLUDED.value,
	description = EXCLUDED.description,
	updated_at = NOW()`

// importCodes upserts every confirmed code as a cart-wide coupon built from
// the template, in batches. Ids derive from the code so reruns are
// idempotent.
func importCodes(ctx context.Context, pool *pgxpool.Pool, codes []string, tmpl codeTemplate) error {
	slog.Info("importing codes", slog.Int("count", len(codes)))

	for start := 0; start < len(codes); start += upsertChunk {
		chunk := codes[start:min(start+upsertChunk, len(codes))]

		var batch pgx.Batch
		for _, code := range chunk {
			batch.Queue(upsertCodeSQL,
				"bulk-"+strings.ToLower(code), code, "Promo code "+code,
				tmpl.description, tmpl.discountType, tmpl.value,
			)
		}
		if err := pool.SendBatch(ctx, &batch).Close(); err != nil {
			return errors.Wrapf(err, "import batch at %d", start)
		}
		slog.Info("import progress",
			slog.Int("written", start+len(chunk)),
			slog.Int("total", len(codes)),
		)
	}
	return nil
}
