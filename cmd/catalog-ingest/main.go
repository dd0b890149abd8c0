// Command catalog-ingest loads gzip-compressed NDJSON catalog feeds into the
// products table. Feeds from different suppliers overlap heavily, so records
// are deduplicated by product ID with a bloom filter before hitting the
// database.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-fulfillment/internal/domain/product"
	"github.com/xenking/kart-fulfillment/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.0001
	progressEvery = 100_000
)

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing catalog*.ndjson.gz feed files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "catalog*.ndjson.gz"))
	if err != nil {
		return errors.Wrap(err, "glob feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no catalog*.ndjson.gz files in %s", dataDir)
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := repository.NewProductRepository(pool)

	// Feeds are parsed concurrently; a single writer goroutine owns the bloom
	// filter and the database connection ordering. A bloom false positive
	// drops a record, which the low FPR makes rare enough for feed data that
	// is re-ingested on every supplier sync.
	records := make(chan product.Product, 1024)

	g, ctx := errgroup.WithContext(ctx)
	parsers, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return writeProducts(ctx, repo, records)
	})

	for _, f := range files {
		parsers.Go(parseFeed(ctx, f, records))
	}

	parseErr := parsers.Wait()
	close(records)
	if err := g.Wait(); err != nil {
		return err
	}
	return parseErr
}

// parseFeed streams one gzipped NDJSON file and sends parsed records.
func parseFeed(ctx context.Context, path string, records chan<- product.Product) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer func() { _ = f.Close() }()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()

		var count uint64
		scanner := bufio.NewScanner(gz)
		scanner.Buffer(make([]byte, 0, 1<<16), 1<<20)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			p, err := parseRecord(line)
			if err != nil {
				return errors.Wrapf(err, "parse record in %s", path)
			}

			select {
			case records <- p:
			case <-ctx.Done():
				return ctx.Err()
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("parse progress", slog.String("file", path), slog.Uint64("records", count))
			}
		}
		if err := scanner.Err(); err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}

		slog.Info("feed parsed", slog.String("file", path), slog.Uint64("records", count))
		return nil
	}
}

// parseRecord decodes a single feed line.
func parseRecord(line []byte) (product.Product, error) {
	var p product.Product

	d := jx.DecodeBytes(line)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			p.ID = v
			return err
		case "name":
			v, err := d.Str()
			p.Name = v
			return err
		case "description":
			v, err := d.Str()
			p.Description = v
			return err
		case "image_path":
			v, err := d.Str()
			p.ImagePath = v
			return err
		case "price":
			n, err := d.Num()
			if err != nil {
				return err
			}
			p.Price, err = decimal.NewFromString(n.String())
			return err
		case "stock_quantity":
			v, err := d.Int()
			p.Stock.Quantity = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return product.Product{}, err
	}
	if p.ID == "" {
		return product.Product{}, errors.New("record has no id")
	}

	p.Stock.Status = product.StatusInStock
	if p.Stock.Quantity == 0 {
		p.Stock.Status = product.StatusOutOfStock
	}
	return p, nil
}

// writeProducts drains the records channel, deduplicates by ID, and upserts.
func writeProducts(ctx context.Context, repo *repository.ProductRepository, records <-chan product.Product) error {
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	var written, dropped uint64

	for p := range records {
		if seen.TestAndAddString(p.ID) {
			dropped++
			continue
		}

		if err := repo.Upsert(ctx, &p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		written++
		if written%progressEvery == 0 {
			slog.Info("write progress", slog.Uint64("written", written), slog.Uint64("deduplicated", dropped))
		}
	}

	slog.Info("write complete", slog.Uint64("written", written), slog.Uint64("deduplicated", dropped))
	return nil
}
