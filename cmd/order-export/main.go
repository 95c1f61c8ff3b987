// Command order-export writes every stored order as gzip-compressed JSON lines.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/order-reconciler/internal/export"
	"github.com/xenking/order-reconciler/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		out         string
		level       int
		blockSize   int
		blocks      int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&out, "out", "orders.jsonl.gz", `output file, "-" for stdout`)
	flag.IntVar(&level, "level", 0, "gzip compression level (0 for default)")
	flag.IntVar(&blockSize, "block-size", 1<<20, "compression block size in bytes")
	flag.IntVar(&blocks, "blocks", 4, "number of blocks compressed in parallel")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	n, err := run(ctx, databaseURL, out, export.Options{Level: level, BlockSize: blockSize, Blocks: blocks})
	if err != nil {
		lg.Fatal("Order export failed", zap.Error(err))
	}
	lg.Info("Order export completed", zap.Int("orders", n), zap.String("out", out))
}

func run(ctx context.Context, databaseURL, out string, opts export.Options) (int, error) {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return 0, errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	var w io.Writer = os.Stdout
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return 0, errors.Wrapf(err, "create %s", out)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	n, err := export.Write(ctx, w, postgres.NewStore(pool), opts)
	if err != nil {
		return n, errors.Wrap(err, "export orders")
	}
	return n, nil
}
