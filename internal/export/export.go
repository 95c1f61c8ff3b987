// Package export dumps order views as gzip-compressed JSON lines.
package export

import (
	"context"
	"io"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/order-reconciler/internal/domain/order"
)

// Lister returns every stored order.
type Lister interface {
	List(ctx context.Context) ([]order.Order, error)
}

// Options tune the compressor.
type Options struct {
	// Level is a compress/gzip level. Zero selects pgzip.DefaultCompression.
	Level int
	// BlockSize and Blocks control pgzip parallelism. Zero keeps the
	// pgzip defaults.
	BlockSize int
	Blocks    int
}

// Write streams one JSON line per order to w, gzip-compressed, and returns
// the number of orders written. The output matches the GET /orders item
// shape.
func Write(ctx context.Context, w io.Writer, src Lister, opts Options) (int, error) {
	level := opts.Level
	if level == 0 {
		level = pgzip.DefaultCompression
	}
	gz, err := pgzip.NewWriterLevel(w, level)
	if err != nil {
		return 0, errors.Wrap(err, "create gzip writer")
	}
	if opts.BlockSize > 0 && opts.Blocks > 0 {
		if err := gz.SetConcurrency(opts.BlockSize, opts.Blocks); err != nil {
			return 0, errors.Wrap(err, "set gzip concurrency")
		}
	}

	views := make(chan order.View, 64)
	var written int

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(views)
		orders, err := src.List(ctx)
		if err != nil {
			return errors.Wrap(err, "list orders")
		}
		for _, o := range orders {
			select {
			case views <- order.Present(o):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	g.Go(func() error {
		var e jx.Encoder
		for v := range views {
			e.Reset()
			v.Encode(&e)
			if _, err := gz.Write(append(e.Bytes(), '\n')); err != nil {
				return errors.Wrapf(err, "write order %d", v.ID)
			}
			written++
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		_ = gz.Close()
		return written, err
	}
	if err := gz.Close(); err != nil {
		return written, errors.Wrap(err, "flush gzip")
	}
	return written, nil
}
