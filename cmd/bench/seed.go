package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// seedNames registers host-0 .. host-(total-1) through the API. Names that are
// already taken count as seeded.
func seedNames(ctx context.Context, client *http.Client, target, key, payment string, total, concurrency int, out io.Writer) error {
	fmt.Fprintf(out, "Seeding %d names...\n", total)

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := 0; i < total; i++ {
		name := nameFor(uint64(i))
		g.Go(func() error {
			status, err := send(gctx, client, http.MethodPost, target+"/names/"+name, key, `{"payment":"`+payment+`"}`)
			if err != nil {
				return fmt.Errorf("seed %s: %w", name, err)
			}
			if status != http.StatusCreated && status != http.StatusConflict {
				return fmt.Errorf("seed %s: unexpected status %d", name, status)
			}
			if n := done.Add(1); n%10000 == 0 {
				fmt.Fprintf(out, "Progress: %d/%d (%.1f%%)\n", n, total, float64(n)/float64(total)*100)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%d Names Seeded Successfully.\n", total)
	return nil
}
