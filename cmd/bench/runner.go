package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Stats is shared by all workers of one run.
type Stats struct {
	Total     atomic.Uint64
	Success   atomic.Uint64
	Errors    atomic.Uint64
	Writes    atomic.Uint64
	Latencies chan time.Duration
}

type Result struct {
	Throughput string
	P50        string
	P99        string
	Success    string
}

type benchConfig struct {
	Target      string
	Key         string
	Count       int
	Concurrency int
	Range       uint64
	ZipfS       float64
	ZipfV       float64
	WriteRatio  float64
	Payment     string
}

// nameFor maps a Zipf index to a valid registry name.
func nameFor(idx uint64) string {
	return fmt.Sprintf("host-%d", idx)
}

func runBenchmark(ctx context.Context, cfg benchConfig, client *http.Client, out io.Writer) Result {
	fmt.Fprintf(out, "Starting Realistic Benchmark\n")
	fmt.Fprintf(out, "Configuration: %d requests | %d concurrency | Pool Size: %d | Zipf(s=%.1f, v=%.1f) | writes %.0f%%\n",
		cfg.Count, cfg.Concurrency, cfg.Range, cfg.ZipfS, cfg.ZipfV, cfg.WriteRatio*100)

	stats := &Stats{Latencies: make(chan time.Duration, cfg.Count)}
	perWorker := cfg.Count / cfg.Concurrency

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			runWorker(ctx, cfg, client, perWorker, workerID, stats)
		}(i)
	}
	wg.Wait()
	duration := time.Since(start)
	close(stats.Latencies)

	return printReport(out, duration, stats, cfg.Concurrency)
}

func runWorker(ctx context.Context, cfg benchConfig, client *http.Client, count, workerID int, stats *Stats) {
	r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	zipf := rand.NewZipf(r, cfg.ZipfS, cfg.ZipfV, cfg.Range-1)

	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			return
		}
		name := nameFor(zipf.Uint64())
		write := r.Float64() < cfg.WriteRatio

		reqStart := time.Now()
		var ok bool
		if write {
			stats.Writes.Add(1)
			ok = register(ctx, client, cfg.Target, cfg.Key, name, cfg.Payment)
		} else {
			ok = lookupOwner(ctx, client, cfg.Target, name)
		}
		stats.Total.Add(1)
		if ok {
			stats.Success.Add(1)
			stats.Latencies <- time.Since(reqStart)
		} else {
			stats.Errors.Add(1)
		}
	}
}

// register reports whether the ledger answered; 409 is a correct answer for a taken name.
func register(ctx context.Context, client *http.Client, target, key, name, payment string) bool {
	status, err := send(ctx, client, http.MethodPost, target+"/names/"+name, key, `{"payment":"`+payment+`"}`)
	return err == nil && (status == http.StatusCreated || status == http.StatusConflict)
}

func lookupOwner(ctx context.Context, client *http.Client, target, name string) bool {
	status, err := send(ctx, client, http.MethodGet, target+"/names/"+name+"/owner", "", "")
	return err == nil && status == http.StatusOK
}

func send(ctx context.Context, client *http.Client, method, url, key, body string) (int, error) {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, err
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := int(float64(len(sorted)) * p)
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

func printReport(out io.Writer, duration time.Duration, stats *Stats, concurrency int) Result {
	latencies := make([]time.Duration, 0, len(stats.Latencies))
	for l := range stats.Latencies {
		latencies = append(latencies, l)
	}
	slices.Sort(latencies)

	total, success := stats.Total.Load(), stats.Success.Load()
	rps := float64(success) / duration.Seconds()
	reliability := 0.0
	if total > 0 {
		reliability = float64(success) / float64(total) * 100
	}

	fmt.Fprintln(out, "\n============================================")
	fmt.Fprintln(out, "        NAME REGISTRY PERFORMANCE REPORT      ")
	fmt.Fprintln(out, "============================================")
	fmt.Fprintf(out, "Test Duration:    %v\n", duration)
	fmt.Fprintf(out, "Concurrency:      %d workers\n", concurrency)
	fmt.Fprintf(out, "Throughput:       %.2f requests/sec\n", rps)

	fmt.Fprintln(out, "\n--- Request Statistics ---")
	fmt.Fprintf(out, "Total Attempted:  %d\n", total)
	fmt.Fprintf(out, "Registrations:    %d\n", stats.Writes.Load())
	fmt.Fprintf(out, "Successful:       %d\n", success)
	fmt.Fprintf(out, "Failed:           %d\n", stats.Errors.Load())
	fmt.Fprintf(out, "Reliability:      %.2f%%\n", reliability)

	p50, p99 := percentile(latencies, 0.50), percentile(latencies, 0.99)
	if len(latencies) > 0 {
		fmt.Fprintln(out, "\n--- Latency Percentiles ---")
		fmt.Fprintf(out, "P50 (Median):     %v\n", p50)
		fmt.Fprintf(out, "P90:              %v\n", percentile(latencies, 0.90))
		fmt.Fprintf(out, "P99:              %v\n", p99)
		fmt.Fprintf(out, "Min:              %v\n", latencies[0])
		fmt.Fprintf(out, "Max:              %v\n", latencies[len(latencies)-1])
	}
	fmt.Fprintln(out, "============================================")

	return Result{
		Throughput: fmt.Sprintf("%.2f", rps),
		P50:        p50.String(),
		P99:        p99.String(),
		Success:    fmt.Sprintf("%.2f%%", reliability),
	}
}
