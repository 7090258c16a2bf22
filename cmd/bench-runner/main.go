package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jlpozo/DesafioFinalBack/internal/client"
	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
)

type benchConfig struct {
	baseURL       string
	adminEmail    string
	adminPassword string
	requests      int
	workers       int
	stock         int
	quantity      int
	replayEvery   int
	timeout       time.Duration
	output        string
}

type latencyReport struct {
	Avg float64 `json:"avg"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type report struct {
	StartedAt       time.Time      `json:"started_at"`
	BaseURL         string         `json:"base_url"`
	ProductID       int64          `json:"product_id"`
	StockBefore     int            `json:"stock_before"`
	StockAfter      int            `json:"stock_after"`
	StockExpected   int            `json:"stock_expected"`
	StockConsistent bool           `json:"stock_consistent"`
	Quantity        int            `json:"quantity"`
	Requests        int            `json:"requests"`
	Workers         int            `json:"workers"`
	Created         int            `json:"created"`
	Replayed        int            `json:"replayed"`
	Failed          int            `json:"failed"`
	ElapsedSeconds  float64        `json:"elapsed_seconds"`
	RequestsPerSec  float64        `json:"requests_per_sec"`
	LatencyMs       latencyReport  `json:"latency_ms"`
	Statuses        map[string]int `json:"statuses"`
	Failures        map[string]int `json:"failures"`
	FirstFailure    string         `json:"first_failure,omitempty"`
}

// sample is the outcome of one CreateOrder call.
type sample struct {
	took     time.Duration
	replayed bool
	err      error
}

type recorder struct {
	mu      sync.Mutex
	samples []sample
}

func (r *recorder) add(s sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

func main() {
	cfg := parseFlags()

	setupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	sess, product, err := prepare(setupCtx, cfg)
	cancel()
	if err != nil {
		fail("setup: %v", err)
	}

	started := time.Now()
	rec := &recorder{samples: make([]sample, 0, cfg.requests)}
	hammer(cfg, sess.Buyer, product.ID, rec)
	elapsed := time.Since(started)

	checkCtx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	after, err := sess.Admin.GetProduct(checkCtx, product.ID)
	cancel()
	if err != nil {
		fail("read product %d: %v", product.ID, err)
	}

	rep := summarize(cfg, rec.samples, elapsed)
	rep.StartedAt = started.UTC()
	rep.ProductID = int64(product.ID)
	rep.StockAfter = after.Stock
	rep.StockExpected = cfg.stock - rep.Created*cfg.quantity
	rep.StockConsistent = after.Stock >= 0 && after.Stock == rep.StockExpected

	if err := emit(os.Stdout, rep); err != nil {
		fail("encode report: %v", err)
	}
	if cfg.output != "" {
		f, err := os.Create(cfg.output)
		if err != nil {
			fail("create %s: %v", cfg.output, err)
		}
		err = emit(f, rep)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			fail("write %s: %v", cfg.output, err)
		}
	}
	if !rep.StockConsistent {
		fmt.Fprintf(os.Stderr, "stock drift on product %d: have %d, expected %d\n", product.ID, after.Stock, rep.StockExpected)
		os.Exit(3)
	}
}

func parseFlags() benchConfig {
	var cfg benchConfig
	flag.StringVar(&cfg.baseURL, "base-url", envOr("STOREFRONT_BASE_URL", "http://localhost:8080"), "storefront API base URL")
	flag.StringVar(&cfg.adminEmail, "admin-email", envOr("ADMIN_EMAIL", "admin@example.com"), "administrator email (must match the API's ADMIN_EMAIL)")
	flag.StringVar(&cfg.adminPassword, "admin-password", envOr("ADMIN_PASSWORD", "admin-password"), "administrator password")
	flag.IntVar(&cfg.requests, "total", 200, "number of CreateOrder requests")
	flag.IntVar(&cfg.workers, "concurrency", 20, "number of concurrent workers")
	flag.IntVar(&cfg.stock, "stock", 50, "initial stock of the contended product")
	flag.IntVar(&cfg.quantity, "quantity", 1, "quantity per order")
	flag.IntVar(&cfg.replayEvery, "replay-every", 0, "resend every Nth request with its Idempotency-Key (0 disables)")
	flag.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "per-request timeout")
	flag.StringVar(&cfg.output, "output", "", "also write the JSON report to this file")
	flag.Parse()

	if cfg.requests < 1 || cfg.workers < 1 || cfg.quantity < 1 || cfg.stock < 0 {
		fail("total, concurrency and quantity must be positive; stock must not be negative")
	}
	return cfg
}

// prepare signs in and seeds the product every worker competes for.
func prepare(ctx context.Context, cfg benchConfig) (*client.Session, domain.Product, error) {
	c := client.New(cfg.baseURL, &http.Client{Timeout: cfg.timeout})
	sess, err := client.Setup(ctx, c, cfg.adminEmail, cfg.adminPassword)
	if err != nil {
		return nil, domain.Product{}, err
	}
	p, err := sess.Admin.CreateProduct(ctx, "bench-"+uuid.NewString()[:8], decimal.NewFromInt(10), cfg.stock, sess.Category)
	if err != nil {
		return nil, domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	return sess, p, nil
}

func hammer(cfg benchConfig, buyer *client.Client, product domain.ProductID, rec *recorder) {
	items := []domain.OrderItem{{ProductID: product, Quantity: cfg.quantity}}
	place := func(key string) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
		defer cancel()
		t0 := time.Now()
		_, replayed, err := buyer.CreateOrder(ctx, "1 Bench Road", items, key)
		rec.add(sample{took: time.Since(t0), replayed: replayed, err: err})
	}

	jobs := make(chan int, cfg.workers)
	var wg sync.WaitGroup
	wg.Add(cfg.workers)
	for w := 0; w < cfg.workers; w++ {
		go func() {
			defer wg.Done()
			for n := range jobs {
				key := uuid.NewString()
				place(key)
				if cfg.replayEvery > 0 && n%cfg.replayEvery == 0 {
					place(key)
				}
			}
		}()
	}
	for n := 1; n <= cfg.requests; n++ {
		jobs <- n
	}
	close(jobs)
	wg.Wait()
}

func summarize(cfg benchConfig, samples []sample, elapsed time.Duration) report {
	rep := report{
		BaseURL:        cfg.baseURL,
		StockBefore:    cfg.stock,
		Quantity:       cfg.quantity,
		Requests:       cfg.requests,
		Workers:        cfg.workers,
		ElapsedSeconds: elapsed.Seconds(),
		Statuses:       map[string]int{},
		Failures:       map[string]int{},
	}

	var okMs []float64
	for _, s := range samples {
		rep.Statuses[statusOf(s)]++
		if s.err != nil {
			rep.Failed++
			rep.Failures[failureClass(s.err)]++
			if rep.FirstFailure == "" {
				rep.FirstFailure = s.err.Error()
			}
			continue
		}
		if s.replayed {
			rep.Replayed++
		} else {
			rep.Created++
		}
		okMs = append(okMs, float64(s.took.Microseconds())/1000)
	}
	if elapsed > 0 {
		rep.RequestsPerSec = float64(len(okMs)) / elapsed.Seconds()
	}
	rep.LatencyMs = latencies(okMs)
	return rep
}

func statusOf(s sample) string {
	var se *client.StatusError
	switch {
	case errors.As(s.err, &se):
		return strconv.Itoa(se.StatusCode)
	case s.err != nil:
		return "transport"
	case s.replayed:
		return strconv.Itoa(http.StatusOK)
	default:
		return strconv.Itoa(http.StatusCreated)
	}
}

func failureClass(err error) string {
	var se *client.StatusError
	if errors.As(err, &se) {
		return se.Class()
	}
	return "transport"
}

func latencies(ms []float64) latencyReport {
	if len(ms) == 0 {
		return latencyReport{}
	}
	slices.Sort(ms)
	var sum float64
	for _, v := range ms {
		sum += v
	}
	return latencyReport{
		Avg: sum / float64(len(ms)),
		Min: ms[0],
		Max: ms[len(ms)-1],
		P50: nearestRank(ms, 50),
		P90: nearestRank(ms, 90),
		P95: nearestRank(ms, 95),
		P99: nearestRank(ms, 99),
	}
}

// nearestRank expects sorted input.
func nearestRank(sorted []float64, pct float64) float64 {
	i := int(math.Ceil(pct/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(i, len(sorted)-1))]
}

func emit(w io.Writer, rep report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
