package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// loadgen fires concurrent apply calls at one discount and reports how the
// usage ceiling held up: how many reservations landed, how many were turned
// away, and the latency distribution.

type applyRequest struct {
	DiscountID string `json:"discountId"`
	UserID     string `json:"userId"`
	OrderID    string `json:"orderId"`
}

type applyResponse struct {
	Applied        bool `json:"applied"`
	AlreadyApplied bool `json:"alreadyApplied"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

type tally struct {
	mu        sync.Mutex
	applied   int
	replayed  int
	limited   int
	throttled int
	failed    int
	latencies []time.Duration
}

func (t *tally) record(latency time.Duration, outcome string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latencies = append(t.latencies, latency)
	switch outcome {
	case "applied":
		t.applied++
	case "replayed":
		t.replayed++
	case "limited":
		t.limited++
	case "throttled":
		t.throttled++
	default:
		t.failed++
	}
}

func main() {
	var (
		baseURL    string
		discountID string
		apiKey     string
		users      int
		requests   int
		reqRate    float64
	)

	flag.StringVar(&baseURL, "url", "http://localhost:8080", "API base URL")
	flag.StringVar(&discountID, "discount", "", "discount id to apply")
	flag.StringVar(&apiKey, "api-key", "", "API key for the apply endpoint (or PROMO_SEED_API_KEY env)")
	flag.IntVar(&users, "users", 50, "distinct user ids to rotate through")
	flag.IntVar(&requests, "requests", 200, "total apply calls to fire")
	flag.Float64Var(&reqRate, "rate", 100, "request rate per second")
	flag.Parse()

	if discountID == "" {
		slog.Error("discount id is required: set --discount")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("PROMO_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or PROMO_SEED_API_KEY")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, baseURL, discountID, apiKey, users, requests, reqRate); err != nil {
		slog.Error("load run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, baseURL, discountID, apiKey string, users, requests int, reqRate float64) error {
	slog.Info("starting load run",
		slog.String("url", baseURL),
		slog.String("discount", discountID),
		slog.Int("requests", requests),
		slog.Float64("rate", reqRate),
	)

	limiter := rate.NewLimiter(rate.Limit(reqRate), 1)
	client := &http.Client{Timeout: 10 * time.Second}
	var results tally

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(users)
	for i := 0; i < requests; i++ {
		userID := fmt.Sprintf("load-user-%d", i%users)
		g.Go(func() error {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			outcome, latency, err := fireApply(ctx, client, baseURL, apiKey, applyRequest{
				DiscountID: discountID,
				UserID:     userID,
				OrderID:    uuid.NewString(),
			})
			if err != nil {
				return err
			}
			results.record(latency, outcome)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	report(&results)
	return nil
}

func fireApply(ctx context.Context, client *http.Client, baseURL, apiKey string, body applyRequest) (string, time.Duration, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return "", 0, errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/discounts/apply", bytes.NewReader(buf))
	if err != nil {
		return "", 0, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return "", 0, errors.Wrap(err, "apply call")
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		var ar applyResponse
		if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
			return "", 0, errors.Wrap(err, "decode apply response")
		}
		if ar.AlreadyApplied {
			return "replayed", latency, nil
		}
		return "applied", latency, nil
	case http.StatusUnprocessableEntity:
		var er errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
			return "", 0, errors.Wrap(err, "decode error response")
		}
		return "limited", latency, nil
	case http.StatusTooManyRequests:
		return "throttled", latency, nil
	default:
		return "failed", latency, nil
	}
}

func report(t *tally) {
	sort.Slice(t.latencies, func(i, j int) bool { return t.latencies[i] < t.latencies[j] })

	slog.Info("load run complete",
		slog.Int("applied", t.applied),
		slog.Int("replayed", t.replayed),
		slog.Int("limited", t.limited),
		slog.Int("throttled", t.throttled),
		slog.Int("failed", t.failed),
	)
	if len(t.latencies) == 0 {
		return
	}
	slog.Info("latency",
		slog.Duration("p50", percentile(t.latencies, 50)),
		slog.Duration("p95", percentile(t.latencies, 95)),
		slog.Duration("p99", percentile(t.latencies, 99)),
		slog.Duration("max", t.latencies[len(t.latencies)-1]),
	)
}

// percentile picks from sorted latencies; p is 0-100.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
