// Command feedback-loadtest measures the client against an in-process backend:
// concurrent magic-link evaluation (with repeated evaluations of the same
// link) and single-use submissions through the submission ledger.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goFeedback "github.com/MrEthical07/goFeedback"
	"github.com/MrEthical07/goFeedback/internal/testbackend"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

type linkState struct {
	email string
	token string
}

func main() {
	var (
		links       = pflag.Int("links", 2000, "number of magic links to issue")
		concurrency = pflag.Int("concurrency", 64, "number of concurrent workers")
		repeats     = pflag.Int("repeats", 4, "concurrent evaluations per session (deduplicated into one call)")
		redisAddr   = pflag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = pflag.String("prefix", "gfl-load", "ledger key prefix")
	)
	pflag.Parse()

	if *links <= 0 || *concurrency <= 0 || *repeats <= 0 {
		fmt.Fprintln(os.Stderr, "links, concurrency, and repeats must be > 0")
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		rdb     redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = rdb.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	backend := testbackend.New()
	defer backend.Close()

	cfg := goFeedback.DefaultConfig()
	cfg.Backend.BaseURL = backend.BaseURL()
	cfg.Ledger.RedisPrefix = *prefix

	client, err := goFeedback.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "client build failed: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	states := make([]linkState, *links)
	fmt.Printf("issuing %d links...\n", *links)
	for i := range states {
		email := fmt.Sprintf("user-%d@load.test", i)
		states[i] = linkState{email: email, token: backend.Issue(email)}
	}

	ctx := context.Background()
	sessions := make([]*goFeedback.MagicLinkSession, len(states))
	evaluateStats := runEvaluatePhase(ctx, client, states, sessions, *concurrency, *repeats)
	submitStats := runSubmitPhase(ctx, sessions, *concurrency)
	for _, s := range sessions {
		if s != nil {
			s.Close()
		}
	}

	snap := client.MetricsSnapshot()
	fmt.Println("---- results ----")
	printStats("evaluate", evaluateStats)
	printStats("submit", submitStats)
	fmt.Printf("validate calls=%d deduped=%d consumed=%d\n",
		backend.Calls(testbackend.EndpointValidate),
		snap.Counters[goFeedback.MetricEvaluateDeduped],
		snap.Counters[goFeedback.MetricTokenConsumed],
	)

	if calls := backend.Calls(testbackend.EndpointValidate); calls > len(states) {
		fmt.Fprintf(os.Stderr, "FAIL: %d validation calls for %d links\n", calls, len(states))
		os.Exit(1)
	}
	if evaluateStats.failures > 0 || submitStats.failures > 0 {
		fmt.Fprintf(os.Stderr, "FAIL: evaluate failures=%d submit failures=%d\n", evaluateStats.failures, submitStats.failures)
		os.Exit(1)
	}
}

// runEvaluatePhase opens one session per link and evaluates it from several
// goroutines at once.
func runEvaluatePhase(ctx context.Context, client *goFeedback.Client, states []linkState, sessions []*goFeedback.MagicLinkSession, concurrency, repeats int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, len(states)*repeats)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(states) {
					return
				}
				session := client.NewSession()
				sessions[i] = session
				mc := goFeedback.MagicLinkContext{Email: states[i].email, Token: states[i].token}

				var inner sync.WaitGroup
				for r := 0; r < repeats; r++ {
					inner.Add(1)
					go func() {
						defer inner.Done()
						t0 := time.Now()
						st := session.Evaluate(ctx, mc)
						d := time.Since(t0)
						if !st.CanSubmit() {
							atomic.AddInt64(&failures, 1)
						}
						mu.Lock()
						latencies = append(latencies, d)
						mu.Unlock()
					}()
				}
				inner.Wait()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

// runSubmitPhase submits twice through each authorized session; the second
// call must be refused because the link is spent.
func runSubmitPhase(ctx context.Context, sessions []*goFeedback.MagicLinkSession, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, len(sessions))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(sessions) {
					return
				}
				session := sessions[i]
				if session == nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				gate, err := session.Submitter()
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				sub := goFeedback.NewFeedbackSubmission(goFeedback.FeedbackData{
					FirstName: "Load",
					LastName:  "Test",
					Email:     gate.Email(),
					Rating:    1 + r.Intn(5),
					Feedback:  "load test feedback",
				})

				t0 := time.Now()
				_, err = gate.Submit(ctx, sub)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				if _, again := gate.Submit(ctx, goFeedback.NewFeedbackSubmission(sub.Data)); again == nil {
					atomic.AddInt64(&failures, 1)
				}

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
