//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goFeedback "github.com/MrEthical07/goFeedback"
	"github.com/MrEthical07/goFeedback/internal/stores"
	"github.com/MrEthical07/goFeedback/internal/testbackend"
)

// redisMode describes which Redis backend the compatibility suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes returns the Redis backends to test. miniredis is always
// available; REDIS_ADDR, REDIS_CLUSTER_ADDRS and REDIS_SENTINEL_ADDRS add
// real deployments.
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr := miniredis.RunT(t)
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				pingOrSkip(t, rdb, "Redis at "+addr)
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	if addrs := os.Getenv("REDIS_CLUSTER_ADDRS"); addrs != "" {
		modes = append(modes, redisMode{
			name: "cluster",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: splitAddrs(addrs)})
				pingOrSkip(t, rdb, "Redis cluster")
				return rdb, func() { _ = rdb.Close() }
			},
		})
	}

	if addrs := os.Getenv("REDIS_SENTINEL_ADDRS"); addrs != "" {
		master := os.Getenv("REDIS_SENTINEL_MASTER")
		if master == "" {
			master = "mymaster"
		}
		modes = append(modes, redisMode{
			name: "sentinel",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewFailoverClient(&redis.FailoverOptions{
					MasterName:    master,
					SentinelAddrs: splitAddrs(addrs),
				})
				pingOrSkip(t, rdb, "Redis sentinel")
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	return modes
}

func pingOrSkip(t *testing.T, rdb redis.UniversalClient, what string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("cannot connect to %s: %v", what, err)
	}
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

func compatClient(t *testing.T, backend *testbackend.Server, rdb redis.UniversalClient) *goFeedback.Client {
	t.Helper()
	cfg := goFeedback.DefaultConfig()
	cfg.Backend.BaseURL = backend.BaseURL()
	cfg.Ledger.RedisPrefix = "gfcompat"
	c, err := goFeedback.New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

// TestRedisCompat_ClaimOnce validates the Lua claim script across backends.
func TestRedisCompat_ClaimOnce(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			ledger := stores.NewRedisLedger(rdb, "gfcompat")
			ctx := context.Background()

			if err := ledger.Begin(ctx, "sub-once", "", time.Minute); err != nil {
				t.Fatalf("first claim: %v", err)
			}
			if err := ledger.Begin(ctx, "sub-once", "", time.Minute); !errors.Is(err, stores.ErrDuplicateSubmission) {
				t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
			}
			if err := ledger.Release(ctx, "sub-once", ""); err != nil {
				t.Fatalf("release: %v", err)
			}
			if err := ledger.Begin(ctx, "sub-once", "", time.Minute); err != nil {
				t.Fatalf("claim after release: %v", err)
			}
		})
	}
}

// TestRedisCompat_ConsumedTokenBlocksClaim validates that a consumed token
// refuses new claims and that MarkConsumed is idempotent.
func TestRedisCompat_ConsumedTokenBlocksClaim(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			ledger := stores.NewRedisLedger(rdb, "gfcompat")
			ctx := context.Background()
			key := stores.TokenKey("visitor@example.com", "tok-1")

			marked, err := ledger.MarkConsumed(ctx, key, time.Hour)
			if err != nil || !marked {
				t.Fatalf("first mark: marked=%v err=%v", marked, err)
			}
			marked, err = ledger.MarkConsumed(ctx, key, time.Hour)
			if err != nil || marked {
				t.Fatalf("second mark should be a no-op: marked=%v err=%v", marked, err)
			}
			if err := ledger.Begin(ctx, "sub-consumed", key, time.Minute); !errors.Is(err, stores.ErrTokenConsumed) {
				t.Fatalf("expected ErrTokenConsumed, got %v", err)
			}
			consumed, err := ledger.IsConsumed(ctx, key)
			if err != nil || !consumed {
				t.Fatalf("IsConsumed: consumed=%v err=%v", consumed, err)
			}
		})
	}
}

// TestRedisCompat_TokenHeldWhileInFlight validates the in-flight token claim.
func TestRedisCompat_TokenHeldWhileInFlight(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			ledger := stores.NewRedisLedger(rdb, "gfcompat")
			ctx := context.Background()
			key := stores.TokenKey("visitor@example.com", "tok-2")

			if err := ledger.Begin(ctx, "sub-a", key, time.Minute); err != nil {
				t.Fatalf("first claim: %v", err)
			}
			if err := ledger.Begin(ctx, "sub-b", key, time.Minute); !errors.Is(err, stores.ErrTokenInFlight) {
				t.Fatalf("expected ErrTokenInFlight, got %v", err)
			}
			if err := ledger.Release(ctx, "sub-a", key); err != nil {
				t.Fatalf("release: %v", err)
			}
			if err := ledger.Begin(ctx, "sub-b", key, time.Minute); err != nil {
				t.Fatalf("claim after release: %v", err)
			}
		})
	}
}

// TestRedisCompat_ConcurrentClaimSingleWinner races claims for one id.
func TestRedisCompat_ConcurrentClaimSingleWinner(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			ledger := stores.NewRedisLedger(rdb, "gfcompat")
			ctx := context.Background()

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if ledger.Begin(ctx, "sub-race", "", time.Minute) == nil {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			if got := wins.Load(); got != 1 {
				t.Fatalf("expected exactly one winner, got %d", got)
			}
		})
	}
}

// TestRedisCompat_LinkSpentAcrossClients validates that two clients sharing
// one Redis agree a link is spent after its first submission.
func TestRedisCompat_LinkSpentAcrossClients(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			backend := testbackend.New()
			defer backend.Close()
			a := compatClient(t, backend, rdb)
			b := compatClient(t, backend, rdb)
			ctx := context.Background()

			token := backend.Issue("visitor@example.com")
			sa := a.NewSession()
			defer sa.Close()
			if st := sa.Evaluate(ctx, goFeedback.MagicLinkContext{Email: "visitor@example.com", Token: token}); st.Phase != goFeedback.PhaseAuthorized {
				t.Fatalf("client A: %+v", st)
			}
			gate, err := sa.Submitter()
			if err != nil {
				t.Fatalf("Submitter: %v", err)
			}
			data := goFeedback.FeedbackData{
				FirstName: "Grace",
				LastName:  "Hopper",
				Email:     "visitor@example.com",
				Rating:    5,
				Feedback:  "Compat check.",
			}
			if _, err := gate.Submit(ctx, goFeedback.NewFeedbackSubmission(data)); err != nil {
				t.Fatalf("client A Submit: %v", err)
			}

			sb := b.ResumeAuthorized(ctx, "visitor@example.com", token)
			defer sb.Close()
			if st := sb.State(); st.Phase != goFeedback.PhaseRejected || st.Reason != goFeedback.MessageTokenConsumed {
				t.Fatalf("client B should see the link spent, got %+v", st)
			}
			if n := backend.Calls(testbackend.EndpointMagicFeedback); n != 1 {
				t.Fatalf("expected one backend submission, got %d", n)
			}
		})
	}
}
