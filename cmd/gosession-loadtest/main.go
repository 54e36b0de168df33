// Command gosession-loadtest drives concurrent authorized requests and gate
// checks through one session while the backend keeps revoking its token,
// and reports latency together with how many refresh calls reached the
// server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-hclog"
	goSession "github.com/moneysab/goSession"
	"github.com/moneysab/goSession/client"
	"github.com/moneysab/goSession/jwt"
	promexport "github.com/moneysab/goSession/metrics/export/prometheus"
	"github.com/moneysab/goSession/storage"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase")
		rotate      = flag.Duration("rotate", 50*time.Millisecond, "backend revokes the current token this often")
		redisAddr   = flag.String("redis-addr", "", "redis address for the token store; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "gosession-load", "token store key prefix")
		metricsAddr = flag.String("metrics-listen", "", "serve /metrics on this address while running")
	)
	flag.Parse()

	if *concurrency <= 0 || *ops <= 0 || *rotate <= 0 {
		fmt.Fprintln(os.Stderr, "concurrency, ops, and rotate must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

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
		addr = mr.Addr()
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = rdb.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	be, err := newBackend()
	if err != nil {
		fmt.Fprintf(os.Stderr, "backend: %v\n", err)
		os.Exit(1)
	}
	srv := httptest.NewServer(be.routes())
	defer srv.Close()

	cfg := goSession.DefaultConfig()
	cfg.Refresh.Periodic = false
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	log := hclog.New(&hclog.LoggerOptions{Name: "loadtest", Level: hclog.Warn})
	authClient, err := client.New(client.Options{BaseURL: srv.URL, Logger: log})
	if err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		os.Exit(1)
	}
	s, err := goSession.New().
		WithConfig(cfg).
		WithAuthAPI(client.NewAuthAPI(authClient)).
		WithStorage(storage.NewRedis(rdb, *prefix, 0)).
		WithLogger(log).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "session: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	if *metricsAddr != "" {
		h, err := promexport.Handler(s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "metrics: %v\n", err)
			os.Exit(1)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", h)
		go func() { _ = http.ListenAndServe(*metricsAddr, mux) }()
		fmt.Printf("serving metrics on %s/metrics\n", *metricsAddr)
	}

	if _, err := s.Login(ctx, "loadtest", "loadtest"); err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}

	data, err := client.New(client.Options{BaseURL: srv.URL, Transport: client.ForSession(s, nil), Retries: -1, Logger: log})
	if err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		os.Exit(1)
	}

	// A revocation landing between refresh and retry ends the session; the
	// worker that notices signs in again so the phase keeps running.
	var relogins atomic.Uint64
	stopRotate := be.rotateEvery(*rotate)
	requestStats := runPhase(*ops, *concurrency, func() error {
		var out json.RawMessage
		err := data.Get(ctx, "/api/banks", nil, &out)
		if err != nil && !s.IsAuthenticated(ctx) {
			if _, lerr := s.Login(ctx, "loadtest", "loadtest"); lerr == nil {
				relogins.Add(1)
			}
		}
		return err
	})
	gate := s.Gate()
	gateStats := runPhase(*ops, *concurrency, func() error {
		if d := gate.Check(ctx, goSession.Route{Path: "/invoices", RequiredRoles: []string{"ROLE_USER"}}); !d.Allowed {
			return fmt.Errorf("denied: %s", d.Reason)
		}
		return nil
	})
	stopRotate()

	m := s.Metrics()
	fmt.Println("---- results ----")
	printStats("authorized-get", requestStats)
	printStats("gate-check", gateStats)
	fmt.Printf("revocations=%d refresh-calls=%d joined=%d retried=%d relogins=%d\n",
		be.revocations.Load(),
		be.refreshes.Load(),
		m.Value(goSession.MetricRefreshJoined),
		m.Value(goSession.MetricRetryAfterRefresh),
		relogins.Load(),
	)
}

// backend issues tokens and revokes the current one on a timer. Revoked
// tokens stay refreshable, as with a server-side access token expiry.
type backend struct {
	signer      *jwt.Manager
	mu          sync.RWMutex
	current     map[string]bool
	issued      map[string]bool
	seq         atomic.Uint64
	refreshes   atomic.Uint64
	revocations atomic.Uint64
}

func newBackend() (*backend, error) {
	signer, err := jwt.NewManager(jwt.Config{SigningMethod: jwt.MethodHS256, PrivateKey: []byte("loadtest-signing-secret-32-bytes")})
	if err != nil {
		return nil, err
	}
	return &backend{signer: signer, current: map[string]bool{}, issued: map[string]bool{}}, nil
}

func (b *backend) mint() (string, error) {
	token, err := b.signer.Issue(jwt.Claims{
		Username: "loadtest",
		Role:     "ROLE_USER",
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "loadtest",
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Hour)),
			ID:        fmt.Sprintf("t-%d", b.seq.Add(1)),
		},
	})
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.current[token] = true
	b.issued[token] = true
	b.mu.Unlock()
	return token, nil
}

func (b *backend) rotateEvery(d time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				b.mu.Lock()
				b.current = map[string]bool{}
				b.mu.Unlock()
				b.revocations.Add(1)
			}
		}
	}()
	return func() { close(done) }
}

func (b *backend) routes() http.Handler {
	r := chi.NewRouter()
	issue := func(w http.ResponseWriter) {
		token, err := b.mint()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"accessToken": token})
	}
	r.Post("/api/auth/sign-in", func(w http.ResponseWriter, _ *http.Request) { issue(w) })
	r.Post("/api/auth/refresh", func(w http.ResponseWriter, req *http.Request) {
		b.refreshes.Add(1)
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		b.mu.RLock()
		ok := b.issued[body.RefreshToken]
		b.mu.RUnlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		issue(w)
	})
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				token := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
				b.mu.RLock()
				ok := b.current[token]
				b.mu.RUnlock()
				if !ok {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, req)
			})
		})
		r.Get("/api/user/me", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, goSession.User{ID: "lt", Username: "loadtest", Role: "ROLE_USER"})
		})
		r.Get("/api/banks", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, []string{"412345"})
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func runPhase(ops, concurrency int, op func() error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op()
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
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
		return phaseStats{total: total}
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
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
