package dnscache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingResolver struct {
	mu      sync.Mutex
	lookups map[string]int
	fail    map[string]error
}

func newCountingResolver() *countingResolver {
	return &countingResolver{lookups: map[string]int{}, fail: map[string]error{}}
}

func (r *countingResolver) LookupHost(_ context.Context, hostname string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[hostname]++
	if err, ok := r.fail[hostname]; ok {
		return "", err
	}
	return "192.0.2.10", nil
}

func (r *countingResolver) count(hostname string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookups[hostname]
}

func newTestManager(t *testing.T) (*Manager, *fakeClock, *countingResolver) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}
	resolver := newCountingResolver()
	m := New(resolver,
		WithClock(clock.Now),
		WithTTL(300*time.Second),
		WithWarmupTable(map[uint32][]string{
			0xa1b2c3d4: {"primary.internal", "broken.internal", "fallback.internal"},
		}),
	)
	return m, clock, resolver
}

func TestResolveMissThenHitThenExpiry(t *testing.T) {
	m, clock, resolver := newTestManager(t)
	ctx := context.Background()

	ip, err := m.Resolve(ctx, "primary.internal")
	require.NoError(t, err)
	require.Equal(t, "192.0.2.10", ip)
	require.Equal(t, uint64(0), m.Stats().Hits)
	require.Equal(t, uint64(1), m.Stats().Misses)

	// Within the TTL the resolver must not be consulted again.
	_, err = m.Resolve(ctx, "primary.internal")
	require.NoError(t, err)
	require.Equal(t, uint64(1), m.Stats().Hits)
	require.Equal(t, 1, resolver.count("primary.internal"))

	clock.Advance(301 * time.Second)
	_, err = m.Resolve(ctx, "primary.internal")
	require.NoError(t, err)
	require.Equal(t, uint64(2), m.Stats().Misses)
	require.Equal(t, 2, resolver.count("primary.internal"))
}

func TestWarmupSkipsFailingHostnames(t *testing.T) {
	m, _, resolver := newTestManager(t)
	resolver.fail["broken.internal"] = errors.New("nxdomain")

	require.NoError(t, m.Warmup(context.Background(), 0xa1b2c3d4))

	// The broken hostname did not block its siblings.
	require.Equal(t, 1, resolver.count("primary.internal"))
	require.Equal(t, 1, resolver.count("fallback.internal"))
	require.Equal(t, 2, m.Stats().Size)
}

func TestWarmupUnknownHash(t *testing.T) {
	m, _, _ := newTestManager(t)
	err := m.Warmup(context.Background(), 0x99999999)
	require.ErrorIs(t, err, ErrNoWarmupSet)
}

func TestResolveErrorIsNotCached(t *testing.T) {
	m, _, resolver := newTestManager(t)
	resolver.fail["broken.internal"] = errors.New("servfail")

	_, err := m.Resolve(context.Background(), "broken.internal")
	require.Error(t, err)
	require.Equal(t, 0, m.Stats().Size)

	delete(resolver.fail, "broken.internal")
	ip, err := m.Resolve(context.Background(), "broken.internal")
	require.NoError(t, err)
	require.Equal(t, "192.0.2.10", ip)
}

func TestResolveProxyURLPreservesShape(t *testing.T) {
	m, _, _ := newTestManager(t)

	out, err := m.ResolveProxyURL(context.Background(), "https://primary.internal:8443/v1/pipe?x=1")
	require.NoError(t, err)
	require.Equal(t, "https://192.0.2.10:8443/v1/pipe?x=1", out)

	out, err = m.ResolveProxyURL(context.Background(), "http://primary.internal/healthz")
	require.NoError(t, err)
	require.Equal(t, "http://192.0.2.10/healthz", out)

	_, err = m.ResolveProxyURL(context.Background(), "not a url://")
	require.Error(t, err)
}

func TestResetStatsKeepsEntries(t *testing.T) {
	m, _, resolver := newTestManager(t)
	ctx := context.Background()

	_, err := m.Resolve(ctx, "primary.internal")
	require.NoError(t, err)
	_, err = m.Resolve(ctx, "primary.internal")
	require.NoError(t, err)

	m.ResetStats()
	stats := m.Stats()
	require.Zero(t, stats.Hits)
	require.Zero(t, stats.Misses)
	require.Equal(t, 1, stats.Size)

	// Still served from cache after the reset.
	_, err = m.Resolve(ctx, "primary.internal")
	require.NoError(t, err)
	require.Equal(t, 1, resolver.count("primary.internal"))
	require.Equal(t, uint64(1), m.Stats().Hits)
}

func TestHitRate(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	require.Zero(t, m.Stats().HitRate)

	_, _ = m.Resolve(ctx, "primary.internal")
	_, _ = m.Resolve(ctx, "primary.internal")
	_, _ = m.Resolve(ctx, "primary.internal")
	require.InDelta(t, 2.0/3.0, m.Stats().HitRate, 1e-9)
}

func TestConcurrentResolveDoesNotCorrupt(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ip, err := m.Resolve(ctx, "primary.internal")
			if err != nil {
				errs <- err
				return
			}
			if ip != "192.0.2.10" {
				errs <- errors.New("unexpected ip " + ip)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	require.Equal(t, 1, m.Stats().Size)
}

func TestObserverSeesHitsAndMisses(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var observed []bool
	var mu sync.Mutex
	m := New(newCountingResolver(),
		WithClock(clock.Now),
		WithObserver(func(hit bool) {
			mu.Lock()
			observed = append(observed, hit)
			mu.Unlock()
		}),
	)

	_, _ = m.Resolve(context.Background(), "primary.internal")
	_, _ = m.Resolve(context.Background(), "primary.internal")
	require.Equal(t, []bool{false, true}, observed)
}
