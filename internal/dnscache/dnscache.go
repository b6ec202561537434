// Package dnscache resolves upstream hostnames through a TTL cache.
//
// The manager is an explicitly constructed component: its clock and
// resolver are injected so tests can drive expiry without sleeping.
// Cache writes are replace-on-refresh; a racing pair of resolutions for
// the same hostname means the last write wins, bounded by the TTL.
package dnscache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL bounds staleness of a cached address.
const DefaultTTL = 300 * time.Second

// fastLookupThreshold classifies live lookups for observability only.
const fastLookupThreshold = 5 * time.Millisecond

var ErrNoWarmupSet = errors.New("dnscache: no warmup hostnames for registry hash")

// Resolver performs one real hostname resolution.
type Resolver interface {
	LookupHost(ctx context.Context, hostname string) (string, error)
}

// ResolverFunc adapts a function into a Resolver.
type ResolverFunc func(ctx context.Context, hostname string) (string, error)

func (f ResolverFunc) LookupHost(ctx context.Context, hostname string) (string, error) {
	return f(ctx, hostname)
}

// Stats is a read-only counter snapshot. ResetStats zeroes the counters
// without evicting entries.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

type entry struct {
	ip       string
	deadline time.Time
}

// Manager is the process-lifetime cache. Safe for concurrent use.
type Manager struct {
	resolver Resolver
	clock    func() time.Time
	ttl      time.Duration
	warmup   map[uint32][]string
	log      zerolog.Logger

	mu      sync.RWMutex
	entries map[string]entry

	hits     atomic.Uint64
	misses   atomic.Uint64
	observer func(hit bool)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects the time source.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// WithWarmupTable supplies the registry-hash-to-hostname-set table.
func WithWarmupTable(table map[uint32][]string) Option {
	return func(m *Manager) { m.warmup = table }
}

// WithLogger injects the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithObserver installs a per-resolution hit/miss hook, used to feed
// process-wide metrics. The hook must not block.
func WithObserver(observer func(hit bool)) Option {
	return func(m *Manager) { m.observer = observer }
}

// New builds a Manager around the given resolver.
func New(resolver Resolver, opts ...Option) *Manager {
	m := &Manager{
		resolver: resolver,
		clock:    time.Now,
		ttl:      DefaultTTL,
		warmup:   map[uint32][]string{},
		log:      zerolog.Nop(),
		entries:  make(map[string]entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Warmup eagerly resolves the hostname set associated with registryHash.
// Individual failures are logged and skipped so one bad hostname does not
// block the rest.
func (m *Manager) Warmup(ctx context.Context, registryHash uint32) error {
	hosts, ok := m.warmup[registryHash]
	if !ok || len(hosts) == 0 {
		return fmt.Errorf("%w: 0x%08x", ErrNoWarmupSet, registryHash)
	}
	for _, host := range hosts {
		if _, err := m.Resolve(ctx, host); err != nil {
			m.log.Warn().
				Str("hostname", host).
				Uint32("registry_hash", registryHash).
				Err(err).
				Msg("dns warmup skipped hostname")
		}
	}
	return nil
}

// Resolve returns the cached address for hostname, or performs a real
// lookup on miss or expiry. Counters classify cache behavior; live lookup
// latency is logged for observability only.
func (m *Manager) Resolve(ctx context.Context, hostname string) (string, error) {
	now := m.clock()

	m.mu.RLock()
	cached, ok := m.entries[hostname]
	m.mu.RUnlock()
	if ok && now.Before(cached.deadline) {
		m.hits.Add(1)
		m.observe(true)
		return cached.ip, nil
	}

	m.misses.Add(1)
	m.observe(false)
	start := now
	ip, err := m.resolver.LookupHost(ctx, hostname)
	if err != nil {
		return "", fmt.Errorf("dnscache: resolve %s: %w", hostname, err)
	}
	elapsed := m.clock().Sub(start)
	m.log.Debug().
		Str("hostname", hostname).
		Str("ip", ip).
		Dur("elapsed", elapsed).
		Bool("fast", elapsed < fastLookupThreshold).
		Msg("dns lookup")

	m.mu.Lock()
	m.entries[hostname] = entry{ip: ip, deadline: m.clock().Add(m.ttl)}
	m.mu.Unlock()
	return ip, nil
}

// ResolveProxyURL substitutes the resolved address for the hostname in
// rawURL, preserving scheme, port, path, and query.
func (m *Manager) ResolveProxyURL(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("dnscache: parse url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("dnscache: url %q has no hostname", rawURL)
	}
	ip, err := m.Resolve(ctx, host)
	if err != nil {
		return "", err
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(ip, port)
	} else {
		u.Host = ip
	}
	return u.String(), nil
}

func (m *Manager) observe(hit bool) {
	if m.observer != nil {
		m.observer(hit)
	}
}

// Stats snapshots the counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	size := len(m.entries)
	m.mu.RUnlock()

	hits := m.hits.Load()
	misses := m.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{Hits: hits, Misses: misses, Size: size, HitRate: rate}
}

// ResetStats zeroes the counters. Cached entries survive.
func (m *Manager) ResetStats() {
	m.hits.Store(0)
	m.misses.Store(0)
}
