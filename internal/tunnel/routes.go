package tunnel

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

var ErrNoUpstreams = errors.New("tunnel: routing table requires at least one upstream")

// Upstream is one static routing table entry.
type Upstream struct {
	Host string
	Port int
	Hash uint32
	TLS  bool
}

// Addr returns the dialable host:port.
func (u Upstream) Addr() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
}

func (u Upstream) String() string {
	return fmt.Sprintf("%s (hash=0x%08x tls=%t)", u.Addr(), u.Hash, u.TLS)
}

// RoutingTable is loaded at startup and read-only during request handling.
// Lookup is a pure hash-table access on the registry hash.
type RoutingTable struct {
	byHash   map[uint32]Upstream
	fallback Upstream
	strict   bool
}

// NewRoutingTable indexes ups by hash. The first entry is the fallback
// used when no hash matches and strict routing is off.
func NewRoutingTable(ups []Upstream, strict bool) (*RoutingTable, error) {
	if len(ups) == 0 {
		return nil, ErrNoUpstreams
	}
	byHash := make(map[uint32]Upstream, len(ups))
	for _, up := range ups {
		byHash[up.Hash] = up
	}
	return &RoutingTable{byHash: byHash, fallback: ups[0], strict: strict}, nil
}

// Select returns the upstream for hash. matched is false when the fallback
// was substituted; in strict mode an unmatched hash returns ok=false
// instead of the fallback.
func (t *RoutingTable) Select(hash uint32) (up Upstream, matched, ok bool) {
	if up, found := t.byHash[hash]; found {
		return up, true, true
	}
	if t.strict {
		return Upstream{}, false, false
	}
	return t.fallback, false, true
}
