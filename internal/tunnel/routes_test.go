package tunnel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRoutingTableRequiresUpstreams(t *testing.T) {
	_, err := NewRoutingTable(nil, false)
	require.ErrorIs(t, err, ErrNoUpstreams)
}

func TestSelectExactMatch(t *testing.T) {
	table, err := NewRoutingTable([]Upstream{
		{Host: "edge-a.internal", Port: 8443, Hash: 0xa1b2c3d4, TLS: true},
		{Host: "edge-b.internal", Port: 8080, Hash: 0x11223344},
	}, false)
	require.NoError(t, err)

	up, matched, ok := table.Select(0x11223344)
	require.True(t, ok)
	require.True(t, matched)
	require.Equal(t, "edge-b.internal:8080", up.Addr())
	require.False(t, up.TLS)
}

func TestSelectFallbackIsFirstEntry(t *testing.T) {
	table, err := NewRoutingTable([]Upstream{
		{Host: "edge-a.internal", Port: 8443, Hash: 0xa1b2c3d4},
		{Host: "edge-b.internal", Port: 8080, Hash: 0x11223344},
	}, false)
	require.NoError(t, err)

	up, matched, ok := table.Select(0xdeadbeef)
	require.True(t, ok)
	require.False(t, matched)
	require.Equal(t, "edge-a.internal:8443", up.Addr())
}

func TestSelectStrictRejectsUnknownHash(t *testing.T) {
	table, err := NewRoutingTable([]Upstream{
		{Host: "edge-a.internal", Port: 8443, Hash: 0xa1b2c3d4},
	}, true)
	require.NoError(t, err)

	_, _, ok := table.Select(0xdeadbeef)
	require.False(t, ok)

	up, matched, ok := table.Select(0xa1b2c3d4)
	require.True(t, ok)
	require.True(t, matched)
	require.Equal(t, "edge-a.internal", up.Host)
}

func TestUpstreamString(t *testing.T) {
	up := Upstream{Host: "edge-a.internal", Port: 8443, Hash: 0xa1b2c3d4, TLS: true}
	require.Equal(t, "edge-a.internal:8443 (hash=0xa1b2c3d4 tls=true)", up.String())
}
