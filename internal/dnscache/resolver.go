package dnscache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

var ErrNoRecords = errors.New("dnscache: no address records")

// DNSResolver resolves hostnames by exchanging queries with one DNS
// server. It asks for A records first and falls back to AAAA.
type DNSResolver struct {
	client *dns.Client
	server string
}

// NewDNSResolver builds a resolver against server ("host:port").
func NewDNSResolver(server string) *DNSResolver {
	return &DNSResolver{
		client: &dns.Client{Timeout: 3 * time.Second},
		server: server,
	}
}

func (r *DNSResolver) LookupHost(ctx context.Context, hostname string) (string, error) {
	// Literal addresses pass through untouched.
	if ip := net.ParseIP(hostname); ip != nil {
		return hostname, nil
	}

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		ip, err := r.query(ctx, hostname, qtype)
		if err == nil {
			return ip, nil
		}
		if !errors.Is(err, ErrNoRecords) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w for %s", ErrNoRecords, hostname)
}

func (r *DNSResolver) query(ctx context.Context, hostname string, qtype uint16) (string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(hostname), qtype)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return "", err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("dnscache: query %s: rcode %s", hostname, dns.RcodeToString[resp.Rcode])
	}
	for _, rr := range resp.Answer {
		switch record := rr.(type) {
		case *dns.A:
			return record.A.String(), nil
		case *dns.AAAA:
			return record.AAAA.String(), nil
		}
	}
	return "", ErrNoRecords
}
