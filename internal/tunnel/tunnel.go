// Package tunnel orchestrates the HTTP CONNECT path: header validation,
// config extraction, token verification, upstream selection, DNS-cached
// resolution, and bidirectional byte piping.
package tunnel

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/edgeproxy/internal/observability"
	"github.com/danmuck/edgeproxy/internal/protocol"
	"github.com/danmuck/edgeproxy/internal/validate"
)

// TokenVerifier authenticates a proxy token for a registry hash.
type TokenVerifier interface {
	Verify(token string, expectedHash uint32) bool
}

// HostResolver resolves one hostname, normally the DNS cache manager.
type HostResolver interface {
	Resolve(ctx context.Context, hostname string) (string, error)
}

// Dialer opens the upstream socket.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Options wires the orchestrator's collaborators. Everything is injected;
// the orchestrator holds no process-wide state of its own.
type Options struct {
	Validator       *validate.Validator
	Verifier        TokenVerifier
	Resolver        HostResolver
	Routes          *RoutingTable
	ExpectedVersion uint8
	DialTimeout     time.Duration
	Dialer          Dialer
	Log             zerolog.Logger
}

// Orchestrator handles each inbound CONNECT request independently.
type Orchestrator struct {
	opts Options
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Validator == nil || opts.Verifier == nil || opts.Resolver == nil || opts.Routes == nil {
		return nil, errors.New("tunnel: validator, verifier, resolver, and routes are required")
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{Timeout: opts.DialTimeout}
	}
	return &Orchestrator{opts: opts}, nil
}

// Serve accepts connections until the listener closes or ctx is done.
// Each connection is handled on its own goroutine.
func (o *Orchestrator) Serve(ctx context.Context, l net.Listener) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go o.HandleConn(ctx, conn)
	}
}

// HandleConn drives one connection through the request state machine.
func (o *Orchestrator) HandleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err != nil {
		o.opts.Log.Debug().Err(err).Msg("unreadable request")
		return
	}

	log := o.opts.Log.With().
		Str("remote", conn.RemoteAddr().String()).
		Str("request_id", req.Header.Get(protocol.HeaderRequestID)).
		Str("target", req.Host).
		Logger()
	state := StateReceived

	if req.Method != http.MethodConnect {
		o.reject(conn, log, state, http.StatusMethodNotAllowed, nil)
		return
	}
	state = StateHeadersValidated

	if result := o.opts.Validator.Validate(req.Header); !result.OK {
		o.reject(conn, log, state, http.StatusBadRequest, result.Errors)
		return
	}
	state = StateConfigExtracted

	cfg, err := protocol.ExtractConfigFromHeaders(req.Header)
	if err != nil {
		// The validator vouched for every field; a failure here means the
		// dump disagreed with itself.
		o.reject(conn, log, state, http.StatusBadRequest, nil)
		return
	}
	if cfg.Version != o.opts.ExpectedVersion {
		o.reject(conn, log, state, http.StatusServiceUnavailable, nil)
		return
	}
	state = StateVersionChecked

	if !o.opts.Verifier.Verify(req.Header.Get(protocol.HeaderProxyToken), cfg.RegistryHash) {
		o.reject(conn, log, state, http.StatusUnauthorized, nil)
		return
	}
	state = StateTokenVerified

	up, matched, ok := o.opts.Routes.Select(cfg.RegistryHash)
	if !ok {
		o.reject(conn, log, state, http.StatusBadGateway, nil)
		return
	}
	if !matched {
		log.Warn().
			Uint32("registry_hash", cfg.RegistryHash).
			Str("upstream", up.Addr()).
			Msg("unknown registry hash, falling back to default upstream")
	}
	state = StateUpstreamSelected

	ip, err := o.opts.Resolver.Resolve(ctx, up.Host)
	if err != nil {
		log.Warn().Err(err).Str("upstream", up.Addr()).Msg("dns resolution failed")
		o.reject(conn, log, state, http.StatusBadGateway, nil)
		return
	}
	state = StateDNSResolved

	upstream, err := o.dialUpstream(ctx, up, ip)
	if err != nil {
		log.Warn().Err(err).Str("upstream", up.Addr()).Msg("upstream connect failed")
		o.reject(conn, log, state, http.StatusBadGateway, nil)
		return
	}
	state = StateTunnelEstablished
	observability.RecordTunnelEstablished()

	if _, err := io.WriteString(conn, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
		upstream.Close()
		return
	}
	state = StatePiping
	log.Info().Str("upstream", up.Addr()).Str("resolved_ip", ip).Msg("tunnel piping")

	pipe(conn, br, upstream)
	state = StateClosed
	log.Debug().Str("state", string(state)).Msg("tunnel closed")
}

func (o *Orchestrator) dialUpstream(ctx context.Context, up Upstream, ip string) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, o.opts.DialTimeout)
	defer cancel()

	addr := net.JoinHostPort(ip, fmt.Sprintf("%d", up.Port))
	raw, err := o.opts.Dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if !up.TLS {
		return raw, nil
	}

	// TLS upstreams verify against the configured hostname, not the
	// resolved address.
	tlsConn := tls.Client(raw, &tls.Config{ServerName: up.Host})
	if err := tlsConn.HandshakeContext(dialCtx); err != nil {
		raw.Close()
		return nil, err
	}
	return tlsConn, nil
}

// pipe copies bytes both ways until either side closes or errors, then
// tears down both sockets. clientBuf may hold bytes read past the request.
func pipe(client net.Conn, clientBuf *bufio.Reader, upstream net.Conn) {
	var once sync.Once
	teardown := func() {
		once.Do(func() {
			client.Close()
			upstream.Close()
		})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer teardown()
		n, _ := io.Copy(upstream, clientBuf)
		observability.RecordTunnelBytes("client_to_upstream", n)
	}()
	go func() {
		defer wg.Done()
		defer teardown()
		n, _ := io.Copy(client, upstream)
		observability.RecordTunnelBytes("upstream_to_client", n)
	}()
	wg.Wait()
}

func (o *Orchestrator) reject(conn net.Conn, log zerolog.Logger, from State, status int, errs []validate.FieldError) {
	observability.RecordTunnelRejected(status)
	log.Warn().
		Str("state", string(from)).
		Int("status", status).
		Int("validation_errors", len(errs)).
		Msg("connect request rejected")

	body := []byte("{}")
	if len(errs) > 0 {
		if encoded, err := json.Marshal(map[string]any{"errors": errs}); err == nil {
			body = encoded
		}
	}
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\nContent-Type: application/json\r\nContent-Length: %d\r\nConnection: close\r\n\r\n",
		status, http.StatusText(status), len(body))
	conn.Write(body)
}
