package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/edgeproxy/internal/config"
	"github.com/danmuck/edgeproxy/internal/dnscache"
	"github.com/danmuck/edgeproxy/internal/logging"
	"github.com/danmuck/edgeproxy/internal/observability"
	"github.com/danmuck/edgeproxy/internal/protocol"
	"github.com/danmuck/edgeproxy/internal/server"
	"github.com/danmuck/edgeproxy/internal/token"
	"github.com/danmuck/edgeproxy/internal/tunnel"
	"github.com/danmuck/edgeproxy/internal/validate"
)

func main() {
	configPath := flag.String("config", "cmd/edgeproxyd/config.toml", "daemon config path")
	flag.Parse()

	logging.ConfigureRuntime()
	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "edgeproxyd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.InitLogger(cfg.Name)
	observability.RegisterMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dns := dnscache.New(
		dnscache.NewDNSResolver(cfg.DNS.Server),
		dnscache.WithTTL(cfg.DNS.TTL),
		dnscache.WithWarmupTable(cfg.WarmupTable()),
		dnscache.WithLogger(logger),
		dnscache.WithObserver(observability.RecordDNSCache),
	)
	for hash := range cfg.WarmupTable() {
		if err := dns.Warmup(ctx, hash); err != nil {
			logger.Warn().Err(err).Uint32("registry_hash", hash).Msg("dns warmup incomplete")
		}
	}

	issuer, err := token.NewIssuer([]byte(cfg.Secret), nil)
	if err != nil {
		return err
	}
	verifier, err := token.NewVerifier([]byte(cfg.Secret), cfg.Authorizations())
	if err != nil {
		return err
	}

	validator := validate.New(
		cfg.DomainNames(),
		validate.WithMetrics(observability.ValidationMetrics{}),
		validate.WithKnownHashes(cfg.KnownHashes()),
		validate.WithKnownValueLogger(func(header, value string, known bool) {
			logger.Debug().Str("header", header).Str("value", value).Bool("known", known).Msg("registry hash observed")
		}),
	)

	ups := make([]tunnel.Upstream, 0, len(cfg.Upstreams))
	for _, up := range cfg.Upstreams {
		ups = append(ups, tunnel.Upstream{
			Host: up.Host,
			Port: up.Port,
			Hash: uint32(up.Hash),
			TLS:  up.TLS,
		})
	}
	routes, err := tunnel.NewRoutingTable(ups, cfg.StrictRouting)
	if err != nil {
		return err
	}

	orchestrator, err := tunnel.New(tunnel.Options{
		Validator:       validator,
		Verifier:        verifier,
		Resolver:        dns,
		Routes:          routes,
		ExpectedVersion: cfg.ProtocolVersion,
		DialTimeout:     cfg.ConnectTimeout,
		Log:             logger,
	})
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.ProxyAddr)
	if err != nil {
		return err
	}
	logger.Info().Str("proxy_addr", cfg.ProxyAddr).Str("admin_addr", cfg.AdminAddr).Msg("edgeproxy up")

	errCh := make(chan error, 2)
	go func() {
		errCh <- orchestrator.Serve(ctx, listener)
	}()

	admin := server.New(server.Options{
		Name:        cfg.Name,
		CorsOrigins: cfg.CorsOrigins,
		Issuer:      issuer,
		DNS:         dns,
		Domains:     cfg.DomainNames(),
		Baseline: protocol.ConfigState{
			Version: cfg.ProtocolVersion,
			Rows:    24,
			Cols:    80,
		},
	})
	admin.RegisterRoutes()
	go func() {
		errCh <- admin.Run(cfg.AdminAddr)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}
