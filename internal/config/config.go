// Package config loads the daemon's startup inputs: listener addresses,
// the upstream routing table, the DNS warmup table, domain authorizations,
// and the token signing secret.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Name            string        `toml:"name"`
	ProxyAddr       string        `toml:"proxy_addr"`
	AdminAddr       string        `toml:"admin_addr"`
	CorsOrigins     []string      `toml:"cors_origins"`
	ProtocolVersion uint8         `toml:"protocol_version"`
	Secret          string        `toml:"secret"`
	StrictRouting   bool          `toml:"strict_routing"`
	ConnectTimeout  time.Duration `toml:"-"`

	DNS       DNSConfig    `toml:"dns"`
	Upstreams []Upstream   `toml:"upstreams"`
	Warmup    []WarmupSet  `toml:"warmup"`
	Domains   []DomainAuth `toml:"domains"`
}

type DNSConfig struct {
	Server string        `toml:"server"`
	TTL    time.Duration `toml:"-"`
}

// Upstream is one static routing table entry, keyed by Hash.
type Upstream struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	Hash int64  `toml:"hash"`
	TLS  bool   `toml:"tls"`
}

// WarmupSet names the hostnames pre-resolved for one registry hash.
type WarmupSet struct {
	Hash      int64    `toml:"hash"`
	Hostnames []string `toml:"hostnames"`
}

// DomainAuth authorizes one domain for a set of registry hashes.
type DomainAuth struct {
	Domain string  `toml:"domain"`
	Hashes []int64 `toml:"hashes"`
}

type fileConfig struct {
	Config
	ConnectTimeout string `toml:"connect_timeout"`
	DNSTTL         string `toml:"dns_ttl"`
}

func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg := raw.Config

	if cfg.Name == "" {
		cfg.Name = "edgeproxy"
	}
	if cfg.ProxyAddr == "" {
		cfg.ProxyAddr = ":9420"
	}
	if cfg.AdminAddr == "" {
		cfg.AdminAddr = ":9421"
	}
	if !meta.IsDefined("protocol_version") {
		cfg.ProtocolVersion = 1
	}
	if cfg.DNS.Server == "" {
		cfg.DNS.Server = "1.1.1.1:53"
	}

	cfg.ConnectTimeout = 10 * time.Second
	if meta.IsDefined("connect_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ConnectTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("config parse connect_timeout: %w", err)
		}
		cfg.ConnectTimeout = d
	}
	cfg.DNS.TTL = 300 * time.Second
	if meta.IsDefined("dns_ttl") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DNSTTL))
		if err != nil {
			return Config{}, fmt.Errorf("config parse dns_ttl: %w", err)
		}
		cfg.DNS.TTL = d
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Secret) == "" {
		return fmt.Errorf("config missing secret")
	}
	if len(cfg.Upstreams) == 0 {
		return fmt.Errorf("config requires at least one upstream")
	}
	for i, up := range cfg.Upstreams {
		if strings.TrimSpace(up.Host) == "" {
			return fmt.Errorf("upstream[%d] missing host", i)
		}
		if up.Port <= 0 || up.Port > 65535 {
			return fmt.Errorf("upstream[%d] invalid port %d", i, up.Port)
		}
		if up.Hash < 0 || up.Hash > int64(^uint32(0)) {
			return fmt.Errorf("upstream[%d] hash out of 32-bit range", i)
		}
	}
	for i, set := range cfg.Warmup {
		if len(set.Hostnames) == 0 {
			return fmt.Errorf("warmup[%d] has no hostnames", i)
		}
	}
	for i, auth := range cfg.Domains {
		if strings.TrimSpace(auth.Domain) == "" {
			return fmt.Errorf("domains[%d] missing domain", i)
		}
		if len(auth.Hashes) == 0 {
			return fmt.Errorf("domains[%d] authorizes no hashes", i)
		}
	}
	return nil
}

// DomainNames returns the allow-list order-preserved.
func (c Config) DomainNames() []string {
	names := make([]string, 0, len(c.Domains))
	for _, auth := range c.Domains {
		names = append(names, auth.Domain)
	}
	return names
}

// Authorizations converts the domain table to the verifier's shape.
func (c Config) Authorizations() map[string][]uint32 {
	out := make(map[string][]uint32, len(c.Domains))
	for _, auth := range c.Domains {
		hashes := make([]uint32, 0, len(auth.Hashes))
		for _, h := range auth.Hashes {
			hashes = append(hashes, uint32(h))
		}
		out[auth.Domain] = hashes
	}
	return out
}

// WarmupTable converts the warmup sets to the DNS cache manager's shape.
func (c Config) WarmupTable() map[uint32][]string {
	out := make(map[uint32][]string, len(c.Warmup))
	for _, set := range c.Warmup {
		out[uint32(set.Hash)] = append(out[uint32(set.Hash)], set.Hostnames...)
	}
	return out
}

// KnownHashes lists every routed registry hash for informational logging.
func (c Config) KnownHashes() []uint32 {
	out := make([]uint32, 0, len(c.Upstreams))
	for _, up := range c.Upstreams {
		out = append(out, uint32(up.Hash))
	}
	return out
}
