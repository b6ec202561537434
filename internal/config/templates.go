package config

import (
	"fmt"
	"os"
)

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(daemonTemplate), 0o600)
}

const daemonTemplate = `name = "edgeproxy"
proxy_addr = ":9420"
admin_addr = ":9421"
cors_origins = ["http://localhost:3000"]
protocol_version = 1
secret = "change-me"
strict_routing = false
connect_timeout = "10s"
dns_ttl = "5m"

[dns]
server = "1.1.1.1:53"

[[upstreams]]
host = "primary.internal"
port = 8443
hash = 0xa1b2c3d4
tls = true

[[upstreams]]
host = "fallback.internal"
port = 8080
hash = 0x00000000
tls = false

[[warmup]]
hash = 0xa1b2c3d4
hostnames = ["primary.internal", "fallback.internal"]

[[domains]]
domain = "@tenant-a"
hashes = [0xa1b2c3d4]
`
