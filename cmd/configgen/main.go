package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/danmuck/edgeproxy/internal/config"
	"github.com/danmuck/edgeproxy/internal/protocol"
)

func main() {
	output := flag.String("output", "cmd/edgeproxyd/config.toml", "output path for config template")
	validateFlag := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to the output path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	decode := flag.String("decode", "", "decode a 0x config dump and print its fields")
	encode := flag.String("encode", "", "encode version,hash,flags,mode,rows,cols into a config dump")
	flag.Parse()

	switch {
	case *decode != "":
		cfg, err := protocol.FromHex(*decode)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("version=%d registry_hash=0x%08x feature_flags=0x%08x terminal_mode=%d rows=%d cols=%d\n",
			cfg.Version, cfg.RegistryHash, cfg.FeatureFlags, cfg.TerminalMode, cfg.Rows, cfg.Cols)

	case *encode != "":
		cfg, err := parseFields(*encode)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(cfg.Hex())

	case *validateFlag:
		path := *input
		if path == "" {
			path = *output
		}
		if _, err := config.Load(path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated config at %s", path)

	default:
		if err := config.WriteTemplate(*output, *force); err != nil {
			log.Fatal(err)
		}
		log.Printf("Wrote config template to %s", *output)
	}
}

func parseFields(raw string) (protocol.ConfigState, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 6 {
		return protocol.ConfigState{}, fmt.Errorf("want version,hash,flags,mode,rows,cols, got %d fields", len(parts))
	}
	var cfg protocol.ConfigState
	specs := []struct {
		name string
		set  func(uint64)
		max  uint64
	}{
		{"version", func(v uint64) { cfg.Version = uint8(v) }, 255},
		{"hash", func(v uint64) { cfg.RegistryHash = uint32(v) }, 1<<32 - 1},
		{"flags", func(v uint64) { cfg.FeatureFlags = uint32(v) }, 1<<32 - 1},
		{"mode", func(v uint64) { cfg.TerminalMode = uint8(v) }, 3},
		{"rows", func(v uint64) { cfg.Rows = uint8(v) }, 255},
		{"cols", func(v uint64) { cfg.Cols = uint8(v) }, 255},
	}
	for i, spec := range specs {
		v, err := parseNumber(strings.TrimSpace(parts[i]))
		if err != nil {
			return protocol.ConfigState{}, fmt.Errorf("parse %s: %w", spec.name, err)
		}
		if v > spec.max {
			return protocol.ConfigState{}, fmt.Errorf("%s out of range: %d", spec.name, v)
		}
		spec.set(v)
	}
	return cfg, nil
}

func parseNumber(s string) (uint64, error) {
	var v uint64
	var err error
	if strings.HasPrefix(s, "0x") {
		_, err = fmt.Sscanf(s, "0x%x", &v)
	} else {
		_, err = fmt.Sscanf(s, "%d", &v)
	}
	return v, err
}
