package protocol

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

// Protocol header names. All share the HeaderPrefix and are matched
// case-insensitively by net/http canonicalization.
const (
	HeaderPrefix = "X-Edge-"

	HeaderConfigVersion = "X-Edge-Config-Version"
	HeaderRegistryHash  = "X-Edge-Registry-Hash"
	HeaderFeatureFlags  = "X-Edge-Feature-Flags"
	HeaderTerminalMode  = "X-Edge-Terminal-Mode"
	HeaderTerminalRows  = "X-Edge-Terminal-Rows"
	HeaderTerminalCols  = "X-Edge-Terminal-Cols"
	HeaderConfigDump    = "X-Edge-Config-Dump"
	HeaderProxyToken    = "X-Edge-Proxy-Token"
	HeaderDomain        = "X-Edge-Domain"
	HeaderRequestID     = "X-Edge-Request-Id"
)

// InjectConfigHeaders sets the per-field config headers, the full dump
// header, and a fresh request-id on h. Other headers are left untouched.
func InjectConfigHeaders(h http.Header, c ConfigState) {
	h.Set(HeaderConfigVersion, strconv.FormatUint(uint64(c.Version), 10))
	h.Set(HeaderRegistryHash, fmt.Sprintf("0x%08x", c.RegistryHash))
	h.Set(HeaderFeatureFlags, fmt.Sprintf("0x%08x", c.FeatureFlags))
	h.Set(HeaderTerminalMode, strconv.FormatUint(uint64(c.TerminalMode), 10))
	h.Set(HeaderTerminalRows, strconv.FormatUint(uint64(c.Rows), 10))
	h.Set(HeaderTerminalCols, strconv.FormatUint(uint64(c.Cols), 10))
	h.Set(HeaderConfigDump, c.Hex())
	h.Set(HeaderRequestID, uuid.NewString())
}

// ExtractConfigFromHeaders rebuilds a ConfigState from h.
//
// A config-dump header takes precedence and is decoded whole, so
// intermediaries that only understand the dump can forward it opaquely.
// Otherwise each per-field header is parsed independently and missing
// headers default to the zero value.
func ExtractConfigFromHeaders(h http.Header) (ConfigState, error) {
	if dump := h.Get(HeaderConfigDump); dump != "" {
		return FromHex(dump)
	}

	var c ConfigState
	var err error
	if c.Version, err = parseUint8Header(h, HeaderConfigVersion); err != nil {
		return ConfigState{}, err
	}
	if c.RegistryHash, err = parseHexHeader(h, HeaderRegistryHash); err != nil {
		return ConfigState{}, err
	}
	if c.FeatureFlags, err = parseHexHeader(h, HeaderFeatureFlags); err != nil {
		return ConfigState{}, err
	}
	if c.TerminalMode, err = parseUint8Header(h, HeaderTerminalMode); err != nil {
		return ConfigState{}, err
	}
	if c.Rows, err = parseUint8Header(h, HeaderTerminalRows); err != nil {
		return ConfigState{}, err
	}
	if c.Cols, err = parseUint8Header(h, HeaderTerminalCols); err != nil {
		return ConfigState{}, err
	}
	return c, nil
}

func parseUint8Header(h http.Header, name string) (uint8, error) {
	raw := h.Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("protocol: parse %s %q: %w", name, raw, err)
	}
	return uint8(v), nil
}

func parseHexHeader(h http.Header, name string) (uint32, error) {
	raw := h.Get(name)
	if raw == "" {
		return 0, nil
	}
	if len(raw) != 10 || raw[:2] != "0x" {
		return 0, fmt.Errorf("protocol: parse %s %q: want 0x + 8 hex chars", name, raw)
	}
	v, err := strconv.ParseUint(raw[2:], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("protocol: parse %s %q: %w", name, raw, err)
	}
	return uint32(v), nil
}
