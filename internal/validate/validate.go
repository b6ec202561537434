// Package validate checks every protocol-prefixed header of an inbound
// request and reports an aggregated, typed error list.
//
// Per-header rules are declared in a static lookup table so each rule is
// independently testable. Validation never short-circuits: the caller gets
// every failure at once.
package validate

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/edgeproxy/internal/protocol"
)

// Code is a stable machine-readable failure class.
type Code string

const (
	CodeInvalidFormat    Code = "InvalidFormat"
	CodeOutOfRange       Code = "OutOfRange"
	CodeChecksumMismatch Code = "ChecksumMismatch"
	CodeInvalidToken     Code = "InvalidToken"
	CodeUnknownDomain    Code = "UnknownDomain"
	CodeUnknownHeader    Code = "UnknownHeader"
	CodeMissingHeader    Code = "MissingHeader"
	CodeReservedBitsSet  Code = "ReservedBitsSet"
)

// FieldError is one validation failure. It is a value, never a panic.
type FieldError struct {
	Code    Code   `json:"code"`
	Header  string `json:"header"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("validate: %s header=%s value=%q: %s", e.Code, e.Header, e.Value, e.Message)
}

// Result is the aggregate outcome of validating one request's headers.
type Result struct {
	OK     bool         `json:"ok"`
	Errors []FieldError `json:"errors,omitempty"`
}

// MetricsSink receives per-validation observations. Implementations must
// be safe for concurrent use and must not block.
type MetricsSink interface {
	ObserveValidation(errorCount int, elapsed time.Duration)
}

// NopMetrics discards observations.
type NopMetrics struct{}

func (NopMetrics) ObserveValidation(int, time.Duration) {}

// KnownValueLogger receives informational observations about known
// registry hashes. nil-safe via the funcLogger adapter below.
type KnownValueLogger func(header, value string, known bool)

// Validator applies the per-header rule table.
type Validator struct {
	domains     map[string]struct{}
	knownHashes map[uint32]struct{}
	metrics     MetricsSink
	logKnown    KnownValueLogger
}

// Option configures a Validator.
type Option func(*Validator)

// WithMetrics injects the metrics sink.
func WithMetrics(m MetricsSink) Option {
	return func(v *Validator) { v.metrics = m }
}

// WithKnownHashes supplies the informational known registry hash set.
func WithKnownHashes(hashes []uint32) Option {
	return func(v *Validator) {
		for _, h := range hashes {
			v.knownHashes[h] = struct{}{}
		}
	}
}

// WithKnownValueLogger supplies the informational log hook.
func WithKnownValueLogger(fn KnownValueLogger) Option {
	return func(v *Validator) { v.logKnown = fn }
}

// New builds a Validator with the fixed domain allow-list.
func New(domains []string, opts ...Option) *Validator {
	v := &Validator{
		domains:     make(map[string]struct{}, len(domains)),
		knownHashes: make(map[uint32]struct{}),
		metrics:     NopMetrics{},
		logKnown:    func(string, string, bool) {},
	}
	for _, d := range domains {
		v.domains[d] = struct{}{}
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// requiredHeaders are checked before any per-field rule runs.
var requiredHeaders = []string{
	protocol.HeaderConfigVersion,
	protocol.HeaderRegistryHash,
	protocol.HeaderFeatureFlags,
	protocol.HeaderProxyToken,
}

type checkFunc func(v *Validator, value string) []FieldError

// ruleTable maps canonical header name to its format/range rule.
// request-id is opaque by contract, hence always accepted.
var ruleTable = map[string]checkFunc{
	protocol.HeaderConfigVersion: func(_ *Validator, s string) []FieldError {
		return checkDecimal(protocol.HeaderConfigVersion, s, 0, 255)
	},
	protocol.HeaderRegistryHash: (*Validator).checkRegistryHash,
	protocol.HeaderFeatureFlags: (*Validator).checkFeatureFlags,
	protocol.HeaderTerminalMode: func(_ *Validator, s string) []FieldError {
		if len(s) != 1 || s[0] < '0' || s[0] > '9' {
			return invalidFormat(protocol.HeaderTerminalMode, s, "want a single decimal digit")
		}
		if s[0] > '3' {
			return outOfRange(protocol.HeaderTerminalMode, s, "want 0-3")
		}
		return nil
	},
	protocol.HeaderTerminalRows: func(_ *Validator, s string) []FieldError {
		return checkDecimal(protocol.HeaderTerminalRows, s, 1, 255)
	},
	protocol.HeaderTerminalCols: func(_ *Validator, s string) []FieldError {
		return checkDecimal(protocol.HeaderTerminalCols, s, 1, 255)
	},
	protocol.HeaderConfigDump: (*Validator).checkConfigDump,
	protocol.HeaderProxyToken: (*Validator).checkProxyToken,
	protocol.HeaderDomain:     (*Validator).checkDomain,
	protocol.HeaderRequestID: func(*Validator, string) []FieldError {
		return nil
	},
}

// Validate runs the required-header check, then every per-field rule, then
// flags unrecognized protocol-prefixed headers. All failures are collected.
func (v *Validator) Validate(h http.Header) Result {
	start := time.Now()
	var errs []FieldError

	for _, name := range requiredHeaders {
		if h.Get(name) == "" {
			errs = append(errs, FieldError{
				Code:    CodeMissingHeader,
				Header:  name,
				Message: "required header absent",
			})
		}
	}
	if len(errs) == 0 {
		for name, values := range h {
			if !strings.HasPrefix(name, protocol.HeaderPrefix) {
				continue
			}
			rule, ok := ruleTable[name]
			if !ok {
				errs = append(errs, FieldError{
					Code:    CodeUnknownHeader,
					Header:  name,
					Message: "unrecognized protocol header",
				})
				continue
			}
			for _, value := range values {
				errs = append(errs, rule(v, value)...)
			}
		}
	}

	v.metrics.ObserveValidation(len(errs), time.Since(start))
	return Result{OK: len(errs) == 0, Errors: errs}
}

func (v *Validator) checkRegistryHash(s string) []FieldError {
	raw, ok := parseHex32(s)
	if !ok {
		return invalidFormat(protocol.HeaderRegistryHash, s, "want 0x + 8 lowercase hex chars")
	}
	_, known := v.knownHashes[raw]
	v.logKnown(protocol.HeaderRegistryHash, s, known)
	return nil
}

func (v *Validator) checkFeatureFlags(s string) []FieldError {
	raw, ok := parseHex32(s)
	if !ok {
		return invalidFormat(protocol.HeaderFeatureFlags, s, "want 0x + 8 lowercase hex chars")
	}
	if raw&protocol.ReservedFlagsMask != 0 {
		return []FieldError{{
			Code:    CodeReservedBitsSet,
			Header:  protocol.HeaderFeatureFlags,
			Value:   s,
			Message: "bits 11-31 are reserved and must be zero",
		}}
	}
	return nil
}

func (v *Validator) checkConfigDump(s string) []FieldError {
	if len(s) != protocol.HexDumpLen || !strings.HasPrefix(s, "0x") || !isHexLower(s[2:]) {
		return invalidFormat(protocol.HeaderConfigDump, s, "want 0x + 26 lowercase hex chars")
	}
	if _, err := protocol.FromHex(s); err != nil {
		return []FieldError{{
			Code:    CodeChecksumMismatch,
			Header:  protocol.HeaderConfigDump,
			Value:   s,
			Message: "dump checksum does not match its payload",
		}}
	}
	return nil
}

// checkProxyToken is structural only; the cryptographic check lives in the
// token package and is necessary before any request is trusted.
func (v *Validator) checkProxyToken(s string) []FieldError {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return []FieldError{{
			Code:    CodeInvalidToken,
			Header:  protocol.HeaderProxyToken,
			Value:   s,
			Message: "want three dot-separated base64url segments",
		}}
	}
	for _, part := range parts {
		if part == "" || !isBase64URL(part) {
			return []FieldError{{
				Code:    CodeInvalidToken,
				Header:  protocol.HeaderProxyToken,
				Value:   s,
				Message: "segment is not base64url",
			}}
		}
	}
	return nil
}

func (v *Validator) checkDomain(s string) []FieldError {
	if _, ok := v.domains[s]; !ok {
		return []FieldError{{
			Code:    CodeUnknownDomain,
			Header:  protocol.HeaderDomain,
			Value:   s,
			Message: "domain is not on the allow-list",
		}}
	}
	return nil
}

func checkDecimal(header, s string, min, max uint64) []FieldError {
	if s == "" || !isDigits(s) {
		return invalidFormat(header, s, "want decimal digits")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n < min || n > max {
		return outOfRange(header, s, fmt.Sprintf("want %d-%d", min, max))
	}
	return nil
}

func invalidFormat(header, value, msg string) []FieldError {
	return []FieldError{{Code: CodeInvalidFormat, Header: header, Value: value, Message: msg}}
}

func outOfRange(header, value, msg string) []FieldError {
	return []FieldError{{Code: CodeOutOfRange, Header: header, Value: value, Message: msg}}
}

func parseHex32(s string) (uint32, bool) {
	if len(s) != 10 || !strings.HasPrefix(s, "0x") || !isHexLower(s[2:]) {
		return 0, false
	}
	n, err := strconv.ParseUint(s[2:], 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

func isHexLower(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return len(s) > 0
}

func isBase64URL(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return len(s) > 0
}
