// Package token issues and verifies the domain-scoped proxy credential.
//
// A token is header.payload.signature, each segment base64url without
// padding. The signature is HMAC-SHA256 over "header.payload" with the
// deployment's shared secret. There is no server-side session: verification
// is stateless and per-request.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrEmptySecret = errors.New("token: signing secret is empty")

const tokenType = "EPT"

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

type payload struct {
	Domain   string `json:"domain"`
	IssuedAt int64  `json:"iat"`
}

// Issuer mints tokens for domain claims.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

// NewIssuer builds an Issuer. The clock is injectable for tests; nil means
// time.Now.
func NewIssuer(secret []byte, now func() time.Time) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: secret, now: now}, nil
}

// Issue produces a signed token binding the domain claim. The issue
// timestamp is truncated to the hour, so repeated issuance within one hour
// is deterministic for the same domain and secret.
func (i *Issuer) Issue(domain string) (string, error) {
	head, err := json.Marshal(header{Alg: "HS256", Typ: tokenType})
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(payload{
		Domain:   domain,
		IssuedAt: i.now().Truncate(time.Hour).Unix(),
	})
	if err != nil {
		return "", err
	}

	enc := base64.RawURLEncoding
	signing := enc.EncodeToString(head) + "." + enc.EncodeToString(body)
	sig := sign(i.secret, signing)
	return signing + "." + enc.EncodeToString(sig), nil
}

// Verifier checks tokens against the domain-to-registry-hash authorization
// table loaded at startup.
type Verifier struct {
	secret     []byte
	authorized map[string]map[uint32]struct{}
}

// NewVerifier builds a Verifier. authorized maps each domain to the
// registry hashes it may act for.
func NewVerifier(secret []byte, authorized map[string][]uint32) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	table := make(map[string]map[uint32]struct{}, len(authorized))
	for domain, hashes := range authorized {
		set := make(map[uint32]struct{}, len(hashes))
		for _, h := range hashes {
			set[h] = struct{}{}
		}
		table[domain] = set
	}
	return &Verifier{secret: secret, authorized: table}, nil
}

// Verify reports whether tok is authentic and its domain claim is
// authorized for expectedHash. It fails closed: malformed input of any
// kind yields false, never an error or panic.
func (v *Verifier) Verify(tok string, expectedHash uint32) bool {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return false
	}
	enc := base64.RawURLEncoding

	headRaw, err := enc.DecodeString(parts[0])
	if err != nil {
		return false
	}
	var head header
	if err := json.Unmarshal(headRaw, &head); err != nil {
		return false
	}
	if head.Alg != "HS256" || head.Typ != tokenType {
		return false
	}

	bodyRaw, err := enc.DecodeString(parts[1])
	if err != nil {
		return false
	}
	var body payload
	if err := json.Unmarshal(bodyRaw, &body); err != nil {
		return false
	}

	sig, err := enc.DecodeString(parts[2])
	if err != nil {
		return false
	}
	want := sign(v.secret, parts[0]+"."+parts[1])
	if !hmac.Equal(sig, want) {
		return false
	}

	hashes, ok := v.authorized[body.Domain]
	if !ok {
		return false
	}
	_, ok = hashes[expectedHash]
	return ok
}

func sign(secret []byte, signing string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(signing))
	return mac.Sum(nil)
}
