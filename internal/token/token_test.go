package token

import (
	"strings"
	"testing"
	"time"
)

var (
	secret = []byte("unit-test-secret")
	auth   = map[string][]uint32{
		"@domain-a": {0xa1b2c3d4},
		"@domain-b": {0x0000beef},
	}
)

func newPair(t *testing.T) (*Issuer, *Verifier) {
	t.Helper()
	issuer, err := NewIssuer(secret, nil)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	verifier, err := NewVerifier(secret, auth)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return issuer, verifier
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	issuer, verifier := newPair(t)
	tok, err := issuer.Issue("@domain-a")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if parts := strings.Split(tok, "."); len(parts) != 3 {
		t.Fatalf("token has %d segments, want 3", len(parts))
	}
	if !verifier.Verify(tok, 0xa1b2c3d4) {
		t.Fatalf("authentic token rejected")
	}
}

func TestVerifyFailsClosedOnGarbage(t *testing.T) {
	_, verifier := newPair(t)
	cases := []string{
		"not-a-jwt",
		"",
		"a.b",
		"a.b.c.d",
		"!!!.###.$$$",
		"eyJhbGciOiJub25lIn0.e30.",
	}
	for _, tok := range cases {
		if verifier.Verify(tok, 0xa1b2c3d4) {
			t.Fatalf("garbage token %q accepted", tok)
		}
	}
}

func TestVerifyRejectsCrossDomainHash(t *testing.T) {
	issuer, verifier := newPair(t)
	tok, err := issuer.Issue("@domain-a")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	// domain-b's hash is not authorized for domain-a's claim.
	if verifier.Verify(tok, 0x0000beef) {
		t.Fatalf("token accepted for a hash its domain is not authorized for")
	}
}

func TestVerifyRejectsUnknownDomainClaim(t *testing.T) {
	issuer, verifier := newPair(t)
	tok, err := issuer.Issue("@stranger")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if verifier.Verify(tok, 0xa1b2c3d4) {
		t.Fatalf("token for unauthorized domain accepted")
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	issuer, verifier := newPair(t)
	tok, err := issuer.Issue("@domain-a")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parts := strings.Split(tok, ".")
	flipped := []byte(parts[2])
	if flipped[0] == 'A' {
		flipped[0] = 'B'
	} else {
		flipped[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(flipped)
	if verifier.Verify(tampered, 0xa1b2c3d4) {
		t.Fatalf("tampered signature accepted")
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	issuer, err := NewIssuer([]byte("other-secret"), nil)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	_, verifier := newPair(t)
	tok, err := issuer.Issue("@domain-a")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if verifier.Verify(tok, 0xa1b2c3d4) {
		t.Fatalf("token signed with a foreign secret accepted")
	}
}

func TestIssueIsDeterministicWithinTheHour(t *testing.T) {
	base := time.Date(2026, 8, 31, 10, 12, 0, 0, time.UTC)
	clock := func() time.Time { return base }
	issuer, err := NewIssuer(secret, clock)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}

	first, err := issuer.Issue("@domain-a")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	base = base.Add(30 * time.Minute)
	second, err := issuer.Issue("@domain-a")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if first != second {
		t.Fatalf("issuance within one hour is not deterministic")
	}
}

func TestEmptySecretRejected(t *testing.T) {
	if _, err := NewIssuer(nil, nil); err == nil {
		t.Fatalf("expected ErrEmptySecret from issuer")
	}
	if _, err := NewVerifier(nil, auth); err == nil {
		t.Fatalf("expected ErrEmptySecret from verifier")
	}
}
