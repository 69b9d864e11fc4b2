package internal

import (
	"testing"
)

func TestNewOTPDigits(t *testing.T) {
	for _, digits := range []int{6, 8, 10} {
		code, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d) failed: %v", digits, err)
		}
		if !IsNumericCode(code, digits) {
			t.Fatalf("NewOTP(%d) returned %q", digits, code)
		}
	}
}

func TestNewOTPRejectsOutOfRangeDigits(t *testing.T) {
	if _, err := NewOTP(5); err == nil {
		t.Fatal("expected error for 5 digits")
	}
	if _, err := NewOTP(11); err == nil {
		t.Fatal("expected error for 11 digits")
	}
}

func TestNewOTPDistribution(t *testing.T) {
	seen := make(map[string]struct{}, 200)
	for i := 0; i < 200; i++ {
		code, err := NewOTP(6)
		if err != nil {
			t.Fatalf("NewOTP failed: %v", err)
		}
		seen[code] = struct{}{}
	}
	// 200 draws from 10^6 codes collide rarely; a constant generator would give 1.
	if len(seen) < 190 {
		t.Fatalf("expected mostly distinct codes, got %d unique of 200", len(seen))
	}
}

func TestSessionIDRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID failed: %v", err)
	}
	s := sid.String()
	if len(s) != 43 {
		t.Fatalf("expected 43 base64url chars for 32 bytes, got %d", len(s))
	}
	parsed, err := ParseSessionID(s)
	if err != nil {
		t.Fatalf("ParseSessionID failed: %v", err)
	}
	if parsed != sid {
		t.Fatal("round trip mismatch")
	}
	if _, err := ParseSessionID("short"); err == nil {
		t.Fatal("expected size error")
	}
}

func TestIsNumericCode(t *testing.T) {
	cases := map[string]bool{
		"123456":  true,
		"12345":   false,
		"12345a":  false,
		"1234567": false,
		" 23456":  false,
	}
	for code, want := range cases {
		if got := IsNumericCode(code, 6); got != want {
			t.Fatalf("IsNumericCode(%q) = %v, want %v", code, got, want)
		}
	}
}

func TestHashOTPDeterministic(t *testing.T) {
	if HashOTP("123456") != HashOTP("123456") {
		t.Fatal("hash must be deterministic")
	}
	if HashOTP("123456") == HashOTP("123457") {
		t.Fatal("distinct codes must hash differently")
	}
}
