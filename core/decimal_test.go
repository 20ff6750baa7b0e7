package core

import (
	"math/big"
	"testing"
)

func TestDecimalParseAndString(t *testing.T) {
	cases := map[string]string{
		"0":                     "0",
		"123":                   "123",
		"-0.5":                  "-0.5",
		"10.100":                "10.1",
		"0.000000000000000001":  "0.000000000000000001",
		"-123.456":              "-123.456",
	}
	for in, want := range cases {
		d, err := DecimalFromString(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got := d.String(); got != want {
			t.Fatalf("String(%q)=%q want %q", in, got, want)
		}
	}
}

func TestDecimalParseRejectsExcessScale(t *testing.T) {
	if _, err := DecimalFromString("0.0000000000000000001"); err == nil {
		t.Fatalf("expected scale error for 19 fractional digits")
	}
}

func TestDecimalArithmetic(t *testing.T) {
	a := MustDecimal("10.5")
	b := MustDecimal("0.5")
	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if sum.String() != "11" {
		t.Fatalf("Add=%s want 11", sum)
	}
	diff, err := a.Sub(b)
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if diff.String() != "10" {
		t.Fatalf("Sub=%s want 10", diff)
	}
	prod, err := a.Mul(b)
	if err != nil {
		t.Fatalf("Mul: %v", err)
	}
	if prod.String() != "5.25" {
		t.Fatalf("Mul=%s want 5.25", prod)
	}
}

func TestDecimalOverflow(t *testing.T) {
	max, err := DecimalFromSubunits(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1)))
	if err != nil {
		t.Fatalf("max: %v", err)
	}
	if _, err := max.Add(DecimalOne); err == nil {
		t.Fatalf("expected overflow error")
	}
}

func TestDecimalCheckScale(t *testing.T) {
	d := MustDecimal("1.25")
	if d.CheckScale(1) {
		t.Fatalf("1.25 should violate divisibility 1")
	}
	if !d.CheckScale(2) {
		t.Fatalf("1.25 should respect divisibility 2")
	}
	if !NewDecimal(7).CheckScale(0) {
		t.Fatalf("whole number should respect divisibility 0")
	}
}

func TestDecimalWireRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "1", "-1", "123456.789", "-0.000000000000000001"} {
		d := MustDecimal(s)
		raw := d.Bytes()
		if len(raw) != 32 {
			t.Fatalf("wire form must be 32 bytes, got %d", len(raw))
		}
		back, err := DecimalFromBytes(raw)
		if err != nil {
			t.Fatalf("decode %s: %v", s, err)
		}
		if back.Cmp(d) != 0 {
			t.Fatalf("round trip %s: got %s", s, back)
		}
	}
}
