package core

import (
	"math/big"
	"testing"
)

func TestValueRoundTrip(t *testing.T) {
	v := TupleValue(
		BoolValue(true),
		U64Value(42),
		I64Value(-7),
		StringValue("hello"),
		DecimalValue(MustDecimal("123.456")),
		AddressValue(XRDAddress),
		BucketValue(3),
		ProofValue(9),
		ExprValue(ExpressionEntireWorktop),
		NFIDValue(IntegerID(11)),
		NFIDValue(StringID("alpha")),
		ArrayValue(KindU8, U8Value(1), U8Value(2), U8Value(3)),
		EnumValue(2, StringValue("variant")),
	)
	raw, err := EncodeValue(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := DecodeValue(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !valueEqual(v, back) {
		t.Fatalf("round trip mismatch")
	}
}

func TestValueMapRoundTrip(t *testing.T) {
	v := Value{
		Kind:      KindMap,
		KeyKind:   KindString,
		ValueKind: KindU64,
		Fields: []Value{
			StringValue("a"), U64Value(1),
			StringValue("b"), U64Value(2),
		},
	}
	raw, err := EncodeValue(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := DecodeValue(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !valueEqual(v, back) {
		t.Fatalf("map round trip mismatch")
	}
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	if _, err := DecodeValue([]byte{0xff}); err == nil {
		t.Fatalf("expected unknown tag error")
	}
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	raw, err := EncodeValue(StringValue("hello world"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeValue(raw[:len(raw)-3]); err == nil {
		t.Fatalf("expected truncation error")
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	raw, err := EncodeValue(BoolValue(true))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeValue(append(raw, 0x00)); err == nil {
		t.Fatalf("expected trailing bytes error")
	}
}

func TestDecodeRejectsOverlongLength(t *testing.T) {
	// KindString with a uvarint length far beyond the remaining input.
	raw := []byte{byte(KindString), 0xff, 0xff, 0xff, 0xff, 0x7f}
	if _, err := DecodeValue(raw); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestIntegerBoundsChecked(t *testing.T) {
	v := Value{Kind: KindU8, Int: big.NewInt(300)}
	if _, err := EncodeValue(v); err == nil {
		t.Fatalf("expected out-of-range error for U8=300")
	}
}
