package core

import "testing"

func TestInvokePayloadShape(t *testing.T) {
	raw, err := encodeInvokePayload(FaucetComponent, "Faucet", "free", []Value{U64Value(1)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	v, err := DecodeValue(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Kind != KindTuple || len(v.Fields) != 4 {
		t.Fatalf("payload must be a 4-tuple, got kind=0x%02x len=%d", v.Kind, len(v.Fields))
	}
	if v.Fields[0].Address != FaucetComponent {
		t.Fatalf("receiver mismatch")
	}
	if v.Fields[1].Str != "Faucet" || v.Fields[2].Str != "free" {
		t.Fatalf("blueprint/fn mismatch: %q %q", v.Fields[1].Str, v.Fields[2].Str)
	}
	if v.Fields[3].Kind != KindTuple || len(v.Fields[3].Fields) != 1 {
		t.Fatalf("args tuple mismatch")
	}
}
