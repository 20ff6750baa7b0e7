package core

// Manifest value model and wire codec.
//
// Values are self-describing: a 1-byte kind tag followed by the payload.
// Composite payloads are length-prefixed with a uvarint element count. Custom
// kinds carry fixed-size payloads (Decimal 32 bytes LE two's-complement,
// PreciseDecimal 64 bytes, addresses 30 bytes). Decoders reject unknown tags,
// truncated payloads and lengths that overrun the input.

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
)

// ValueKind is the 1-byte wire tag of a Value.
type ValueKind uint8

const (
	KindBool   ValueKind = 0x01
	KindI8     ValueKind = 0x02
	KindI16    ValueKind = 0x03
	KindI32    ValueKind = 0x04
	KindI64    ValueKind = 0x05
	KindI128   ValueKind = 0x06
	KindU8     ValueKind = 0x07
	KindU16    ValueKind = 0x08
	KindU32    ValueKind = 0x09
	KindU64    ValueKind = 0x0a
	KindU128   ValueKind = 0x0b
	KindString ValueKind = 0x0c

	KindArray ValueKind = 0x20
	KindTuple ValueKind = 0x21
	KindEnum  ValueKind = 0x22
	KindMap   ValueKind = 0x23

	KindAddress            ValueKind = 0x80
	KindBucket             ValueKind = 0x81
	KindProof              ValueKind = 0x82
	KindExpression         ValueKind = 0x83
	KindBlob               ValueKind = 0x84
	KindDecimal            ValueKind = 0x85
	KindPreciseDecimal     ValueKind = 0x86
	KindNonFungibleLocalID ValueKind = 0x87
)

// Expression variants.
type Expression uint8

const (
	ExpressionEntireWorktop Expression = iota
	ExpressionEntireAuthZone
)

// maxCompositeLen bounds decoded element counts and byte lengths so a short
// malicious payload cannot demand a huge allocation.
const maxCompositeLen = 1 << 20

// Value is the tagged union carried by manifest instructions, component state
// and invocation arguments.
type Value struct {
	Kind ValueKind

	Bool    bool
	Int     *big.Int // all integer kinds, bounds-checked on encode
	Str     string
	Bytes   []byte // Blob content hash, PreciseDecimal wire form
	Address NodeID
	Decimal Decimal
	NFID    NonFungibleLocalID
	Expr    Expression

	// Bucket / Proof transaction-local ids (resolved from manifest names).
	LocalID uint32

	// Composites.
	ElementKind ValueKind // Array element kind
	Fields      []Value   // Tuple fields, Array elements, Map flat k/v pairs
	KeyKind     ValueKind // Map key kind
	ValueKind   ValueKind // Map value kind
	Enum        uint8     // Enum discriminator; variant fields in Fields
}

// Convenience constructors used by natives and the CLI manifest builder.

func BoolValue(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func U8Value(v uint8) Value           { return Value{Kind: KindU8, Int: new(big.Int).SetUint64(uint64(v))} }
func U32Value(v uint32) Value         { return Value{Kind: KindU32, Int: new(big.Int).SetUint64(uint64(v))} }
func U64Value(v uint64) Value         { return Value{Kind: KindU64, Int: new(big.Int).SetUint64(v)} }
func I64Value(v int64) Value          { return Value{Kind: KindI64, Int: big.NewInt(v)} }
func StringValue(s string) Value      { return Value{Kind: KindString, Str: s} }
func AddressValue(id NodeID) Value    { return Value{Kind: KindAddress, Address: id} }
func DecimalValue(d Decimal) Value    { return Value{Kind: KindDecimal, Decimal: d} }
func BucketValue(id uint32) Value     { return Value{Kind: KindBucket, LocalID: id} }
func ProofValue(id uint32) Value      { return Value{Kind: KindProof, LocalID: id} }
func BlobValue(hash []byte) Value     { return Value{Kind: KindBlob, Bytes: hash} }
func TupleValue(fs ...Value) Value    { return Value{Kind: KindTuple, Fields: fs} }
func ExprValue(e Expression) Value    { return Value{Kind: KindExpression, Expr: e} }
func EnumValue(d uint8, fs ...Value) Value {
	return Value{Kind: KindEnum, Enum: d, Fields: fs}
}
func NFIDValue(id NonFungibleLocalID) Value {
	return Value{Kind: KindNonFungibleLocalID, NFID: id}
}
func ArrayValue(elem ValueKind, fs ...Value) Value {
	return Value{Kind: KindArray, ElementKind: elem, Fields: fs}
}

var intKindBits = map[ValueKind]uint{
	KindI8: 8, KindI16: 16, KindI32: 32, KindI64: 64, KindI128: 128,
	KindU8: 8, KindU16: 16, KindU32: 32, KindU64: 64, KindU128: 128,
}

func intKindSigned(k ValueKind) bool { return k >= KindI8 && k <= KindI128 }

// EncodeValue serialises v into the wire form.
func EncodeValue(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeUvarint(buf *bytes.Buffer, n uint64) {
	var tmp [binary.MaxVarintLen64]byte
	buf.Write(tmp[:binary.PutUvarint(tmp[:], n)])
}

func encodeValue(buf *bytes.Buffer, v Value) error {
	buf.WriteByte(byte(v.Kind))
	return encodeBody(buf, v)
}

func encodeBody(buf *bytes.Buffer, v Value) error {
	switch v.Kind {
	case KindBool:
		if v.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindI8, KindI16, KindI32, KindI64, KindI128, KindU8, KindU16, KindU32, KindU64, KindU128:
		return encodeInt(buf, v)
	case KindString:
		if len(v.Str) > maxCompositeLen {
			return fmt.Errorf("string too long")
		}
		writeUvarint(buf, uint64(len(v.Str)))
		buf.WriteString(v.Str)
	case KindArray:
		buf.WriteByte(byte(v.ElementKind))
		writeUvarint(buf, uint64(len(v.Fields)))
		for _, f := range v.Fields {
			if f.Kind != v.ElementKind {
				return fmt.Errorf("array element kind 0x%02x != declared 0x%02x", f.Kind, v.ElementKind)
			}
			if err := encodeBody(buf, f); err != nil {
				return err
			}
		}
	case KindTuple:
		writeUvarint(buf, uint64(len(v.Fields)))
		for _, f := range v.Fields {
			if err := encodeValue(buf, f); err != nil {
				return err
			}
		}
	case KindEnum:
		buf.WriteByte(v.Enum)
		writeUvarint(buf, uint64(len(v.Fields)))
		for _, f := range v.Fields {
			if err := encodeValue(buf, f); err != nil {
				return err
			}
		}
	case KindMap:
		buf.WriteByte(byte(v.KeyKind))
		buf.WriteByte(byte(v.ValueKind))
		if len(v.Fields)%2 != 0 {
			return fmt.Errorf("map requires flat key/value pairs")
		}
		writeUvarint(buf, uint64(len(v.Fields)/2))
		for i := 0; i < len(v.Fields); i += 2 {
			if v.Fields[i].Kind != v.KeyKind || v.Fields[i+1].Kind != v.ValueKind {
				return fmt.Errorf("map entry kind mismatch")
			}
			if err := encodeBody(buf, v.Fields[i]); err != nil {
				return err
			}
			if err := encodeBody(buf, v.Fields[i+1]); err != nil {
				return err
			}
		}
	case KindAddress:
		buf.Write(v.Address[:])
	case KindBucket, KindProof:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], v.LocalID)
		buf.Write(tmp[:])
	case KindExpression:
		buf.WriteByte(byte(v.Expr))
	case KindBlob:
		if len(v.Bytes) != 32 {
			return fmt.Errorf("blob reference must be a 32-byte hash")
		}
		buf.Write(v.Bytes)
	case KindDecimal:
		buf.Write(v.Decimal.Bytes())
	case KindPreciseDecimal:
		if len(v.Bytes) != 64 {
			return fmt.Errorf("precise decimal wire form must be 64 bytes")
		}
		buf.Write(v.Bytes)
	case KindNonFungibleLocalID:
		return encodeNFID(buf, v.NFID)
	default:
		return fmt.Errorf("unknown value kind 0x%02x", v.Kind)
	}
	return nil
}

func encodeInt(buf *bytes.Buffer, v Value) error {
	bits := intKindBits[v.Kind]
	i := v.Int
	if i == nil {
		i = new(big.Int)
	}
	if intKindSigned(v.Kind) {
		limit := new(big.Int).Lsh(big.NewInt(1), bits-1)
		if i.Cmp(limit) >= 0 || i.Cmp(new(big.Int).Neg(limit)) < 0 {
			return fmt.Errorf("integer out of range for kind 0x%02x", v.Kind)
		}
	} else {
		if i.Sign() < 0 || i.BitLen() > int(bits) {
			return fmt.Errorf("integer out of range for kind 0x%02x", v.Kind)
		}
	}
	n := int(bits / 8)
	out := make([]byte, n)
	tmp := new(big.Int)
	if i.Sign() < 0 {
		tmp.Add(new(big.Int).Lsh(big.NewInt(1), bits), i)
	} else {
		tmp.Set(i)
	}
	be := tmp.Bytes()
	for idx := 0; idx < len(be) && idx < n; idx++ {
		out[idx] = be[len(be)-1-idx]
	}
	buf.Write(out)
	return nil
}

func encodeNFID(buf *bytes.Buffer, id NonFungibleLocalID) error {
	buf.WriteByte(byte(id.Kind))
	switch id.Kind {
	case NFIDString:
		if len(id.Str) > 64 {
			return fmt.Errorf("non-fungible string id too long")
		}
		writeUvarint(buf, uint64(len(id.Str)))
		buf.WriteString(id.Str)
	case NFIDInteger:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], id.Int)
		buf.Write(tmp[:])
	case NFIDBytes:
		if len(id.Bytes) == 0 || len(id.Bytes) > 64 {
			return fmt.Errorf("non-fungible bytes id must be 1..64 bytes")
		}
		writeUvarint(buf, uint64(len(id.Bytes)))
		buf.Write(id.Bytes)
	case NFIDRUID:
		if len(id.Bytes) != 32 {
			return fmt.Errorf("ruid id must be 32 bytes")
		}
		buf.Write(id.Bytes)
	default:
		return fmt.Errorf("unknown non-fungible id kind %d", id.Kind)
	}
	return nil
}

// DecodeValue parses one value from b and requires the input to be fully
// consumed.
func DecodeValue(b []byte) (Value, error) {
	r := &valueReader{b: b}
	v, err := r.readValue()
	if err != nil {
		return Value{}, err
	}
	if r.pos != len(b) {
		return Value{}, fmt.Errorf("trailing bytes after value")
	}
	return v, nil
}

type valueReader struct {
	b   []byte
	pos int
}

func (r *valueReader) readByte() (byte, error) {
	if r.pos >= len(r.b) {
		return 0, io.ErrUnexpectedEOF
	}
	c := r.b[r.pos]
	r.pos++
	return c, nil
}

func (r *valueReader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.b) {
		return nil, io.ErrUnexpectedEOF
	}
	out := r.b[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *valueReader) readLen() (int, error) {
	n, read := binary.Uvarint(r.b[r.pos:])
	if read <= 0 {
		return 0, fmt.Errorf("invalid length prefix")
	}
	r.pos += read
	if n > maxCompositeLen {
		return 0, fmt.Errorf("length %d exceeds limit", n)
	}
	return int(n), nil
}

func (r *valueReader) readValue() (Value, error) {
	k, err := r.readByte()
	if err != nil {
		return Value{}, err
	}
	return r.readBody(ValueKind(k))
}

func (r *valueReader) readBody(kind ValueKind) (Value, error) {
	v := Value{Kind: kind}
	switch kind {
	case KindBool:
		c, err := r.readByte()
		if err != nil {
			return v, err
		}
		if c > 1 {
			return v, fmt.Errorf("invalid bool byte 0x%02x", c)
		}
		v.Bool = c == 1
	case KindI8, KindI16, KindI32, KindI64, KindI128, KindU8, KindU16, KindU32, KindU64, KindU128:
		bits := intKindBits[kind]
		raw, err := r.readBytes(int(bits / 8))
		if err != nil {
			return v, err
		}
		be := make([]byte, len(raw))
		for i := range raw {
			be[i] = raw[len(raw)-1-i]
		}
		i := new(big.Int).SetBytes(be)
		if intKindSigned(kind) && len(be) > 0 && be[0]&0x80 != 0 {
			i.Sub(i, new(big.Int).Lsh(big.NewInt(1), bits))
		}
		v.Int = i
	case KindString:
		n, err := r.readLen()
		if err != nil {
			return v, err
		}
		raw, err := r.readBytes(n)
		if err != nil {
			return v, err
		}
		v.Str = string(raw)
	case KindArray:
		ek, err := r.readByte()
		if err != nil {
			return v, err
		}
		v.ElementKind = ValueKind(ek)
		n, err := r.readLen()
		if err != nil {
			return v, err
		}
		for i := 0; i < n; i++ {
			f, err := r.readBody(v.ElementKind)
			if err != nil {
				return v, err
			}
			v.Fields = append(v.Fields, f)
		}
	case KindTuple:
		n, err := r.readLen()
		if err != nil {
			return v, err
		}
		for i := 0; i < n; i++ {
			f, err := r.readValue()
			if err != nil {
				return v, err
			}
			v.Fields = append(v.Fields, f)
		}
	case KindEnum:
		d, err := r.readByte()
		if err != nil {
			return v, err
		}
		v.Enum = d
		n, err := r.readLen()
		if err != nil {
			return v, err
		}
		for i := 0; i < n; i++ {
			f, err := r.readValue()
			if err != nil {
				return v, err
			}
			v.Fields = append(v.Fields, f)
		}
	case KindMap:
		kk, err := r.readByte()
		if err != nil {
			return v, err
		}
		vk, err := r.readByte()
		if err != nil {
			return v, err
		}
		v.KeyKind, v.ValueKind = ValueKind(kk), ValueKind(vk)
		n, err := r.readLen()
		if err != nil {
			return v, err
		}
		for i := 0; i < n; i++ {
			key, err := r.readBody(v.KeyKind)
			if err != nil {
				return v, err
			}
			val, err := r.readBody(v.ValueKind)
			if err != nil {
				return v, err
			}
			v.Fields = append(v.Fields, key, val)
		}
	case KindAddress:
		raw, err := r.readBytes(NodeIDLength)
		if err != nil {
			return v, err
		}
		copy(v.Address[:], raw)
	case KindBucket, KindProof:
		raw, err := r.readBytes(4)
		if err != nil {
			return v, err
		}
		v.LocalID = binary.LittleEndian.Uint32(raw)
	case KindExpression:
		c, err := r.readByte()
		if err != nil {
			return v, err
		}
		if c > byte(ExpressionEntireAuthZone) {
			return v, fmt.Errorf("unknown expression 0x%02x", c)
		}
		v.Expr = Expression(c)
	case KindBlob:
		raw, err := r.readBytes(32)
		if err != nil {
			return v, err
		}
		v.Bytes = append([]byte(nil), raw...)
	case KindDecimal:
		raw, err := r.readBytes(32)
		if err != nil {
			return v, err
		}
		d, err := DecimalFromBytes(raw)
		if err != nil {
			return v, err
		}
		v.Decimal = d
	case KindPreciseDecimal:
		raw, err := r.readBytes(64)
		if err != nil {
			return v, err
		}
		v.Bytes = append([]byte(nil), raw...)
	case KindNonFungibleLocalID:
		id, err := r.readNFID()
		if err != nil {
			return v, err
		}
		v.NFID = id
	default:
		return v, fmt.Errorf("unknown value kind 0x%02x", kind)
	}
	return v, nil
}

func (r *valueReader) readNFID() (NonFungibleLocalID, error) {
	var id NonFungibleLocalID
	k, err := r.readByte()
	if err != nil {
		return id, err
	}
	id.Kind = NonFungibleIDKind(k)
	switch id.Kind {
	case NFIDString:
		n, err := r.readLen()
		if err != nil {
			return id, err
		}
		if n > 64 {
			return id, fmt.Errorf("non-fungible string id too long")
		}
		raw, err := r.readBytes(n)
		if err != nil {
			return id, err
		}
		id.Str = string(raw)
	case NFIDInteger:
		raw, err := r.readBytes(8)
		if err != nil {
			return id, err
		}
		id.Int = binary.LittleEndian.Uint64(raw)
	case NFIDBytes:
		n, err := r.readLen()
		if err != nil {
			return id, err
		}
		if n == 0 || n > 64 {
			return id, fmt.Errorf("non-fungible bytes id must be 1..64 bytes")
		}
		raw, err := r.readBytes(n)
		if err != nil {
			return id, err
		}
		id.Bytes = append([]byte(nil), raw...)
	case NFIDRUID:
		raw, err := r.readBytes(32)
		if err != nil {
			return id, err
		}
		id.Bytes = append([]byte(nil), raw...)
	default:
		return id, fmt.Errorf("unknown non-fungible id kind %d", k)
	}
	return id, nil
}

// valueEqual is the structural equality used by tests and worktop assertions.
func valueEqual(a, b Value) bool {
	ab, errA := EncodeValue(a)
	bb, errB := EncodeValue(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
