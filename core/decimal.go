package core

// Decimal — fixed-point arithmetic for resource amounts and fee math.
//
// A Decimal is a signed 256-bit integer interpreted at scale 10^18. All
// operations bounds-check the result and surface explicit overflow errors;
// nothing wraps. The wire form is 32 bytes little-endian two's-complement.

import (
	"fmt"
	"math/big"
	"strings"
)

// DecimalScale is the number of fractional decimal digits.
const DecimalScale = 18

var (
	decTen         = big.NewInt(10)
	decScaleFactor = new(big.Int).Exp(decTen, big.NewInt(DecimalScale), nil)
	decMax         = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	decMin         = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
)

// ErrDecimalOverflow reports a result outside the signed 256-bit range.
var ErrDecimalOverflow = fmt.Errorf("decimal overflow")

// Decimal is an immutable fixed-point number. The zero value is 0.
type Decimal struct {
	i *big.Int // value × 10^18; nil means zero
}

func (d Decimal) raw() *big.Int {
	if d.i == nil {
		return new(big.Int)
	}
	return d.i
}

func checkedDecimal(i *big.Int) (Decimal, error) {
	if i.Cmp(decMax) > 0 || i.Cmp(decMin) < 0 {
		return Decimal{}, ErrDecimalOverflow
	}
	return Decimal{i: i}, nil
}

// NewDecimal returns the Decimal for a whole number of units.
func NewDecimal(units int64) Decimal {
	return Decimal{i: new(big.Int).Mul(big.NewInt(units), decScaleFactor)}
}

// DecimalFromSubunits builds a Decimal directly from a raw subunit count
// (value × 10^-18).
func DecimalFromSubunits(i *big.Int) (Decimal, error) {
	return checkedDecimal(new(big.Int).Set(i))
}

// DecimalZero and DecimalOne are shared constants.
var (
	DecimalZero = Decimal{}
	DecimalOne  = NewDecimal(1)
)

// DecimalFromString parses "123", "-0.5", "0.000000000000000001" etc.
func DecimalFromString(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Decimal{}, fmt.Errorf("empty decimal")
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart, fracPart = s[:dot], s[dot+1:]
	}
	if intPart == "" && fracPart == "" {
		return Decimal{}, fmt.Errorf("invalid decimal %q", s)
	}
	if len(fracPart) > DecimalScale {
		return Decimal{}, fmt.Errorf("decimal %q exceeds %d fractional digits", s, DecimalScale)
	}
	digits := intPart + fracPart + strings.Repeat("0", DecimalScale-len(fracPart))
	i, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Decimal{}, fmt.Errorf("invalid decimal %q", s)
	}
	if neg {
		i.Neg(i)
	}
	return checkedDecimal(i)
}

// MustDecimal parses s and panics on error; for constants in code and tests.
func MustDecimal(s string) Decimal {
	d, err := DecimalFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Add returns d + o.
func (d Decimal) Add(o Decimal) (Decimal, error) {
	return checkedDecimal(new(big.Int).Add(d.raw(), o.raw()))
}

// Sub returns d − o.
func (d Decimal) Sub(o Decimal) (Decimal, error) {
	return checkedDecimal(new(big.Int).Sub(d.raw(), o.raw()))
}

// Mul returns d × o, truncating toward zero at scale 18.
func (d Decimal) Mul(o Decimal) (Decimal, error) {
	p := new(big.Int).Mul(d.raw(), o.raw())
	p.Quo(p, decScaleFactor)
	return checkedDecimal(p)
}

// MulUint64 returns d × n.
func (d Decimal) MulUint64(n uint64) (Decimal, error) {
	return checkedDecimal(new(big.Int).Mul(d.raw(), new(big.Int).SetUint64(n)))
}

// DivUint64 returns d ÷ n, truncating toward zero.
func (d Decimal) DivUint64(n uint64) (Decimal, error) {
	if n == 0 {
		return Decimal{}, fmt.Errorf("decimal division by zero")
	}
	return checkedDecimal(new(big.Int).Quo(d.raw(), new(big.Int).SetUint64(n)))
}

// Cmp returns -1, 0 or +1.
func (d Decimal) Cmp(o Decimal) int { return d.raw().Cmp(o.raw()) }

// IsZero reports d == 0.
func (d Decimal) IsZero() bool { return d.raw().Sign() == 0 }

// IsNegative reports d < 0.
func (d Decimal) IsNegative() bool { return d.raw().Sign() < 0 }

// IsPositive reports d > 0.
func (d Decimal) IsPositive() bool { return d.raw().Sign() > 0 }

// CheckScale reports whether d × 10^divisibility is an integer, i.e. whether
// the amount respects the resource's divisibility.
func (d Decimal) CheckScale(divisibility uint8) bool {
	if divisibility >= DecimalScale {
		return true
	}
	rem := new(big.Int)
	mod := new(big.Int).Exp(decTen, big.NewInt(int64(DecimalScale-int(divisibility))), nil)
	rem.Rem(d.raw(), mod)
	return rem.Sign() == 0
}

// String renders the canonical decimal form with trailing zeros trimmed.
func (d Decimal) String() string {
	i := d.raw()
	sign := ""
	abs := new(big.Int).Abs(i)
	if i.Sign() < 0 {
		sign = "-"
	}
	q, r := new(big.Int).QuoRem(abs, decScaleFactor, new(big.Int))
	if r.Sign() == 0 {
		return sign + q.String()
	}
	frac := fmt.Sprintf("%018s", r.String())
	frac = strings.TrimRight(frac, "0")
	return sign + q.String() + "." + frac
}

// Bytes returns the 32-byte little-endian two's-complement wire form.
func (d Decimal) Bytes() []byte {
	i := d.raw()
	buf := make([]byte, 32)
	tmp := new(big.Int)
	if i.Sign() < 0 {
		// two's complement: 2^256 + i
		tmp.Add(new(big.Int).Lsh(big.NewInt(1), 256), i)
	} else {
		tmp.Set(i)
	}
	be := tmp.Bytes()
	for idx := 0; idx < len(be); idx++ {
		buf[idx] = be[len(be)-1-idx]
	}
	return buf
}

// DecimalFromBytes parses the 32-byte wire form.
func DecimalFromBytes(b []byte) (Decimal, error) {
	if len(b) != 32 {
		return Decimal{}, fmt.Errorf("decimal wire form must be 32 bytes, got %d", len(b))
	}
	be := make([]byte, 32)
	for idx := 0; idx < 32; idx++ {
		be[idx] = b[31-idx]
	}
	i := new(big.Int).SetBytes(be)
	if be[0]&0x80 != 0 {
		i.Sub(i, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	return checkedDecimal(i)
}

// MarshalText keeps Decimal stable through JSON substate payloads.
func (d Decimal) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Decimal) UnmarshalText(b []byte) error {
	parsed, err := DecimalFromString(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
