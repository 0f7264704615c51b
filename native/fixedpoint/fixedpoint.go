package fixedpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Scale is the number of implied decimal places carried by a Value.
type Scale uint8

const (
	// Wad carries 18 decimal places and is used for token amounts.
	Wad Scale = 18
	// Ray carries 27 decimal places and is used for rates and ratios.
	Ray Scale = 27
	// Rad carries 45 decimal places (wad * ray).
	Rad Scale = 45
)

// inputDigits is the number of fractional digits accepted by ToWad/ToRay/ToRad.
const inputDigits = 10

var (
	// ErrNegative is returned when a negative decimal is lifted into a fixed-point scale.
	ErrNegative = errors.New("fixedpoint: negative value")
	// ErrMalformed is returned when a decimal string cannot be parsed.
	ErrMalformed = errors.New("fixedpoint: malformed decimal")
	// ErrOverflow is returned when a value does not fit the 256-bit word used on-chain.
	ErrOverflow = errors.New("fixedpoint: value overflows uint256")
)

var (
	ten     = big.NewInt(10)
	wadUnit = pow10(uint(Wad))
	rayUnit = pow10(uint(Ray))
	radUnit = pow10(uint(Rad))
)

func pow10(n uint) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil)
}

// String returns the conventional name of the scale.
func (s Scale) String() string {
	switch s {
	case Wad:
		return "wad"
	case Ray:
		return "ray"
	case Rad:
		return "rad"
	default:
		return fmt.Sprintf("scale(%d)", uint8(s))
	}
}

// Unit returns 10^scale as a fresh integer.
func (s Scale) Unit() *big.Int {
	switch s {
	case Wad:
		return new(big.Int).Set(wadUnit)
	case Ray:
		return new(big.Int).Set(rayUnit)
	case Rad:
		return new(big.Int).Set(radUnit)
	default:
		return pow10(uint(s))
	}
}

// Value is a non-negative integer magnitude tagged with its implied scale.
// Values are immutable; every operation returns a new Value.
type Value struct {
	i     *big.Int
	scale Scale
}

// New wraps a raw integer already expressed in the given scale. The integer is copied.
func New(i *big.Int, scale Scale) Value {
	if i == nil {
		return Zero(scale)
	}
	return Value{i: new(big.Int).Set(i), scale: scale}
}

// Zero returns the zero value in the given scale.
func Zero(scale Scale) Value {
	return Value{i: new(big.Int), scale: scale}
}

// One returns 1.0 in the given scale.
func One(scale Scale) Value {
	return Value{i: scale.Unit(), scale: scale}
}

// Scale reports the value's scale.
func (v Value) Scale() Scale { return v.scale }

// Int returns a copy of the raw integer magnitude.
func (v Value) Int() *big.Int {
	if v.i == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.i)
}

func (v Value) raw() *big.Int {
	if v.i == nil {
		return new(big.Int)
	}
	return v.i
}

// Sign returns -1, 0 or +1.
func (v Value) Sign() int { return v.raw().Sign() }

// IsZero reports whether the magnitude is zero.
func (v Value) IsZero() bool { return v.raw().Sign() == 0 }

func mustMatch(op string, a, b Value) {
	if a.scale != b.scale {
		panic(fmt.Sprintf("fixedpoint: %s mixes %s and %s; rescale explicitly", op, a.scale, b.scale))
	}
}

// Add returns v + o. Both operands must share a scale.
func (v Value) Add(o Value) Value {
	mustMatch("add", v, o)
	return Value{i: new(big.Int).Add(v.raw(), o.raw()), scale: v.scale}
}

// Sub returns v - o. Both operands must share a scale. Callers compare first
// when a negative result would violate their invariants.
func (v Value) Sub(o Value) Value {
	mustMatch("sub", v, o)
	return Value{i: new(big.Int).Sub(v.raw(), o.raw()), scale: v.scale}
}

// Cmp compares two values of the same scale.
func (v Value) Cmp(o Value) int {
	mustMatch("cmp", v, o)
	return v.raw().Cmp(o.raw())
}

// Rescale converts the value to another scale. Narrowing truncates.
func (v Value) Rescale(to Scale) Value {
	switch {
	case to == v.scale:
		return New(v.raw(), to)
	case to > v.scale:
		factor := pow10(uint(to - v.scale))
		return Value{i: new(big.Int).Mul(v.raw(), factor), scale: to}
	default:
		factor := pow10(uint(v.scale - to))
		return Value{i: new(big.Int).Quo(v.raw(), factor), scale: to}
	}
}

// MulRay multiplies a value of any scale by a RAY factor and returns the
// result in the first operand's scale, floor(x*y/1e27).
func MulRay(x, y Value) Value {
	if y.scale != Ray {
		panic(fmt.Sprintf("fixedpoint: MulRay factor must be ray, got %s", y.scale))
	}
	product := new(big.Int).Mul(x.raw(), y.raw())
	product.Quo(product, rayUnit)
	return Value{i: product, scale: x.scale}
}

// DivRay divides a value of any scale by a RAY divisor and returns the result
// in the first operand's scale, floor(x*1e27/y). A zero divisor is a caller
// precondition violation.
func DivRay(x, y Value) Value {
	if y.scale != Ray {
		panic(fmt.Sprintf("fixedpoint: DivRay divisor must be ray, got %s", y.scale))
	}
	if y.raw().Sign() == 0 {
		panic("fixedpoint: DivRay by zero")
	}
	numerator := new(big.Int).Mul(x.raw(), rayUnit)
	numerator.Quo(numerator, y.raw())
	return Value{i: numerator, scale: x.scale}
}

// Ratio returns floor(a/b) in RAY for two values of the same scale.
func Ratio(a, b Value) Value {
	mustMatch("ratio", a, b)
	if b.raw().Sign() == 0 {
		panic("fixedpoint: Ratio by zero")
	}
	numerator := new(big.Int).Mul(a.raw(), rayUnit)
	numerator.Quo(numerator, b.raw())
	return Value{i: numerator, scale: Ray}
}

// ToWad lifts a decimal with up to 10 fractional digits into WAD.
func ToWad(decimal string) (Value, error) { return lift(decimal, Wad) }

// ToRay lifts a decimal with up to 10 fractional digits into RAY.
func ToRay(decimal string) (Value, error) { return lift(decimal, Ray) }

// ToRad lifts a decimal with up to 10 fractional digits into RAD.
func ToRad(decimal string) (Value, error) { return lift(decimal, Rad) }

// MustWad is ToWad for constants; it panics on malformed input.
func MustWad(decimal string) Value { return must(ToWad(decimal)) }

// MustRay is ToRay for constants; it panics on malformed input.
func MustRay(decimal string) Value { return must(ToRay(decimal)) }

func must(v Value, err error) Value {
	if err != nil {
		panic(err)
	}
	return v
}

// lift scales the decimal by 10^10 and then by the corrective exponent
// 10^(scale-10). Digits past the tenth are dropped.
func lift(decimal string, scale Scale) (Value, error) {
	n, err := parseDigits(decimal, inputDigits)
	if err != nil {
		return Value{}, err
	}
	corrective := pow10(uint(scale) - inputDigits)
	return Value{i: n.Mul(n, corrective), scale: scale}, nil
}

// Parse reads a decimal with up to scale fractional digits (parseEther for
// Wad). Extra digits are truncated.
func Parse(decimal string, scale Scale) (Value, error) {
	n, err := parseDigits(decimal, uint(scale))
	if err != nil {
		return Value{}, err
	}
	return Value{i: n, scale: scale}, nil
}

// parseDigits returns decimal * 10^digits truncated to an integer.
func parseDigits(decimal string, digits uint) (*big.Int, error) {
	s := strings.TrimSpace(decimal)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformed)
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("%w: %s", ErrNegative, decimal)
	}
	s = strings.TrimPrefix(s, "+")
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, decimal)
	}
	if uint(len(frac)) > digits {
		frac = frac[:digits]
	}
	frac += strings.Repeat("0", int(digits)-len(frac))
	n, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, decimal)
	}
	return n, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// String renders the value as a plain decimal without trailing zeros.
func (v Value) String() string {
	return Format(v, uint(v.scale))
}

// Format renders at most digits fractional digits, truncating the rest.
func Format(v Value, digits uint) string {
	unit := v.scale.Unit()
	raw := v.raw()
	neg := raw.Sign() < 0
	abs := new(big.Int).Abs(raw)
	whole, rem := new(big.Int).QuoRem(abs, unit, new(big.Int))
	out := whole.String()
	if v.scale > 0 && rem.Sign() != 0 {
		frac := rem.String()
		frac = strings.Repeat("0", int(v.scale)-len(frac)) + frac
		if uint(len(frac)) > digits {
			frac = frac[:digits]
		}
		frac = strings.TrimRight(frac, "0")
		if frac != "" {
			out += "." + frac
		}
	}
	if neg {
		out = "-" + out
	}
	return out
}

// FromWad renders a WAD value as a decimal string.
func FromWad(v Value) string {
	if v.scale != Wad {
		v = v.Rescale(Wad)
	}
	return v.String()
}

// Float64 is for presentation only; it must never gate a transaction.
func (v Value) Float64() float64 {
	f, _ := new(big.Rat).SetFrac(v.raw(), v.scale.Unit()).Float64()
	return f
}

// Uint256 converts the magnitude into a 256-bit word for calldata encoding.
func (v Value) Uint256() (*uint256.Int, error) {
	if v.raw().Sign() < 0 {
		return nil, ErrNegative
	}
	word, overflow := uint256.FromBig(v.raw())
	if overflow {
		return nil, ErrOverflow
	}
	return word, nil
}

// BigForABI returns the magnitude after verifying it fits in a uint256.
func (v Value) BigForABI() (*big.Int, error) {
	word, err := v.Uint256()
	if err != nil {
		return nil, err
	}
	return word.ToBig(), nil
}

type valueJSON struct {
	Value string `json:"value"`
	Scale uint8  `json:"scale"`
}

// MarshalJSON encodes the raw integer and its scale.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueJSON{Value: v.raw().String(), Scale: uint8(v.scale)})
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var decoded valueJSON
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	n, ok := new(big.Int).SetString(decoded.Value, 10)
	if !ok {
		return fmt.Errorf("%w: %q", ErrMalformed, decoded.Value)
	}
	v.i = n
	v.scale = Scale(decoded.Scale)
	return nil
}
