package fixedpoint

import (
	"errors"
	"math/big"
	"strings"
	"testing"
)

func TestToWadLiftsWithCorrectiveExponent(t *testing.T) {
	v, err := ToWad("1.5")
	if err != nil {
		t.Fatalf("to wad: %v", err)
	}
	expected, _ := new(big.Int).SetString("1500000000000000000", 10)
	if v.Int().Cmp(expected) != 0 {
		t.Fatalf("expected %s, got %s", expected, v.Int())
	}
	if v.Scale() != Wad {
		t.Fatalf("expected wad scale, got %s", v.Scale())
	}

	r, err := ToRay("0.01")
	if err != nil {
		t.Fatalf("to ray: %v", err)
	}
	if r.Int().Cmp(new(big.Int).Exp(big.NewInt(10), big.NewInt(25), nil)) != 0 {
		t.Fatalf("unexpected ray %s", r.Int())
	}

	rad, err := ToRad("2")
	if err != nil {
		t.Fatalf("to rad: %v", err)
	}
	if rad.Int().Cmp(new(big.Int).Mul(big.NewInt(2), Rad.Unit())) != 0 {
		t.Fatalf("unexpected rad %s", rad.Int())
	}
}

func TestRoundTripNeverOverReports(t *testing.T) {
	cases := []string{
		"0",
		"1",
		"0.98",
		"1000",
		"1234.5678901234",
		"0.0000000001",
		"3.14159265358979323846",
		"99999999999.99999999999",
	}
	for _, input := range cases {
		v, err := ToWad(input)
		if err != nil {
			t.Fatalf("to wad %q: %v", input, err)
		}
		out := FromWad(v)
		got, ok := new(big.Rat).SetString(out)
		if !ok {
			t.Fatalf("parse output %q", out)
		}
		want, _ := new(big.Rat).SetString(input)
		if got.Cmp(want) > 0 {
			t.Fatalf("round trip over-reported %q as %q", input, out)
		}
		if _, frac, ok := strings.Cut(input, "."); !ok || len(frac) <= 10 {
			if got.Cmp(want) != 0 {
				t.Fatalf("round trip of %q lost precision: %q", input, out)
			}
		}
	}
}

func TestToWadRejectsNegativeAndMalformed(t *testing.T) {
	if _, err := ToWad("-1"); !errors.Is(err, ErrNegative) {
		t.Fatalf("expected ErrNegative, got %v", err)
	}
	for _, input := range []string{"", "abc", "1.2.3", "1e18"} {
		if _, err := ToWad(input); !errors.Is(err, ErrMalformed) {
			t.Fatalf("expected ErrMalformed for %q, got %v", input, err)
		}
	}
}

func TestMulDivRayFloor(t *testing.T) {
	amount := MustWad("1000")
	price := MustRay("0.98")

	divided := DivRay(amount, price)
	// 1000 / 0.98 = 1020.408163265306122448...
	if got := FromWad(divided); got != "1020.408163265306122448" {
		t.Fatalf("unexpected quotient %s", got)
	}
	if divided.Scale() != Wad {
		t.Fatalf("quotient should keep the first operand's scale")
	}

	third := DivRay(MustWad("1"), MustRay("3"))
	back := MulRay(third, MustRay("3"))
	if back.Cmp(MustWad("1")) >= 0 {
		t.Fatalf("expected downward truncation bias, got %s", back)
	}
}

func TestMixedScalesPanic(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic when adding wad and ray")
		}
	}()
	MustWad("1").Add(MustRay("1"))
}

func TestRescaleIsExplicit(t *testing.T) {
	ray := MustWad("1.25").Rescale(Ray)
	if ray.Cmp(MustRay("1.25")) != 0 {
		t.Fatalf("unexpected rescale %s", ray)
	}
	back := New(big.NewInt(1_999_999_999), Ray).Rescale(Wad)
	if back.Int().Int64() != 1 {
		t.Fatalf("narrowing should truncate, got %s", back.Int())
	}
}

func TestUint256Overflow(t *testing.T) {
	huge := New(new(big.Int).Lsh(big.NewInt(1), 256), Wad)
	if _, err := huge.Uint256(); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	word, err := MustWad("7").Uint256()
	if err != nil {
		t.Fatalf("uint256: %v", err)
	}
	if word.ToBig().Cmp(MustWad("7").Int()) != 0 {
		t.Fatalf("unexpected word %s", word)
	}
}

func TestParseKeepsEighteenDigits(t *testing.T) {
	v, err := Parse("0.123456789012345678999", Wad)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v.Int().String() != "123456789012345678" {
		t.Fatalf("unexpected parse %s", v.Int())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	in := MustRay("0.05")
	data, err := in.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Value
	if err := out.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Scale() != Ray || out.Cmp(in) != 0 {
		t.Fatalf("unexpected decode %s (%s)", out, out.Scale())
	}
}
