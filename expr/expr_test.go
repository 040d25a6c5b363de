package expr

import "testing"

func TestEvalArithmetic(t *testing.T) {
	cases := []struct {
		src  string
		vars Vars
		want int64
	}{
		{"1 + 2 * 3", nil, 7},
		{"(1 + 2) * 3", nil, 9},
		{"self + 1", Vars{"self": Int(4)}, 5},
		{"10 % 3", nil, 1},
		{"-5 + 2", nil, -3},
	}
	for _, c := range cases {
		v, err := Eval(c.src, c.vars)
		if err != nil {
			t.Fatalf("Eval(%q): %v", c.src, err)
		}
		got, err := v.ToInt64()
		if err != nil {
			t.Fatalf("ToInt64: %v", err)
		}
		if got != c.want {
			t.Fatalf("Eval(%q) = %d, want %d", c.src, got, c.want)
		}
	}
}

// TestFloatPrecision guards against the historical bug spec.md calls out:
// evaluating 1.0 or mixing floats with large integers must not lose
// precision, since this engine runs on big.Rat rather than float64.
func TestFloatPrecision(t *testing.T) {
	v, err := Eval("self", Vars{"self": Float(1.0)})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v.CanonicalKey() != "1" {
		t.Fatalf("CanonicalKey() = %q, want %q", v.CanonicalKey(), "1")
	}

	big, err := Eval("a + 1", Vars{"a": Int(9007199254740993)}) // 2^53 + 1
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	got, err := big.ToInt64()
	if err != nil {
		t.Fatalf("ToInt64: %v", err)
	}
	if got != 9007199254740994 {
		t.Fatalf("got %d, want exact 9007199254740994 (a float64 path would round this)", got)
	}
}

func TestEvalBoolShortCircuit(t *testing.T) {
	v, err := Eval(`1 == 0 && (1/0 == 0)`, nil)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	b, _ := v.ToBool()
	if b {
		t.Fatal("expected false")
	}
}

func TestEvalComparison(t *testing.T) {
	v, err := Eval(`self >= 3 && self < 10`, Vars{"self": Int(5)})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	b, _ := v.ToBool()
	if !b {
		t.Fatal("expected true")
	}
}

func TestEvalStringEquality(t *testing.T) {
	v, err := Eval(`self == "ok"`, Vars{"self": Str("ok")})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	b, _ := v.ToBool()
	if !b {
		t.Fatal("expected true")
	}
}

func TestEvalUnboundName(t *testing.T) {
	if _, err := Eval("missing + 1", nil); err == nil {
		t.Fatal("expected an unbound-name error")
	}
}

func TestEvalDivisionByZero(t *testing.T) {
	if _, err := Eval("1 / 0", nil); err == nil {
		t.Fatal("expected a division-by-zero error")
	}
}

func TestIsIdentifier(t *testing.T) {
	cases := map[string]bool{
		"len":      true,
		"_foo9":    true,
		"len + 1":  false,
		"1len":     false,
		"":         false,
	}
	for src, want := range cases {
		if got := IsIdentifier(src); got != want {
			t.Fatalf("IsIdentifier(%q) = %v, want %v", src, got, want)
		}
	}
}

func TestCanonicalKey(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Bool(true), "true"},
		{Bool(false), "false"},
		{Str("x"), "x"},
		{Int(42), "42"},
		{Float(1.0), "1"},
		{Float(1.5), "1.5"},
	}
	for _, c := range cases {
		if got := c.v.CanonicalKey(); got != c.want {
			t.Fatalf("CanonicalKey() = %q, want %q", got, c.want)
		}
	}
}
