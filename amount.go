package latis

import (
	"math"
)

// AmountKind discriminates which arm of Amount is populated.
type AmountKind int

const (
	KindString AmountKind = iota
	KindBool
	KindInt
	KindDouble
	KindTimestamp
	KindMoney
)

// Currency is the closed currency tag for Money.
type Currency int

const (
	USD Currency = iota
	CAD
	UnknownCurrency
)

func (c Currency) String() string {
	switch c {
	case USD:
		return "USD"
	case CAD:
		return "CAD"
	default:
		return "UNKNOWN"
	}
}

// Timestamp is seconds since the Unix epoch plus an optional sub-second
// fraction in [0,1).
type Timestamp struct {
	Seconds int64
	Frac    float64 // [0, 1)
}

// Money is integer dollars plus integer cents in [0,100), tagged with a
// currency. Arithmetic across currencies, or on UnknownCurrency, fails.
type Money struct {
	Dollars  int64
	Cents    int64
	Currency Currency
}

// Amount is the tagged-union value domain: exactly one of the typed
// fields below is meaningful, selected by Kind. This mirrors the
// source's proto-backed variant but as a plain Go struct -- dispatch is
// by Kind, same as the source's visitor pattern.
type Amount struct {
	Kind AmountKind

	Str   string
	Bool  bool
	Int   int64
	Dbl   float64
	Ts    Timestamp
	Money Money
}

func StringAmount(s string) Amount    { return Amount{Kind: KindString, Str: s} }
func BoolAmount(b bool) Amount        { return Amount{Kind: KindBool, Bool: b} }
func IntAmount(i int64) Amount        { return Amount{Kind: KindInt, Int: i} }
func DoubleAmount(d float64) Amount   { return Amount{Kind: KindDouble, Dbl: d} }
func TimestampAmount(t Timestamp) Amount { return Amount{Kind: KindTimestamp, Ts: t} }
func MoneyAmount(m Money) Amount      { return Amount{Kind: KindMoney, Money: m} }

// less and equal for Timestamp compare (seconds, frac) lexicographically:
// seconds first, then frac. Per the documented deviation from the
// source (which combines seconds/nanos with && for comparisons), this
// is what Less/Equal for timestamps actually compares on.
func (t Timestamp) less(o Timestamp) bool {
	if t.Seconds != o.Seconds {
		return t.Seconds < o.Seconds
	}
	return t.Frac < o.Frac
}

func (t Timestamp) equal(o Timestamp) bool {
	return t.Seconds == o.Seconds && t.Frac == o.Frac
}

// less and equal for Money are normalized lexicographic (dollars, then
// cents) -- again the documented deviation from the source's apparent
// double-dollar-compare bug.
func (m Money) less(o Money) bool {
	if m.Dollars != o.Dollars {
		return m.Dollars < o.Dollars
	}
	return m.Cents < o.Cents
}

func (m Money) equal(o Money) bool {
	return m.Dollars == o.Dollars && m.Cents == o.Cents
}

// asFloat renders Money as a single float for multiplication/division,
// following the dollar-fractional rule (dollars plus cents/100).
func (m Money) asFloat() float64 {
	sign := 1.0
	if m.Dollars < 0 {
		sign = -1.0
	}
	return float64(m.Dollars) + sign*float64(m.Cents)/100.0
}

// moneyFromFloat reconstructs a Money from a float, flooring to dollars
// and rounding the remainder to cents.
func moneyFromFloat(f float64, currency Currency) Money {
	dollars := math.Floor(f)
	cents := math.Round((f - dollars) * 100)
	if cents >= 100 {
		dollars++
		cents -= 100
	}
	return Money{Dollars: int64(dollars), Cents: int64(cents), Currency: currency}
}

// Add implements the '+' arm of the value algebra.
func Add(a, b Amount) (Amount, error) {
	switch {
	case a.Kind == KindString && b.Kind == KindString:
		return StringAmount(a.Str + b.Str), nil
	case a.Kind == KindTimestamp && b.Kind == KindTimestamp:
		return TimestampAmount(Timestamp{Seconds: a.Ts.Seconds + b.Ts.Seconds, Frac: clampFrac(a.Ts.Frac + b.Ts.Frac)}), nil
	case a.Kind == KindMoney && b.Kind == KindMoney:
		if a.Money.Currency != b.Money.Currency || a.Money.Currency == UnknownCurrency {
			return Amount{}, evalErrorf("currency mismatch in +")
		}
		return MoneyAmount(moneyFromFloat(a.Money.asFloat()+b.Money.asFloat(), a.Money.Currency)), nil
	case a.Kind == KindInt && b.Kind == KindInt:
		return IntAmount(a.Int + b.Int), nil
	}
	if d1, d2, ok := numericPair(a, b); ok {
		return DoubleAmount(d1 + d2), nil
	}
	return Amount{}, evalErrorf("+ not defined for %v and %v", a.Kind, b.Kind)
}

// Sub implements the '-' arm. Subtracting money/timestamps fails if
// lhs < rhs.
func Sub(a, b Amount) (Amount, error) {
	switch {
	case a.Kind == KindTimestamp && b.Kind == KindTimestamp:
		if a.Ts.less(b.Ts) {
			return Amount{}, evalErrorf("timestamp subtraction underflow")
		}
		return TimestampAmount(Timestamp{Seconds: a.Ts.Seconds - b.Ts.Seconds, Frac: clampFrac(a.Ts.Frac - b.Ts.Frac)}), nil
	case a.Kind == KindMoney && b.Kind == KindMoney:
		if a.Money.Currency != b.Money.Currency || a.Money.Currency == UnknownCurrency {
			return Amount{}, evalErrorf("currency mismatch in -")
		}
		if a.Money.less(b.Money) {
			return Amount{}, evalErrorf("money subtraction underflow")
		}
		return MoneyAmount(moneyFromFloat(a.Money.asFloat()-b.Money.asFloat(), a.Money.Currency)), nil
	case a.Kind == KindInt && b.Kind == KindInt:
		return IntAmount(a.Int - b.Int), nil
	}
	if d1, d2, ok := numericPair(a, b); ok {
		return DoubleAmount(d1 - d2), nil
	}
	return Amount{}, evalErrorf("- not defined for %v and %v", a.Kind, b.Kind)
}

// Mul implements the '*' arm.
func Mul(a, b Amount) (Amount, error) {
	switch {
	case a.Kind == KindMoney && b.Kind == KindMoney:
		if a.Money.Currency != b.Money.Currency || a.Money.Currency == UnknownCurrency {
			return Amount{}, evalErrorf("currency mismatch in *")
		}
		return MoneyAmount(moneyFromFloat(a.Money.asFloat()*b.Money.asFloat(), a.Money.Currency)), nil
	case a.Kind == KindInt && b.Kind == KindInt:
		return IntAmount(a.Int * b.Int), nil
	}
	if d1, d2, ok := numericPair(a, b); ok {
		return DoubleAmount(d1 * d2), nil
	}
	return Amount{}, evalErrorf("* not defined for %v and %v", a.Kind, b.Kind)
}

// Div implements the '/' arm; integer division truncates.
func Div(a, b Amount) (Amount, error) {
	switch {
	case a.Kind == KindMoney && b.Kind == KindMoney:
		if a.Money.Currency != b.Money.Currency || a.Money.Currency == UnknownCurrency {
			return Amount{}, evalErrorf("currency mismatch in /")
		}
		if b.Money.asFloat() == 0 {
			return Amount{}, evalErrorf("division by zero")
		}
		return MoneyAmount(moneyFromFloat(a.Money.asFloat()/b.Money.asFloat(), a.Money.Currency)), nil
	case a.Kind == KindInt && b.Kind == KindInt:
		if b.Int == 0 {
			return Amount{}, evalErrorf("division by zero")
		}
		return IntAmount(a.Int / b.Int), nil
	}
	if d1, d2, ok := numericPair(a, b); ok {
		if d2 == 0 {
			return Amount{}, evalErrorf("division by zero")
		}
		return DoubleAmount(d1 / d2), nil
	}
	return Amount{}, evalErrorf("/ not defined for %v and %v", a.Kind, b.Kind)
}

// Pow implements the '^' arm (numeric only; named explicitly in the
// grammar's infix_op list but not part of the core value algebra).
func Pow(a, b Amount) (Amount, error) {
	if a.Kind == KindInt && b.Kind == KindInt && b.Int >= 0 {
		return IntAmount(int64(math.Pow(float64(a.Int), float64(b.Int)))), nil
	}
	if d1, d2, ok := numericPair(a, b); ok {
		return DoubleAmount(math.Pow(d1, d2)), nil
	}
	return Amount{}, evalErrorf("^ not defined for %v and %v", a.Kind, b.Kind)
}

// Mod implements the '%' arm (int only).
func Mod(a, b Amount) (Amount, error) {
	if a.Kind == KindInt && b.Kind == KindInt {
		if b.Int == 0 {
			return Amount{}, evalErrorf("modulo by zero")
		}
		return IntAmount(a.Int % b.Int), nil
	}
	return Amount{}, evalErrorf("%% not defined for %v and %v", a.Kind, b.Kind)
}

// And implements '&&' -- bool only.
func And(a, b Amount) (Amount, error) {
	if a.Kind == KindBool && b.Kind == KindBool {
		return BoolAmount(a.Bool && b.Bool), nil
	}
	return Amount{}, evalErrorf("&& requires bool operands")
}

// Or implements '||' -- bool only.
func Or(a, b Amount) (Amount, error) {
	if a.Kind == KindBool && b.Kind == KindBool {
		return BoolAmount(a.Bool || b.Bool), nil
	}
	return Amount{}, evalErrorf("|| requires bool operands")
}

// Not implements '!' -- bool only, arity 1.
func Not(a Amount) (Amount, error) {
	if a.Kind == KindBool {
		return BoolAmount(!a.Bool), nil
	}
	return Amount{}, evalErrorf("! requires a bool operand")
}

// Equal implements '==' / EQ; Less implements '<' / LTHAN. The rest of
// the comparison family (LEQ, GTHAN, GEQ, NEQ) is derived from these
// two, mirroring how the reference implementation layers </>/>=/==/!=
// on top of <= and +.
func Equal(a, b Amount) (Amount, error) {
	if a.Kind != b.Kind {
		return Amount{}, evalErrorf("== requires matching types, got %v and %v", a.Kind, b.Kind)
	}
	switch a.Kind {
	case KindString:
		return BoolAmount(a.Str == b.Str), nil
	case KindBool:
		return BoolAmount(a.Bool == b.Bool), nil
	case KindInt:
		return BoolAmount(a.Int == b.Int), nil
	case KindDouble:
		return BoolAmount(a.Dbl == b.Dbl), nil
	case KindTimestamp:
		return BoolAmount(a.Ts.equal(b.Ts)), nil
	case KindMoney:
		if a.Money.Currency != b.Money.Currency {
			return Amount{}, evalErrorf("currency mismatch in ==")
		}
		return BoolAmount(a.Money.equal(b.Money)), nil
	}
	return Amount{}, evalErrorf("== not defined for %v", a.Kind)
}

func Less(a, b Amount) (Amount, error) {
	if a.Kind != b.Kind {
		return Amount{}, evalErrorf("< requires matching types, got %v and %v", a.Kind, b.Kind)
	}
	switch a.Kind {
	case KindString:
		return BoolAmount(a.Str < b.Str), nil
	case KindInt:
		return BoolAmount(a.Int < b.Int), nil
	case KindDouble:
		return BoolAmount(a.Dbl < b.Dbl), nil
	case KindTimestamp:
		return BoolAmount(a.Ts.less(b.Ts)), nil
	case KindMoney:
		if a.Money.Currency != b.Money.Currency {
			return Amount{}, evalErrorf("currency mismatch in <")
		}
		return BoolAmount(a.Money.less(b.Money)), nil
	}
	return Amount{}, evalErrorf("< not defined for %v", a.Kind)
}

func Greater(a, b Amount) (Amount, error) { return Less(b, a) }

func LessOrEqual(a, b Amount) (Amount, error) {
	lt, err := Less(a, b)
	if err != nil {
		return Amount{}, err
	}
	eq, err := Equal(a, b)
	if err != nil {
		return Amount{}, err
	}
	return BoolAmount(lt.Bool || eq.Bool), nil
}

func GreaterOrEqual(a, b Amount) (Amount, error) { return LessOrEqual(b, a) }

func NotEqual(a, b Amount) (Amount, error) {
	eq, err := Equal(a, b)
	if err != nil {
		return Amount{}, err
	}
	return BoolAmount(!eq.Bool), nil
}

func numericPair(a, b Amount) (float64, float64, bool) {
	av, aok := asNumeric(a)
	bv, bok := asNumeric(b)
	if aok && bok && (a.Kind == KindDouble || b.Kind == KindDouble) {
		return av, bv, true
	}
	return 0, 0, false
}

func asNumeric(a Amount) (float64, bool) {
	switch a.Kind {
	case KindInt:
		return float64(a.Int), true
	case KindDouble:
		return a.Dbl, true
	default:
		return 0, false
	}
}

func clampFrac(f float64) float64 {
	for f >= 1 {
		f -= 1
	}
	for f < 0 {
		f += 1
	}
	return f
}
