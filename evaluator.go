package latis

// LookupFunc resolves a cell reference to its cached Amount during
// evaluation. The sheet engine supplies one backed by its cells map;
// tests can supply a bare map-backed stub.
type LookupFunc func(xy XY) (Amount, bool)

// Evaluate dispatches on expr's kind: a literal evaluates to itself, a
// Lookup resolves through lookup, a Range always fails (parsed but
// never itself evaluable), and an Operation evaluates its terms
// (short-circuiting on the first error) before dispatching on (fn, arity).
func Evaluate(expr Expression, lookup LookupFunc) (Amount, error) {
	switch expr.Kind {
	case ExprValue:
		return expr.Value, nil

	case ExprLookup:
		v, ok := lookup(expr.XY)
		if !ok {
			return Amount{}, evalErrorf("no value at %s", expr.XY.A1())
		}
		return v, nil

	case ExprRange:
		return Amount{}, evalErrorf("range not evaluable: %s", expr.Range)

	case ExprOperation:
		args := make([]Amount, len(expr.Terms))
		for i, t := range expr.Terms {
			v, err := Evaluate(t, lookup)
			if err != nil {
				return Amount{}, err
			}
			args[i] = v
		}
		return dispatch(expr.FnName, args)

	default:
		return Amount{}, evalErrorf("unknown expression kind")
	}
}

func dispatch(fn string, args []Amount) (Amount, error) {
	switch len(args) {
	case 1:
		switch fn {
		case fnNot:
			return Not(args[0])
		default:
			return Amount{}, evalErrorf("unknown unary function %q", fn)
		}
	case 2:
		a, b := args[0], args[1]
		switch fn {
		case fnPlus, fnSum, fnAdd:
			return Add(a, b)
		case fnMinus, fnSub, fnSubtract:
			return Sub(a, b)
		case fnMultipliedBy, fnTimes, fnProduct:
			return Mul(a, b)
		case fnDividedBy, fnDiv:
			return Div(a, b)
		case fnPow:
			return Pow(a, b)
		case fnMod:
			return Mod(a, b)
		case fnAnd:
			return And(a, b)
		case fnOr:
			return Or(a, b)
		case fnLThan:
			return Less(a, b)
		case fnGThan:
			return Greater(a, b)
		case fnLeq:
			return LessOrEqual(a, b)
		case fnGeq:
			return GreaterOrEqual(a, b)
		case fnEq:
			return Equal(a, b)
		case fnNeq:
			return NotEqual(a, b)
		default:
			return Amount{}, evalErrorf("unknown binary function %q", fn)
		}
	default:
		return Amount{}, evalErrorf("function %q called with unsupported arity %d", fn, len(args))
	}
}
