package latis

import (
	"strconv"
	"strings"
	"time"
)

// guardKey is the left-recursion guard's memoization key: a rule name
// and a cursor position. operation_infix's entry is blocked if the key
// is already present; the key is inserted for the lifetime of the call
// and removed on return.
type guardKey struct {
	rule string
	pos  int
}

// Parser holds the mutable state a single Parse() call needs: the
// token cursor and the left-recursion guard set.
type Parser struct {
	cursor *Cursor
	guard  map[guardKey]struct{}
}

func newParser(tokens []Token) *Parser {
	return &Parser{cursor: NewCursor(tokens), guard: make(map[guardKey]struct{})}
}

// Parse lexes and parses s into an Expression tree. It fails if any
// input remains after a full expression is consumed.
func Parse(s string) (Expression, error) {
	tokens, err := Lex(s)
	if err != nil {
		return Expression{}, err
	}
	p := newParser(tokens)
	expr, err := p.ConsumeExpression()
	if err != nil {
		return Expression{}, err
	}
	if !p.cursor.done() {
		return Expression{}, parseErrorf(p.cursor.bytePos(), "unconsumed input remains")
	}
	return expr, nil
}

// ConsumeExpression implements the expression production: operation |
// parenthesized (exactly one inner) | range_location | point_location |
// amount.
func (p *Parser) ConsumeExpression() (Expression, error) {
	mark := p.cursor.mark()

	if op, err := p.ConsumeOperation(); err == nil {
		return op, nil
	}
	p.cursor.reset(mark)

	if terms, err := p.ConsumeParentheses(); err == nil && len(terms) == 1 {
		return terms[0], nil
	}
	p.cursor.reset(mark)

	if r, err := p.ConsumeRangeLocation(); err == nil {
		return RangeExpr(r), nil
	}
	p.cursor.reset(mark)

	if xy, err := p.ConsumePointLocation(); err == nil {
		return LookupExpr(xy), nil
	}
	p.cursor.reset(mark)

	if a, err := p.ConsumeAmount(); err == nil {
		return ValueExpr(a), nil
	}
	p.cursor.reset(mark)

	return Expression{}, parseErrorf(p.cursor.bytePos(), "no expression alternative matched")
}

// ConsumeOperation implements operation := operation_infix | operation_prefix.
func (p *Parser) ConsumeOperation() (Expression, error) {
	mark := p.cursor.mark()
	if e, err := p.ConsumeOperationInfix(); err == nil {
		return e, nil
	}
	p.cursor.reset(mark)
	if e, err := p.ConsumeOperationPrefix(); err == nil {
		return e, nil
	}
	p.cursor.reset(mark)
	return Expression{}, parseErrorf(p.cursor.bytePos(), "not an operation")
}

// ConsumeOperationInfix implements operation_infix := expression infix_op
// expression, guarded against left recursion.
func (p *Parser) ConsumeOperationInfix() (Expression, error) {
	key := guardKey{rule: "operation_infix", pos: p.cursor.mark()}
	if _, blocked := p.guard[key]; blocked {
		return Expression{}, parseErrorf(p.cursor.bytePos(), "left-recursion guard")
	}
	p.guard[key] = struct{}{}
	defer delete(p.guard, key)

	mark := p.cursor.mark()
	lhs, err := p.ConsumeExpression()
	if err != nil {
		p.cursor.reset(mark)
		return Expression{}, err
	}
	fn, err := p.ConsumeInfixOp()
	if err != nil {
		p.cursor.reset(mark)
		return Expression{}, err
	}
	rhs, err := p.ConsumeExpression()
	if err != nil {
		p.cursor.reset(mark)
		return Expression{}, err
	}
	return OperationExpr(fn, lhs, rhs), nil
}

// ConsumeInfixOp implements infix_op, with two-token lookahead for the
// two-character operators.
func (p *Parser) ConsumeInfixOp() (string, error) {
	tok, ok := p.cursor.peek()
	if !ok {
		return "", parseErrorf(p.cursor.bytePos(), "expected infix operator")
	}
	two := func(second TokenKind) bool {
		if p.cursor.pos+1 >= len(p.cursor.tokens) {
			return false
		}
		return p.cursor.tokens[p.cursor.pos+1].Kind == second
	}
	switch tok.Kind {
	case TokPlus:
		p.cursor.advance()
		return fnPlus, nil
	case TokMinus:
		p.cursor.advance()
		return fnMinus, nil
	case TokAsterisk:
		p.cursor.advance()
		return fnTimes, nil
	case TokSlash:
		p.cursor.advance()
		return fnDividedBy, nil
	case TokCarat:
		p.cursor.advance()
		return fnPow, nil
	case TokPercent:
		p.cursor.advance()
		return fnMod, nil
	case TokAmpersand:
		if two(TokAmpersand) {
			p.cursor.advance()
			p.cursor.advance()
			return fnAnd, nil
		}
	case TokPipe:
		if two(TokPipe) {
			p.cursor.advance()
			p.cursor.advance()
			return fnOr, nil
		}
	case TokLThan:
		if two(TokEquals) {
			p.cursor.advance()
			p.cursor.advance()
			return fnLeq, nil
		}
		p.cursor.advance()
		return fnLThan, nil
	case TokGThan:
		if two(TokEquals) {
			p.cursor.advance()
			p.cursor.advance()
			return fnGeq, nil
		}
		p.cursor.advance()
		return fnGThan, nil
	case TokEquals:
		if two(TokEquals) {
			p.cursor.advance()
			p.cursor.advance()
			return fnEq, nil
		}
	case TokBang:
		if two(TokEquals) {
			p.cursor.advance()
			p.cursor.advance()
			return fnNeq, nil
		}
	}
	return "", parseErrorf(p.cursor.bytePos(), "not an infix operator")
}

// ConsumeOperationPrefix implements operation_prefix := fn_name '('
// expression (',' expression)* ')'.
func (p *Parser) ConsumeOperationPrefix() (Expression, error) {
	mark := p.cursor.mark()
	fn, err := p.ConsumeFnName()
	if err != nil {
		p.cursor.reset(mark)
		return Expression{}, err
	}
	terms, err := p.ConsumeParentheses()
	if err != nil {
		p.cursor.reset(mark)
		return Expression{}, err
	}
	if len(terms) == 0 {
		p.cursor.reset(mark)
		return Expression{}, parseErrorf(p.cursor.bytePos(), "function call needs at least one argument")
	}
	return OperationExpr(fn, terms...), nil
}

// ConsumeFnName implements fn_name := (alpha|numeric|'_')+, rejected if
// empty, containing lowercase, or starting with a digit or underscore.
func (p *Parser) ConsumeFnName() (string, error) {
	mark := p.cursor.mark()
	var sb strings.Builder
	for {
		tok, ok := p.cursor.peek()
		if !ok {
			break
		}
		if tok.Kind == TokAlpha || tok.Kind == TokNumeric || tok.Kind == TokUnderscore {
			sb.WriteString(tok.Value)
			p.cursor.advance()
			continue
		}
		break
	}
	name := sb.String()
	if name == "" {
		p.cursor.reset(mark)
		return "", parseErrorf(p.cursor.bytePos(), "empty function name")
	}
	if strings.ToUpper(name) != name {
		p.cursor.reset(mark)
		return "", parseErrorf(p.cursor.bytePos(), "function name must be uppercase: %s", name)
	}
	if isDigit(name[0]) || name[0] == '_' {
		p.cursor.reset(mark)
		return "", parseErrorf(p.cursor.bytePos(), "function name cannot start with digit or underscore: %s", name)
	}
	return name, nil
}

// ConsumeParentheses implements '(' expr (',' expr)* ')'.
func (p *Parser) ConsumeParentheses() ([]Expression, error) {
	mark := p.cursor.mark()
	if _, err := Exact(TokLParen)(p.cursor); err != nil {
		return nil, err
	}
	var terms []Expression
	first, err := p.ConsumeExpression()
	if err != nil {
		p.cursor.reset(mark)
		return nil, err
	}
	terms = append(terms, first)
	for {
		innerMark := p.cursor.mark()
		if _, err := Exact(TokComma)(p.cursor); err != nil {
			p.cursor.reset(innerMark)
			break
		}
		next, err := p.ConsumeExpression()
		if err != nil {
			p.cursor.reset(innerMark)
			break
		}
		terms = append(terms, next)
	}
	if _, err := Exact(TokRParen)(p.cursor); err != nil {
		p.cursor.reset(mark)
		return nil, err
	}
	return terms, nil
}

// ConsumeAmount implements amount := string|datetime|double|int|money|bool,
// tried in that order.
func (p *Parser) ConsumeAmount() (Amount, error) {
	mark := p.cursor.mark()
	if s, err := p.ConsumeString(); err == nil {
		return s, nil
	}
	p.cursor.reset(mark)
	if ts, err := p.ConsumeDateTime(); err == nil {
		return ts, nil
	}
	p.cursor.reset(mark)
	if d, err := p.ConsumeDouble(); err == nil {
		return d, nil
	}
	p.cursor.reset(mark)
	if i, err := p.ConsumeInt(); err == nil {
		return i, nil
	}
	p.cursor.reset(mark)
	if m, err := p.ConsumeMoney(); err == nil {
		return m, nil
	}
	p.cursor.reset(mark)
	if b, err := p.ConsumeBool(); err == nil {
		return b, nil
	}
	p.cursor.reset(mark)
	return Amount{}, parseErrorf(p.cursor.bytePos(), "no amount alternative matched")
}

func (p *Parser) ConsumeString() (Amount, error) {
	v, err := Exact(TokQuote)(p.cursor)
	if err != nil {
		return Amount{}, err
	}
	return StringAmount(v), nil
}

func (p *Parser) ConsumeBool() (Amount, error) {
	mark := p.cursor.mark()
	v, err := Exact(TokAlpha)(p.cursor)
	if err != nil {
		return Amount{}, err
	}
	switch v {
	case "True":
		return BoolAmount(true), nil
	case "False":
		return BoolAmount(false), nil
	default:
		p.cursor.reset(mark)
		return Amount{}, parseErrorf(p.cursor.bytePos(), "not a bool literal: %s", v)
	}
}

func (p *Parser) ConsumeInt() (Amount, error) {
	v, err := Exact(TokNumeric)(p.cursor)
	if err != nil {
		return Amount{}, err
	}
	n, convErr := strconv.ParseInt(v, 10, 64)
	if convErr != nil {
		return Amount{}, parseErrorf(p.cursor.bytePos(), "invalid integer: %s", v)
	}
	return IntAmount(n), nil
}

// ConsumeDouble implements double := [int] '.' [int], at least one side
// present. The fractional part is reconstructed by repeated division by
// 10, one digit at a time, rather than string concatenation -- this
// mirrors how the fractional accumulator is built digit-by-digit in the
// grammar this was ported from.
func (p *Parser) ConsumeDouble() (Amount, error) {
	mark := p.cursor.mark()

	var intPart string
	if tok, ok := p.cursor.peek(); ok && tok.Kind == TokNumeric {
		intPart = tok.Value
		p.cursor.advance()
	}

	if _, err := Exact(TokPeriod)(p.cursor); err != nil {
		p.cursor.reset(mark)
		return Amount{}, err
	}

	var fracDigits string
	if tok, ok := p.cursor.peek(); ok && tok.Kind == TokNumeric {
		fracDigits = tok.Value
		p.cursor.advance()
	}

	if intPart == "" && fracDigits == "" {
		p.cursor.reset(mark)
		return Amount{}, parseErrorf(p.cursor.bytePos(), "double needs a digit on at least one side of '.'")
	}

	whole := 0.0
	if intPart != "" {
		n, err := strconv.ParseInt(intPart, 10, 64)
		if err != nil {
			p.cursor.reset(mark)
			return Amount{}, parseErrorf(p.cursor.bytePos(), "invalid integer part: %s", intPart)
		}
		whole = float64(n)
	}

	frac := 0.0
	if fracDigits != "" {
		for i := len(fracDigits) - 1; i >= 0; i-- {
			digit := float64(fracDigits[i] - '0')
			frac = (frac + digit) / 10
		}
	}

	return DoubleAmount(whole + frac), nil
}

// ConsumeCurrency implements currency := '$' -> USD | alpha("USD") -> USD
// | alpha("CAD") -> CAD.
func (p *Parser) ConsumeCurrency() (Currency, error) {
	mark := p.cursor.mark()
	if _, err := Exact(TokDollar)(p.cursor); err == nil {
		return USD, nil
	}
	p.cursor.reset(mark)
	v, err := Exact(TokAlpha)(p.cursor)
	if err != nil {
		return UnknownCurrency, err
	}
	switch v {
	case "USD":
		return USD, nil
	case "CAD":
		return CAD, nil
	default:
		p.cursor.reset(mark)
		return UnknownCurrency, parseErrorf(p.cursor.bytePos(), "unknown currency: %s", v)
	}
}

// ConsumeMoney implements money := currency numeric_or_double, with
// dollars/cents construction.
func (p *Parser) ConsumeMoney() (Amount, error) {
	mark := p.cursor.mark()
	currency, err := p.ConsumeCurrency()
	if err != nil {
		p.cursor.reset(mark)
		return Amount{}, err
	}
	if d, err := p.ConsumeDouble(); err == nil {
		return MoneyAmount(moneyFromFloat(d.Dbl, currency)), nil
	}
	if i, err := p.ConsumeInt(); err == nil {
		return MoneyAmount(Money{Dollars: i.Int, Cents: 0, Currency: currency}), nil
	}
	p.cursor.reset(mark)
	return Amount{}, parseErrorf(p.cursor.bytePos(), "money needs a numeric amount")
}

// consumeFixedDigits consumes exactly n digits from a single numeric
// token -- the grammar requires two-digit and four-digit numeric tokens
// to have that literal length, so a longer or shorter run is rejected
// rather than truncated.
func (p *Parser) consumeFixedDigits(n int) (int, error) {
	mark := p.cursor.mark()
	tok, ok := p.cursor.peek()
	if !ok || tok.Kind != TokNumeric || len(tok.Value) != n {
		return 0, parseErrorf(p.cursor.bytePos(), "expected a %d-digit number", n)
	}
	p.cursor.advance()
	v, err := strconv.Atoi(tok.Value)
	if err != nil {
		p.cursor.reset(mark)
		return 0, parseErrorf(p.cursor.bytePos(), "invalid number: %s", tok.Value)
	}
	return v, nil
}

func (p *Parser) consumeRestrictedDigits(n, lo, hi int) (int, error) {
	mark := p.cursor.mark()
	v, err := p.consumeFixedDigits(n)
	if err != nil {
		return 0, err
	}
	if v < lo || v > hi {
		p.cursor.reset(mark)
		return 0, parseErrorf(p.cursor.bytePos(), "value %d out of range [%d,%d]", v, lo, hi)
	}
	return v, nil
}

// ConsumeDateTime implements datetime := YYYY '-' MM '-' DD 'T' hh ':'
// mm ':' ss ['.' frac] tz (construct as civil time in the parsed
// offset, convert to Unix seconds; fractional seconds become rounded
// milliseconds).
func (p *Parser) ConsumeDateTime() (Amount, error) {
	mark := p.cursor.mark()
	fail := func(err error) (Amount, error) {
		p.cursor.reset(mark)
		return Amount{}, err
	}

	year, err := p.consumeFixedDigits(4)
	if err != nil {
		return fail(err)
	}
	if _, err := Exact(TokMinus)(p.cursor); err != nil {
		return fail(err)
	}
	month, err := p.consumeRestrictedDigits(2, 1, 12)
	if err != nil {
		return fail(err)
	}
	if _, err := Exact(TokMinus)(p.cursor); err != nil {
		return fail(err)
	}
	day, err := p.consumeRestrictedDigits(2, 1, 31)
	if err != nil {
		return fail(err)
	}
	tTok, err := Exact(TokAlpha)(p.cursor)
	if err != nil || tTok != "T" {
		return fail(parseErrorf(p.cursor.bytePos(), "expected 'T' date/time separator"))
	}
	hour, err := p.consumeRestrictedDigits(2, 0, 23)
	if err != nil {
		return fail(err)
	}
	if _, err := Exact(TokColon)(p.cursor); err != nil {
		return fail(err)
	}
	minute, err := p.consumeRestrictedDigits(2, 0, 59)
	if err != nil {
		return fail(err)
	}
	if _, err := Exact(TokColon)(p.cursor); err != nil {
		return fail(err)
	}
	second, err := p.consumeRestrictedDigits(2, 0, 60)
	if err != nil {
		return fail(err)
	}

	fracMillis := 0
	if _, err := Exact(TokPeriod)(p.cursor); err == nil {
		fracTok, err := Exact(TokNumeric)(p.cursor)
		if err != nil {
			return fail(err)
		}
		n, convErr := strconv.Atoi(fracTok)
		if convErr != nil {
			return fail(parseErrorf(p.cursor.bytePos(), "invalid fractional seconds: %s", fracTok))
		}
		scale := 1
		for i := 0; i < len(fracTok); i++ {
			scale *= 10
		}
		fracMillis = (n*1000 + scale/2) / scale
	}

	var tzSign int
	if _, err := Exact(TokPlus)(p.cursor); err == nil {
		tzSign = 1
	} else if _, err := Exact(TokMinus)(p.cursor); err == nil {
		tzSign = -1
	} else {
		return fail(parseErrorf(p.cursor.bytePos(), "expected timezone offset sign"))
	}
	tzHour, err := p.consumeFixedDigits(2)
	if err != nil {
		return fail(err)
	}
	if _, err := Exact(TokColon)(p.cursor); err != nil {
		return fail(err)
	}
	tzMinute, err := p.consumeFixedDigits(2)
	if err != nil {
		return fail(err)
	}

	offsetSeconds := tzSign * (tzHour*3600 + tzMinute*60)
	loc := time.FixedZone("", offsetSeconds)
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)

	return TimestampAmount(Timestamp{Seconds: t.Unix() + int64(fracMillis/1000), Frac: float64(fracMillis%1000) / 1000.0}), nil
}

// ConsumePointLocation implements point_location := col_letters
// row_number: an uppercase-only alpha token for the column, followed by
// a numeric token for the 1-based external row.
func (p *Parser) ConsumePointLocation() (XY, error) {
	mark := p.cursor.mark()
	colTok, err := Exact(TokAlpha)(p.cursor)
	if err != nil {
		return XY{}, err
	}
	col, ok := ColumnLetterToInteger(colTok)
	if !ok {
		p.cursor.reset(mark)
		return XY{}, parseErrorf(p.cursor.bytePos(), "invalid column letters: %s", colTok)
	}
	rowTok, err := Exact(TokNumeric)(p.cursor)
	if err != nil {
		p.cursor.reset(mark)
		return XY{}, err
	}
	row, convErr := strconv.Atoi(rowTok)
	if convErr != nil || row < 1 {
		p.cursor.reset(mark)
		return XY{}, parseErrorf(p.cursor.bytePos(), "invalid row number: %s", rowTok)
	}
	return XY{Col: col, Row: row - 1}, nil
}

// consumeColOnly matches a bare column-letters token not followed by a
// row number, for range_location's col:col shape.
func (p *Parser) consumeColOnly() (int, error) {
	mark := p.cursor.mark()
	colTok, err := Exact(TokAlpha)(p.cursor)
	if err != nil {
		return 0, err
	}
	if tok, ok := p.cursor.peek(); ok && tok.Kind == TokNumeric {
		p.cursor.reset(mark)
		return 0, parseErrorf(p.cursor.bytePos(), "column token followed by row: this is a point, not a bare column")
	}
	col, ok := ColumnLetterToInteger(colTok)
	if !ok {
		p.cursor.reset(mark)
		return 0, parseErrorf(p.cursor.bytePos(), "invalid column letters: %s", colTok)
	}
	return col, nil
}

func (p *Parser) consumeRowOnly() (int, error) {
	rowTok, err := Exact(TokNumeric)(p.cursor)
	if err != nil {
		return 0, err
	}
	row, convErr := strconv.Atoi(rowTok)
	if convErr != nil || row < 1 {
		return 0, parseErrorf(p.cursor.bytePos(), "invalid row number: %s", rowTok)
	}
	return row - 1, nil
}

// ConsumeRangeLocation implements range_location's three shapes: point
// ':' (point|row|col), row ':' row, col ':' col.
func (p *Parser) ConsumeRangeLocation() (RangeLocation, error) {
	mark := p.cursor.mark()

	if r, err := p.consumePointThenAny(); err == nil {
		return r, nil
	}
	p.cursor.reset(mark)

	if r, err := p.consumeRowThenRow(); err == nil {
		return r, nil
	}
	p.cursor.reset(mark)

	if r, err := p.consumeColThenCol(); err == nil {
		return r, nil
	}
	p.cursor.reset(mark)

	return RangeLocation{}, parseErrorf(p.cursor.bytePos(), "not a range location")
}

func (p *Parser) consumePointThenAny() (RangeLocation, error) {
	mark := p.cursor.mark()
	from, err := p.ConsumePointLocation()
	if err != nil {
		return RangeLocation{}, err
	}
	if _, err := Exact(TokColon)(p.cursor); err != nil {
		p.cursor.reset(mark)
		return RangeLocation{}, err
	}
	if to, err := p.ConsumePointLocation(); err == nil {
		return RangeLocation{Kind: RangePointToPoint, FromPoint: from, ToPoint: to}, nil
	}
	if col, err := p.consumeColOnly(); err == nil {
		return RangeLocation{Kind: RangePointToCol, FromPoint: from, ToCol: col}, nil
	}
	if row, err := p.consumeRowOnly(); err == nil {
		return RangeLocation{Kind: RangePointToRow, FromPoint: from, ToRow: row}, nil
	}
	p.cursor.reset(mark)
	return RangeLocation{}, parseErrorf(p.cursor.bytePos(), "expected point, row, or col after ':'")
}

func (p *Parser) consumeRowThenRow() (RangeLocation, error) {
	mark := p.cursor.mark()
	from, err := p.consumeRowOnly()
	if err != nil {
		return RangeLocation{}, err
	}
	if _, err := Exact(TokColon)(p.cursor); err != nil {
		p.cursor.reset(mark)
		return RangeLocation{}, err
	}
	to, err := p.consumeRowOnly()
	if err != nil {
		p.cursor.reset(mark)
		return RangeLocation{}, err
	}
	return RangeLocation{Kind: RangeRowToRow, FromRow: from, ToRow: to}, nil
}

func (p *Parser) consumeColThenCol() (RangeLocation, error) {
	mark := p.cursor.mark()
	from, err := p.consumeColOnly()
	if err != nil {
		return RangeLocation{}, err
	}
	if _, err := Exact(TokColon)(p.cursor); err != nil {
		p.cursor.reset(mark)
		return RangeLocation{}, err
	}
	to, err := p.consumeColOnly()
	if err != nil {
		p.cursor.reset(mark)
		return RangeLocation{}, err
	}
	return RangeLocation{Kind: RangeColToCol, FromCol: from, ToCol: to}, nil
}
