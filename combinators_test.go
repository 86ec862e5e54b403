package latis

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExactRestoresCursorOnFailure(t *testing.T) {
	tokens, err := Lex("12")
	assert.NoError(t, err)
	c := NewCursor(tokens)
	_, err = Exact(TokAlpha)(c)
	assert.Error(t, err)
	assert.Equal(t, 0, c.mark())
}

func TestAnyTriesAlternativesInOrder(t *testing.T) {
	tokens, err := Lex("+")
	assert.NoError(t, err)
	c := NewCursor(tokens)
	p := Any(Exact(TokMinus), Exact(TokPlus))
	v, err := p(c)
	assert.NoError(t, err)
	assert.Equal(t, "+", v)
}

func TestAnyRestoresCursorWhenAllFail(t *testing.T) {
	tokens, err := Lex("+")
	assert.NoError(t, err)
	c := NewCursor(tokens)
	p := Any(Exact(TokMinus), Exact(TokAsterisk))
	_, err = p(c)
	assert.Error(t, err)
	assert.Equal(t, 0, c.mark())
}

func TestAnyVariantTagsTheWinningAlternative(t *testing.T) {
	tokens, err := Lex("12")
	assert.NoError(t, err)
	c := NewCursor(tokens)
	p := AnyVariant(Exact(TokAlpha), Exact(TokNumeric))
	v, err := p(c)
	assert.NoError(t, err)
	assert.Equal(t, 1, v.Tag)
	assert.Equal(t, "12", v.B)
}

func TestMaybeNeverFails(t *testing.T) {
	tokens, err := Lex("abc")
	assert.NoError(t, err)
	c := NewCursor(tokens)
	p := Maybe(Exact(TokNumeric))
	result, err := p(c)
	assert.NoError(t, err)
	assert.False(t, result.Ok)
	assert.Equal(t, 0, c.mark())
}

func TestSeq2AllMustSucceed(t *testing.T) {
	tokens, err := Lex("(1")
	assert.NoError(t, err)
	c := NewCursor(tokens)
	p := Seq2(Exact(TokLParen), Exact(TokNumeric))
	result, err := p(c)
	assert.NoError(t, err)
	assert.Equal(t, "(", result.A)
	assert.Equal(t, "1", result.B)
}

func TestSeq2RestoresCursorOnPartialFailure(t *testing.T) {
	tokens, err := Lex("(a")
	assert.NoError(t, err)
	c := NewCursor(tokens)
	p := Seq2(Exact(TokLParen), Exact(TokNumeric))
	_, err = p(c)
	assert.Error(t, err)
	assert.Equal(t, 0, c.mark())
}

func TestWithRestrictionRejectsBadValues(t *testing.T) {
	tokens, err := Lex("5")
	assert.NoError(t, err)
	c := NewCursor(tokens)
	p := WithRestriction(Exact(TokNumeric), func(v string) bool {
		n, _ := strconv.Atoi(v)
		return n > 10
	}, "must exceed 10")
	_, err = p(c)
	assert.Error(t, err)
	assert.Equal(t, 0, c.mark())
}

func TestWithTransformationMapsTheValue(t *testing.T) {
	tokens, err := Lex("5")
	assert.NoError(t, err)
	c := NewCursor(tokens)
	p := WithTransformation(Exact(TokNumeric), func(v string) (int, error) {
		return strconv.Atoi(v)
	})
	n, err := p(c)
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestWithLookupFailsOnMissingKey(t *testing.T) {
	tokens, err := Lex("USD")
	assert.NoError(t, err)
	c := NewCursor(tokens)
	p := WithLookup(Exact(TokAlpha), map[string]Currency{"USD": USD})
	v, err := p(c)
	assert.NoError(t, err)
	assert.Equal(t, USD, v)

	tokens2, err := Lex("XYZ")
	assert.NoError(t, err)
	c2 := NewCursor(tokens2)
	_, err = p(c2)
	assert.Error(t, err)
	assert.Equal(t, 0, c2.mark())
}
