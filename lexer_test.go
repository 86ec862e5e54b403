package latis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLexTotalityAndConcatenation(t *testing.T) {
	inputs := []string{
		`=POW(4.605,"foo")`,
		`A1+B1`,
		`2+3`,
		`True && False`,
		`$1.23`,
		`"hello world"`,
		`\x`,
	}
	for _, s := range inputs {
		tokens, err := Lex(s)
		assert.NoError(t, err, s)
		var sb strings.Builder
		for _, tok := range tokens {
			switch tok.Kind {
			case TokQuote:
				sb.WriteString(`"` + tok.Value + `"`)
			case TokLiteral:
				sb.WriteString(`\` + tok.Value)
			default:
				sb.WriteString(tok.Value)
			}
		}
		assert.Equal(t, stripUnquotedSpaces(s), sb.String(), s)
	}
}

// stripUnquotedSpaces removes the spaces between tokens, keeping those
// inside a "..." region, which the lexer carries into the quote token.
func stripUnquotedSpaces(s string) string {
	var sb strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			inQuote = !inQuote
		}
		if s[i] == ' ' && !inQuote {
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func TestLexIgnoresWhitespaceEquivalence(t *testing.T) {
	a, err := Lex(`=POW(4.605,"foo")`)
	assert.NoError(t, err)
	b, err := Lex(` = POW ( 4.605 , "foo" ) `)
	assert.NoError(t, err)
	assert.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Kind, b[i].Kind)
		assert.Equal(t, a[i].Value, b[i].Value)
	}
}

func TestLexUnterminatedQuote(t *testing.T) {
	_, err := Lex(`"unterminated`)
	assert.Error(t, err)
	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, LexError, kind)
}

func TestLexUnrecognizedByte(t *testing.T) {
	_, err := Lex(`@`)
	assert.Error(t, err)
	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, LexError, kind)
}

func TestLexPunctuationSet(t *testing.T) {
	s := `=.,()+-*/^$%'<>?:_&|!`
	tokens, err := Lex(s)
	assert.NoError(t, err)
	assert.Len(t, tokens, len(s))
}

func TestLexBackslashEscape(t *testing.T) {
	tokens, err := Lex(`\,`)
	assert.NoError(t, err)
	assert.Len(t, tokens, 1)
	assert.Equal(t, TokLiteral, tokens[0].Kind)
	assert.Equal(t, ",", tokens[0].Value)
}

func TestLexDigitAndLetterRuns(t *testing.T) {
	tokens, err := Lex(`123abc`)
	assert.NoError(t, err)
	assert.Len(t, tokens, 2)
	assert.Equal(t, TokNumeric, tokens[0].Kind)
	assert.Equal(t, "123", tokens[0].Value)
	assert.Equal(t, TokAlpha, tokens[1].Kind)
	assert.Equal(t, "abc", tokens[1].Value)
}
