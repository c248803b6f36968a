package expr

import (
	"fmt"

	"github.com/vane-widgets/vane/internal/span"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPercent
	tokEq
	tokNeq
	tokAnd
	tokOr
	tokGT
	tokLT
	tokGE
	tokLE
	tokElvis
	tokRegexMatch
	tokNot
	tokQuestion
	tokColon
	tokComma
	tokDot
	tokSafeDot
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokLBrace
	tokRBrace
	tokTrue
	tokFalse
	tokIdent
	tokNumber
	tokString
)

var tokenNames = map[tokenKind]string{
	tokEOF: "end of expression", tokPlus: "+", tokMinus: "-", tokStar: "*",
	tokSlash: "/", tokPercent: "%", tokEq: "==", tokNeq: "!=", tokAnd: "&&",
	tokOr: "||", tokGT: ">", tokLT: "<", tokGE: ">=", tokLE: "<=",
	tokElvis: "?:", tokRegexMatch: "=~", tokNot: "!", tokQuestion: "?",
	tokColon: ":", tokComma: ",", tokDot: ".", tokSafeDot: "?.",
	tokLParen: "(", tokRParen: ")", tokLBracket: "[", tokRBracket: "]",
	tokLBrace: "{", tokRBrace: "}", tokTrue: "true", tokFalse: "false",
	tokIdent: "identifier", tokNumber: "number", tokString: "string",
}

func (k tokenKind) String() string { return tokenNames[k] }

type token struct {
	kind tokenKind
	// text is the identifier or number literal text. For tokString it is the
	// raw (still escaped) content between the quotes.
	text string
	span span.Span
}

// lexer scans expression source into tokens. Offsets are relative to the
// enclosing file: base is added to every span so errors point into the
// original configuration source, not into the extracted expression text.
type lexer struct {
	src  string
	file string
	base int
	pos  int
}

func newLexer(file string, base int, src string) *lexer {
	return &lexer{src: src, file: file, base: base}
}

func (l *lexer) spanFrom(start int) span.Span {
	return span.New(l.file, l.base+start, l.base+l.pos)
}

func (l *lexer) errAt(start int, format string, args ...any) *ParseError {
	return &ParseError{Pos: l.spanFrom(start), Msg: fmt.Sprintf(format, args...)}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c == '-' || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// next scans one token.
func (l *lexer) next() (token, *ParseError) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			l.pos++
			continue
		}
		break
	}
	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, span: l.spanFrom(start)}, nil
	}

	c := l.src[l.pos]
	peek := func() byte {
		if l.pos+1 < len(l.src) {
			return l.src[l.pos+1]
		}
		return 0
	}

	simple := func(kind tokenKind, width int) (token, *ParseError) {
		l.pos += width
		return token{kind: kind, span: l.spanFrom(start)}, nil
	}

	switch c {
	case '+':
		return simple(tokPlus, 1)
	case '-':
		return simple(tokMinus, 1)
	case '*':
		return simple(tokStar, 1)
	case '/':
		return simple(tokSlash, 1)
	case '%':
		return simple(tokPercent, 1)
	case '(':
		return simple(tokLParen, 1)
	case ')':
		return simple(tokRParen, 1)
	case '[':
		return simple(tokLBracket, 1)
	case ']':
		return simple(tokRBracket, 1)
	case '{':
		return simple(tokLBrace, 1)
	case '}':
		return simple(tokRBrace, 1)
	case ',':
		return simple(tokComma, 1)
	case ':':
		return simple(tokColon, 1)
	case '.':
		return simple(tokDot, 1)
	case '=':
		switch peek() {
		case '=':
			return simple(tokEq, 2)
		case '~':
			return simple(tokRegexMatch, 2)
		}
		l.pos++
		return token{}, l.errAt(start, "unexpected `=`, expected `==` or `=~`")
	case '!':
		if peek() == '=' {
			return simple(tokNeq, 2)
		}
		return simple(tokNot, 1)
	case '&':
		if peek() == '&' {
			return simple(tokAnd, 2)
		}
		l.pos++
		return token{}, l.errAt(start, "unexpected `&`, expected `&&`")
	case '|':
		if peek() == '|' {
			return simple(tokOr, 2)
		}
		l.pos++
		return token{}, l.errAt(start, "unexpected `|`, expected `||`")
	case '>':
		if peek() == '=' {
			return simple(tokGE, 2)
		}
		return simple(tokGT, 1)
	case '<':
		if peek() == '=' {
			return simple(tokLE, 2)
		}
		return simple(tokLT, 1)
	case '?':
		switch peek() {
		case ':':
			return simple(tokElvis, 2)
		case '.':
			return simple(tokSafeDot, 2)
		}
		return simple(tokQuestion, 1)
	case '"', '\'':
		return l.lexString(c)
	}

	if isDigit(c) {
		return l.lexNumber()
	}
	if isIdentStart(c) {
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		text := l.src[start:l.pos]
		switch text {
		case "true":
			return token{kind: tokTrue, span: l.spanFrom(start)}, nil
		case "false":
			return token{kind: tokFalse, span: l.spanFrom(start)}, nil
		}
		return token{kind: tokIdent, text: text, span: l.spanFrom(start)}, nil
	}

	l.pos++
	return token{}, l.errAt(start, "unexpected character %q", string(c))
}

func (l *lexer) lexNumber() (token, *ParseError) {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]) {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	return token{kind: tokNumber, text: l.src[start:l.pos], span: l.spanFrom(start)}, nil
}

// lexString consumes a quoted string and returns its raw content, escapes
// intact. Unescaping and `${...}` splitting happen in the parser so that
// interpolation offsets stay aligned with the source.
func (l *lexer) lexString(quote byte) (token, *ParseError) {
	start := l.pos
	l.pos++ // opening quote
	content := l.pos
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case '\\':
			l.pos += 2
		case quote:
			raw := l.src[content:l.pos]
			l.pos++
			return token{kind: tokString, text: raw, span: l.spanFrom(start)}, nil
		default:
			l.pos++
		}
	}
	return token{}, l.errAt(start, "unterminated string literal")
}
