package expr

import (
	"strconv"
	"strings"

	"github.com/vane-widgets/vane/internal/span"
	"github.com/vane-widgets/vane/internal/value"
)

// Parse reads a single expression from src. base is the offset of src within
// file, so spans on the returned tree point into the original source.
func Parse(file string, base int, src string) (Expr, error) {
	p, err := newParser(file, base, src)
	if err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, &ParseError{Pos: p.peek().span, Msg: "unexpected trailing `" + p.peek().kind.String() + "`"}
	}
	return e, nil
}

// MustParse is for expressions fixed at compile time, mostly in tests.
func MustParse(src string) Expr {
	e, err := Parse("", 0, src)
	if err != nil {
		panic(err)
	}
	return e
}

type parser struct {
	toks []token
	i    int
}

func newParser(file string, base int, src string) (*parser, error) {
	lx := newLexer(file, base, src)
	var toks []token
	for {
		t, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.kind == tokEOF {
			break
		}
	}
	return &parser{toks: toks}, nil
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) accept(kind tokenKind) (token, bool) {
	if p.peek().kind == kind {
		return p.next(), true
	}
	return token{}, false
}

func (p *parser) expect(kind tokenKind) (token, error) {
	t := p.peek()
	if t.kind != kind {
		return token{}, &ParseError{Pos: t.span, Msg: "expected `" + kind.String() + "`, found `" + t.kind.String() + "`"}
	}
	return p.next(), nil
}

func (p *parser) parseExpr() (Expr, error) { return p.parseTernary() }

func (p *parser) parseTernary() (Expr, error) {
	cond, err := p.parseElvis()
	if err != nil {
		return nil, err
	}
	if _, ok := p.accept(tokQuestion); !ok {
		return cond, nil
	}
	then, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokColon); err != nil {
		return nil, err
	}
	els, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &Ternary{Pos: cond.Span().To(els.Span()), Cond: cond, Then: then, Else: els}, nil
}

var binaryLevels = []map[tokenKind]BinaryOp{
	{tokElvis: OpElvis},
	{tokOr: OpOr},
	{tokAnd: OpAnd},
	{tokEq: OpEq, tokNeq: OpNeq, tokRegexMatch: OpRegexMatch},
	{tokGT: OpGT, tokLT: OpLT, tokGE: OpGE, tokLE: OpLE},
	{tokPlus: OpAdd, tokMinus: OpSub},
	{tokStar: OpMul, tokSlash: OpDiv, tokPercent: OpMod},
}

func (p *parser) parseElvis() (Expr, error) { return p.parseBinary(0) }

func (p *parser) parseBinary(level int) (Expr, error) {
	if level >= len(binaryLevels) {
		return p.parseUnary()
	}
	left, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		op, ok := binaryLevels[level][p.peek().kind]
		if !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		left = &Binary{Pos: left.Span().To(right.Span()), Op: op, L: left, R: right}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	switch p.peek().kind {
	case tokNot:
		t := p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Pos: t.span.To(x.Span()), Op: OpNot, X: x}, nil
	case tokMinus:
		t := p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Pos: t.span.To(x.Span()), Op: OpNegate, X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Expr, error) {
	x, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().kind {
		case tokDot, tokSafeDot:
			t := p.next()
			safe := t.kind == tokSafeDot
			switch p.peek().kind {
			case tokIdent:
				key := p.next()
				x = &Access{Pos: x.Span().To(key.span), Safe: safe, X: x, Index: NewLiteral(key.span, value.String(key.text))}
			case tokLBracket:
				p.next()
				idx, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				end, err := p.expect(tokRBracket)
				if err != nil {
					return nil, err
				}
				x = &Access{Pos: x.Span().To(end.span), Safe: safe, X: x, Index: idx}
			default:
				return nil, &ParseError{Pos: p.peek().span, Msg: "expected field name or `[` after `" + t.kind.String() + "`"}
			}
		case tokLBracket:
			p.next()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			end, err := p.expect(tokRBracket)
			if err != nil {
				return nil, err
			}
			x = &Access{Pos: x.Span().To(end.span), X: x, Index: idx}
		default:
			return x, nil
		}
	}
}

func (p *parser) parseAtom() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, &ParseError{Pos: t.span, Msg: "malformed number literal " + strconv.Quote(t.text)}
		}
		return NewLiteral(t.span, value.Number(f)), nil
	case tokTrue:
		p.next()
		return NewLiteral(t.span, value.Bool(true)), nil
	case tokFalse:
		p.next()
		return NewLiteral(t.span, value.Bool(false)), nil
	case tokString:
		p.next()
		return parseQuoted(t.span, t.span.Start+1, t.text)
	case tokIdent:
		p.next()
		if p.peek().kind == tokLParen {
			return p.parseCall(t)
		}
		return &VarRef{Pos: t.span, Name: t.text}, nil
	case tokLParen:
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return e, nil
	case tokLBracket:
		return p.parseArrayLit()
	case tokLBrace:
		return p.parseObjectLit()
	}
	return nil, &ParseError{Pos: t.span, Msg: "expected expression, found `" + t.kind.String() + "`"}
}

func (p *parser) parseCall(name token) (Expr, error) {
	p.next() // opening paren
	var args []Expr
	for p.peek().kind != tokRParen {
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if _, ok := p.accept(tokComma); !ok {
			break
		}
	}
	end, err := p.expect(tokRParen)
	if err != nil {
		return nil, err
	}
	return &Call{Pos: name.span.To(end.span), Name: name.text, Args: args}, nil
}

func (p *parser) parseArrayLit() (Expr, error) {
	start := p.next()
	var elems []Expr
	for p.peek().kind != tokRBracket {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		if _, ok := p.accept(tokComma); !ok {
			break
		}
	}
	end, err := p.expect(tokRBracket)
	if err != nil {
		return nil, err
	}
	return &ArrayLit{Pos: start.span.To(end.span), Elems: elems}, nil
}

func (p *parser) parseObjectLit() (Expr, error) {
	start := p.next()
	var entries []ObjectEntry
	for p.peek().kind != tokRBrace {
		var key Expr
		switch p.peek().kind {
		case tokIdent:
			t := p.next()
			key = NewLiteral(t.span, value.String(t.text))
		case tokString:
			t := p.next()
			k, err := parseQuoted(t.span, t.span.Start+1, t.text)
			if err != nil {
				return nil, err
			}
			key = k
		default:
			return nil, &ParseError{Pos: p.peek().span, Msg: "expected object key, found `" + p.peek().kind.String() + "`"}
		}
		if _, err := p.expect(tokColon); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		entries = append(entries, ObjectEntry{Key: key, Val: val})
		if _, ok := p.accept(tokComma); !ok {
			break
		}
	}
	end, err := p.expect(tokRBrace)
	if err != nil {
		return nil, err
	}
	return &ObjectLit{Pos: start.span.To(end.span), Entries: entries}, nil
}

// ParseQuoted parses the raw content of a quoted string literal, splitting
// `${...}` interpolations. base is the offset of raw within file and raw must
// be a direct slice of the source (escapes intact), so nested expressions
// parse with correct spans. Configuration string attributes use this entry
// point directly.
func ParseQuoted(file string, base int, raw string) (Expr, error) {
	full := span.New(file, base, base+len(raw))
	return parseQuoted(full, base, raw)
}

func parseQuoted(full span.Span, contentBase int, raw string) (Expr, error) {
	if !strings.Contains(raw, "${") {
		return NewLiteral(full, value.String(unescape(raw))), nil
	}

	var parts []Expr
	var lit strings.Builder
	litStart := 0
	flush := func(end int) {
		if lit.Len() > 0 {
			pos := span.New(full.File, contentBase+litStart, contentBase+end)
			parts = append(parts, NewLiteral(pos, value.String(lit.String())))
			lit.Reset()
		}
	}
	i := 0
	for i < len(raw) {
		switch {
		case raw[i] == '\\' && i+1 < len(raw):
			lit.WriteByte(raw[i+1])
			i += 2
		case raw[i] == '$' && i+1 < len(raw) && raw[i+1] == '{':
			flush(i)
			end, ok := findInterpEnd(raw, i+2)
			if !ok {
				pos := span.New(full.File, contentBase+i, contentBase+len(raw))
				return nil, &ParseError{Pos: pos, Msg: "unclosed `${` interpolation"}
			}
			inner, err := Parse(full.File, contentBase+i+2, raw[i+2:end])
			if err != nil {
				return nil, err
			}
			parts = append(parts, inner)
			i = end + 1
			litStart = i
		default:
			lit.WriteByte(raw[i])
			i++
		}
	}
	flush(len(raw))
	if len(parts) == 1 {
		if l, ok := parts[0].(*Literal); ok {
			return l, nil
		}
	}
	return &Interp{Pos: full, Parts: parts}, nil
}

// findInterpEnd locates the `}` closing an interpolation, tracking nested
// braces and skipping over string literals inside the embedded expression.
func findInterpEnd(raw string, from int) (int, bool) {
	depth := 0
	i := from
	for i < len(raw) {
		switch raw[i] {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return i, true
			}
			depth--
		case '"', '\'':
			quote := raw[i]
			i++
			for i < len(raw) && raw[i] != quote {
				if raw[i] == '\\' {
					i++
				}
				i++
			}
		}
		i++
	}
	return 0, false
}

func unescape(raw string) string {
	if !strings.ContainsRune(raw, '\\') {
		return raw
	}
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
		}
		b.WriteByte(raw[i])
	}
	return b.String()
}
