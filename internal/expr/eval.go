package expr

import (
	"regexp"
	"strings"

	"github.com/vane-widgets/vane/internal/value"
)

// LookupFunc resolves a variable name to its current value. The second
// return reports whether the name is defined at all.
type LookupFunc func(name string) (value.Value, bool)

// Eval evaluates the expression against the given variable lookup. It is a
// pure function of the lookup's contents: same inputs, same result.
func Eval(e Expr, lookup LookupFunc) (value.Value, error) {
	switch x := e.(type) {
	case *Literal:
		return x.Val, nil
	case *VarRef:
		v, ok := lookup(x.Name)
		if !ok {
			return value.Null(), &UnknownVariableError{Pos: x.Pos, Name: x.Name}
		}
		return v, nil
	case *Binary:
		return evalBinary(x, lookup)
	case *Unary:
		return evalUnary(x, lookup)
	case *Ternary:
		cond, err := Eval(x.Cond, lookup)
		if err != nil {
			return value.Null(), err
		}
		b, err := cond.AsBool()
		if err != nil {
			return value.Null(), evalErrorf(x.Cond.Span(), "ternary condition: %v", err)
		}
		if b {
			return Eval(x.Then, lookup)
		}
		return Eval(x.Else, lookup)
	case *Access:
		return evalAccess(x, lookup)
	case *Call:
		return evalCall(x, lookup)
	case *Interp:
		var sb strings.Builder
		for _, p := range x.Parts {
			v, err := Eval(p, lookup)
			if err != nil {
				return value.Null(), err
			}
			sb.WriteString(v.String())
		}
		return value.String(sb.String()), nil
	case *ArrayLit:
		elems := make([]value.Value, len(x.Elems))
		for i, el := range x.Elems {
			v, err := Eval(el, lookup)
			if err != nil {
				return value.Null(), err
			}
			elems[i] = v
		}
		return value.Array(elems...), nil
	case *ObjectLit:
		obj := make(map[string]value.Value, len(x.Entries))
		for _, en := range x.Entries {
			k, err := Eval(en.Key, lookup)
			if err != nil {
				return value.Null(), err
			}
			v, err := Eval(en.Val, lookup)
			if err != nil {
				return value.Null(), err
			}
			obj[k.String()] = v
		}
		return value.Object(obj), nil
	}
	return value.Null(), evalErrorf(e.Span(), "unsupported expression node %T", e)
}

func evalBinary(x *Binary, lookup LookupFunc) (value.Value, error) {
	l, err := Eval(x.L, lookup)
	if err != nil {
		return value.Null(), err
	}

	// Lazy operators decide from the left operand alone.
	switch x.Op {
	case OpElvis:
		if isAbsent(l) {
			return Eval(x.R, lookup)
		}
		return l, nil
	case OpAnd, OpOr:
		lb, err := l.AsBool()
		if err != nil {
			return value.Null(), evalErrorf(x.L.Span(), "left operand of `%s`: %v", x.Op, err)
		}
		if x.Op == OpAnd && !lb {
			return value.Bool(false), nil
		}
		if x.Op == OpOr && lb {
			return value.Bool(true), nil
		}
		r, err := Eval(x.R, lookup)
		if err != nil {
			return value.Null(), err
		}
		rb, err := r.AsBool()
		if err != nil {
			return value.Null(), evalErrorf(x.R.Span(), "right operand of `%s`: %v", x.Op, err)
		}
		return value.Bool(rb), nil
	}

	r, err := Eval(x.R, lookup)
	if err != nil {
		return value.Null(), err
	}

	switch x.Op {
	case OpAdd:
		// Numeric addition when both sides coerce, string concatenation
		// otherwise.
		lf, lerr := l.AsFloat()
		rf, rerr := r.AsFloat()
		if lerr == nil && rerr == nil {
			return value.Number(lf + rf), nil
		}
		return value.String(l.String() + r.String()), nil
	case OpSub, OpMul, OpDiv, OpMod:
		lf, err := l.AsFloat()
		if err != nil {
			return value.Null(), evalErrorf(x.L.Span(), "left operand of `%s`: %v", x.Op, err)
		}
		rf, err := r.AsFloat()
		if err != nil {
			return value.Null(), evalErrorf(x.R.Span(), "right operand of `%s`: %v", x.Op, err)
		}
		switch x.Op {
		case OpSub:
			return value.Number(lf - rf), nil
		case OpMul:
			return value.Number(lf * rf), nil
		case OpDiv:
			if rf == 0 {
				return value.Null(), evalErrorf(x.Pos, "division by zero")
			}
			return value.Number(lf / rf), nil
		default:
			if rf == 0 {
				return value.Null(), evalErrorf(x.Pos, "modulo by zero")
			}
			li, ri := int64(lf), int64(rf)
			return value.Number(float64(li % ri)), nil
		}
	case OpEq:
		return value.Bool(value.Equal(l, r)), nil
	case OpNeq:
		return value.Bool(!value.Equal(l, r)), nil
	case OpGT, OpLT, OpGE, OpLE:
		return compare(x.Op, l, r), nil
	case OpRegexMatch:
		re, err := regexp.Compile(r.String())
		if err != nil {
			return value.Null(), evalErrorf(x.R.Span(), "invalid regex %q: %v", r.String(), err)
		}
		return value.Bool(re.MatchString(l.String())), nil
	}
	return value.Null(), evalErrorf(x.Pos, "unsupported operator `%s`", x.Op)
}

// compare orders numerically when both operands coerce, lexicographically on
// the string forms otherwise.
func compare(op BinaryOp, l, r value.Value) value.Value {
	var cmp int
	lf, lerr := l.AsFloat()
	rf, rerr := r.AsFloat()
	if lerr == nil && rerr == nil {
		switch {
		case lf < rf:
			cmp = -1
		case lf > rf:
			cmp = 1
		}
	} else {
		cmp = strings.Compare(l.String(), r.String())
	}
	switch op {
	case OpGT:
		return value.Bool(cmp > 0)
	case OpLT:
		return value.Bool(cmp < 0)
	case OpGE:
		return value.Bool(cmp >= 0)
	default:
		return value.Bool(cmp <= 0)
	}
}

// isAbsent reports whether a value counts as missing for the `?:` operator.
// Script variables deliver JSON text, so the text "null" counts too.
func isAbsent(v value.Value) bool {
	if v.IsNull() {
		return true
	}
	if v.Kind() == value.KindString {
		s := v.String()
		return s == "" || s == "null"
	}
	return false
}

func evalUnary(x *Unary, lookup LookupFunc) (value.Value, error) {
	v, err := Eval(x.X, lookup)
	if err != nil {
		return value.Null(), err
	}
	switch x.Op {
	case OpNot:
		b, err := v.AsBool()
		if err != nil {
			return value.Null(), evalErrorf(x.X.Span(), "operand of `!`: %v", err)
		}
		return value.Bool(!b), nil
	default:
		f, err := v.AsFloat()
		if err != nil {
			return value.Null(), evalErrorf(x.X.Span(), "operand of `-`: %v", err)
		}
		return value.Number(-f), nil
	}
}

func evalAccess(x *Access, lookup LookupFunc) (value.Value, error) {
	recv, err := Eval(x.X, lookup)
	if err != nil {
		return value.Null(), err
	}
	if x.Safe && (recv.IsNull() || (recv.Kind() == value.KindString && recv.String() == "")) {
		return value.Null(), nil
	}
	if recv.Kind() == value.KindString {
		parsed, err := value.FromJSON(recv.String())
		if err != nil {
			return value.Null(), evalErrorf(x.Pos, "cannot index into %q: not valid JSON", recv.String())
		}
		recv = parsed
	}
	if recv.IsNull() {
		if x.Safe {
			return value.Null(), nil
		}
		return value.Null(), evalErrorf(x.Pos, "cannot index into null")
	}

	idx, err := Eval(x.Index, lookup)
	if err != nil {
		return value.Null(), err
	}
	switch recv.Kind() {
	case value.KindArray:
		i, err := idx.AsInt()
		if err != nil {
			return value.Null(), evalErrorf(x.Index.Span(), "array index: %v", err)
		}
		elems := recv.Elems()
		if i < 0 || i >= len(elems) {
			return value.Null(), nil
		}
		return elems[i], nil
	case value.KindObject:
		v, ok := recv.Entries()[idx.String()]
		if !ok {
			return value.Null(), nil
		}
		return v, nil
	}
	return value.Null(), evalErrorf(x.Pos, "cannot index into %s value", recv.Kind())
}

func evalCall(x *Call, lookup LookupFunc) (value.Value, error) {
	fn, ok := builtins[x.Name]
	if !ok {
		return value.Null(), evalErrorf(x.Pos, "unknown function %q", x.Name)
	}
	args := make([]value.Value, len(x.Args))
	for i, a := range x.Args {
		v, err := Eval(a, lookup)
		if err != nil {
			return value.Null(), err
		}
		args[i] = v
	}
	out, err := fn(args)
	if err != nil {
		return value.Null(), evalErrorf(x.Pos, "%s: %v", x.Name, err)
	}
	return out, nil
}
