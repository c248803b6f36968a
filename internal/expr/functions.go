package expr

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"github.com/vane-widgets/vane/internal/value"
)

type builtinFunc func(args []value.Value) (value.Value, error)

// builtins is the fixed set of functions callable from expressions.
var builtins = map[string]builtinFunc{
	"round":        fnRound,
	"floor":        numeric1(math.Floor),
	"ceil":         numeric1(math.Ceil),
	"sin":          numeric1(math.Sin),
	"cos":          numeric1(math.Cos),
	"tan":          numeric1(math.Tan),
	"cot":          numeric1(func(f float64) float64 { return 1 / math.Tan(f) }),
	"degtorad":     numeric1(func(f float64) float64 { return f * math.Pi / 180 }),
	"radtodeg":     numeric1(func(f float64) float64 { return f * 180 / math.Pi }),
	"min":          numeric2(math.Min),
	"max":          numeric2(math.Max),
	"pow":          numeric2(math.Pow),
	"log":          numeric2(func(n, base float64) float64 { return math.Log(n) / math.Log(base) }),
	"matches":      fnMatches,
	"replace":      fnReplace,
	"search":       fnSearch,
	"captures":     fnCaptures,
	"substring":    fnSubstring,
	"strlength":    fnStrlength,
	"arraylength":  fnArraylength,
	"objectlength": fnObjectlength,
	"jq":           fnJq,
	"get_env":      fnGetEnv,
	"formattime":   fnFormattime,
}

func arity(args []value.Value, min, max int) error {
	if len(args) < min || len(args) > max {
		if min == max {
			return fmt.Errorf("expected %d arguments, got %d", min, len(args))
		}
		return fmt.Errorf("expected %d to %d arguments, got %d", min, max, len(args))
	}
	return nil
}

func numeric1(f func(float64) float64) builtinFunc {
	return func(args []value.Value) (value.Value, error) {
		if err := arity(args, 1, 1); err != nil {
			return value.Null(), err
		}
		x, err := args[0].AsFloat()
		if err != nil {
			return value.Null(), err
		}
		return value.Number(f(x)), nil
	}
}

func numeric2(f func(a, b float64) float64) builtinFunc {
	return func(args []value.Value) (value.Value, error) {
		if err := arity(args, 2, 2); err != nil {
			return value.Null(), err
		}
		a, err := args[0].AsFloat()
		if err != nil {
			return value.Null(), err
		}
		b, err := args[1].AsFloat()
		if err != nil {
			return value.Null(), err
		}
		return value.Number(f(a, b)), nil
	}
}

// fnRound formats to a fixed number of decimal places, so trailing zeros are
// preserved in the output. The result is a string for that reason.
func fnRound(args []value.Value) (value.Value, error) {
	if err := arity(args, 2, 2); err != nil {
		return value.Null(), err
	}
	f, err := args[0].AsFloat()
	if err != nil {
		return value.Null(), err
	}
	digits, err := args[1].AsInt()
	if err != nil {
		return value.Null(), err
	}
	if digits < 0 {
		return value.Null(), fmt.Errorf("negative digit count %d", digits)
	}
	return value.String(strconv.FormatFloat(f, 'f', digits, 64)), nil
}

func fnMatches(args []value.Value) (value.Value, error) {
	if err := arity(args, 2, 2); err != nil {
		return value.Null(), err
	}
	re, err := regexp.Compile(args[1].String())
	if err != nil {
		return value.Null(), err
	}
	return value.Bool(re.MatchString(args[0].String())), nil
}

func fnReplace(args []value.Value) (value.Value, error) {
	if err := arity(args, 3, 3); err != nil {
		return value.Null(), err
	}
	re, err := regexp.Compile(args[1].String())
	if err != nil {
		return value.Null(), err
	}
	return value.String(re.ReplaceAllString(args[0].String(), args[2].String())), nil
}

func fnSearch(args []value.Value) (value.Value, error) {
	if err := arity(args, 2, 2); err != nil {
		return value.Null(), err
	}
	re, err := regexp.Compile(args[1].String())
	if err != nil {
		return value.Null(), err
	}
	matches := re.FindAllString(args[0].String(), -1)
	out := make([]value.Value, len(matches))
	for i, m := range matches {
		out[i] = value.String(m)
	}
	return value.Array(out...), nil
}

func fnCaptures(args []value.Value) (value.Value, error) {
	if err := arity(args, 2, 2); err != nil {
		return value.Null(), err
	}
	re, err := regexp.Compile(args[1].String())
	if err != nil {
		return value.Null(), err
	}
	groups := re.FindAllStringSubmatch(args[0].String(), -1)
	out := make([]value.Value, len(groups))
	for i, g := range groups {
		inner := make([]value.Value, len(g))
		for j, s := range g {
			inner[j] = value.String(s)
		}
		out[i] = value.Array(inner...)
	}
	return value.Array(out...), nil
}

// fnSubstring slices by rune offsets. Out of range positions clamp instead
// of erroring.
func fnSubstring(args []value.Value) (value.Value, error) {
	if err := arity(args, 3, 3); err != nil {
		return value.Null(), err
	}
	start, err := args[1].AsInt()
	if err != nil {
		return value.Null(), err
	}
	length, err := args[2].AsInt()
	if err != nil {
		return value.Null(), err
	}
	runes := []rune(args[0].String())
	if start < 0 {
		start = 0
	}
	if length < 0 {
		length = 0
	}
	if start > len(runes) {
		start = len(runes)
	}
	end := start + length
	if end > len(runes) {
		end = len(runes)
	}
	return value.String(string(runes[start:end])), nil
}

func fnStrlength(args []value.Value) (value.Value, error) {
	if err := arity(args, 1, 1); err != nil {
		return value.Null(), err
	}
	return value.Number(float64(len(args[0].String()))), nil
}

func fnArraylength(args []value.Value) (value.Value, error) {
	if err := arity(args, 1, 1); err != nil {
		return value.Null(), err
	}
	elems, err := args[0].AsArray()
	if err != nil {
		return value.Null(), err
	}
	return value.Number(float64(len(elems))), nil
}

func fnObjectlength(args []value.Value) (value.Value, error) {
	if err := arity(args, 1, 1); err != nil {
		return value.Null(), err
	}
	entries, err := args[0].AsObject()
	if err != nil {
		return value.Null(), err
	}
	return value.Number(float64(len(entries))), nil
}

// fnJq queries a value with a gjson path. With the "r" flag strings come back
// raw instead of re-quoted JSON text.
func fnJq(args []value.Value) (value.Value, error) {
	if err := arity(args, 2, 3); err != nil {
		return value.Null(), err
	}
	raw := false
	if len(args) == 3 {
		switch args[2].String() {
		case "r":
			raw = true
		case "":
		default:
			return value.Null(), fmt.Errorf("unknown flag %q", args[2].String())
		}
	}
	// Script variables deliver JSON as strings, so a string receiver is the
	// document itself, not a JSON string literal.
	doc := args[0].JSON()
	if args[0].Kind() == value.KindString {
		doc = args[0].String()
		if !gjson.Valid(doc) {
			return value.Null(), fmt.Errorf("jq: receiver is not valid JSON: %q", doc)
		}
	}
	res := gjson.Get(doc, args[1].String())
	if !res.Exists() {
		return value.Null(), nil
	}
	if raw {
		return value.String(res.String()), nil
	}
	return value.FromJSON(res.Raw)
}

func fnGetEnv(args []value.Value) (value.Value, error) {
	if err := arity(args, 1, 1); err != nil {
		return value.Null(), err
	}
	return value.String(os.Getenv(args[0].String())), nil
}

// fnFormattime renders a unix timestamp with a Go reference layout, in the
// local timezone unless an IANA zone name is given.
func fnFormattime(args []value.Value) (value.Value, error) {
	if err := arity(args, 2, 3); err != nil {
		return value.Null(), err
	}
	unix, err := args[0].AsInt()
	if err != nil {
		return value.Null(), err
	}
	loc := time.Local
	if len(args) == 3 {
		loc, err = time.LoadLocation(args[2].String())
		if err != nil {
			return value.Null(), err
		}
	}
	return value.String(time.Unix(int64(unix), 0).In(loc).Format(args[1].String())), nil
}
