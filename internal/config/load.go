package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vane-widgets/vane/internal/expr"
	"github.com/vane-widgets/vane/internal/parse"
	"github.com/vane-widgets/vane/internal/span"
	"github.com/vane-widgets/vane/internal/value"
)

// Loader reads and assembles configuration. The zero value reads from the
// filesystem; tests swap ReadFile.
type Loader struct {
	ReadFile func(path string) ([]byte, error)
}

// Load reads the entry file, follows includes and returns the validated
// definition set. Any error leaves no partial result.
func (l *Loader) Load(path string) (*Config, error) {
	read := l.ReadFile
	if read == nil {
		read = os.ReadFile
	}
	cfg := &Config{
		Vars:    make(map[string]*Var),
		Widgets: make(map[string]*Widget),
		Windows: make(map[string]*Window),
	}
	st := &loadState{read: read, cfg: cfg, seen: make(map[string]bool)}
	if err := st.loadFile(path); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

type loadState struct {
	read func(string) ([]byte, error)
	cfg  *Config
	seen map[string]bool
}

func (st *loadState) loadFile(path string) error {
	clean := filepath.Clean(path)
	if st.seen[clean] {
		return nil
	}
	st.seen[clean] = true

	src, err := st.read(clean)
	if err != nil {
		return fmt.Errorf("reading %s: %w", clean, err)
	}
	st.cfg.Files = append(st.cfg.Files, clean)

	forms, err := parse.Read(clean, string(src))
	if err != nil {
		return err
	}
	for _, form := range forms {
		list, ok := form.(*parse.List)
		if !ok {
			return formErrorf(form.Span(), "expected a (...) form at top level, found %s", parse.Describe(form))
		}
		if err := st.loadForm(clean, list); err != nil {
			return err
		}
	}
	return nil
}

func (st *loadState) loadForm(file string, form *parse.List) error {
	it := parse.NewIter(form.Pos, form.Items)
	head, headPos, err := it.Symbol()
	if err != nil {
		return err
	}
	switch head {
	case "defvar":
		return st.defvar(form, it)
	case "defpoll":
		return st.defpoll(form, it)
	case "deflisten":
		return st.deflisten(form, it)
	case "defwidget":
		return st.defwidget(form, it)
	case "defwindow":
		return st.defwindow(form, it)
	case "include":
		return st.include(file, form, it)
	}
	return formErrorf(headPos, "unknown definition %q", head)
}

// evalStatic evaluates an expression that may not reference variables, such
// as a defvar value or an interval attribute.
func evalStatic(e expr.Expr) (value.Value, error) {
	v, err := expr.Eval(e, func(string) (value.Value, bool) {
		return value.Null(), false
	})
	var unknown *expr.UnknownVariableError
	if errors.As(err, &unknown) {
		return value.Null(), formErrorf(unknown.Pos, "variable %q not allowed here, this value must be constant", unknown.Name)
	}
	return v, err
}

func (st *loadState) addVar(v *Var) error {
	if prev, ok := st.cfg.Vars[v.Name]; ok {
		return &DuplicateError{What: "variable", Name: v.Name, Pos: v.Pos, Prev: prev.Pos}
	}
	st.cfg.Vars[v.Name] = v
	return nil
}

func (st *loadState) defvar(form *parse.List, it *parse.Iter) error {
	name, namePos, err := it.Symbol()
	if err != nil {
		return err
	}
	valExpr, err := it.Expr()
	if err != nil {
		return err
	}
	if !it.Empty() {
		return formErrorf(form.Pos, "defvar takes a name and one value")
	}
	initial, err := evalStatic(valExpr)
	if err != nil {
		return err
	}
	return st.addVar(&Var{Name: name, Pos: namePos, Kind: VarBasic, Initial: initial})
}

// staticString evaluates an attribute to a constant string, with "" when the
// attribute is absent.
func staticString(attrs *parse.Attrs, key string) (string, error) {
	e, err := attrs.Expr(key)
	if err != nil || e == nil {
		return "", err
	}
	v, err := evalStatic(e)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

func staticDuration(attrs *parse.Attrs, key string, required bool) (time.Duration, error) {
	var e expr.Expr
	var err error
	if required {
		e, err = attrs.RequiredExpr(key)
	} else {
		e, err = attrs.Expr(key)
	}
	if err != nil || e == nil {
		return 0, err
	}
	v, err := evalStatic(e)
	if err != nil {
		return 0, err
	}
	d, err := v.AsDuration()
	if err != nil {
		return 0, formErrorf(e.Span(), "%v", err)
	}
	if d <= 0 {
		return 0, formErrorf(e.Span(), "duration must be positive, got %s", d)
	}
	return d, nil
}

func staticInitial(attrs *parse.Attrs) (value.Value, error) {
	e, err := attrs.Expr("initial")
	if err != nil {
		return value.Null(), err
	}
	if e == nil {
		return value.String(""), nil
	}
	return evalStatic(e)
}

func rejectUnknownAttrs(what string, attrs *parse.Attrs) error {
	for _, attr := range attrs.Rest() {
		return formErrorf(attr.KeySpan, "%s does not take attribute :%s", what, attr.Key)
	}
	return nil
}

func (st *loadState) defpoll(form *parse.List, it *parse.Iter) error {
	name, namePos, err := it.Symbol()
	if err != nil {
		return err
	}
	attrs, err := it.Attrs()
	if err != nil {
		return err
	}
	interval, err := staticDuration(attrs, "interval", true)
	if err != nil {
		return err
	}
	timeout, err := staticDuration(attrs, "timeout", false)
	if err != nil {
		return err
	}
	initial, err := staticInitial(attrs)
	if err != nil {
		return err
	}
	runWhile, err := attrs.Expr("run-while")
	if err != nil {
		return err
	}
	onChange, err := staticString(attrs, "on-change")
	if err != nil {
		return err
	}
	if err := rejectUnknownAttrs("defpoll", attrs); err != nil {
		return err
	}
	cmdExpr, err := it.Expr()
	if err != nil {
		return err
	}
	cmd, err := evalStatic(cmdExpr)
	if err != nil {
		return err
	}
	if !it.Empty() {
		return formErrorf(form.Pos, "defpoll takes a single command after its attributes")
	}
	return st.addVar(&Var{
		Name: name, Pos: namePos, Kind: VarPoll,
		Initial: initial, Command: cmd.String(),
		Interval: interval, Timeout: timeout,
		RunWhile: runWhile, OnChange: onChange,
	})
}

func (st *loadState) deflisten(form *parse.List, it *parse.Iter) error {
	name, namePos, err := it.Symbol()
	if err != nil {
		return err
	}
	attrs, err := it.Attrs()
	if err != nil {
		return err
	}
	initial, err := staticInitial(attrs)
	if err != nil {
		return err
	}
	onChange, err := staticString(attrs, "on-change")
	if err != nil {
		return err
	}
	if err := rejectUnknownAttrs("deflisten", attrs); err != nil {
		return err
	}
	cmdExpr, err := it.Expr()
	if err != nil {
		return err
	}
	cmd, err := evalStatic(cmdExpr)
	if err != nil {
		return err
	}
	if !it.Empty() {
		return formErrorf(form.Pos, "deflisten takes a single command after its attributes")
	}
	return st.addVar(&Var{
		Name: name, Pos: namePos, Kind: VarListen,
		Initial: initial, Command: cmd.String(), OnChange: onChange,
	})
}

func (st *loadState) defwidget(form *parse.List, it *parse.Iter) error {
	name, namePos, err := it.Symbol()
	if err != nil {
		return err
	}
	if prev, ok := st.cfg.Widgets[name]; ok {
		return &DuplicateError{What: "widget", Name: name, Pos: namePos, Prev: prev.Pos}
	}
	paramsNode, err := it.Array()
	if err != nil {
		return err
	}
	params, err := parseParams(paramsNode)
	if err != nil {
		return err
	}
	body, err := buildBody(form, it, "defwidget")
	if err != nil {
		return err
	}
	st.cfg.Widgets[name] = &Widget{Name: name, Pos: namePos, Params: params, Body: body}
	return nil
}

func parseParams(arr *parse.Array) ([]Param, error) {
	var params []Param
	seen := make(map[string]span.Span)
	for _, item := range arr.Items {
		sym, ok := item.(*parse.Symbol)
		if !ok {
			return nil, formErrorf(item.Span(), "widget parameters must be symbols, found %s", parse.Describe(item))
		}
		p := Param{Name: sym.Name, Pos: sym.Pos}
		if len(p.Name) > 1 && p.Name[0] == '?' {
			p.Name = p.Name[1:]
			p.Optional = true
		}
		if prev, dup := seen[p.Name]; dup {
			return nil, &DuplicateError{What: "parameter", Name: p.Name, Pos: sym.Pos, Prev: prev}
		}
		seen[p.Name] = sym.Pos
		params = append(params, p)
	}
	return params, nil
}

func (st *loadState) defwindow(form *parse.List, it *parse.Iter) error {
	name, namePos, err := it.Symbol()
	if err != nil {
		return err
	}
	if prev, ok := st.cfg.Windows[name]; ok {
		return &DuplicateError{What: "window", Name: name, Pos: namePos, Prev: prev.Pos}
	}
	attrs, err := it.Attrs()
	if err != nil {
		return err
	}
	attrExprs := make(map[string]expr.Expr)
	for key, attr := range attrs.Rest() {
		e, err := parse.ToExpr(attr.Node)
		if err != nil {
			return err
		}
		attrExprs[key] = e
	}
	body, err := buildBody(form, it, "defwindow")
	if err != nil {
		return err
	}
	st.cfg.Windows[name] = &Window{Name: name, Pos: namePos, Attrs: attrExprs, Body: body}
	return nil
}

// buildBody consumes the single remaining item of a definition form as a
// widget tree.
func buildBody(form *parse.List, it *parse.Iter, what string) (Use, error) {
	node, ok := it.Next()
	if !ok {
		return nil, formErrorf(form.Pos, "%s needs a widget body", what)
	}
	if !it.Empty() {
		extra, _ := it.Peek()
		return nil, formErrorf(extra.Span(), "%s takes exactly one widget body, wrap siblings in a container", what)
	}
	return buildUse(node)
}

// BuildUse converts one parsed form into a widget use. The literal widget
// calls it at runtime on its re-parsed content.
func BuildUse(node parse.Node) (Use, error) {
	return buildUse(node)
}

func buildUse(node parse.Node) (Use, error) {
	list, ok := node.(*parse.List)
	if !ok {
		// A bare value renders as a text label.
		e, err := parse.ToExpr(node)
		if err != nil {
			return nil, formErrorf(node.Span(), "widget bodies are (...) forms or text values, found %s", parse.Describe(node))
		}
		return &BasicUse{
			Pos:   node.Span(),
			Name:  "label",
			Attrs: map[string]expr.Expr{"text": e},
		}, nil
	}

	it := parse.NewIter(list.Pos, list.Items)
	head, _, err := it.Symbol()
	if err != nil {
		return nil, err
	}
	switch head {
	case "for":
		return buildFor(list, it)
	case "children":
		return buildChildren(list, it)
	}

	attrs, err := it.Attrs()
	if err != nil {
		return nil, err
	}
	use := &BasicUse{Pos: list.Pos, Name: head, Attrs: make(map[string]expr.Expr)}
	for key, attr := range attrs.Rest() {
		e, err := parse.ToExpr(attr.Node)
		if err != nil {
			return nil, err
		}
		use.Attrs[key] = e
	}
	for _, child := range it.Remaining() {
		cu, err := buildUse(child)
		if err != nil {
			return nil, err
		}
		use.Children = append(use.Children, cu)
	}
	return use, nil
}

func buildFor(list *parse.List, it *parse.Iter) (Use, error) {
	varName, _, err := it.Symbol()
	if err != nil {
		return nil, err
	}
	in, _, err := it.Symbol()
	if err != nil || in != "in" {
		return nil, formErrorf(list.Pos, "for loops are written (for item in source body)")
	}
	source, err := it.Expr()
	if err != nil {
		return nil, err
	}
	bodyNode, ok := it.Next()
	if !ok || !it.Empty() {
		return nil, formErrorf(list.Pos, "for loops take exactly one body widget")
	}
	body, err := buildUse(bodyNode)
	if err != nil {
		return nil, err
	}
	return &ForUse{Pos: list.Pos, Var: varName, Source: source, Body: body}, nil
}

func buildChildren(list *parse.List, it *parse.Iter) (Use, error) {
	attrs, err := it.Attrs()
	if err != nil {
		return nil, err
	}
	nth, err := attrs.Expr("nth")
	if err != nil {
		return nil, err
	}
	if err := rejectUnknownAttrs("children", attrs); err != nil {
		return nil, err
	}
	if !it.Empty() {
		return nil, formErrorf(list.Pos, "children takes no body")
	}
	return &ChildrenUse{Pos: list.Pos, Nth: nth}, nil
}

func (st *loadState) include(file string, form *parse.List, it *parse.Iter) error {
	pathExpr, err := it.Expr()
	if err != nil {
		return err
	}
	if !it.Empty() {
		return formErrorf(form.Pos, "include takes a single path")
	}
	v, err := evalStatic(pathExpr)
	if err != nil {
		return err
	}
	target := v.String()
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(file), target)
	}
	return st.loadFile(target)
}
