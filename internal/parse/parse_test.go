package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vane-widgets/vane/internal/expr"
)

func TestReadForms(t *testing.T) {
	src := `
; a comment
(defvar counter "0")
(defwidget row [a ?b]
  (box :spacing 4 {counter + 1}))
`
	nodes, err := Read("test.vane", src)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	defvar, ok := nodes[0].(*List)
	require.True(t, ok)
	require.Len(t, defvar.Items, 3)
	assert.Equal(t, "defvar", defvar.Items[0].(*Symbol).Name)
	assert.Equal(t, "counter", defvar.Items[1].(*Symbol).Name)

	defwidget := nodes[1].(*List)
	require.Len(t, defwidget.Items, 4)
	params := defwidget.Items[2].(*Array)
	require.Len(t, params.Items, 2)
	assert.Equal(t, "a", params.Items[0].(*Symbol).Name)
	assert.Equal(t, "?b", params.Items[1].(*Symbol).Name)

	box := defwidget.Items[3].(*List)
	require.Len(t, box.Items, 4)
	assert.Equal(t, ":spacing", box.Items[1].String())
	block, ok := box.Items[3].(*ExprNode)
	require.True(t, ok)
	assert.Equal(t, []string{"counter"}, expr.VarRefs(block.Expr))
}

func TestReadStrings(t *testing.T) {
	nodes, err := Read("test.vane", `("plain" 'single' "has ${x} inside")`)
	require.NoError(t, err)
	items := nodes[0].(*List).Items
	require.Len(t, items, 3)

	plain := items[0].(*ExprNode).Expr
	v, err := expr.Eval(plain, nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", v.String())

	interp := items[2].(*ExprNode).Expr
	assert.Equal(t, []string{"x"}, expr.VarRefs(interp))
}

func TestReadNumbers(t *testing.T) {
	nodes, err := Read("test.vane", "(30 -1.5 4e)")
	require.Error(t, err)
	assert.Nil(t, nodes)

	nodes, err = Read("test.vane", "(30 -1.5)")
	require.NoError(t, err)
	items := nodes[0].(*List).Items
	v, err := expr.Eval(items[1].(*ExprNode).Expr, nil)
	require.NoError(t, err)
	f, err := v.AsFloat()
	require.NoError(t, err)
	assert.Equal(t, -1.5, f)
}

func TestReadErrors(t *testing.T) {
	cases := []string{
		"(unclosed",
		"[1 2",
		`("unterminated)`,
		"{1 +",
		"())",
		"(: x)",
		"{unclosed",
	}
	for _, src := range cases {
		t.Run(src, func(t *testing.T) {
			_, err := Read("test.vane", src)
			assert.Error(t, err)
		})
	}
}

func TestExprBlockSpansPointIntoFile(t *testing.T) {
	src := `(box {foo})`
	nodes, err := Read("test.vane", src)
	require.NoError(t, err)
	block := nodes[0].(*List).Items[1].(*ExprNode)
	ref := block.Expr.(*expr.VarRef)
	assert.Equal(t, "foo", src[ref.Pos.Start:ref.Pos.End])
	assert.Equal(t, "test.vane", ref.Pos.File)
}

func TestIterAttrs(t *testing.T) {
	nodes, err := Read("test.vane", `(defpoll time :interval "1s" :initial "?" "date")`)
	require.NoError(t, err)
	form := nodes[0].(*List)

	it := NewIter(form.Pos, form.Items)
	head, _, err := it.Symbol()
	require.NoError(t, err)
	assert.Equal(t, "defpoll", head)
	name, _, err := it.Symbol()
	require.NoError(t, err)
	assert.Equal(t, "time", name)

	attrs, err := it.Attrs()
	require.NoError(t, err)
	interval, err := attrs.RequiredExpr("interval")
	require.NoError(t, err)
	v, err := expr.Eval(interval, nil)
	require.NoError(t, err)
	assert.Equal(t, "1s", v.String())

	_, ok := attrs.Get("initial")
	assert.True(t, ok)
	assert.Empty(t, attrs.Rest())

	cmd, err := it.Expr()
	require.NoError(t, err)
	v, err = expr.Eval(cmd, nil)
	require.NoError(t, err)
	assert.Equal(t, "date", v.String())
	assert.True(t, it.Empty())
}

func TestIterAttrErrors(t *testing.T) {
	t.Run("dangling keyword", func(t *testing.T) {
		nodes, err := Read("test.vane", "(box :spacing)")
		require.NoError(t, err)
		form := nodes[0].(*List)
		it := NewIter(form.Pos, form.Items)
		_, _, err = it.Symbol()
		require.NoError(t, err)
		_, err = it.Attrs()
		assert.Error(t, err)
	})

	t.Run("duplicate key", func(t *testing.T) {
		nodes, err := Read("test.vane", "(box :a 1 :a 2)")
		require.NoError(t, err)
		form := nodes[0].(*List)
		it := NewIter(form.Pos, form.Items)
		_, _, err = it.Symbol()
		require.NoError(t, err)
		_, err = it.Attrs()
		assert.Error(t, err)
	})
}

func TestToExpr(t *testing.T) {
	nodes, err := Read("test.vane", "(box true title)")
	require.NoError(t, err)
	form := nodes[0].(*List)

	e, err := ToExpr(form.Items[1])
	require.NoError(t, err)
	v, err := expr.Eval(e, nil)
	require.NoError(t, err)
	b, err := v.AsBool()
	require.NoError(t, err)
	assert.True(t, b)

	// Bare symbols read as variable references.
	e, err = ToExpr(form.Items[2])
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, expr.VarRefs(e))

	_, err = ToExpr(form)
	assert.Error(t, err)
}
