package config

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vane-widgets/vane/internal/expr"
)

func loaderFor(files map[string]string) *Loader {
	return &Loader{ReadFile: func(path string) ([]byte, error) {
		src, ok := files[path]
		if !ok {
			return nil, fmt.Errorf("no such file %s", path)
		}
		return []byte(src), nil
	}}
}

func loadOne(t *testing.T, src string) *Config {
	t.Helper()
	cfg, err := loaderFor(map[string]string{"main.vane": src}).Load("main.vane")
	require.NoError(t, err)
	return cfg
}

func TestLoadVariables(t *testing.T) {
	cfg := loadOne(t, `
(defvar counter 0)
(defvar label "hi")
(defpoll cpu :interval "10s" :initial "0" :timeout "5s" "read-cpu")
(defpoll net :interval "1m" :run-while {counter < 5} :on-change "notify" "read-net")
(deflisten song :initial "none" "player-follow")
`)
	require.Len(t, cfg.Vars, 5)

	counter := cfg.Vars["counter"]
	assert.Equal(t, VarBasic, counter.Kind)
	assert.Equal(t, "0", counter.Initial.String())

	cpu := cfg.Vars["cpu"]
	assert.Equal(t, VarPoll, cpu.Kind)
	assert.Equal(t, 10*time.Second, cpu.Interval)
	assert.Equal(t, 5*time.Second, cpu.Timeout)
	assert.Equal(t, "read-cpu", cpu.Command)
	assert.True(t, cpu.IsScript())

	net := cfg.Vars["net"]
	require.NotNil(t, net.RunWhile)
	assert.Equal(t, []string{"counter"}, expr.VarRefs(net.RunWhile))
	assert.Equal(t, "notify", net.OnChange)

	song := cfg.Vars["song"]
	assert.Equal(t, VarListen, song.Kind)
	assert.Equal(t, "none", song.Initial.String())
}

func TestLoadWidgetsAndWindows(t *testing.T) {
	cfg := loadOne(t, `
(defvar items "[1, 2, 3]")
(defwidget metric [label ?unit]
  (box :class "metric"
    (label :text label)
    (children :nth 0)))
(defwindow bar :anchor "top" :height 30
  (box
    (metric :label "cpu" (label :text "inner"))
    (for item in {items}
      (label :text {item}))
    "plain text"))
`)
	metric := cfg.Widgets["metric"]
	require.NotNil(t, metric)
	require.Len(t, metric.Params, 2)
	assert.False(t, metric.Params[0].Optional)
	assert.True(t, metric.Params[1].Optional)
	assert.Equal(t, "unit", metric.Params[1].Name)

	body := metric.Body.(*BasicUse)
	assert.Equal(t, "box", body.Name)
	require.Len(t, body.Children, 2)
	_, ok := body.Children[1].(*ChildrenUse)
	assert.True(t, ok)

	bar := cfg.Windows["bar"]
	require.NotNil(t, bar)
	assert.Len(t, bar.Attrs, 2)

	root := bar.Body.(*BasicUse)
	require.Len(t, root.Children, 3)
	loop := root.Children[1].(*ForUse)
	assert.Equal(t, "item", loop.Var)
	sugar := root.Children[2].(*BasicUse)
	assert.Equal(t, "label", sugar.Name)
	assert.Contains(t, sugar.Attrs, "text")
}

func TestInclude(t *testing.T) {
	files := map[string]string{
		"conf/main.vane": `(include "vars.vane") (defwindow w (label :text {shared}))`,
		"conf/vars.vane": `(defvar shared "x")`,
	}
	cfg, err := loaderFor(files).Load("conf/main.vane")
	require.NoError(t, err)
	assert.Equal(t, []string{"conf/main.vane", "conf/vars.vane"}, cfg.Files)
	assert.Contains(t, cfg.Vars, "shared")
}

func TestIncludeCycleIsHarmless(t *testing.T) {
	files := map[string]string{
		"a.vane": `(include "b.vane") (defvar x 1)`,
		"b.vane": `(include "a.vane") (defvar y 2)`,
	}
	cfg, err := loaderFor(files).Load("a.vane")
	require.NoError(t, err)
	assert.Len(t, cfg.Vars, 2)
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"duplicate var", `(defvar x 1) (defpoll x :interval "1s" "cmd")`},
		{"duplicate window", `(defwindow w (box)) (defwindow w (box))`},
		{"unknown form", `(defthing x)`},
		{"top level non list", `defvar`},
		{"defvar extra items", `(defvar x 1 2)`},
		{"defvar non constant", `(defvar x {other + 1})`},
		{"poll missing interval", `(defpoll x "cmd")`},
		{"poll negative interval", `(defpoll x :interval "0s" "cmd")`},
		{"poll unknown attr", `(defpoll x :interval "1s" :color "red" "cmd")`},
		{"widget two bodies", `(defwidget w [] (box) (box))`},
		{"widget dup params", `(defwidget w [a ?a] (box))`},
		{"unknown var in widget", `(defwidget w [] (label :text {missing}))`},
		{"unknown var in gate", `(defvar a 1) (defpoll x :interval "1s" :run-while {nope} "cmd")`},
		{"unknown widget param", `(defwidget w [a] (box)) (defwindow win (w :a 1 :b 2))`},
		{"missing required param", `(defwidget w [a] (box)) (defwindow win (w))`},
		{"children in window", `(defwindow win (box (children)))`},
		{"bad for form", `(defwindow win (for x of {[1]} (box)))`},
		{"widget recursion", `(defwidget a [] (b)) (defwidget b [] (a)) (defwindow w (a))`},
		{"gate cycle", `
			(defpoll a :interval "1s" :run-while {b == 1} "cmd")
			(defpoll b :interval "1s" :run-while {a == 1} "cmd")`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loaderFor(map[string]string{"main.vane": tc.src}).Load("main.vane")
			assert.Error(t, err)
		})
	}
}

func TestForLoopBindingShadowsNothing(t *testing.T) {
	cfg := loadOne(t, `
(defvar items "[]")
(defwidget rows []
  (box (for row in {items} (label :text {row}))))
`)
	assert.Contains(t, cfg.Widgets, "rows")
}

func TestWindowBodyMayReferenceOpenArgs(t *testing.T) {
	// Window bodies can use names satisfied by open-time arguments; checks
	// happen at instantiation.
	cfg := loadOne(t, `(defwindow w (label :text {myarg}))`)
	assert.Contains(t, cfg.Windows, "w")
}

func TestMissingFile(t *testing.T) {
	_, err := loaderFor(nil).Load("absent.vane")
	require.Error(t, err)

	_, err = loaderFor(map[string]string{"main.vane": `(include "gone.vane")`}).Load("main.vane")
	require.Error(t, err)
}
