package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vane-widgets/vane/internal/config"
)

// A script worker must never block delivering a value while the core
// goroutine is busy, or stopping it would deadlock on a full event queue.
func TestEmitNeverBlocksOnFullQueue(t *testing.T) {
	cfg := &config.Config{
		Vars:    map[string]*config.Var{},
		Widgets: map[string]*config.Widget{},
		Windows: map[string]*config.Window{},
	}
	e := New(context.Background(), cfg, Options{})
	defer e.Stop()

	// Park the core goroutine, then fill the queue behind it.
	gate := make(chan struct{})
	e.post(func() { <-gate })
fill:
	for {
		select {
		case e.events <- func() {}:
		default:
			break fill
		}
	}

	delivered := make(chan bool, 1)
	go func() { delivered <- e.postEmit(func() {}) }()
	select {
	case ok := <-delivered:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full queue")
	}
	close(gate)
}
