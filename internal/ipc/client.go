package ipc

import (
	"context"
	"fmt"
	"net"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/vane-widgets/vane/internal/engine"
)

// Client talks to a running daemon over its control socket.
type Client struct {
	conn *jsonrpc2.Conn
}

// Dial connects to the daemon at socketPath.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("no daemon at %s: %w", socketPath, err)
	}
	stream := jsonrpc2.NewBufferedStream(conn, jsonrpc2.PlainObjectCodec{})
	rpc := jsonrpc2.NewConn(ctx, stream, noopHandler{})
	return &Client{conn: rpc}, nil
}

// noopHandler ignores server-initiated messages; the protocol has none.
type noopHandler struct{}

func (noopHandler) Handle(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) {}

func (c *Client) Close() error { return c.conn.Close() }

// Ping checks the daemon is alive.
func (c *Client) Ping(ctx context.Context) error {
	var reply string
	if err := c.conn.Call(ctx, MethodPing, nil, &reply); err != nil {
		return err
	}
	if reply != "pong" {
		return fmt.Errorf("unexpected ping reply %q", reply)
	}
	return nil
}

// Update sets variables to new values.
func (c *Client) Update(ctx context.Context, vars map[string]string) error {
	return c.conn.Call(ctx, MethodUpdate, &UpdateParams{Vars: vars}, nil)
}

// Poll forces poll variables to refresh now.
func (c *Client) Poll(ctx context.Context, names []string) error {
	return c.conn.Call(ctx, MethodPoll, &PollParams{Names: names}, nil)
}

// Open opens a window; the result reports whether it is open afterwards.
func (c *Client) Open(ctx context.Context, p OpenParams) (bool, error) {
	var res OpenResult
	if err := c.conn.Call(ctx, MethodOpen, &p, &res); err != nil {
		return false, err
	}
	return res.Opened, nil
}

// OpenMany opens several "window" or "window:id" targets. Args are keyed by
// instance id, with the empty key applying to every target.
func (c *Client) OpenMany(ctx context.Context, windows []string, args map[string]map[string]string) error {
	return c.conn.Call(ctx, MethodOpenMany, &OpenManyParams{Windows: windows, Args: args}, nil)
}

// Close closes window instances, returning the ones that were open.
func (c *Client) CloseWindows(ctx context.Context, instances []string) ([]string, error) {
	var res CloseResult
	if err := c.conn.Call(ctx, MethodClose, &CloseParams{Instances: instances}, &res); err != nil {
		return nil, err
	}
	return res.Closed, nil
}

// CloseAll closes every open window instance.
func (c *Client) CloseAll(ctx context.Context) ([]string, error) {
	var res CloseResult
	if err := c.conn.Call(ctx, MethodCloseAll, struct{}{}, &res); err != nil {
		return nil, err
	}
	return res.Closed, nil
}

// Reload reloads the daemon's widget configuration.
func (c *Client) Reload(ctx context.Context) error {
	return c.conn.Call(ctx, MethodReload, struct{}{}, nil)
}

// State returns current variable values.
func (c *Client) State(ctx context.Context, all bool) (map[string]string, error) {
	var res StateResult
	if err := c.conn.Call(ctx, MethodState, &StateParams{All: all}, &res); err != nil {
		return nil, err
	}
	return res.Vars, nil
}

// Windows lists defined windows and their open instances.
func (c *Client) Windows(ctx context.Context) ([]engine.WindowInfo, error) {
	var res WindowsResult
	if err := c.conn.Call(ctx, MethodWindows, struct{}{}, &res); err != nil {
		return nil, err
	}
	return res.Windows, nil
}

// Kill asks the daemon to shut down.
func (c *Client) Kill(ctx context.Context) error {
	return c.conn.Call(ctx, MethodKill, struct{}{}, nil)
}
