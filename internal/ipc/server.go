package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/vane-widgets/vane/internal/ctxlog"
	"github.com/vane-widgets/vane/internal/engine"
	"github.com/vane-widgets/vane/internal/value"
)

var (
	errMethodNotFound = &jsonrpc2.Error{
		Code: jsonrpc2.CodeMethodNotFound, Message: "method not found"}
	errInvalidParams = &jsonrpc2.Error{
		Code: jsonrpc2.CodeInvalidParams, Message: "invalid params"}
)

// Server accepts control connections and forwards commands to the engine.
type Server struct {
	engine *engine.Engine
	path   string
	// OnKill is invoked when a client sends the kill command, after the
	// reply goes out.
	OnKill func()

	listener net.Listener
}

// NewServer returns a server for the given socket path. Listen must be
// called before Serve.
func NewServer(e *engine.Engine, socketPath string) *Server {
	return &Server{engine: e, path: socketPath}
}

// Listen claims the control socket. A stale socket left by a dead daemon is
// removed; a socket with a live daemon behind it is an error.
func (s *Server) Listen() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	ln, err := net.Listen("unix", s.path)
	if err == nil {
		s.listener = ln
		return nil
	}
	conn, dialErr := net.Dial("unix", s.path)
	if dialErr == nil {
		conn.Close()
		return fmt.Errorf("another daemon is already listening on %s", s.path)
	}
	if rmErr := os.Remove(s.path); rmErr != nil {
		return fmt.Errorf("removing stale socket: %w", rmErr)
	}
	ln, err = net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.path, err)
	}
	s.listener = ln
	return nil
}

// Serve accepts connections until the context ends or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Control socket ready.", "path", s.path)
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accepting control connection: %w", err)
		}
		logger.Debug("Client connected.")
		stream := jsonrpc2.NewBufferedStream(conn, jsonrpc2.PlainObjectCodec{})
		jsonrpc2.NewConn(ctx, stream, s.handler())
	}
}

// Close stops accepting and removes the socket file.
func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
	os.Remove(s.path)
}

type method func(ctx context.Context, raw json.RawMessage) (any, error)

func (s *Server) handler() jsonrpc2.Handler {
	methods := map[string]method{
		MethodPing:     s.ping,
		MethodUpdate:   s.update,
		MethodPoll:     s.poll,
		MethodOpen:     s.open,
		MethodOpenMany: s.openMany,
		MethodClose:    s.close,
		MethodCloseAll: s.closeAll,
		MethodReload:   s.reload,
		MethodState:    s.state,
		MethodWindows:  s.windows,
		MethodKill:     s.kill,
	}
	return jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		fn, ok := methods[req.Method]
		if !ok {
			return nil, errMethodNotFound
		}
		var raw json.RawMessage
		if req.Params != nil {
			raw = *req.Params
		}
		return fn(ctx, raw)
	})
}

func unmarshalParams(raw json.RawMessage, into any) error {
	if raw == nil {
		return errInvalidParams
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return errInvalidParams
	}
	return nil
}

func (s *Server) ping(context.Context, json.RawMessage) (any, error) {
	return "pong", nil
}

func (s *Server) update(ctx context.Context, raw json.RawMessage) (any, error) {
	var p UpdateParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	assignments := make(map[string]value.Value, len(p.Vars))
	for name, v := range p.Vars {
		assignments[name] = value.String(v)
	}
	return nil, s.engine.Update(ctx, assignments)
}

func (s *Server) poll(ctx context.Context, raw json.RawMessage) (any, error) {
	var p PollParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	return nil, s.engine.Poll(ctx, p.Names)
}

func (s *Server) open(ctx context.Context, raw json.RawMessage) (any, error) {
	var p OpenParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	opened, err := s.engine.Open(ctx, engine.OpenRequest{
		Window: p.Window, ID: p.ID, Screen: p.Screen, Args: p.Args, Toggle: p.Toggle,
	})
	if err != nil {
		return nil, err
	}
	return &OpenResult{Opened: opened}, nil
}

func (s *Server) openMany(ctx context.Context, raw json.RawMessage) (any, error) {
	var p OpenManyParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	return nil, s.engine.OpenMany(ctx, p.Windows, p.Args)
}

func (s *Server) close(ctx context.Context, raw json.RawMessage) (any, error) {
	var p CloseParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	closed, err := s.engine.Close(ctx, p.Instances)
	if err != nil {
		return nil, err
	}
	return &CloseResult{Closed: closed}, nil
}

func (s *Server) closeAll(ctx context.Context, _ json.RawMessage) (any, error) {
	closed, err := s.engine.CloseAll(ctx)
	if err != nil {
		return nil, err
	}
	return &CloseResult{Closed: closed}, nil
}

func (s *Server) reload(ctx context.Context, _ json.RawMessage) (any, error) {
	return nil, s.engine.Reload(ctx)
}

func (s *Server) state(ctx context.Context, raw json.RawMessage) (any, error) {
	var p StateParams
	if raw != nil {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errInvalidParams
		}
	}
	vars, err := s.engine.State(ctx, p.All)
	if err != nil {
		return nil, err
	}
	return &StateResult{Vars: vars}, nil
}

func (s *Server) windows(ctx context.Context, _ json.RawMessage) (any, error) {
	wins, err := s.engine.Windows(ctx)
	if err != nil {
		return nil, err
	}
	return &WindowsResult{Windows: wins}, nil
}

func (s *Server) kill(ctx context.Context, _ json.RawMessage) (any, error) {
	ctxlog.FromContext(ctx).Info("Kill requested over control socket.")
	if s.OnKill != nil {
		go s.OnKill()
	}
	return nil, nil
}
