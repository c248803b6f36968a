// Package ipc exposes the engine over a unix control socket, JSON-RPC 2.0
// framed as plain JSON objects. The same package holds the client the CLI
// uses, so the method names and parameter shapes live in one place.
package ipc

import "github.com/vane-widgets/vane/internal/engine"

// Method names.
const (
	MethodPing     = "ping"
	MethodUpdate   = "update"
	MethodPoll     = "poll"
	MethodOpen     = "open"
	MethodOpenMany = "open-many"
	MethodClose    = "close"
	MethodCloseAll = "close-all"
	MethodReload   = "reload"
	MethodState    = "state"
	MethodWindows  = "windows"
	MethodKill     = "kill"
)

type UpdateParams struct {
	Vars map[string]string `json:"vars"`
}

type PollParams struct {
	Names []string `json:"names"`
}

type OpenParams struct {
	Window string            `json:"window"`
	ID     string            `json:"id,omitempty"`
	Screen string            `json:"screen,omitempty"`
	Args   map[string]string `json:"args,omitempty"`
	Toggle bool              `json:"toggle,omitempty"`
}

type OpenResult struct {
	Opened bool `json:"opened"`
}

type OpenManyParams struct {
	// Windows are "window" or "window:id" targets.
	Windows []string `json:"windows"`
	// Args maps an instance id to its window arguments; the empty key
	// applies to every target.
	Args map[string]map[string]string `json:"args,omitempty"`
}

type CloseParams struct {
	Instances []string `json:"instances"`
}

type CloseResult struct {
	Closed []string `json:"closed"`
}

type StateParams struct {
	All bool `json:"all,omitempty"`
}

type StateResult struct {
	Vars map[string]string `json:"vars"`
}

type WindowsResult struct {
	Windows []engine.WindowInfo `json:"windows"`
}
