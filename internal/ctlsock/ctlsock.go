// Package ctlsock implements the local control channel behind `cb ack`
// and `cb status` (§6): a Unix domain socket the running `watch`/`sui`
// process listens on, and a tiny JSON request/response protocol the CLI
// client dials into. This is CLI-front-end plumbing (§1 places the CLI
// itself out of the specification's core), so it is built directly on
// net/encoding/json rather than grounded in a teacher file - none of
// the retrieval pack's repos run a long-lived daemon a separate CLI
// invocation needs to reach, so there is no existing pattern to borrow.
package ctlsock

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Action selects what a Request asks the daemon to do.
type Action string

const (
	ActionStatus Action = "status"
	ActionAck    Action = "ack"
)

// Request is one control-socket call.
type Request struct {
	Action Action `json:"action"`
	RepoID string `json:"repo_id,omitempty"`
}

// RepoStatus is one repository's point-in-time summary for `cb status`.
type RepoStatus struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	Branch           string `json:"branch"`
	BreakerTriggered bool   `json:"breaker_triggered"`
	BreakerReason    string `json:"breaker_reason,omitempty"`
}

// Response is the daemon's reply to a Request.
type Response struct {
	OK    bool         `json:"ok"`
	Error string       `json:"error,omitempty"`
	Repos []RepoStatus `json:"repos,omitempty"`
}

// DefaultSocketPath returns the control socket path for a given config
// file path: one daemon per config document, matching the non-goal of
// one process owning a repository set.
func DefaultSocketPath(configPath string) string {
	dir := filepath.Dir(configPath)
	base := filepath.Base(configPath)
	return filepath.Join(dir, "."+base+".supsrc.sock")
}

// Dial connects to the control socket at path with a short timeout,
// used by every `cb` subcommand.
func Dial(path string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to supsrc control socket %s (is `supsrc watch`/`sui` running?): %w", path, err)
	}
	return conn, nil
}

// Call sends req over conn and decodes the single-line JSON Response.
func Call(conn net.Conn, req Request) (Response, error) {
	enc := json.NewEncoder(conn)
	if err := enc.Encode(req); err != nil {
		return Response{}, fmt.Errorf("sending control request: %w", err)
	}
	var resp Response
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("reading control response: %w", err)
	}
	return resp, nil
}

// Handler produces a Response for one Request. The orchestrator-backed
// implementation lives in cmd/supsrc so this package stays free of a
// dependency on internal/reposvc/state.
type Handler func(req Request) Response

// Serve accepts connections on ln until ctx is cancelled, handling each
// with handler. One connection serves exactly one request/response pair.
func Serve(ctx context.Context, ln net.Listener, handler Handler) {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		go serveOne(conn, handler)
	}
}

func serveOne(conn net.Conn, handler Handler) {
	defer conn.Close()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		json.NewEncoder(conn).Encode(Response{OK: false, Error: err.Error()})
		return
	}

	resp := handler(req)
	json.NewEncoder(conn).Encode(resp)
}

// Listen creates (or replaces) the Unix socket at path. Any stale
// socket file from a crashed previous run is removed first.
func Listen(path string) (net.Listener, error) {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on control socket %s: %w", path, err)
	}
	return ln, nil
}
