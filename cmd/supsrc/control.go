package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/AutumnsGrove/supsrc/internal/ctlsock"
	"github.com/AutumnsGrove/supsrc/internal/orchestrator"
	"github.com/AutumnsGrove/supsrc/internal/output"
)

// startControlSocket wires a ctlsock server backed by orch onto the
// Unix socket at path, serving `cb ack`/`cb status` for the lifetime of
// ctx. The socket file is removed once ctx is cancelled.
func startControlSocket(ctx context.Context, path string, orch *orchestrator.Orchestrator, sink *output.Sink) {
	ln, err := ctlsock.Listen(path)
	if err != nil {
		sink.Warnf("control socket unavailable, `cb ack`/`cb status` will not work: %v", err)
		return
	}
	go ctlsock.Serve(ctx, ln, controlHandler(orch))
}

func controlHandler(orch *orchestrator.Orchestrator) ctlsock.Handler {
	return func(req ctlsock.Request) ctlsock.Response {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		switch req.Action {
		case ctlsock.ActionStatus:
			snap := orch.Status(ctx)
			repos := make([]ctlsock.RepoStatus, 0, len(snap))
			for id, r := range snap {
				repos = append(repos, ctlsock.RepoStatus{
					ID:               id,
					Status:           r.Status.String(),
					Branch:           r.Branch.CurrentBranch,
					BreakerTriggered: r.Breaker.Triggered,
					BreakerReason:    r.Breaker.Reason,
				})
			}
			sort.Slice(repos, func(i, j int) bool { return repos[i].ID < repos[j].ID })
			return ctlsock.Response{OK: true, Repos: repos}

		case ctlsock.ActionAck:
			if err := orch.Acknowledge(ctx, req.RepoID); err != nil {
				return ctlsock.Response{OK: false, Error: err.Error()}
			}
			return ctlsock.Response{OK: true}

		default:
			return ctlsock.Response{OK: false, Error: fmt.Sprintf("unknown action %q", req.Action)}
		}
	}
}
