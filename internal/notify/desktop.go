package notify

import (
	"os/exec"

	"github.com/AutumnsGrove/supsrc/internal/output"
)

// Desktop shells out to a platform notification command for every
// notice. Its internal channel drops notices on overflow rather than
// blocking the caller, mirroring the watcher's lost-event channel: a
// slow or wedged notification backend is a display nuisance, never a
// reason to stall the event processor.
type Desktop struct {
	command string // e.g. "notify-send"
	queue   chan Notice
	sink    *output.Sink
}

// NewDesktop starts a background goroutine that drains queued notices
// one at a time, running command with the notice's title/body as
// arguments. An empty command falls back to "notify-send".
func NewDesktop(command string, sink *output.Sink) *Desktop {
	if command == "" {
		command = "notify-send"
	}
	d := &Desktop{
		command: command,
		queue:   make(chan Notice, 32),
		sink:    sink,
	}
	go d.loop()
	return d
}

// Notify enqueues n for best-effort delivery. If the queue is full the
// notice is dropped; callers are never blocked.
func (d *Desktop) Notify(n Notice) {
	select {
	case d.queue <- n:
	default:
		if d.sink != nil {
			d.sink.Warnf("notify: dropped notice for %s (%s): queue full", n.RepoID, n.Title)
		}
	}
}

func (d *Desktop) loop() {
	for n := range d.queue {
		cmd := exec.Command(d.command, n.Title, n.Body)
		if err := cmd.Run(); err != nil && d.sink != nil {
			d.sink.Warnf("notify: %s failed for %s: %v", d.command, n.RepoID, err)
		}
	}
}
