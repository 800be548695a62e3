package notify

import "testing"

func TestDisabled_DiscardsNotices(t *testing.T) {
	n := Disabled()
	n.Notify(Notice{RepoID: "demo", Title: "test"}) // must not panic or block
}

func TestDesktop_DropsOnFullQueue(t *testing.T) {
	d := &Desktop{command: "true", queue: make(chan Notice)} // unbuffered, no drainer running

	// Notify must return immediately rather than block since the queue
	// has no reader yet.
	d.Notify(Notice{RepoID: "demo", Title: "one"})
}
