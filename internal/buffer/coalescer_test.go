package buffer

import (
	"testing"
	"time"
)

func TestOffMode_PassesEveryEventThrough(t *testing.T) {
	c := New(Config{Mode: ModeOff}, 10)

	c.Ingest(RawEvent{RepoID: "r", SrcPath: "a.txt", Kind: KindModified, Timestamp: time.Now()})
	c.Ingest(RawEvent{RepoID: "r", SrcPath: "a.txt", Kind: KindModified, Timestamp: time.Now()})

	for i := 0; i < 2; i++ {
		select {
		case be := <-c.Out():
			if be.OperationType != OperationSingle || be.EventCount != 1 {
				t.Fatalf("expected single pass-through event, got %+v", be)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for pass-through event")
		}
	}
}

func TestSimpleMode_GroupsByPathWithinWindow(t *testing.T) {
	c := New(Config{Mode: ModeSimple, Window: 30 * time.Millisecond}, 10)

	now := time.Now()
	c.Ingest(RawEvent{RepoID: "r", SrcPath: "a.txt", Kind: KindModified, Timestamp: now})
	c.Ingest(RawEvent{RepoID: "r", SrcPath: "a.txt", Kind: KindModified, Timestamp: now.Add(time.Millisecond)})
	c.Ingest(RawEvent{RepoID: "r", SrcPath: "b.txt", Kind: KindCreated, Timestamp: now})

	seen := map[string]BufferedEvent{}
	for i := 0; i < 2; i++ {
		select {
		case be := <-c.Out():
			seen[be.Path] = be
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for coalesced events")
		}
	}

	if seen["a.txt"].EventCount != 2 {
		t.Errorf("expected a.txt coalesced into 2 events, got %+v", seen["a.txt"])
	}
	if seen["b.txt"].EventCount != 1 {
		t.Errorf("expected b.txt as single event, got %+v", seen["b.txt"])
	}
}

func TestSmartMode_RecognizesAtomicRewritePattern1(t *testing.T) {
	c := New(Config{Mode: ModeSmart, Window: 50 * time.Millisecond}, 10)
	now := time.Now()

	c.Ingest(RawEvent{RepoID: "r", SrcPath: "/repo/file.go.tmp", Kind: KindCreated, Timestamp: now})
	c.Ingest(RawEvent{RepoID: "r", SrcPath: "/repo/file.go.tmp", Kind: KindModified, Timestamp: now})
	c.Ingest(RawEvent{RepoID: "r", SrcPath: "/repo/file.go.tmp", DestPath: "/repo/file.go", Kind: KindMoved, Timestamp: now})

	select {
	case be := <-c.Out():
		if be.OperationType != OperationAtomicRewrite {
			t.Fatalf("expected atomic_rewrite, got %+v", be)
		}
		if be.Path != "/repo/file.go" {
			t.Fatalf("expected final path, got %q", be.Path)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for atomic rewrite event")
	}
}

func TestSmartMode_RecognizesAtomicRewritePattern2(t *testing.T) {
	c := New(Config{Mode: ModeSmart, Window: 50 * time.Millisecond}, 10)
	now := time.Now()

	c.Ingest(RawEvent{RepoID: "r", SrcPath: "/repo/.file.tmp.123", Kind: KindCreated, Timestamp: now})
	c.Ingest(RawEvent{RepoID: "r", SrcPath: "/repo/file.go", Kind: KindDeleted, Timestamp: now})
	c.Ingest(RawEvent{RepoID: "r", SrcPath: "/repo/.file.tmp.123", DestPath: "/repo/file.go", Kind: KindMoved, Timestamp: now})

	select {
	case be := <-c.Out():
		if be.OperationType != OperationAtomicRewrite || be.Path != "/repo/file.go" {
			t.Fatalf("expected atomic_rewrite for final path, got %+v", be)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for atomic rewrite event")
	}
}

func TestSmartMode_SwallowsSwapFiles(t *testing.T) {
	c := New(Config{Mode: ModeSmart, Window: 20 * time.Millisecond}, 10)
	now := time.Now()

	c.Ingest(RawEvent{RepoID: "r", SrcPath: "/repo/.file.go.swp", Kind: KindCreated, Timestamp: now})
	c.Ingest(RawEvent{RepoID: "r", SrcPath: "/repo/.file.go.swp", Kind: KindDeleted, Timestamp: now})

	select {
	case be := <-c.Out():
		t.Fatalf("expected swap file events to be swallowed, got %+v", be)
	case <-time.After(100 * time.Millisecond):
		// expected: nothing emitted
	}
}

func TestSmartMode_IncompleteSequenceFlushesIndividually(t *testing.T) {
	c := New(Config{Mode: ModeSmart, Window: 20 * time.Millisecond}, 10)
	now := time.Now()

	c.Ingest(RawEvent{RepoID: "r", SrcPath: "/repo/file.go.tmp", Kind: KindCreated, Timestamp: now})

	select {
	case be := <-c.Out():
		if be.OperationType != OperationSingle {
			t.Fatalf("expected incomplete sequence to flush as single op, got %+v", be)
		}
		if be.Path != "/repo/file.go.tmp" {
			t.Fatalf("expected temp path to surface on window expiry, got %q", be.Path)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for window-expiry flush")
	}
}

func TestFlushAll_EmitsPendingGroups(t *testing.T) {
	c := New(Config{Mode: ModeSimple, Window: time.Hour}, 10)
	c.Ingest(RawEvent{RepoID: "r", SrcPath: "a.txt", Kind: KindModified, Timestamp: time.Now()})

	c.FlushAll()

	select {
	case be := <-c.Out():
		if be.Path != "a.txt" {
			t.Fatalf("expected a.txt flushed, got %+v", be)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for FlushAll emission")
	}
}

func TestIsTempName(t *testing.T) {
	cases := map[string]bool{
		"file.go.tmp":        true,
		"file.go.tmp.12345":  true,
		".file.tmp.12345":    true,
		"file.go~":           true,
		"file.go":            false,
		"normal.tmpfile":     false,
	}
	for path, want := range cases {
		if got := isTempName(path); got != want {
			t.Errorf("isTempName(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestIsSwapName(t *testing.T) {
	cases := map[string]bool{
		"/repo/.file.go.swp": true,
		"/repo/.file.go.swx": true,
		"/repo/file.go.swp":  false,
		"/repo/file.go":      false,
	}
	for path, want := range cases {
		if got := isSwapName(path); got != want {
			t.Errorf("isSwapName(%q) = %v, want %v", path, got, want)
		}
	}
}
