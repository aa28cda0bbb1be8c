package progress

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestBoardPreservesInsertionOrder(t *testing.T) {
	b := NewBoard()
	b.Upsert("planning", "Planning...", false, false)
	b.Upsert("searching", "Searching...", false, false)
	b.Upsert("planning", "Plan ready", true, false)

	snap := b.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 items, got %d", len(snap))
	}
	if snap[0].Key != "planning" || snap[1].Key != "searching" {
		t.Fatalf("unexpected order: %q, %q", snap[0].Key, snap[1].Key)
	}
	if snap[0].Message != "Plan ready" || !snap[0].Done {
		t.Fatalf("upsert did not replace entry: %+v", snap[0])
	}
}

func TestBoardMarkDone(t *testing.T) {
	b := NewBoard()
	b.Upsert("searching", "Searching... 2/3 completed", false, false)
	b.MarkDone("searching")

	item, ok := b.Get("searching")
	if !ok || !item.Done {
		t.Fatalf("expected done item, got %+v (ok=%t)", item, ok)
	}
	if item.Message != "Searching... 2/3 completed" {
		t.Fatalf("MarkDone must not change message, got %q", item.Message)
	}

	// unknown key is a no-op
	b.MarkDone("missing")
	if _, ok := b.Get("missing"); ok {
		t.Fatalf("MarkDone must not create entries")
	}
}

func TestBoardConcurrentUpserts(t *testing.T) {
	b := NewBoard()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			b.Upsert("searching", fmt.Sprintf("Searching... %d/50 completed", n), false, false)
		}(i)
	}
	wg.Wait()

	snap := b.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected a single keyed entry, got %d", len(snap))
	}
	if !strings.Contains(snap[0].Message, "/50 completed") {
		t.Fatalf("unexpected message: %q", snap[0].Message)
	}
}

func TestPrinterWritesMarkers(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Upsert("starting", "Starting research...", true, true)
	p.Upsert("planning", "Planning...", false, false)
	p.Upsert("planning", "Plan ready", true, false)
	p.End()

	out := buf.String()
	if !strings.Contains(out, "✓ Plan ready") {
		t.Fatalf("expected completion marker, got %q", out)
	}
	if strings.Contains(out, "✓ Starting research...") {
		t.Fatalf("hidden marker entries must not show a marker: %q", out)
	}
	if !p.Board().Ended() {
		t.Fatalf("expected board to be ended")
	}
}
