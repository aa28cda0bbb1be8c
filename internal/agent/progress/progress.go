// Package progress holds the run status board: a keyed, ordered set of
// stage messages that the engine updates as a research run advances.
package progress

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// Sink receives progress updates from a research run. Implementations must be
// safe for concurrent use; the search fan-out posts from multiple goroutines.
type Sink interface {
	// Upsert creates or replaces the entry under key. A done entry keeps
	// accepting message updates. hideMarker suppresses the completion marker
	// for informational entries.
	Upsert(key, message string, done, hideMarker bool)

	// MarkDone flags an existing entry as finished without changing its message.
	MarkDone(key string)

	// End signals that no further updates will arrive.
	End()
}

// Item is a single entry on the board.
type Item struct {
	Key        string    `json:"key"`
	Message    string    `json:"message"`
	Done       bool      `json:"done"`
	HideMarker bool      `json:"hide_marker,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Board is an in-memory Sink that preserves key insertion order. It backs the
// HTTP run snapshots and the console printer.
type Board struct {
	mu    sync.RWMutex
	order []string
	items map[string]Item
	ended bool
}

func NewBoard() *Board {
	return &Board{items: make(map[string]Item)}
}

func (b *Board) Upsert(key, message string, done, hideMarker bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.items[key]; !ok {
		b.order = append(b.order, key)
	}
	b.items[key] = Item{Key: key, Message: message, Done: done, HideMarker: hideMarker, UpdatedAt: time.Now()}
}

func (b *Board) MarkDone(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	item, ok := b.items[key]
	if !ok {
		return
	}
	item.Done = true
	item.UpdatedAt = time.Now()
	b.items[key] = item
}

func (b *Board) End() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended = true
}

// Ended reports whether End has been called.
func (b *Board) Ended() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ended
}

// Snapshot returns the items in insertion order.
func (b *Board) Snapshot() []Item {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Item, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, b.items[key])
	}
	return out
}

// Get returns the item under key, if present.
func (b *Board) Get(key string) (Item, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	item, ok := b.items[key]
	return item, ok
}

// Printer is a Sink that mirrors every update onto a writer, one line per
// update. It wraps a Board so terminal state stays inspectable.
type Printer struct {
	board  *Board
	mu     sync.Mutex
	out    io.Writer
	logger *log.Logger
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{
		board:  NewBoard(),
		out:    out,
		logger: log.New(log.Writer(), "[PROGRESS] ", log.LstdFlags),
	}
}

// Board exposes the underlying board for final inspection.
func (p *Printer) Board() *Board { return p.board }

func (p *Printer) Upsert(key, message string, done, hideMarker bool) {
	p.board.Upsert(key, message, done, hideMarker)
	p.print(key, message, done, hideMarker)
}

func (p *Printer) MarkDone(key string) {
	p.board.MarkDone(key)
	if item, ok := p.board.Get(key); ok {
		p.print(key, item.Message, true, item.HideMarker)
	}
}

func (p *Printer) End() {
	p.board.End()
}

func (p *Printer) print(key, message string, done, hideMarker bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	marker := "  "
	if done && !hideMarker {
		marker = "✓ "
	}
	if _, err := fmt.Fprintf(p.out, "%s%s\n", marker, message); err != nil {
		p.logger.Printf("write failed for %q: %v", key, err)
	}
}
