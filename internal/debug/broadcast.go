package debug

import (
	"sync"

	"github.com/ctagard/jdb-mcp/pkg/types"
)

// EventSink receives the asynchronous domain events the controller emits.
type EventSink interface {
	Emit(ev types.DebugEvent)
}

// backlogCap bounds the number of events kept for poll-based clients.
const backlogCap = 256

// Broadcaster fans controller events out to subscribers and keeps a bounded
// backlog for poll-based clients (the MCP surface drains it). Safe for
// concurrent use.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[int]chan types.DebugEvent
	nextSub int
	backlog []types.DebugEvent
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan types.DebugEvent)}
}

// Emit records ev in the backlog and delivers it to every subscriber.
// Slow subscribers lose events rather than blocking the controller.
func (b *Broadcaster) Emit(ev types.DebugEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.backlog) == backlogCap {
		b.backlog = b.backlog[1:]
	}
	b.backlog = append(b.backlog, ev)
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function must
// be called to release it.
func (b *Broadcaster) Subscribe(buffer int) (<-chan types.DebugEvent, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan types.DebugEvent, buffer)
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
	return ch, cancel
}

// Drain returns the buffered backlog and clears it.
func (b *Broadcaster) Drain() []types.DebugEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.backlog
	b.backlog = nil
	return out
}
