package session

import "sync"

// broadcastCapacity is the per-subscriber channel depth. A slow
// subscriber that falls behind misses messages on this channel but can
// always catch up through CommandSession.Lines, the buffer being the
// ground truth (spec.md §4.6, §5 backpressure).
const broadcastCapacity = 1000

// broadcaster fans a single stream of published lines out to any number
// of independent subscriber channels.
type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan OutputLine
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan OutputLine)}
}

func (b *broadcaster) subscribe() (<-chan OutputLine, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan OutputLine, broadcastCapacity)
	b.subs[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// publish delivers line to every current subscriber without blocking; a
// full subscriber channel drops the line rather than stalling the
// single-writer stdout reader.
func (b *broadcaster) publish(line OutputLine) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- line:
		default:
		}
	}
}
