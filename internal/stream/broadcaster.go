package stream

import (
	"sync"
	"time"
)

const defaultSubscriberBuffer = 256

type subscriber struct {
	ch         chan StepEvent
	projectRef string
}

// Broadcaster fans step events out to live subscribers in publish order.
// Delivery is at-least-once for subscribers connected at publish time; there
// is no replay for late joiners, who must query the session controller to
// catch up on coarse state.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[int]*subscriber
	nextID  int
	buffer  int
	dropped uint64
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Broadcaster{
		subs:   make(map[int]*subscriber),
		buffer: buffer,
	}
}

// Subscribe returns a live event channel and a cancel func. projectRef may be
// empty to receive everything; a non-empty ref suppresses events that carry a
// different ref, so sequential workflows with distinct refs do not
// cross-deliver. The channel is closed by the cancel func.
func (b *Broadcaster) Subscribe(projectRef string) (<-chan StepEvent, func()) {
	sub := &subscriber{
		ch:         make(chan StepEvent, b.buffer),
		projectRef: projectRef,
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
}

// Publish pushes ev to every connected subscriber. A slow subscriber never
// blocks the publisher: when its buffer is full the oldest buffered event is
// dropped to make room.
func (b *Broadcaster) Publish(ev StepEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.projectRef != "" && ev.ProjectRef != "" && ev.ProjectRef != sub.projectRef {
			continue
		}
		select {
		case sub.ch <- ev:
			continue
		default:
		}
		// Buffer full: drop oldest, then retry once.
		select {
		case <-sub.ch:
			b.dropped++
		default:
		}
		select {
		case sub.ch <- ev:
		default:
			b.dropped++
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped counts events discarded due to subscriber buffer overflow.
func (b *Broadcaster) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
