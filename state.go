package goSession

import "sync"

// Subscription receives state transitions in the order they happened. The
// first value is always the state current at subscription time. Slow readers
// never block the session: undelivered changes queue per subscriber.
type Subscription struct {
	C <-chan StateChange

	sub *subscriber
	b   *broadcaster
}

// Close stops delivery and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.b.remove(s.sub)
	s.sub.stop()
}

type subscriber struct {
	id    uint64
	out   chan StateChange
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
	mu    sync.Mutex
	queue []StateChange
}

func (s *subscriber) push(c StateChange) {
	s.mu.Lock()
	s.queue = append(s.queue, c)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue[0] = StateChange{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}

type broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[uint64]*subscriber)}
}

// subscribe must be called with the session lock held so that current and
// later publishes are totally ordered.
func (b *broadcaster) subscribe(current StateChange, buffer int) *Subscription {
	if buffer < 0 {
		buffer = 0
	}
	b.mu.Lock()
	b.nextID++
	sub := &subscriber{
		id:   b.nextID,
		out:  make(chan StateChange, buffer),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	sub.push(current)
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go sub.run()
	return &Subscription{C: sub.out, sub: sub, b: b}
}

func (b *broadcaster) publish(c StateChange) {
	b.mu.Lock()
	for _, sub := range b.subs {
		sub.push(c)
	}
	b.mu.Unlock()
}

func (b *broadcaster) remove(sub *subscriber) {
	b.mu.Lock()
	delete(b.subs, sub.id)
	b.mu.Unlock()
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*subscriber)
	b.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
