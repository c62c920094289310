package broadcast

import "sync"

// Broadcaster fans published values out to subscribers and replays the
// latest value to each new subscriber.
//
// Subscribers are grouped by an identity string. Subscribe with the same
// identity adds to that identity's set; Unsubscribe disposes the whole set.
//
// Each subscription owns an unbounded FIFO queue drained by its own
// goroutine, so callbacks run in publish order, never concurrently with
// themselves, and never block Publish or other subscribers.
type Broadcaster[T comparable] struct {
	mu       sync.Mutex
	current  T
	hasValue bool
	registry map[string][]*subscription[T]
}

// New creates a Broadcaster with no value. Subscribers added before the
// first Publish receive nothing until then.
func New[T comparable]() *Broadcaster[T] {
	return &Broadcaster[T]{
		registry: make(map[string][]*subscription[T]),
	}
}

// NewWithValue creates a Broadcaster whose current value is initial.
func NewWithValue[T comparable](initial T) *Broadcaster[T] {
	b := New[T]()
	b.current = initial
	b.hasValue = true
	return b
}

// Publish records v as the current value and queues it for every live
// subscription. Identical consecutive values are delivered again; use
// PublishChanged for edge-triggered publishing.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishLocked(v)
}

// PublishChanged publishes v only if it differs from the current value.
// It reports whether v was published. The comparison and the publish are
// atomic with respect to other publishers.
func (b *Broadcaster[T]) PublishChanged(v T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hasValue && b.current == v {
		return false
	}
	b.publishLocked(v)
	return true
}

func (b *Broadcaster[T]) publishLocked(v T) {
	b.current = v
	b.hasValue = true
	for _, subs := range b.registry {
		for _, s := range subs {
			s.enqueue(v)
		}
	}
}

// Current returns the latest published value and whether one exists.
func (b *Broadcaster[T]) Current() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, b.hasValue
}

// Subscribe registers fn under id. If a value has been published, fn is
// first called with the current value, then with every later value.
func (b *Broadcaster[T]) Subscribe(id string, fn func(T)) {
	s := newSubscription(fn)

	b.mu.Lock()
	if b.hasValue {
		s.enqueue(b.current)
	}
	b.registry[id] = append(b.registry[id], s)
	b.mu.Unlock()

	go s.run()
}

// Unsubscribe disposes every subscription registered under id and returns
// how many were disposed. Values not yet delivered are dropped. A callback
// already running when Unsubscribe is called may still finish, but no
// value published after Unsubscribe reaches any of them.
func (b *Broadcaster[T]) Unsubscribe(id string) int {
	b.mu.Lock()
	subs := b.registry[id]
	delete(b.registry, id)
	b.mu.Unlock()

	for _, s := range subs {
		s.dispose()
	}
	return len(subs)
}

// Len returns the number of live subscriber identities.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.registry)
}

// subscription is one callback and its pending values.
type subscription[T any] struct {
	fn func(T)

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []T
	disposed bool
}

func newSubscription[T any](fn func(T)) *subscription[T] {
	s := &subscription[T]{fn: fn}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *subscription[T]) enqueue(v T) {
	s.mu.Lock()
	if !s.disposed {
		s.queue = append(s.queue, v)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscription[T]) dispose() {
	s.mu.Lock()
	s.disposed = true
	s.queue = nil
	s.cond.Signal()
	s.mu.Unlock()
}

// run delivers queued values until the subscription is disposed.
func (s *subscription[T]) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.disposed {
			s.cond.Wait()
		}
		if s.disposed {
			s.mu.Unlock()
			return
		}
		v := s.queue[0]
		var zero T
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.fn(v)
	}
}
