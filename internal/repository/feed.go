package repository

import "sync"

// Feed broadcasts the latest value of T to any number of subscribers. Only
// the owner publishes. Subscribers that fall behind skip intermediate values
// and always receive the most recent one.
type Feed[T any] struct {
	mu    sync.Mutex
	value T
	subs  map[int]chan T
	next  int
}

// NewFeed returns a feed holding initial.
func NewFeed[T any](initial T) *Feed[T] {
	return &Feed[T]{value: initial, subs: make(map[int]chan T)}
}

// Current returns the last published value.
func (f *Feed[T]) Current() T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Publish replaces the value and notifies subscribers without blocking.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.value = v
	for _, ch := range f.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// Subscribe returns a channel that immediately holds the current value and
// then every later one. cancel closes the channel; it is safe to call twice.
func (f *Feed[T]) Subscribe() (<-chan T, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.next
	f.next++
	ch := make(chan T, 1)
	ch <- f.value
	f.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
