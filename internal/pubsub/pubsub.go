// Package pubsub provides the subscription list shared by the dashboard stores.
package pubsub

import (
	"sync"

	"github.com/google/uuid"
)

// Subscribers delivers values to registered callbacks synchronously, in
// registration order, on the publishing goroutine.
type Subscribers[T any] struct {
	mu    sync.RWMutex
	order []string
	fns   map[string]func(T)
}

// Subscribe registers fn and returns a function that removes it.
func (s *Subscribers[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	id := uuid.New().String()

	s.mu.Lock()
	if s.fns == nil {
		s.fns = make(map[string]func(T))
	}
	s.fns[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.fns, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish calls every subscriber with v.
func (s *Subscribers[T]) Publish(v T) {
	s.mu.RLock()
	fns := make([]func(T), 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.fns[id])
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of active subscribers.
func (s *Subscribers[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fns)
}
