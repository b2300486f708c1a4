package wizard

import "sync"

// State holds a value that asynchronous continuations (camera results,
// network replies, list re-fetches) change through pure transitions.
type State[T any] struct {
	mu    sync.Mutex
	value T
	subs  []func(T)
}

func NewState[T any](v T) *State[T] {
	return &State[T]{value: v}
}

func (s *State[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Update replaces the value with fn(current) and notifies subscribers.
// Transitions are serialized; fn must not call back into s.
func (s *State[T]) Update(fn func(T) T) T {
	s.mu.Lock()
	s.value = fn(s.value)
	v := s.value
	subs := append([]func(T){}, s.subs...)
	s.mu.Unlock()
	for _, sub := range subs {
		sub(v)
	}
	return v
}

// Subscribe registers fn to receive every new value.
func (s *State[T]) Subscribe(fn func(T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}
