// Package notify provides the observer lists used between the queue engine
// and the session layer. Signals are not safe for concurrent use; they live
// on the orchestration loop like everything that emits them.
package notify

// Signal is an ordered list of callbacks keyed by subscriber.
type Signal[T any] struct {
	subs []subscription[T]
}

type subscription[T any] struct {
	key any
	fn  func(T)
}

// Subscribe registers fn under key. Subscribing an existing key replaces its
// callback and keeps its position.
func (s *Signal[T]) Subscribe(key any, fn func(T)) {
	for i := range s.subs {
		if s.subs[i].key == key {
			s.subs[i].fn = fn
			return
		}
	}
	s.subs = append(s.subs, subscription[T]{key: key, fn: fn})
}

// Unsubscribe removes key. Unknown keys are ignored.
func (s *Signal[T]) Unsubscribe(key any) {
	for i := range s.subs {
		if s.subs[i].key == key {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// Subscribed reports whether key is registered.
func (s *Signal[T]) Subscribed(key any) bool {
	for i := range s.subs {
		if s.subs[i].key == key {
			return true
		}
	}
	return false
}

// Len returns the number of subscribers.
func (s *Signal[T]) Len() int {
	return len(s.subs)
}

// Emit calls every subscriber in subscription order. Callbacks may subscribe
// or unsubscribe; a subscriber removed during Emit is not called afterwards.
func (s *Signal[T]) Emit(v T) {
	snapshot := append([]subscription[T](nil), s.subs...)
	for _, sub := range snapshot {
		if !s.Subscribed(sub.key) {
			continue
		}
		sub.fn(v)
	}
}

// Reset drops every subscriber.
func (s *Signal[T]) Reset() {
	s.subs = nil
}
