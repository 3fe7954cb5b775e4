package store

import "sync"

// Subscription is the handle returned by Subscribe. Cancel releases the
// subscription; calling it again, concurrently, or after the store has
// already dropped the subscriber is safe.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps a cancel func in an idempotent handle. The store
// uses it internally; callers layering extra teardown over an inner
// subscription can too.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

func (s *Subscription) Cancel() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}
