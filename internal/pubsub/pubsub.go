// Package pubsub implements the channel→subscribers fanout registry
// (spec.md §4.G), independent of the keyspace mutex per spec.md §5's lock
// ordering (no nested acquisition of the keyspace while holding pub/sub).
package pubsub

import (
	"sync"

	"github.com/emberdb/emberdb/internal/sink"
)

// Registry maps channel names to the set of subscriber sinks currently
// listening. Grounded on the teacher's SubscriptionIndex
// (ws/internal/shared/broadcast.go): a plain map instead of the teacher's
// sharded/optimized variant, since this server's fanout is far smaller in
// scale than the teacher's 10k-client broadcast hot path.
type Registry struct {
	mu       sync.Mutex
	channels map[string]map[sink.Sink]struct{}
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{channels: make(map[string]map[sink.Sink]struct{})}
}

// Subscribe adds s to ch's subscriber set. Idempotent: re-subscribing does
// not duplicate the entry (spec.md §4.G).
func (r *Registry) Subscribe(ch string, s sink.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.channels[ch]
	if !ok {
		subs = make(map[sink.Sink]struct{})
		r.channels[ch] = subs
	}
	subs[s] = struct{}{}
}

// Unsubscribe removes s from ch's subscriber set.
func (r *Registry) Unsubscribe(ch string, s sink.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.channels[ch]
	if !ok {
		return
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(r.channels, ch)
	}
}

// UnsubscribeAll removes s from every channel, called on disconnect.
func (r *Registry) UnsubscribeAll(s sink.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch, subs := range r.channels {
		delete(subs, s)
		if len(subs) == 0 {
			delete(r.channels, ch)
		}
	}
}

// Publish writes msg to every current subscriber of ch and returns the
// number of sinks it attempted delivery to (spec.md §4.C: PUBLISH's
// integer reply is the attempted count, not a guaranteed-delivered count).
func (r *Registry) Publish(ch string, msg []byte) int {
	r.mu.Lock()
	subs := make([]sink.Sink, 0, len(r.channels[ch]))
	for s := range r.channels[ch] {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	for _, s := range subs {
		_ = s.Send(msg)
	}
	return len(subs)
}

// Channels returns the names of channels with at least one subscriber.
func (r *Registry) Channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.channels))
	for ch := range r.channels {
		out = append(out, ch)
	}
	return out
}
