// Package chat runs the per-subject chat rooms: the live subscriber registry, the
// authorization gate and the message service shared by REST and websocket callers.
package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/bellflower/pkg/metrics"
	"github.com/Ramsey-B/bellflower/pkg/models"
)

// ErrRegistryClosed is returned by Attach after Close
var ErrRegistryClosed = errors.New("chat registry closed")

// Registry defaults applied by NewRegistry
const (
	DefaultSubscriberBuffer = 64
	DefaultSendWindow       = time.Second
)

// ChannelKey identifies one chat room.
type ChannelKey struct {
	Subject     models.ChatSubject
	SubjectUUID string
}

// Subscriber is one live connection attached to a channel. Frames are queued on a bounded
// buffer and consumed in order by the connection's writer.
type Subscriber struct {
	id     uint64
	key    ChannelKey
	caller models.Caller

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Key returns the channel the subscriber listens on
func (s *Subscriber) Key() ChannelKey { return s.key }
// Caller returns the authenticated socket owner
func (s *Subscriber) Caller() models.Caller { return s.caller }
// Out yields frames queued for the socket writer
func (s *Subscriber) Out() <-chan []byte { return s.out }
// Done is closed once the subscriber is closed
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Close marks the subscriber finished. out is never closed so late senders cannot panic.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Closed reports whether Close has been called
func (s *Subscriber) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// TryEnqueue queues a frame for this subscriber only, without blocking.
func (s *Subscriber) TryEnqueue(frame []byte) bool {
	if s.Closed() {
		return false
	}
	select {
	case s.out <- frame:
		return true
	default:
		return false
	}
}

// RegistryConfig holds buffer and send window settings for the registry
type RegistryConfig struct {
	SubscriberBuffer int
	SendWindow       time.Duration
}

// seqLock serializes persist+broadcast on one channel; refs lets idle locks be dropped.
type seqLock struct {
	mu   sync.Mutex
	refs int
}

// Registry is the process-wide map of channels to live subscribers.
type Registry struct {
	mu       sync.Mutex
	channels map[ChannelKey]map[uint64]*Subscriber
	locks    map[ChannelKey]*seqLock
	closed   bool

	nextID atomic.Uint64
	cfg    RegistryConfig
	logger ectologger.Logger
}

// NewRegistry creates an empty registry, applying defaults for zero settings
func NewRegistry(cfg RegistryConfig, logger ectologger.Logger) *Registry {
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if cfg.SendWindow <= 0 {
		cfg.SendWindow = DefaultSendWindow
	}
	return &Registry{
		channels: make(map[ChannelKey]map[uint64]*Subscriber),
		locks:    make(map[ChannelKey]*seqLock),
		cfg:      cfg,
		logger:   logger,
	}
}

// NewSubscriber builds a detached subscriber with the configured buffer.
func (r *Registry) NewSubscriber(key ChannelKey, caller models.Caller) *Subscriber {
	return &Subscriber{
		id:     r.nextID.Add(1),
		key:    key,
		caller: caller,
		out:    make(chan []byte, r.cfg.SubscriberBuffer),
		done:   make(chan struct{}),
	}
}

// Attach adds the subscriber to its channel. It fails once the registry is closed.
func (r *Registry) Attach(sub *Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	set, ok := r.channels[sub.key]
	if !ok {
		set = make(map[uint64]*Subscriber)
		r.channels[sub.key] = set
		metrics.ChatChannels.Inc()
	}
	if _, exists := set[sub.id]; !exists {
		set[sub.id] = sub
		metrics.ChatSubscribers.Inc()
	}
	return nil
}

// Detach removes sub and drops the channel once it is empty. It reports whether sub was attached.
func (r *Registry) Detach(sub *Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detachLocked(sub)
}

func (r *Registry) detachLocked(sub *Subscriber) bool {
	set, ok := r.channels[sub.key]
	if !ok {
		return false
	}
	if _, ok := set[sub.id]; !ok {
		return false
	}
	delete(set, sub.id)
	metrics.ChatSubscribers.Dec()
	if len(set) == 0 {
		delete(r.channels, sub.key)
		metrics.ChatChannels.Dec()
	}
	return true
}

// Subscribers returns the number of live subscribers on key.
func (r *Registry) Subscribers(key ChannelKey) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels[key])
}

func (r *Registry) snapshot(key ChannelKey) []*Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.channels[key]
	subs := make([]*Subscriber, 0, len(set))
	for _, sub := range set {
		subs = append(subs, sub)
	}
	return subs
}

// Broadcast queues frame on every subscriber of key. All subscribers share one send window;
// any that cannot take the frame before it runs out are evicted. The registry lock is not held
// while sending. Returns the number of subscribers that accepted the frame.
func (r *Registry) Broadcast(ctx context.Context, key ChannelKey, frame []byte) int {
	subs := r.snapshot(key)
	if len(subs) == 0 {
		return 0
	}

	window := time.NewTimer(r.cfg.SendWindow)
	defer window.Stop()

	var (
		delivered int
		expired   bool
		failed    []*Subscriber
	)
	for _, sub := range subs {
		if sub.Closed() {
			failed = append(failed, sub)
			continue
		}
		if expired {
			if sub.TryEnqueue(frame) {
				delivered++
			} else {
				failed = append(failed, sub)
			}
			continue
		}

		select {
		case sub.out <- frame:
			delivered++
		case <-sub.done:
			failed = append(failed, sub)
		case <-window.C:
			expired = true
			failed = append(failed, sub)
		}
	}

	for _, sub := range failed {
		r.evict(ctx, sub)
	}
	return delivered
}

func (r *Registry) evict(ctx context.Context, sub *Subscriber) {
	if r.Detach(sub) {
		metrics.ChatEvictionsTotal.Inc()
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"chat_subject": sub.key.Subject.String(),
			"subject_uuid": sub.key.SubjectUUID,
			"user_uuid":    sub.caller.UUID,
		}).Warn("evicting chat subscriber that could not keep up")
	}
	sub.Close()
}

// Publish runs persist and broadcasts its frame while holding the channel's sequence lock,
// so subscribers see frames in the order they were persisted. Nothing is broadcast if
// persist fails.
func (r *Registry) Publish(ctx context.Context, key ChannelKey, persist func(ctx context.Context) ([]byte, error)) (int, error) {
	unlock := r.lockChannel(key)
	defer unlock()

	frame, err := persist(ctx)
	if err != nil {
		return 0, err
	}
	return r.Broadcast(ctx, key, frame), nil
}

func (r *Registry) lockChannel(key ChannelKey) func() {
	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &seqLock{}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, key)
		}
		r.mu.Unlock()
	}
}

// CloseChannel detaches and closes every subscriber of key, for a chat that was deleted.
func (r *Registry) CloseChannel(key ChannelKey) int {
	r.mu.Lock()
	set := r.channels[key]
	delete(r.channels, key)
	if len(set) > 0 {
		metrics.ChatChannels.Dec()
		metrics.ChatSubscribers.Sub(float64(len(set)))
	}
	r.mu.Unlock()

	for _, sub := range set {
		sub.Close()
	}
	return len(set)
}

// Close detaches and closes every subscriber. Later Attach calls fail with ErrRegistryClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	var subs []*Subscriber
	for _, set := range r.channels {
		for _, sub := range set {
			subs = append(subs, sub)
		}
	}
	r.channels = make(map[ChannelKey]map[uint64]*Subscriber)
	r.mu.Unlock()

	metrics.ChatSubscribers.Set(0)
	metrics.ChatChannels.Set(0)
	for _, sub := range subs {
		sub.Close()
	}
	r.logger.Infof("Chat registry drained: closed %d subscribers", len(subs))
}
