package pubsub

import (
	"fmt"
	"sync"

	logpkg "github.com/remiverdiesen/agents-at-scale/pkg/log"
)

// Handler receives published values.
type Handler[T any] func(T)

// Bus routes values by topic.
type Bus[T any] struct {
	mu     sync.Mutex
	topics map[string]map[uint64]*subscriber[T]
	nextID uint64
	closed bool
	logger logpkg.Logger
}

// New returns an empty bus. A nil logger discards handler panics silently.
func New[T any](logger logpkg.Logger) *Bus[T] {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Bus[T]{topics: map[string]map[uint64]*subscriber[T]{}, logger: logger}
}

// Subscribe registers h on topic and returns its unsubscribe function.
func (b *Bus[T]) Subscribe(topic string, h Handler[T]) func() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.nextID++
	sub := &subscriber[T]{
		id:      b.nextID,
		topic:   topic,
		handler: h,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		logger:  b.logger,
	}
	subs := b.topics[topic]
	if subs == nil {
		subs = map[uint64]*subscriber[T]{}
		b.topics[topic] = subs
	}
	subs[sub.id] = sub
	b.mu.Unlock()

	go sub.run()
	return func() { b.remove(sub) }
}

// Publish enqueues v for every current subscriber of topic.
func (b *Bus[T]) Publish(topic string, v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.topics[topic] {
		sub.enqueue(v)
	}
}

// Count returns the number of subscribers on topic.
func (b *Bus[T]) Count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

// Close drops every subscription. Later publishes are ignored.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*subscriber[T]
	for _, subs := range b.topics {
		for _, sub := range subs {
			all = append(all, sub)
		}
	}
	b.topics = map[string]map[uint64]*subscriber[T]{}
	b.mu.Unlock()

	for _, sub := range all {
		sub.stop()
	}
}

func (b *Bus[T]) remove(sub *subscriber[T]) {
	b.mu.Lock()
	if subs := b.topics[sub.topic]; subs != nil {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(b.topics, sub.topic)
		}
	}
	b.mu.Unlock()
	sub.stop()
}

type subscriber[T any] struct {
	id      uint64
	topic   string
	handler Handler[T]
	logger  logpkg.Logger

	mu    sync.Mutex
	queue []T
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func (s *subscriber[T]) enqueue(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber[T]) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber[T]) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()
		for _, v := range batch {
			select {
			case <-s.done:
				return
			default:
			}
			s.deliver(v)
		}
	}
}

func (s *subscriber[T]) deliver(v T) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("subscriber handler panicked",
				logpkg.Str("topic", s.topic),
				logpkg.Str("panic", fmt.Sprint(r)))
		}
	}()
	s.handler(v)
}
