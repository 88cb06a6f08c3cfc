package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// MemoryBus is an in-process Bus with RabbitMQ topic routing. Every
// subscription gets its own delivery goroutine with an unbounded FIFO queue,
// so handlers may publish freely without deadlocking the bus, and each
// subscriber sees messages in publish order.
type MemoryBus struct {
	mu     sync.Mutex
	subs   []*memorySub
	closed bool
	wg     sync.WaitGroup
}

type delivery struct {
	routingKey string
	body       []byte
}

type memorySub struct {
	patterns []string
	handler  Handler

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []delivery
	closed bool
}

func (s *memorySub) matches(topic string) bool {
	for _, pattern := range s.patterns {
		if TopicMatches(pattern, topic) {
			return true
		}
	}
	return false
}

// NewMemoryBus returns an empty in-memory bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Publish delivers body to every matching subscription's queue.
func (b *MemoryBus) Publish(_ context.Context, topic string, body []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("publish on closed bus (topic %s)", topic)
	}
	subs := make([]*memorySub, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	// Copy once; handlers must not share mutable state through the body.
	msg := make([]byte, len(body))
	copy(msg, body)

	for _, sub := range subs {
		if sub.matches(topic) {
			sub.enqueue(delivery{routingKey: topic, body: msg})
		}
	}
	return nil
}

// Subscribe registers handler for the patterns and starts its delivery loop.
func (b *MemoryBus) Subscribe(_ context.Context, handler Handler, patterns ...string) error {
	if len(patterns) == 0 {
		return fmt.Errorf("subscribe needs at least one pattern")
	}
	sub := &memorySub{patterns: patterns, handler: handler}
	sub.cond = sync.NewCond(&sub.mu)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("subscribe on closed bus (patterns %v)", patterns)
	}
	b.subs = append(b.subs, sub)
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		sub.run()
	}()
	return nil
}

// Close stops all delivery loops after their queues drain.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	b.wg.Wait()
	return nil
}

func (s *memorySub) enqueue(d delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, d)
	s.cond.Signal()
}

func (s *memorySub) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *memorySub) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		d := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.deliver(d)
	}
}

func (s *memorySub) deliver(d delivery) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("handler for patterns %v panicked on %s: %v", s.patterns, d.routingKey, r)
		}
	}()
	s.handler(d.routingKey, d.body)
}
