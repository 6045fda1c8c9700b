// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/metrics"
)

var (
	ErrBusRequired     = errors.New("bus is required")
	ErrHandlerRequired = errors.New("handler is required")
	ErrBusClosed       = errors.New("bus is closed")
)

// Handler handles one event.
type Handler[E Kinded] func(ctx context.Context, e E) error

type subscriber struct {
	name   string
	async  bool
	handle func(ctx context.Context, e Kinded) error
}

// Bus is an in-process publish/subscribe hub.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]subscriber
	pool        *ants.Pool
	wg          sync.WaitGroup
	closed      bool
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus) error

// WithPoolSize sets the worker pool size for asynchronous subscribers.
// Default is runtime.NumCPU(), with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(b *Bus) error {
		if size < 1 {
			size = 1
		}
		if b.pool != nil {
			b.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		b.pool = pool
		return nil
	}
}

// WithMetrics records deliveries.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) error {
		b.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// NewBus creates a Bus.
func NewBus(opts ...Option) (*Bus, error) {
	b := &Bus{
		subscribers: make(map[string][]subscriber),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			b.Close()
			return nil, err
		}
	}
	if b.pool == nil {
		size := runtime.NumCPU()
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return nil, err
		}
		b.pool = pool
	}
	return b, nil
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscriber)

// Async delivers post events to the subscriber on the worker pool.
// Pre events are always delivered synchronously.
func Async() SubscribeOption {
	return func(s *subscriber) {
		s.async = true
	}
}

// Subscribe registers handler for topic. Subscribers receive events in
// registration order.
func Subscribe[E Kinded](bus *Bus, topic Topic[E], name string, handler Handler[E], opts ...SubscribeOption) error {
	if bus == nil {
		return ErrBusRequired
	}
	if handler == nil {
		return ErrHandlerRequired
	}
	s := subscriber{
		name: name,
		handle: func(ctx context.Context, e Kinded) error {
			return handler(ctx, e.(E))
		},
	}
	for _, opt := range opts {
		opt(&s)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if bus.closed {
		return ErrBusClosed
	}
	bus.subscribers[topic.name] = append(bus.subscribers[topic.name], s)
	return nil
}

// Post publishes e on topic.
//
// For pre events the first failing subscriber stops delivery and Post returns
// a core.KindVeto error wrapping the subscriber's error. Post events never
// return a subscriber's error.
func Post[E Kinded](ctx context.Context, bus *Bus, topic Topic[E], e E) error {
	if bus == nil {
		return ErrBusRequired
	}
	// The post is counted while the read lock is held so Close cannot
	// release the pool between the closed check and delivery.
	bus.mu.RLock()
	if bus.closed {
		bus.mu.RUnlock()
		return ErrBusClosed
	}
	subs := bus.subscribers[topic.name]
	bus.wg.Add(1)
	bus.mu.RUnlock()
	defer bus.wg.Done()

	kind := e.EventKind()
	if kind.IsPre() {
		for _, s := range subs {
			if err := s.handle(ctx, e); err != nil {
				bus.metrics.EventDelivered(topic.name, kind.String(), metrics.OutcomeVeto)
				bus.logger.Info("event vetoed",
					"topic", topic.name,
					"kind", kind,
					"subscriber", s.name,
					"err", err)
				return core.Vetoed(s.name, err)
			}
			bus.metrics.EventDelivered(topic.name, kind.String(), metrics.OutcomeOK)
		}
		return nil
	}

	for _, s := range subs {
		if !s.async {
			bus.deliver(ctx, topic.name, kind, s, e)
			continue
		}
		// Async handlers must not observe the caller's cancellation.
		asyncCtx := context.WithoutCancel(ctx)
		bus.wg.Add(1)
		err := bus.pool.Submit(func() {
			defer bus.wg.Done()
			bus.deliver(asyncCtx, topic.name, kind, s, e)
		})
		if err != nil {
			bus.wg.Done()
			bus.logger.Warn("async delivery rejected, delivering inline",
				"topic", topic.name,
				"subscriber", s.name,
				"err", err)
			bus.deliver(ctx, topic.name, kind, s, e)
		}
	}
	return nil
}

// deliver runs a post-event handler, isolating its failure.
func (b *Bus) deliver(ctx context.Context, topic string, kind Kind, s subscriber, e Kinded) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.EventDelivered(topic, kind.String(), metrics.OutcomeError)
			b.logger.Error("event subscriber panicked",
				"topic", topic,
				"kind", kind,
				"subscriber", s.name,
				"panic", fmt.Sprint(r))
		}
	}()
	if err := s.handle(ctx, e); err != nil {
		b.metrics.EventDelivered(topic, kind.String(), metrics.OutcomeError)
		b.logger.Error("event subscriber failed",
			"topic", topic,
			"kind", kind,
			"subscriber", s.name,
			"err", err)
		return
	}
	b.metrics.EventDelivered(topic, kind.String(), metrics.OutcomeOK)
}

// Wait blocks until every in-flight post and queued asynchronous delivery has
// finished. It must not be called from a subscriber.
func (b *Bus) Wait() {
	b.wg.Wait()
}

// Close waits for queued deliveries and releases the worker pool.
// Safe to call multiple times.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	if b.pool != nil {
		b.pool.Release()
	}
}
