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

// Package executor provides a deadline-gated execution strategy: work runs
// inline until a deadline passes, after which it is queued on a background
// pool as long as capacity remains. When capacity is exhausted a fallback runs
// instead of the work.
package executor

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/poiesic/repokeeper/metrics"
	"golang.org/x/sync/semaphore"
)

// ExecutionType reports how a task was handled.
type ExecutionType int

const (
	Synchronous ExecutionType = iota
	Asynchronous
)

func (t ExecutionType) String() string {
	if t == Synchronous {
		return "SYNCHRONOUS"
	}
	return "ASYNCHRONOUS"
}

var ErrPoolRequired = errors.New("pool is required")

// Pool queues work for background execution. *ants.Pool satisfies it.
type Pool interface {
	Submit(task func()) error
}

// Bounded runs tasks synchronously before its deadline and asynchronously after.
// A Bounded is created per batch of work; it is safe for concurrent use.
type Bounded struct {
	pool     Pool
	deadline time.Time
	capacity *semaphore.Weighted // nil means unbounded
	now      func() time.Time
	name     string
	metrics  *metrics.Metrics
	logger   *slog.Logger

	allSync atomic.Bool
}

// Option configures a Bounded executor.
type Option func(*Bounded)

// WithCapacity bounds the number of queued asynchronous tasks.
// Zero means every task after the deadline falls back.
func WithCapacity(n int64) Option {
	return func(b *Bounded) {
		if n < 0 {
			n = 0
		}
		b.capacity = semaphore.NewWeighted(n)
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Bounded) {
		if now != nil {
			b.now = now
		}
	}
}

// WithName labels the executor in logs and metrics.
func WithName(name string) Option {
	return func(b *Bounded) {
		b.name = name
	}
}

// WithMetrics records the path every invocation takes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bounded) {
		b.metrics = m
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bounded) {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
	}
}

// New creates a Bounded executor that runs tasks inline until deadline.
func New(pool Pool, deadline time.Time, opts ...Option) (*Bounded, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}
	b := &Bounded{
		pool:     pool,
		deadline: deadline,
		now:      time.Now,
		name:     "default",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.allSync.Store(true)
	return b, nil
}

// NewWithBudget creates a Bounded executor whose deadline is budget from now.
func NewWithBudget(pool Pool, budget time.Duration, opts ...Option) (*Bounded, error) {
	b, err := New(pool, time.Time{}, opts...)
	if err != nil {
		return nil, err
	}
	b.deadline = b.now().Add(budget)
	return b, nil
}

// Execute runs exactly one of task and fallback.
//
// Before the deadline task runs inline and Synchronous is returned. After the
// deadline task is queued if capacity remains; otherwise fallback runs inline.
// Both of the latter return Asynchronous.
func (b *Bounded) Execute(task func(ExecutionType), fallback func()) ExecutionType {
	if !b.now().After(b.deadline) {
		task(Synchronous)
		b.metrics.ExecutorPath(b.name, metrics.PathSynchronous)
		return Synchronous
	}
	b.allSync.Store(false)

	if b.admit() {
		err := b.pool.Submit(func() {
			defer b.release()
			task(Asynchronous)
		})
		if err == nil {
			b.metrics.ExecutorPath(b.name, metrics.PathAsynchronous)
			return Asynchronous
		}
		b.release()
		b.logger.Warn("background pool rejected task, running fallback",
			"executor", b.name,
			"err", err)
	}

	fallback()
	b.metrics.ExecutorPath(b.name, metrics.PathFallback)
	return Asynchronous
}

// HasExecutedAllSynchronously reports whether every call so far ran inline.
func (b *Bounded) HasExecutedAllSynchronously() bool {
	return b.allSync.Load()
}

func (b *Bounded) admit() bool {
	if b.capacity == nil {
		return true
	}
	return b.capacity.TryAcquire(1)
}

func (b *Bounded) release() {
	if b.capacity != nil {
		b.capacity.Release(1)
	}
}
