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

package health

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/event"
	"github.com/poiesic/repokeeper/metrics"
	"github.com/poiesic/repokeeper/repository"
)

// PostProcessor is the only writer of recorded health check failures.
// Failures live in memory and are attached to repositories on read.
type PostProcessor struct {
	bus     *event.Bus
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.RWMutex
	failures map[core.ID][]core.HealthCheckFailure
	// posting serializes record-and-publish per repository so subscribers
	// see each event's previous failures equal to the prior event's current.
	posting map[core.ID]*sync.Mutex
}

var _ repository.PostProcessor = (*PostProcessor)(nil)

// NewPostProcessor creates a PostProcessor publishing changes on bus.
func NewPostProcessor(bus *event.Bus, m *metrics.Metrics, logger *slog.Logger) (*PostProcessor, error) {
	if bus == nil {
		return nil, ErrBusRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostProcessor{
		bus:      bus,
		metrics:  m,
		logger:   logger,
		failures: make(map[core.ID][]core.HealthCheckFailure),
		posting:  make(map[core.ID]*sync.Mutex),
	}, nil
}

// Register forgets the failures of deleted repositories.
func (p *PostProcessor) Register() error {
	return event.Subscribe(p.bus, event.Repositories, "health-post-processor", func(ctx context.Context, e event.RepositoryEvent) error {
		if e.Kind == event.Delete {
			p.Forget(e.Item.ID)
		}
		return nil
	})
}

// SetCheckResults records failures for repo and returns the enriched view.
//
// A HealthCheckEvent is emitted on the first call for a repository and on
// every later call whose failure ids differ from the recorded ones in content
// or order.
func (p *PostProcessor) SetCheckResults(ctx context.Context, repo core.Repository, failures []core.HealthCheckFailure) core.EnrichedRepository {
	current := slices.Clone(failures)
	if current == nil {
		current = []core.HealthCheckFailure{}
	}

	lock := p.postingLock(repo.ID)
	lock.Lock()
	defer lock.Unlock()

	p.mu.Lock()
	previous, seen := p.failures[repo.ID]
	p.failures[repo.ID] = current
	p.mu.Unlock()

	if !seen || !core.SameFailures(previous, current) {
		if previous == nil {
			previous = []core.HealthCheckFailure{}
		}
		err := event.Post(ctx, p.bus, event.HealthChecks, event.HealthCheckEvent{
			Repository:       repo.Clone(),
			PreviousFailures: slices.Clone(previous),
			CurrentFailures:  slices.Clone(current),
		})
		if err != nil {
			p.logger.Error("failed to post health check event",
				"repository", repo.NamespaceAndName(),
				"err", err)
		}
		if len(current) > 0 {
			p.logger.Warn("repository unhealthy",
				"repository", repo.NamespaceAndName(),
				"failures", core.FailureIDs(current))
		}
	}

	return core.EnrichedRepository{Repository: repo, HealthCheckFailures: slices.Clone(current)}
}

func (p *PostProcessor) postingLock(id core.ID) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.posting[id]
	if !ok {
		lock = &sync.Mutex{}
		p.posting[id] = lock
	}
	return lock
}

// PostProcess attaches the recorded failures, or an empty list if the
// repository has never been checked.
func (p *PostProcessor) PostProcess(repo core.Repository) core.EnrichedRepository {
	p.mu.RLock()
	failures := slices.Clone(p.failures[repo.ID])
	p.mu.RUnlock()
	if failures == nil {
		failures = []core.HealthCheckFailure{}
	}
	return core.EnrichedRepository{Repository: repo, HealthCheckFailures: failures}
}

// Forget drops the recorded failures of a repository.
func (p *PostProcessor) Forget(id core.ID) {
	p.mu.Lock()
	delete(p.failures, id)
	delete(p.posting, id)
	p.mu.Unlock()
	p.metrics.Forget(id.String())
}
