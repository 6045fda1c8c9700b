package repository

import (
	"log/slog"
	"time"

	"github.com/poiesic/repokeeper/core"
)

// Option configures a Manager.
type Option func(*Manager) error

// WithPostProcessor sets the read-path enrichment.
// Default attaches an empty failure list.
func WithPostProcessor(p PostProcessor) Option {
	return func(m *Manager) error {
		if p != nil {
			m.post = p
		}
		return nil
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) error {
		if now != nil {
			m.now = now
		}
		return nil
	}
}

// WithIDGenerator replaces the random UUID generator.
func WithIDGenerator(gen func() core.ID) Option {
	return func(m *Manager) error {
		if gen != nil {
			m.newID = gen
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// ListOption configures GetAll.
type ListOption func(*listOptions)

type listOptions struct {
	filter  func(core.Repository) bool
	compare func(a, b core.Repository) int
	offset  int
	limit   int // 0 means no limit
}

// WithFilter keeps only repositories accepted by filter.
func WithFilter(filter func(core.Repository) bool) ListOption {
	return func(o *listOptions) {
		o.filter = filter
	}
}

// WithComparator orders the results. Default is by namespace, then name.
func WithComparator(compare func(a, b core.Repository) int) ListOption {
	return func(o *listOptions) {
		if compare != nil {
			o.compare = compare
		}
	}
}

// WithPaging returns at most limit results starting at offset.
func WithPaging(offset, limit int) ListOption {
	return func(o *listOptions) {
		if offset < 0 {
			offset = 0
		}
		if limit < 0 {
			limit = 0
		}
		o.offset = offset
		o.limit = limit
	}
}

// InNamespace keeps only repositories of namespace.
func InNamespace(namespace string) ListOption {
	return WithFilter(func(r core.Repository) bool {
		return r.Namespace == namespace
	})
}
