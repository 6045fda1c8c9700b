package index

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// progress reports full reindex progress to a writer, typically os.Stderr.
// A nil *progress is a no-op.
type progress struct {
	writer         io.Writer
	docType        string
	total          int
	current        int
	reportInterval int
	lastReported   int
	startTime      time.Time
	mu             sync.Mutex
}

func newProgress(writer io.Writer, docType string, total, reportInterval int) *progress {
	if writer == nil {
		return nil
	}
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &progress{
		writer:         writer,
		docType:        docType,
		total:          total,
		reportInterval: reportInterval,
		startTime:      time.Now(),
	}
}

func (p *progress) increment() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = min(p.current+1, p.total)
	if p.current-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.current
	}
}

func (p *progress) finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = p.total
	p.report()
	fmt.Fprintln(p.writer)
}

// report must be called with the lock held.
func (p *progress) report() {
	rate := float64(p.current) / time.Since(p.startTime).Seconds()
	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100.0
	}
	fmt.Fprintf(p.writer, "\rReindexing %s: %d/%d (%.1f%%) - %.1f documents/s",
		p.docType, p.current, p.total, percentage, rate)
}
