package server

import (
	"sync"
	"time"

	"github.com/IDEA-FinAI/RagLLaVA/internal/pipeline"
)

// Run states reported by /progress and /readyz.
const (
	StateStarting = "starting"
	StateRunning  = "running"
	StateFinished = "finished"
	StateFailed   = "failed"
)

// Snapshot is the JSON body of /progress.
type Snapshot struct {
	State     string           `json:"state"`
	Total     int              `json:"total"`
	Done      int              `json:"done"`
	StartedAt time.Time        `json:"started_at"`
	Elapsed   string           `json:"elapsed"`
	Summary   pipeline.Summary `json:"summary"`
	Error     string           `json:"error,omitempty"`
}

// Progress holds the latest run summary. It is written by the pipeline and
// read by HTTP handlers.
type Progress struct {
	mu      sync.RWMutex
	total   int
	state   string
	started time.Time
	summary pipeline.Summary
	err     string
	now     func() time.Time
}

// NewProgress creates a tracker for a run over total examples.
func NewProgress(total int) *Progress {
	return &Progress{total: total, state: StateStarting, now: time.Now}
}

// Start marks the run as processing.
func (p *Progress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateRunning
	p.started = p.now()
}

// Update stores the latest summary. It matches pipeline.WithProgress.
func (p *Progress) Update(s pipeline.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summary = s
}

// Finish records the final state; a non-nil err marks the run failed.
func (p *Progress) Finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateFinished
	if err != nil {
		p.state = StateFailed
		p.err = err.Error()
	}
}

// Snapshot returns a copy of the current state.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Snapshot{
		State:     p.state,
		Total:     p.total,
		Done:      p.summary.Processed + p.summary.Failed,
		StartedAt: p.started,
		Summary:   p.summary,
		Error:     p.err,
	}
	if !p.started.IsZero() {
		s.Elapsed = p.now().Sub(p.started).Round(time.Second).String()
	}
	return s
}
