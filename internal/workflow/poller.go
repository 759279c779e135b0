package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PollerConfig describes how to watch one job until it settles.
type PollerConfig[S any] struct {
	// Fetch retrieves the current snapshot for a job id.
	Fetch func(ctx context.Context, id string) (S, error)

	// IsTerminal reports whether a snapshot represents a settled job.
	IsTerminal func(S) bool

	// Interval between polls. Defaults to 2s when zero.
	Interval time.Duration

	// OnStatus is invoked for every snapshot, terminal included.
	OnStatus func(S)

	// OnDone is invoked exactly once with the terminal snapshot.
	OnDone func(S)

	Logger *zap.Logger
}

// Poller watches async jobs by periodically fetching their status.
// One Poller can track many jobs, but only one activation per job id
// at a time.
type Poller[S any] struct {
	cfg PollerConfig[S]

	mu     sync.Mutex
	active map[string]*activation[S]
}

type activation[S any] struct {
	generation uint64
	cancel     context.CancelFunc

	mu       sync.Mutex
	latest   S
	hasValue bool
	done     bool
}

// NewPoller returns a poller for the given config. Fetch and
// IsTerminal are required.
func NewPoller[S any](cfg PollerConfig[S]) (*Poller[S], error) {
	if cfg.Fetch == nil {
		return nil, fmt.Errorf("poller: Fetch is required")
	}
	if cfg.IsTerminal == nil {
		return nil, fmt.Errorf("poller: IsTerminal is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Poller[S]{
		cfg:    cfg,
		active: make(map[string]*activation[S]),
	}, nil
}

var generationSeq uint64
var generationMu sync.Mutex

func nextGeneration() uint64 {
	generationMu.Lock()
	defer generationMu.Unlock()
	generationSeq++
	return generationSeq
}

// Start begins polling the given job id. It fetches immediately, then
// again every Interval until the snapshot is terminal, the context is
// cancelled, or Stop is called. Starting an id that is already being
// polled returns an error.
func (p *Poller[S]) Start(ctx context.Context, id string) error {
	p.mu.Lock()
	if _, ok := p.active[id]; ok {
		p.mu.Unlock()
		return fmt.Errorf("poller: job %s is already being polled", id)
	}
	pollCtx, cancel := context.WithCancel(ctx)
	act := &activation[S]{generation: nextGeneration(), cancel: cancel}
	p.active[id] = act
	p.mu.Unlock()

	go p.run(pollCtx, id, act)
	return nil
}

func (p *Poller[S]) run(ctx context.Context, id string, act *activation[S]) {
	defer func() {
		p.mu.Lock()
		if cur, ok := p.active[id]; ok && cur.generation == act.generation {
			delete(p.active, id)
		}
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		snap, err := p.cfg.Fetch(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Transient fetch failures keep the last known snapshot
			// and try again on the next tick.
			p.cfg.Logger.Warn("poll fetch failed",
				zap.String("jobId", id), zap.Error(err))
		} else if p.deliver(ctx, id, act, snap) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// deliver records a snapshot and fires callbacks. Returns true when
// the snapshot is terminal. Results arriving after cancellation or
// after a newer activation took over are discarded.
func (p *Poller[S]) deliver(ctx context.Context, id string, act *activation[S], snap S) bool {
	p.mu.Lock()
	cur, ok := p.active[id]
	stale := !ok || cur.generation != act.generation
	p.mu.Unlock()
	if stale || ctx.Err() != nil {
		return true
	}

	act.mu.Lock()
	if act.done {
		act.mu.Unlock()
		return true
	}
	act.latest = snap
	act.hasValue = true
	terminal := p.cfg.IsTerminal(snap)
	if terminal {
		act.done = true
	}
	act.mu.Unlock()

	if p.cfg.OnStatus != nil {
		p.cfg.OnStatus(snap)
	}
	if terminal && p.cfg.OnDone != nil {
		p.cfg.OnDone(snap)
	}
	return terminal
}

// Latest returns the most recent snapshot seen for a job id, if any.
func (p *Poller[S]) Latest(id string) (S, bool) {
	var zero S
	p.mu.Lock()
	act, ok := p.active[id]
	p.mu.Unlock()
	if !ok {
		return zero, false
	}
	act.mu.Lock()
	defer act.mu.Unlock()
	if !act.hasValue {
		return zero, false
	}
	return act.latest, true
}

// Stop cancels the activation for a job id. Snapshots fetched after
// Stop returns are never delivered. Stopping an id that is not being
// polled is a no-op.
func (p *Poller[S]) Stop(id string) {
	p.mu.Lock()
	act, ok := p.active[id]
	if ok {
		delete(p.active, id)
	}
	p.mu.Unlock()
	if ok {
		act.cancel()
		act.mu.Lock()
		act.done = true
		act.mu.Unlock()
	}
}

// StopAll cancels every running activation.
func (p *Poller[S]) StopAll() {
	p.mu.Lock()
	acts := p.active
	p.active = make(map[string]*activation[S])
	p.mu.Unlock()
	for _, act := range acts {
		act.cancel()
		act.mu.Lock()
		act.done = true
		act.mu.Unlock()
	}
}
