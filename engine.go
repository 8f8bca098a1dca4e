package resolve

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// resolutionState is the lifecycle state of one identifier.
type resolutionState int

const (
	statePending resolutionState = iota
	stateResolved
	stateFailed
)

// entry is the cached resolution state for one (id, tenant) pair.
// Resolved and Failed are terminal for the engine's lifetime: the pair is
// never re-queried and never deleted.
type entry struct {
	id          string
	tenant      string
	displayName string
	upn         string
	state       resolutionState
	attempts    int
}

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	// Pending, Resolved, and Failed count identifiers by state.
	Pending  int
	Resolved int
	Failed   int
	// Batches is the number of batch lookups that reached a terminal
	// outcome (success or exhausted retries).
	Batches int64
	// Retries is the number of batch lookup resubmissions.
	Retries int64
}

// Engine resolves directory object identifiers found in arbitrary data to
// display names, via batched tenant-scoped lookups against an injected
// backend.
//
// An Engine owns an append-only resolution cache scoped to its lifetime.
// ResolveGUIDs schedules work and returns immediately; callers observe
// progress through GUIDMapping, UPNMapping, ReplaceGUIDsAndUPNs, and
// IsLoading, all of which are cheap snapshots safe to call on every render
// or refresh. Resolution failures are never surfaced as errors - a failed
// identifier is simply absent from the mappings and its raw form is left
// intact by substitution.
//
// All methods are safe for concurrent use.
type Engine struct {
	opts   *options
	logger *slog.Logger
	otel   *otelInstrumentation

	// baseCtx is canceled by Close, aborting in-flight lookups and
	// backoff waits.
	baseCtx context.Context
	cancel  context.CancelFunc

	// sem bounds lookup calls in flight across all tenants.
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu      sync.Mutex
	entries map[candidate]*entry
	// queues holds pending IDs per tenant that are not yet part of a
	// dispatched batch. A tenant key exists only while it has work.
	queues map[string][]string
	// workers tracks which tenants have an active drain goroutine.
	workers map[string]bool
	// inflight counts batches dispatched but not yet terminal, including
	// those waiting on a backoff timer.
	inflight int
	batches  int64
	retries  int64
	closed   bool
}

// New creates an Engine. A Lookup must be provided via WithLookup or
// WithLookupFunc.
func New(opts ...Option) (*Engine, error) {
	o := newOptions(opts...)
	if o.lookup == nil {
		return nil, ErrLookupRequired
	}

	inst, err := newOtelInstrumentation(o)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		opts:    o,
		logger:  o.logger,
		otel:    inst,
		baseCtx: ctx,
		cancel:  cancel,
		sem:     semaphore.NewWeighted(o.maxConcurrentBatches),
		entries: make(map[candidate]*entry),
		queues:  make(map[string][]string),
		workers: make(map[string]bool),
	}, nil
}

// ResolveGUIDs scans value for directory object identifiers and schedules
// resolution of any that are not already cached or in flight. It never
// mutates value and returns immediately; resolution proceeds asynchronously.
//
// Canonical GUID matches resolve under the engine's default tenant, or under
// tenantOverride if one is given. Partner-UPN matches always resolve under
// the domain embedded in the match.
//
// Identifiers already Resolved, Failed, or Pending are skipped, so repeated
// calls with overlapping data are cheap and never duplicate network requests.
func (e *Engine) ResolveGUIDs(value any, tenantOverride ...string) {
	tenant := e.opts.tenant
	if len(tenantOverride) > 0 && tenantOverride[0] != "" {
		tenant = tenantOverride[0]
	}

	found := extractCandidates(value, tenant)
	if len(found) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	for c := range found {
		if _, tracked := e.entries[c]; tracked {
			continue
		}
		e.entries[c] = &entry{id: c.id, tenant: c.tenant, state: statePending}
		e.queues[c.tenant] = append(e.queues[c.tenant], c.id)
		e.logger.Debug("queued identifier", "id", c.id, "tenant", c.tenant)

		if !e.workers[c.tenant] {
			e.workers[c.tenant] = true
			e.wg.Add(1)
			go e.runTenant(c.tenant)
		}
	}
}

// GUIDMapping returns a snapshot mapping resolved object IDs to display
// names. Pending and failed identifiers are absent.
func (e *Engine) GUIDMapping() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := make(map[string]string)
	for _, ent := range e.entries {
		if ent.state == stateResolved {
			m[ent.id] = ent.displayName
		}
	}
	return m
}

// UPNMapping returns a snapshot mapping resolved object IDs to user
// principal names. IDs resolved without a UPN are absent.
func (e *Engine) UPNMapping() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := make(map[string]string)
	for _, ent := range e.entries {
		if ent.state == stateResolved && ent.upn != "" {
			m[ent.id] = ent.upn
		}
	}
	return m
}

// IsLoading reports whether at least one batch is in flight, waiting on a
// backoff timer, or queued for dispatch.
func (e *Engine) IsLoading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight > 0 || len(e.queues) > 0
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{Batches: e.batches, Retries: e.retries}
	for _, ent := range e.entries {
		switch ent.state {
		case statePending:
			s.Pending++
		case stateResolved:
			s.Resolved++
		case stateFailed:
			s.Failed++
		}
	}
	return s
}

// Close disposes the engine: pending work is dropped, in-flight lookups and
// backoff waits are aborted, and any batch that completes after disposal is
// discarded without touching the cache. Close blocks until all workers have
// exited. Safe to call more than once.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.queues = make(map[string][]string)
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}
