package resolve

import (
	"context"
	"time"

	"github.com/rbaliyan/resolve/retry"
	"go.opentelemetry.io/otel/attribute"
)

// runTenant drains one tenant's pending queue, one batch at a time. Batches
// within a tenant run sequentially so a throttled tenant is not hammered
// harder; different tenants drain concurrently, bounded by the engine
// semaphore.
func (e *Engine) runTenant(tenant string) {
	defer e.wg.Done()

	for {
		e.mu.Lock()
		q := e.queues[tenant]
		if e.closed || len(q) == 0 {
			e.workers[tenant] = false
			delete(e.queues, tenant)
			e.mu.Unlock()
			return
		}

		n := e.opts.maxBatchSize
		if n > len(q) {
			n = len(q)
		}
		ids := make([]string, n)
		copy(ids, q[:n])
		if n == len(q) {
			delete(e.queues, tenant)
		} else {
			e.queues[tenant] = q[n:]
		}
		e.inflight++
		e.mu.Unlock()

		e.resolveBatch(tenant, ids)

		e.mu.Lock()
		e.inflight--
		e.mu.Unlock()
	}
}

// resolveBatch issues one batched lookup with bounded retry and applies the
// outcome to the cache in a single atomic update.
func (e *Engine) resolveBatch(tenant string, ids []string) {
	ctx, end := e.otel.startSpan(e.baseCtx, "resolve.batch",
		attribute.String("tenant", tenant),
		attribute.Int("batch_size", len(ids)),
	)
	e.otel.recordBatchStart(ctx)
	start := time.Now()

	var results []Resolution
	err := retry.Do(ctx, e.opts.retry, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			e.noteRetry(ctx, tenant, ids, attempt)
		}

		// The semaphore is held only for the call itself, not across
		// backoff waits, so a throttled tenant does not starve others.
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		var lerr error
		results, lerr = e.opts.lookup.Lookup(ctx, tenant, ids)
		e.sem.Release(1)

		if lerr != nil && IsRateLimited(lerr) {
			e.logger.Warn("lookup rate limited, backing off",
				"tenant", tenant, "batch_size", len(ids), "attempt", attempt+1)
		}
		return lerr
	})

	resolved, failed, applied := e.applyBatch(tenant, ids, results, err)
	e.otel.recordBatchEnd(ctx, tenant, len(ids), time.Since(start), resolved, failed, err)
	end(err)

	switch {
	case !applied:
		e.logger.Debug("discarding batch result after engine disposal", "tenant", tenant)
	case err != nil:
		e.logger.Error("batch lookup failed, identifiers marked failed",
			"tenant", tenant, "batch_size", len(ids), "error", err)
	default:
		e.logger.Debug("batch resolved",
			"tenant", tenant, "resolved", resolved, "failed", failed)
	}
}

// noteRetry bumps per-identifier attempt counters and the engine retry
// counter before a resubmission.
func (e *Engine) noteRetry(ctx context.Context, tenant string, ids []string, attempt int) {
	e.otel.recordRetry(ctx, tenant)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.retries++
	for _, id := range ids {
		if ent := e.entries[candidate{id: id, tenant: tenant}]; ent != nil && ent.state == statePending {
			ent.attempts = attempt + 1
		}
	}
}

// applyBatch writes a batch outcome into the cache under one mutex hold, so
// readers never observe a half-merged batch. It is a no-op after disposal.
//
// On success every ID present in the response with a display name becomes
// Resolved; IDs the backend omitted (not found or access denied) become
// Failed without affecting the rest of the batch. On an exhausted retry
// budget the whole batch becomes Failed.
func (e *Engine) applyBatch(tenant string, ids []string, results []Resolution, lookupErr error) (resolved, failed int, applied bool) {
	byID := make(map[string]Resolution, len(results))
	if lookupErr == nil {
		for _, r := range results {
			id, ok := normalizeID(r.ID)
			if !ok {
				continue
			}
			byID[id] = r
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, 0, false
	}

	for _, id := range ids {
		ent := e.entries[candidate{id: id, tenant: tenant}]
		if ent == nil || ent.state != statePending {
			continue
		}
		if lookupErr != nil {
			ent.state = stateFailed
			failed++
			continue
		}
		if r, ok := byID[id]; ok && r.DisplayName != "" {
			ent.state = stateResolved
			ent.displayName = r.DisplayName
			ent.upn = r.UPN
			resolved++
		} else {
			ent.state = stateFailed
			failed++
		}
	}
	e.batches++
	return resolved, failed, true
}

// normalizeID brings a canonical or 32-hex response ID into cache key form.
func normalizeID(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	return normalizeHexBlob(id)
}
