package resolve

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rbaliyan/resolve/retry"
)

// stubLookup is a scriptable Lookup that records every call.
type stubLookup struct {
	mu      sync.Mutex
	calls   int
	perID   map[string]int
	batches [][]string

	// fn, when set, scripts the response. call is 1-based.
	fn func(tenant string, ids []string, call int) ([]Resolution, error)

	// entered, when set, is closed on the first call.
	entered chan struct{}
	// block, when set, is waited on before responding.
	block chan struct{}
}

func newStubLookup() *stubLookup {
	return &stubLookup{perID: make(map[string]int)}
}

func (s *stubLookup) Lookup(ctx context.Context, tenant string, ids []string) ([]Resolution, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	for _, id := range ids {
		s.perID[id]++
	}
	s.batches = append(s.batches, append([]string(nil), ids...))
	entered := s.entered
	s.entered = nil
	block := s.block
	fn := s.fn
	s.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if block != nil {
		<-block
	}
	if fn != nil {
		return fn(tenant, ids, call)
	}

	results := make([]Resolution, len(ids))
	for i, id := range ids {
		results[i] = Resolution{ID: id, DisplayName: "Name " + id}
	}
	return results, nil
}

func (s *stubLookup) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubLookup) idCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perID[id]
}

// fastRetry keeps test backoff waits negligible.
func fastRetry(maxAttempts int) retry.Config {
	return retry.Config{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      0,
	}
}

// waitIdle waits until the engine has no batches in flight or queued.
func waitIdle(t *testing.T, e *Engine) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !e.IsLoading() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("engine did not become idle")
}

func newTestEngine(t *testing.T, stub *stubLookup, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLookup(stub), WithRetryConfig(fastRetry(3))}, opts...)
	e, err := New(opts...)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func TestNew(t *testing.T) {
	t.Run("requires lookup", func(t *testing.T) {
		_, err := New()
		if !errors.Is(err, ErrLookupRequired) {
			t.Errorf("expected ErrLookupRequired, got %v", err)
		}
	})

	t.Run("creates engine with lookup func", func(t *testing.T) {
		e, err := New(WithLookupFunc(func(ctx context.Context, tenant string, ids []string) ([]Resolution, error) {
			return nil, nil
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer e.Close()
		if e.IsLoading() {
			t.Error("new engine must not be loading")
		}
	})
}

func TestResolveGUIDs(t *testing.T) {
	t.Run("resolves canonical GUID under default tenant", func(t *testing.T) {
		stub := newStubLookup()
		e := newTestEngine(t, stub, WithTenant("contoso.onmicrosoft.com"))

		e.ResolveGUIDs(testGUID)
		waitIdle(t, e)

		if got := e.GUIDMapping()[testGUID]; got != "Name "+testGUID {
			t.Errorf("GUIDMapping[%s] = %q", testGUID, got)
		}
		if stub.callCount() != 1 {
			t.Errorf("expected 1 lookup call, got %d", stub.callCount())
		}
	})

	t.Run("never mutates its argument", func(t *testing.T) {
		stub := newStubLookup()
		e := newTestEngine(t, stub)

		value := map[string]any{
			"id":     testGUID,
			"target": partnerUPN,
			"nested": []any{map[string]string{"actor": testGUID}},
		}
		want := map[string]any{
			"id":     testGUID,
			"target": partnerUPN,
			"nested": []any{map[string]string{"actor": testGUID}},
		}

		e.ResolveGUIDs(value)
		waitIdle(t, e)

		if !reflect.DeepEqual(value, want) {
			t.Errorf("input mutated: %v", value)
		}
	})

	t.Run("deduplicates repeated discovery", func(t *testing.T) {
		stub := newStubLookup()
		e := newTestEngine(t, stub)

		e.ResolveGUIDs(testGUID)
		e.ResolveGUIDs(testGUID)
		e.ResolveGUIDs([]string{testGUID, testGUID})
		waitIdle(t, e)

		// Warm cache: no further network calls.
		e.ResolveGUIDs(testGUID)
		waitIdle(t, e)

		if got := stub.idCount(testGUID); got != 1 {
			t.Errorf("expected exactly 1 lookup for %s, got %d", testGUID, got)
		}
	})

	t.Run("failed identifiers are never retried", func(t *testing.T) {
		stub := newStubLookup()
		stub.fn = func(tenant string, ids []string, call int) ([]Resolution, error) {
			return nil, nil // backend omits every id
		}
		e := newTestEngine(t, stub)

		e.ResolveGUIDs(testGUID)
		waitIdle(t, e)

		if s := e.Stats(); s.Failed != 1 {
			t.Fatalf("expected 1 failed identifier, got %+v", s)
		}

		e.ResolveGUIDs(testGUID)
		waitIdle(t, e)
		if stub.callCount() != 1 {
			t.Errorf("failed identifier re-queried: %d calls", stub.callCount())
		}
	})

	t.Run("groups batches by tenant", func(t *testing.T) {
		stub := newStubLookup()
		var mu sync.Mutex
		tenants := make(map[string]bool)
		stub.fn = func(tenant string, ids []string, call int) ([]Resolution, error) {
			mu.Lock()
			tenants[tenant] = true
			mu.Unlock()
			results := make([]Resolution, len(ids))
			for i, id := range ids {
				results[i] = Resolution{ID: id, DisplayName: tenant + "/" + id}
			}
			return results, nil
		}
		e := newTestEngine(t, stub, WithTenant("contoso.onmicrosoft.com"))

		e.ResolveGUIDs([]string{testGUID, partnerUPN})
		waitIdle(t, e)

		if !tenants["contoso.onmicrosoft.com"] || !tenants["partner.onmicrosoft.com"] {
			t.Errorf("expected one batch per tenant, got %v", tenants)
		}
		if stub.callCount() != 2 {
			t.Errorf("expected 2 calls, got %d", stub.callCount())
		}
	})

	t.Run("tenant override applies to canonical matches", func(t *testing.T) {
		stub := newStubLookup()
		var got string
		var mu sync.Mutex
		stub.fn = func(tenant string, ids []string, call int) ([]Resolution, error) {
			mu.Lock()
			got = tenant
			mu.Unlock()
			return []Resolution{{ID: ids[0], DisplayName: "x"}}, nil
		}
		e := newTestEngine(t, stub, WithTenant("default.example.com"))

		e.ResolveGUIDs(testGUID, "override.example.com")
		waitIdle(t, e)

		mu.Lock()
		defer mu.Unlock()
		if got != "override.example.com" {
			t.Errorf("lookup tenant = %q, want override", got)
		}
	})

	t.Run("chunks batches to the configured maximum", func(t *testing.T) {
		stub := newStubLookup()
		e := newTestEngine(t, stub, WithMaxBatchSize(10))

		ids := make([]string, 25)
		for i := range ids {
			ids[i] = testGUIDWithSuffix(i)
		}
		e.ResolveGUIDs(ids)
		waitIdle(t, e)

		stub.mu.Lock()
		defer stub.mu.Unlock()
		if len(stub.batches) != 3 {
			t.Fatalf("expected 3 batches, got %d", len(stub.batches))
		}
		total := 0
		for _, b := range stub.batches {
			if len(b) > 10 {
				t.Errorf("batch of %d exceeds maximum 10", len(b))
			}
			total += len(b)
		}
		if total != 25 {
			t.Errorf("expected 25 ids across batches, got %d", total)
		}
	})

	t.Run("partial response fails only missing ids", func(t *testing.T) {
		other := "f47ac10b-58cc-4372-a567-0e02b2c3d479"
		stub := newStubLookup()
		stub.fn = func(tenant string, ids []string, call int) ([]Resolution, error) {
			return []Resolution{{ID: testGUID, DisplayName: "Alice"}}, nil
		}
		e := newTestEngine(t, stub)

		e.ResolveGUIDs([]string{testGUID, other})
		waitIdle(t, e)

		mapping := e.GUIDMapping()
		if mapping[testGUID] != "Alice" {
			t.Errorf("resolved id missing from mapping: %v", mapping)
		}
		if _, ok := mapping[other]; ok {
			t.Errorf("unresolved id present in mapping: %v", mapping)
		}
		s := e.Stats()
		if s.Resolved != 1 || s.Failed != 1 {
			t.Errorf("stats = %+v, want 1 resolved / 1 failed", s)
		}
	})
}

func TestRateLimiting(t *testing.T) {
	t.Run("recovers when throttling stops", func(t *testing.T) {
		stub := newStubLookup()
		stub.fn = func(tenant string, ids []string, call int) ([]Resolution, error) {
			if call < 3 {
				return nil, &ThrottleError{Status: 429}
			}
			return []Resolution{{ID: testGUID, DisplayName: "Alice"}}, nil
		}
		e := newTestEngine(t, stub) // 3 attempts

		e.ResolveGUIDs(testGUID)
		waitIdle(t, e)

		if got := e.GUIDMapping()[testGUID]; got != "Alice" {
			t.Errorf("expected resolution after retries, mapping = %v", e.GUIDMapping())
		}
		if stub.callCount() != 3 {
			t.Errorf("expected 3 attempts, got %d", stub.callCount())
		}
		if s := e.Stats(); s.Retries != 2 {
			t.Errorf("expected 2 recorded retries, got %+v", s)
		}
	})

	t.Run("fails after the attempt budget and never retries again", func(t *testing.T) {
		stub := newStubLookup()
		stub.fn = func(tenant string, ids []string, call int) ([]Resolution, error) {
			return nil, &ThrottleError{Status: 503}
		}
		e := newTestEngine(t, stub) // 3 attempts

		e.ResolveGUIDs(testGUID)
		waitIdle(t, e)

		if stub.callCount() != 3 {
			t.Errorf("expected exactly 3 attempts, got %d", stub.callCount())
		}
		if s := e.Stats(); s.Failed != 1 || s.Pending != 0 {
			t.Errorf("stats = %+v, want 1 failed", s)
		}

		// Terminal: re-discovery issues no further calls.
		e.ResolveGUIDs(testGUID)
		waitIdle(t, e)
		if stub.callCount() != 3 {
			t.Errorf("failed identifier retried after budget: %d calls", stub.callCount())
		}
	})

	t.Run("transient errors use the same bounded policy", func(t *testing.T) {
		stub := newStubLookup()
		stub.fn = func(tenant string, ids []string, call int) ([]Resolution, error) {
			if call == 1 {
				return nil, errors.New("connection reset")
			}
			return []Resolution{{ID: testGUID, DisplayName: "Alice"}}, nil
		}
		e := newTestEngine(t, stub)

		e.ResolveGUIDs(testGUID)
		waitIdle(t, e)

		if got := e.GUIDMapping()[testGUID]; got != "Alice" {
			t.Errorf("expected recovery from transient error, mapping = %v", e.GUIDMapping())
		}
	})
}

func TestEndToEnd(t *testing.T) {
	stub := newStubLookup()
	stub.fn = func(tenant string, ids []string, call int) ([]Resolution, error) {
		switch tenant {
		case "contoso.onmicrosoft.com":
			return []Resolution{{ID: testGUID, DisplayName: "Alice", UPN: "alice@contoso.com"}}, nil
		case "partner.onmicrosoft.com":
			return []Resolution{{ID: partnerGUID, DisplayName: "Contoso Admin"}}, nil
		default:
			return nil, nil
		}
	}
	e := newTestEngine(t, stub, WithTenant("contoso.onmicrosoft.com"))

	input := map[string]string{
		"id":     testGUID,
		"target": partnerUPN,
	}
	e.ResolveGUIDs(input)
	waitIdle(t, e)

	if got := e.GUIDMapping()[testGUID]; got != "Alice" {
		t.Errorf("GUIDMapping[%s] = %q, want Alice", testGUID, got)
	}
	if got := e.UPNMapping()[testGUID]; got != "alice@contoso.com" {
		t.Errorf("UPNMapping[%s] = %q", testGUID, got)
	}

	result, ok := e.ReplaceGUIDsAndUPNs(input["target"])
	if !ok {
		t.Fatal("expected hasResolved=true")
	}
	if !strings.Contains(result, "Contoso Admin") {
		t.Errorf("substituted string = %q, want it to contain Contoso Admin", result)
	}
	if strings.Contains(result, partnerBlob) {
		t.Errorf("raw identifier left in substituted string: %q", result)
	}
}

func TestDisposal(t *testing.T) {
	t.Run("late batch completion is a no-op", func(t *testing.T) {
		stub := newStubLookup()
		stub.entered = make(chan struct{})
		stub.block = make(chan struct{})
		e, err := New(WithLookup(stub), WithRetryConfig(fastRetry(3)))
		if err != nil {
			t.Fatalf("failed to create engine: %v", err)
		}

		e.ResolveGUIDs(testGUID)
		<-stub.entered

		closed := make(chan struct{})
		go func() {
			e.Close()
			close(closed)
		}()

		// Let the batch complete successfully after disposal began.
		time.Sleep(10 * time.Millisecond)
		close(stub.block)
		<-closed

		if m := e.GUIDMapping(); len(m) != 0 {
			t.Errorf("cache mutated after disposal: %v", m)
		}
		if s := e.Stats(); s.Resolved != 0 || s.Batches != 0 {
			t.Errorf("state changed after disposal: %+v", s)
		}
	})

	t.Run("resolve after close is a no-op", func(t *testing.T) {
		stub := newStubLookup()
		e, err := New(WithLookup(stub))
		if err != nil {
			t.Fatalf("failed to create engine: %v", err)
		}
		e.Close()

		e.ResolveGUIDs(testGUID)
		if stub.callCount() != 0 {
			t.Errorf("lookup issued after close: %d calls", stub.callCount())
		}
		if e.IsLoading() {
			t.Error("closed engine reports loading")
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		stub := newStubLookup()
		e, err := New(WithLookup(stub))
		if err != nil {
			t.Fatalf("failed to create engine: %v", err)
		}
		e.Close()
		e.Close()
	})
}

// testGUIDWithSuffix derives distinct valid GUIDs for bulk tests.
func testGUIDWithSuffix(i int) string {
	const hexdigits = "0123456789abcdef"
	return "550e8400-e29b-41d4-a716-4466554401" + string(hexdigits[(i/16)%16]) + string(hexdigits[i%16])
}
