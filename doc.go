// Package resolve enriches directory object identifiers with display names.
//
// It scans arbitrary nested data (audit-log records, activity entries, table
// rows) for embedded identifiers - canonical GUIDs and GUIDs embedded inside
// partner-tenant UPN-shaped login names - resolves them to human-readable
// names via batched, tenant-scoped lookups against an injected backend, and
// substitutes the resolved names back into strings. Lookups respect backend
// rate limits with bounded exponential backoff, tolerate per-identifier
// failures, and are deduplicated so repeated scans of overlapping data never
// issue duplicate requests.
//
// # Basic Usage
//
//	engine, err := resolve.New(
//	    resolve.WithLookup(directoryLookup),
//	    resolve.WithTenant("contoso.onmicrosoft.com"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	// Fire and forget: scan a record and schedule resolution.
//	engine.ResolveGUIDs(auditRecord)
//
//	// On every render, substitute whatever has resolved so far.
//	text, ok := engine.ReplaceGUIDsAndUPNs(auditRecord.Summary)
//
//	// Or read the raw mappings.
//	names := engine.GUIDMapping()
//	busy := engine.IsLoading()
//
// # Lookup Backends
//
// The lookup boundary is the Lookup interface (or a plain LookupFunc). The
// lookup package provides implementations:
//   - lookup.Static - map-backed, for tests and simple deployments
//   - lookup/postgres - reads a directory table via sqlx
//   - lookup/cached - redis read-through decorator over any Lookup
//
// # Failure Model
//
// Resolution is cosmetic enrichment of already-valid data, so the engine
// fails soft: no resolution failure is ever returned to the caller. An
// identifier the backend cannot resolve stays in its raw form, both in the
// mappings (absent) and in substituted strings (verbatim). Rate-limited and
// transient lookup failures are retried with exponential backoff up to a
// bounded attempt budget, then the whole batch is marked failed and never
// retried again for the engine's lifetime.
package resolve
