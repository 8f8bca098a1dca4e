package resolve

import "context"

// Resolution contains resolved information about a directory object.
type Resolution struct {
	// ID is the object's GUID in canonical hyphenated form.
	ID string
	// DisplayName is the object's human-readable name.
	DisplayName string
	// UPN is the object's user principal name (optional).
	UPN string
}

// Lookup resolves directory object IDs to display names, batched per tenant.
// Implementations should be safe for concurrent use.
//
// The engine never passes more than the configured maximum batch size in one
// call, and never mixes tenants within a call. A rate-limited backend should
// return an error matching ErrRateLimited (for example *ThrottleError) so
// the engine backs off and resubmits; any other error is treated as
// transient and retried under the same bounded policy.
//
// IDs missing from a successful response are treated as not found (or not
// visible to the caller) and marked terminally failed; they do not fail the
// rest of the batch.
type Lookup interface {
	Lookup(ctx context.Context, tenant string, ids []string) ([]Resolution, error)
}

// LookupFunc adapts a plain function to the Lookup interface.
type LookupFunc func(ctx context.Context, tenant string, ids []string) ([]Resolution, error)

// Lookup calls f.
func (f LookupFunc) Lookup(ctx context.Context, tenant string, ids []string) ([]Resolution, error) {
	return f(ctx, tenant, ids)
}
