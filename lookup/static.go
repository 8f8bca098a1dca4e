// Package lookup provides Lookup implementations for the resolve engine.
package lookup

import (
	"context"

	"github.com/rbaliyan/resolve"
)

// Static is a map-backed Lookup for testing and simple deployments. It
// serves resolutions from an in-memory map keyed by tenant. Safe for
// concurrent use (read-only after creation).
type Static struct {
	objects map[string]map[string]resolve.Resolution
}

// NewStatic creates a Static lookup from per-tenant resolutions. The input
// is copied to prevent external mutation.
func NewStatic(objects map[string][]resolve.Resolution) *Static {
	m := make(map[string]map[string]resolve.Resolution, len(objects))
	for tenant, list := range objects {
		byID := make(map[string]resolve.Resolution, len(list))
		for _, r := range list {
			byID[r.ID] = r
		}
		m[tenant] = byID
	}
	return &Static{objects: m}
}

// Lookup returns the known resolutions among ids for the given tenant.
// Unknown IDs are simply omitted from the result.
func (s *Static) Lookup(_ context.Context, tenant string, ids []string) ([]resolve.Resolution, error) {
	byID := s.objects[tenant]
	if byID == nil {
		return nil, nil
	}
	results := make([]resolve.Resolution, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			results = append(results, r)
		}
	}
	return results, nil
}
