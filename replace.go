package resolve

import (
	"sort"
	"strings"
)

// span is one identifier occurrence in a string, with the candidate it
// resolves under. The span covers the full matched token: for partner UPNs
// that includes the prefix and domain, not just the hex blob.
type span struct {
	start, end int
	c          candidate
}

// findSpans locates every identifier occurrence in s: partner-UPN matches
// first, then embedded canonical GUIDs that do not overlap a UPN match.
// Spans are returned in order of appearance.
func findSpans(s, tenant string) []span {
	var spans []span

	for _, m := range partnerUPNRe.FindAllStringSubmatchIndex(s, -1) {
		id, ok := normalizeHexBlob(s[m[2]:m[3]])
		if !ok {
			continue
		}
		spans = append(spans, span{
			start: m[0],
			end:   m[1],
			c:     candidate{id: id, tenant: strings.ToLower(s[m[4]:m[5]])},
		})
	}

	for _, m := range guidSpanRe.FindAllStringIndex(s, -1) {
		if overlapsAny(spans, m[0], m[1]) {
			continue
		}
		spans = append(spans, span{
			start: m[0],
			end:   m[1],
			c:     candidate{id: strings.ToLower(s[m[0]:m[1]]), tenant: tenant},
		})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	return spans
}

func overlapsAny(spans []span, start, end int) bool {
	for _, sp := range spans {
		if start < sp.end && sp.start < end {
			return true
		}
	}
	return false
}

// ReplaceGUIDsAndUPNs rewrites s, substituting every identifier occurrence
// whose (id, tenant) pair has a resolved cache entry with its display name.
// Occurrences that are unresolved, pending, or failed are left verbatim -
// the raw identifier is never destroyed or replaced with a placeholder.
//
// All matches are located up front and substituted in one left-to-right
// pass, so adjacent or overlapping matches cannot be corrupted by double
// substitution. The result is a pure function of s and the current cache
// snapshot, making the call safe to repeat on every render as resolutions
// arrive.
//
// The second return value reports whether at least one occurrence was
// substituted.
func (e *Engine) ReplaceGUIDsAndUPNs(s string) (string, bool) {
	if s == "" {
		return s, false
	}
	spans := findSpans(s, e.opts.tenant)
	if len(spans) == 0 {
		return s, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var b strings.Builder
	last := 0
	replaced := false
	for _, sp := range spans {
		ent := e.entries[sp.c]
		if ent == nil || ent.state != stateResolved {
			continue
		}
		b.WriteString(s[last:sp.start])
		b.WriteString(ent.displayName)
		last = sp.end
		replaced = true
	}
	if !replaced {
		return s, false
	}
	b.WriteString(s[last:])
	return b.String(), true
}
