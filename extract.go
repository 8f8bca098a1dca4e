package resolve

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// guidPattern matches the canonical 8-4-4-4-12 hyphenated form used by the
// directory service.
const guidPattern = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`

var (
	// guidExactRe matches strings that are exactly one canonical GUID.
	guidExactRe = regexp.MustCompile(`^` + guidPattern + `$`)

	// guidSpanRe finds canonical GUIDs embedded in larger strings.
	guidSpanRe = regexp.MustCompile(guidPattern)

	// partnerUPNRe matches UPN-shaped strings whose local part ends with a
	// 32-hex object ID, as produced for partner-tenant objects. Group 1 is
	// the hex blob, group 2 the tenant domain. The greedy prefix class keeps
	// the blob anchored to the end of the local part.
	partnerUPNRe = regexp.MustCompile(`[A-Za-z0-9._%+'-]*?([0-9a-fA-F]{32})@([A-Za-z0-9][A-Za-z0-9.-]*\.[A-Za-z]{2,})`)
)

// candidate pairs a directory object ID with the tenant context it must be
// resolved against. IDs are normalized to lowercase canonical form and
// tenants to lowercase, so the pair is usable as a map key.
type candidate struct {
	id     string
	tenant string
}

// IsGUID reports whether s is exactly one canonical hyphenated GUID.
func IsGUID(s string) bool {
	return guidExactRe.MatchString(s)
}

// ExtractPartnerObjectIDs returns the object IDs embedded in partner-UPN
// shaped substrings of s, normalized to canonical hyphenated form. Returns
// nil if s contains none.
func ExtractPartnerObjectIDs(s string) []string {
	var ids []string
	for _, m := range partnerUPNRe.FindAllStringSubmatch(s, -1) {
		if id, ok := normalizeHexBlob(m[1]); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// normalizeHexBlob converts a 32-hex-digit blob (or an already hyphenated
// GUID) to lowercase canonical hyphenated form.
func normalizeHexBlob(blob string) (string, bool) {
	u, err := uuid.Parse(blob)
	if err != nil {
		return "", false
	}
	return u.String(), true
}

// scanString applies both extraction rules to a single string leaf.
// Rule 1: the entire string is a canonical GUID, resolved under the default
// tenant. Rule 2: every embedded partner-UPN match, resolved under the
// domain it names.
func scanString(s, tenant string, found map[candidate]struct{}) {
	if guidExactRe.MatchString(s) {
		found[candidate{id: strings.ToLower(s), tenant: tenant}] = struct{}{}
		return
	}
	for _, m := range partnerUPNRe.FindAllStringSubmatch(s, -1) {
		if id, ok := normalizeHexBlob(m[1]); ok {
			found[candidate{id: id, tenant: strings.ToLower(m[2])}] = struct{}{}
		}
	}
}

// extractCandidates walks an arbitrary value and collects identifier
// candidates from its string leaves. The walk uses an explicit worklist with
// a visited set keyed on reference identity, so cyclic or deeply nested
// inputs neither recurse unboundedly nor loop. The input is never mutated.
//
// Maps, slices, arrays, pointers, interfaces, and exported struct fields are
// traversed; map keys are scanned as well as values. Functions, channels,
// and other non-plain kinds are skipped.
func extractCandidates(value any, tenant string) map[candidate]struct{} {
	found := make(map[candidate]struct{})
	visited := make(map[uintptr]struct{})
	work := []reflect.Value{reflect.ValueOf(value)}

	for len(work) > 0 {
		v := work[len(work)-1]
		work = work[:len(work)-1]
		if !v.IsValid() {
			continue
		}

		switch v.Kind() {
		case reflect.String:
			scanString(v.String(), tenant, found)

		case reflect.Interface:
			if !v.IsNil() {
				work = append(work, v.Elem())
			}

		case reflect.Pointer:
			if v.IsNil() {
				continue
			}
			p := v.Pointer()
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = struct{}{}
			work = append(work, v.Elem())

		case reflect.Slice:
			if v.IsNil() {
				continue
			}
			p := v.Pointer()
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = struct{}{}
			for i := 0; i < v.Len(); i++ {
				work = append(work, v.Index(i))
			}

		case reflect.Array:
			for i := 0; i < v.Len(); i++ {
				work = append(work, v.Index(i))
			}

		case reflect.Map:
			if v.IsNil() {
				continue
			}
			p := v.Pointer()
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = struct{}{}
			iter := v.MapRange()
			for iter.Next() {
				work = append(work, iter.Key(), iter.Value())
			}

		case reflect.Struct:
			t := v.Type()
			for i := 0; i < v.NumField(); i++ {
				if t.Field(i).PkgPath != "" {
					continue // unexported
				}
				work = append(work, v.Field(i))
			}
		}
	}

	return found
}
