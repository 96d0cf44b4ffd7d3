package mention

import (
	"sort"
	"strings"
)

// MaxVisible is the number of candidates a dropdown shows. Layout code relies
// on this value, so it is part of the resolver's contract even though Resolve
// itself never truncates.
const MaxVisible = 8

// Candidate is a catalog entry that matched the current mention filter.
type Candidate struct {
	Ref CollectionRef
	// DisplayRef is what gets spliced into the draft when the candidate is accepted.
	DisplayRef string
	// Annotation is "(yours)" or "(owner)" when the name collides with another
	// collection in the full catalog, empty otherwise.
	Annotation string
}

// Label is the dropdown text for the candidate.
func (c Candidate) Label() string {
	if c.Annotation == "" {
		return c.Ref.Name
	}
	return c.Ref.Name + " " + c.Annotation
}

// Resolve returns every catalog entry whose name or owner contains filter
// (case-insensitive), own collections first, then by name. The sort is stable
// so equal keys keep catalog order and repeated calls return the same list.
func Resolve(catalog Catalog, filter string) []Candidate {
	needle := strings.ToLower(filter)
	counts := catalog.nameCounts()

	ret := make([]Candidate, 0, len(catalog))
	for _, ref := range catalog {
		if needle != "" &&
			!strings.Contains(strings.ToLower(ref.Name), needle) &&
			!strings.Contains(strings.ToLower(ref.OwnerUsername), needle) {
			continue
		}
		ret = append(ret, Candidate{
			Ref:        ref,
			DisplayRef: ref.DisplayRef(),
			Annotation: annotation(ref, counts),
		})
	}

	sort.SliceStable(ret, func(i, j int) bool {
		if ret[i].Ref.IsOwn != ret[j].Ref.IsOwn {
			return ret[i].Ref.IsOwn
		}
		return ret[i].Ref.Name < ret[j].Ref.Name
	})
	return ret
}

// Visible caps a resolved list to what a dropdown displays.
func Visible(candidates []Candidate) []Candidate {
	if len(candidates) > MaxVisible {
		return candidates[:MaxVisible]
	}
	return candidates
}

func annotation(ref CollectionRef, counts map[string]int) string {
	if counts[ref.Name] < 2 {
		return ""
	}
	if ref.IsOwn {
		return "(yours)"
	}
	return "(" + ref.OwnerUsername + ")"
}
