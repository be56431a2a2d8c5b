package store

import (
	"sort"

	"github.com/rcliao/dsam/internal/model"
)

// AssociationIndex maps an association target key to the IDs of the
// memories holding an association with that target. Empty buckets are
// never kept.
type AssociationIndex struct {
	buckets map[string]map[string]struct{}
}

// NewAssociationIndex returns an empty index.
func NewAssociationIndex() *AssociationIndex {
	return &AssociationIndex{buckets: make(map[string]map[string]struct{})}
}

// Add indexes every association of m.
func (x *AssociationIndex) Add(m model.Memory) {
	for _, a := range m.Associations {
		b, ok := x.buckets[a.TargetID]
		if !ok {
			b = make(map[string]struct{})
			x.buckets[a.TargetID] = b
		}
		b[m.ID] = struct{}{}
	}
}

// Remove purges memoryID from every bucket, deleting buckets left empty.
func (x *AssociationIndex) Remove(memoryID string) {
	for target, b := range x.buckets {
		if _, ok := b[memoryID]; !ok {
			continue
		}
		delete(b, memoryID)
		if len(b) == 0 {
			delete(x.buckets, target)
		}
	}
}

// Lookup returns the sorted memory IDs indexed under target.
func (x *AssociationIndex) Lookup(target string) []string {
	b := x.buckets[target]
	ids := make([]string, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Contains reports whether memoryID is indexed under target.
func (x *AssociationIndex) Contains(target, memoryID string) bool {
	_, ok := x.buckets[target][memoryID]
	return ok
}

// Targets returns every indexed target key, sorted.
func (x *AssociationIndex) Targets() []string {
	out := make([]string, 0, len(x.buckets))
	for t := range x.buckets {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of non-empty buckets.
func (x *AssociationIndex) Len() int {
	return len(x.buckets)
}

// Clear drops every bucket.
func (x *AssociationIndex) Clear() {
	x.buckets = make(map[string]map[string]struct{})
}
