package model

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Contains is the relationship type from a container to a file inside it.
const Contains = "Contains"

// Relationship is a directed, typed edge between two Software UUIDs.
type Relationship struct {
	XUUID        string `json:"xUUID"`
	YUUID        string `json:"yUUID"`
	Relationship string `json:"relationship"`
}

// SBOM is the graph store: Software entities keyed by content identity plus
// the set of relationships between them.
//
// All methods are safe for concurrent use; AddOrMerge holds the lock for the
// whole lookup, merge and relationship rewrite.
type SBOM struct {
	Software      []*Software     `json:"software"`
	Relationships []*Relationship `json:"relationships"`

	mu       sync.Mutex
	bySHA256 map[string]*Software
	byUUID   map[string]*Software
	rels     map[Relationship]bool
}

// MergeResult describes what AddOrMerge did with a candidate.
type MergeResult struct {
	Software    *Software // the entity now holding the candidate's data
	Merged      bool      // true if the candidate was folded into an existing entity
	RetiredUUID string    // candidate UUID that was retired, when Merged
	Collision   bool      // hashes or size disagreed with the existing entity
}

// New returns an empty SBOM.
func New() *SBOM {
	b := &SBOM{}
	b.Reindex()
	return b
}

// Reindex rebuilds the lookup tables from the exported slices. Call it after
// decoding an SBOM from JSON. Duplicate relationships are dropped.
func (b *SBOM) Reindex() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reindexLocked()
}

func (b *SBOM) reindexLocked() {
	b.bySHA256 = make(map[string]*Software, len(b.Software))
	b.byUUID = make(map[string]*Software, len(b.Software))
	for _, sw := range b.Software {
		if sw.SHA256 != "" {
			if _, ok := b.bySHA256[sw.SHA256]; !ok {
				b.bySHA256[sw.SHA256] = sw
			}
		}
		b.byUUID[sw.UUID] = sw
	}
	b.dedupeRelationshipsLocked()
}

func (b *SBOM) dedupeRelationshipsLocked() {
	b.rels = make(map[Relationship]bool, len(b.Relationships))
	kept := b.Relationships[:0]
	for _, r := range b.Relationships {
		if b.rels[*r] {
			continue
		}
		b.rels[*r] = true
		kept = append(kept, r)
	}
	for i := len(kept); i < len(b.Relationships); i++ {
		b.Relationships[i] = nil
	}
	b.Relationships = kept
}

// FindSoftware returns the entity with the given sha256, or nil.
func (b *SBOM) FindSoftware(sha256 string) *Software {
	if sha256 == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bySHA256[sha256]
}

// FindByUUID returns the entity with the given UUID, or nil.
func (b *SBOM) FindByUUID(id string) *Software {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byUUID[id]
}

// AddSoftware inserts sw without any dedup check.
func (b *SBOM) AddSoftware(sw *Software) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addSoftwareLocked(sw)
}

func (b *SBOM) addSoftwareLocked(sw *Software) {
	if sw.UUID == "" {
		sw.UUID = uuid.NewString()
	}
	if sw.SHA256 != "" {
		b.bySHA256[sw.SHA256] = sw
	}
	b.byUUID[sw.UUID] = sw
	b.Software = append(b.Software, sw)
}

// CreateRelationship adds the edge (x, y, typ) unless it already exists.
// It reports whether a new edge was added.
func (b *SBOM) CreateRelationship(x, y, typ string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createRelationshipLocked(x, y, typ)
}

func (b *SBOM) createRelationshipLocked(x, y, typ string) bool {
	key := Relationship{XUUID: x, YUUID: y, Relationship: typ}
	if b.rels[key] {
		return false
	}
	b.rels[key] = true
	r := key
	b.Relationships = append(b.Relationships, &r)
	return true
}

// FindRelationship reports whether the edge (x, y, typ) exists.
func (b *SBOM) FindRelationship(x, y, typ string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rels[Relationship{XUUID: x, YUUID: y, Relationship: typ}]
}

// HasRelationship reports whether any edge matches the non-empty filters.
// The type comparison is case-insensitive.
func (b *SBOM) HasRelationship(x, y, typ string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.Relationships {
		if x != "" && r.XUUID != x {
			continue
		}
		if y != "" && r.YUUID != y {
			continue
		}
		if typ != "" && !strings.EqualFold(r.Relationship, typ) {
			continue
		}
		return true
	}
	return false
}

// RepointRelationships rewrites every endpoint equal to retired so that it
// points at survivor, then drops edges that became duplicates. It returns
// the number of endpoints rewritten.
func (b *SBOM) RepointRelationships(retired, survivor string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.repointLocked(retired, survivor)
}

func (b *SBOM) repointLocked(retired, survivor string) int {
	if retired == survivor {
		return 0
	}
	n := 0
	for _, r := range b.Relationships {
		if r.XUUID == retired {
			r.XUUID = survivor
			n++
		}
		if r.YUUID == retired {
			r.YUUID = survivor
			n++
		}
	}
	if n > 0 {
		b.dedupeRelationshipsLocked()
	}
	return n
}

// AddOrMerge inserts candidate, or folds it into the entity that already has
// the same sha256. When parentUUID is set a Contains edge from the parent is
// ensured, without ever creating a duplicate.
func (b *SBOM) AddOrMerge(candidate *Software, parentUUID string) MergeResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	var existing *Software
	if candidate.SHA256 != "" {
		existing = b.bySHA256[candidate.SHA256]
	}

	if existing == nil {
		b.addSoftwareLocked(candidate)
		if parentUUID != "" {
			b.createRelationshipLocked(parentUUID, candidate.UUID, Contains)
		}
		return MergeResult{Software: candidate}
	}

	res := MergeResult{
		Software:  existing,
		Merged:    true,
		Collision: HashCollision(existing, candidate),
	}
	survivor, retired := existing.Merge(candidate)
	res.RetiredUUID = retired
	b.repointLocked(retired, survivor)
	if parentUUID != "" {
		b.createRelationshipLocked(parentUUID, survivor, Contains)
	}
	return res
}

// Validate checks that every relationship endpoint references a live entity.
func (b *SBOM) Validate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.Relationships {
		if _, ok := b.byUUID[r.XUUID]; !ok {
			return fmt.Errorf("relationship %s %s->%s: unknown source", r.Relationship, r.XUUID, r.YUUID)
		}
		if _, ok := b.byUUID[r.YUUID]; !ok {
			return fmt.Errorf("relationship %s %s->%s: unknown target", r.Relationship, r.XUUID, r.YUUID)
		}
	}
	return nil
}

// Merge folds another SBOM into b. Matching entities (by any shared hash, or
// by UUID when the incoming entity has no hashes) are merged, relationships
// are rewritten and deduplicated, and container paths that start with a
// retired UUID are rebased onto the survivor. It returns the UUID rewrites.
func (b *SBOM) Merge(other *SBOM) map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	updates := map[string]string{}
	if other == nil {
		return updates
	}

	for _, sw := range other.Software {
		if existing := b.findEntryLocked(sw); existing != nil {
			survivor, retired := existing.Merge(sw)
			if survivor != retired {
				updates[retired] = survivor
			}
			if existing.SHA256 != "" {
				b.bySHA256[existing.SHA256] = existing
			}
			continue
		}
		b.addSoftwareLocked(sw)
	}

	for _, r := range other.Relationships {
		x, y := r.XUUID, r.YUUID
		if u, ok := updates[x]; ok {
			x = u
		}
		if u, ok := updates[y]; ok {
			y = u
		}
		b.createRelationshipLocked(x, y, r.Relationship)
	}

	for _, sw := range b.Software {
		if len(sw.ContainerPath) == 0 {
			continue
		}
		paths := make([]string, 0, len(sw.ContainerPath))
		for _, p := range sw.ContainerPath {
			if len(p) >= 36 {
				prefix := p[:36]
				if u, err := uuid.Parse(prefix); err == nil && u.Version() == 4 && u.String() == prefix {
					if repl, ok := updates[prefix]; ok {
						p = repl + p[36:]
					}
				}
			}
			paths = AppendUnique(paths, p)
		}
		sw.ContainerPath = paths
	}

	return updates
}

func (b *SBOM) findEntryLocked(sw *Software) *Software {
	hasHashes := sw.SHA256 != "" || sw.SHA1 != "" || sw.MD5 != ""
	for _, cand := range b.Software {
		if !hasHashes {
			if cand.UUID == sw.UUID {
				return cand
			}
			continue
		}
		if (cand.SHA256 != "" && cand.SHA256 == sw.SHA256) ||
			(cand.SHA1 != "" && cand.SHA1 == sw.SHA1) ||
			(cand.MD5 != "" && cand.MD5 == sw.MD5) {
			return cand
		}
	}
	return nil
}
