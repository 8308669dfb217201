package model

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sw(sha256, name string) *Software {
	s := NewSoftware()
	s.SHA256 = sha256
	s.Name = name
	s.FileName = []string{name}
	return s
}

func TestCreateRelationship_SuppressesDuplicates(t *testing.T) {
	b := New()
	assert.True(t, b.CreateRelationship("a", "b", Contains))
	assert.False(t, b.CreateRelationship("a", "b", Contains))
	assert.True(t, b.CreateRelationship("a", "b", "Uses"))
	assert.Len(t, b.Relationships, 2)

	assert.True(t, b.FindRelationship("a", "b", Contains))
	assert.False(t, b.FindRelationship("b", "a", Contains))
	assert.True(t, b.HasRelationship("a", "", "contains"))
	assert.False(t, b.HasRelationship("", "a", ""))
}

func TestAddOrMerge_InsertsWithContainsEdge(t *testing.T) {
	b := New()
	parent := sw("p", "parent.iso")
	b.AddSoftware(parent)

	child := sw("c", "child.bin")
	res := b.AddOrMerge(child, parent.UUID)
	assert.False(t, res.Merged)
	assert.Same(t, child, res.Software)
	assert.Same(t, child, b.FindSoftware("c"))
	assert.Same(t, child, b.FindByUUID(child.UUID))
	assert.True(t, b.FindRelationship(parent.UUID, child.UUID, Contains))
}

func TestAddOrMerge_MergesAndRepoints(t *testing.T) {
	b := New()
	first := sw("same", "a.bin")
	b.AddOrMerge(first, "")

	dup := sw("same", "b.bin")
	// An edge that already names the duplicate's UUID must follow the merge.
	other := sw("o", "other")
	b.AddSoftware(other)
	b.CreateRelationship(other.UUID, dup.UUID, "Uses")

	res := b.AddOrMerge(dup, "")
	require.True(t, res.Merged)
	assert.Same(t, first, res.Software)
	assert.Equal(t, dup.UUID, res.RetiredUUID)
	assert.Equal(t, []string{"a.bin", "b.bin"}, first.FileName)
	assert.Len(t, b.Software, 2)

	assert.True(t, b.FindRelationship(other.UUID, first.UUID, "Uses"))
	assert.False(t, b.HasRelationship("", dup.UUID, ""))
	require.NoError(t, b.Validate())
}

func TestAddOrMerge_NoDuplicateContainsUnderSameParent(t *testing.T) {
	b := New()
	parent := sw("p", "parent.iso")
	b.AddSoftware(parent)

	b.AddOrMerge(sw("x", "x"), parent.UUID)
	b.AddOrMerge(sw("x", "x"), parent.UUID)
	b.AddOrMerge(sw("x", "x"), parent.UUID)

	assert.Len(t, b.Relationships, 1)
}

func TestAddOrMerge_NewParentAddsEdge(t *testing.T) {
	b := New()
	p1, p2 := sw("p1", "one.iso"), sw("p2", "two.iso")
	b.AddSoftware(p1)
	b.AddSoftware(p2)

	x := b.AddOrMerge(sw("x", "x"), p1.UUID).Software
	b.AddOrMerge(sw("x", "x"), p2.UUID)

	assert.True(t, b.FindRelationship(p1.UUID, x.UUID, Contains))
	assert.True(t, b.FindRelationship(p2.UUID, x.UUID, Contains))
	assert.Len(t, b.Relationships, 2)
}

func TestAddOrMerge_FlagsCollision(t *testing.T) {
	b := New()
	a := sw("same", "a")
	a.MD5 = "m1"
	a.Size = 10
	b.AddOrMerge(a, "")

	c := sw("same", "c")
	c.MD5 = "m2"
	c.Size = 10
	res := b.AddOrMerge(c, "")
	assert.True(t, res.Merged)
	assert.True(t, res.Collision)
}

func TestAddOrMerge_Concurrent(t *testing.T) {
	b := New()
	parent := sw("p", "parent")
	b.AddSoftware(parent)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.AddOrMerge(sw("shared", "f"), parent.UUID)
		}()
	}
	wg.Wait()

	assert.Len(t, b.Software, 2)
	assert.Len(t, b.Relationships, 1)
	require.NoError(t, b.Validate())
}

func TestRepointRelationships_CollapsesDuplicates(t *testing.T) {
	b := New()
	b.CreateRelationship("p", "old", Contains)
	b.CreateRelationship("p", "new", Contains)
	b.CreateRelationship("old", "lib", "Uses")

	n := b.RepointRelationships("old", "new")
	assert.Equal(t, 2, n)
	assert.Len(t, b.Relationships, 2)
	assert.True(t, b.FindRelationship("p", "new", Contains))
	assert.True(t, b.FindRelationship("new", "lib", "Uses"))
	assert.Zero(t, b.RepointRelationships("same", "same"))
}

func TestValidate_UnknownEndpoint(t *testing.T) {
	b := New()
	a := sw("a", "a")
	b.AddSoftware(a)
	b.CreateRelationship(a.UUID, "ghost", Contains)
	assert.ErrorContains(t, b.Validate(), "unknown target")
}

func TestReindex_AfterDecode(t *testing.T) {
	doc := `{
		"software": [{"UUID": "u1", "sha256": "aa", "fileName": ["a"]}],
		"relationships": [
			{"xUUID": "u1", "yUUID": "u1", "relationship": "Contains"},
			{"xUUID": "u1", "yUUID": "u1", "relationship": "Contains"}
		]
	}`
	var b SBOM
	require.NoError(t, json.Unmarshal([]byte(doc), &b))
	b.Reindex()

	assert.Len(t, b.Relationships, 1)
	require.NotNil(t, b.FindSoftware("aa"))
	assert.Equal(t, "u1", b.FindSoftware("aa").UUID)
	assert.False(t, b.CreateRelationship("u1", "u1", Contains))
}

func TestMerge_SBOMs(t *testing.T) {
	left := New()
	archive := sw("arch", "firmware.zip")
	lib := sw("lib", "libz.so")
	left.AddSoftware(archive)
	left.AddSoftware(lib)
	left.CreateRelationship(archive.UUID, lib.UUID, Contains)

	right := New()
	archive2 := sw("arch", "firmware-copy.zip")
	tool := sw("tool", "tool")
	tool.ContainerPath = []string{archive2.UUID + "/bin/tool"}
	right.AddSoftware(archive2)
	right.AddSoftware(tool)
	right.CreateRelationship(archive2.UUID, tool.UUID, Contains)

	updates := left.Merge(right)
	assert.Equal(t, map[string]string{archive2.UUID: archive.UUID}, updates)

	assert.Len(t, left.Software, 3)
	assert.Equal(t, []string{"firmware.zip", "firmware-copy.zip"}, archive.FileName)
	assert.True(t, left.FindRelationship(archive.UUID, tool.UUID, Contains))
	assert.Equal(t, []string{archive.UUID + "/bin/tool"}, tool.ContainerPath)
	require.NoError(t, left.Validate())
}

func TestMerge_MatchesHashlessByUUID(t *testing.T) {
	left := New()
	a := NewSoftware()
	a.Name = "virtual"
	left.AddSoftware(a)

	right := New()
	b := &Software{UUID: a.UUID, Vendor: []string{"Acme"}}
	right.AddSoftware(b)

	left.Merge(right)
	assert.Len(t, left.Software, 1)
	assert.Equal(t, []string{"Acme"}, a.Vendor)
	assert.Empty(t, left.Merge(nil))
}
