package ecs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocatorRecyclesWithNewGeneration(t *testing.T) {
	a := NewAllocator()
	e1 := a.New()
	e2 := a.New()
	require.Equal(t, Entity{Index: 0, Gen: 1}, e1)
	require.Equal(t, Entity{Index: 1, Gen: 1}, e2)

	require.True(t, a.Destroy(e1))
	require.False(t, a.Destroy(e1), "double destroy must be rejected")
	require.False(t, a.Alive(e1))

	e3 := a.New()
	require.Equal(t, uint32(0), e3.Index)
	require.Equal(t, uint32(2), e3.Gen)
	require.False(t, a.Alive(e1))
	require.True(t, a.Alive(e3))
	require.Equal(t, []Entity{e3, e2}, a.Live())
}

func TestAllocatorStateRoundTrip(t *testing.T) {
	a := NewAllocator()
	a.New()
	b := a.New()
	a.Destroy(b)
	st := a.State()

	a.New()
	a.New()

	a.Restore(st)
	next := a.New()
	require.Equal(t, Entity{Index: 1, Gen: 2}, next)
}

func TestStoreSetRemoveKeepsSparseConsistent(t *testing.T) {
	s := NewStore[int]()
	es := []Entity{{0, 1}, {5, 1}, {2, 1}}
	for i, e := range es {
		s.Set(e, i*10)
	}
	require.Equal(t, 3, s.Len())
	require.True(t, s.Remove(es[0]))
	require.False(t, s.Has(es[0]))

	v, ok := s.Value(es[1])
	require.True(t, ok)
	require.Equal(t, 10, v)
	v, ok = s.Value(es[2])
	require.True(t, ok)
	require.Equal(t, 20, v)

	require.Equal(t, []Entity{{2, 1}, {5, 1}}, s.Entities())
}

func TestStoreRejectsStaleGeneration(t *testing.T) {
	s := NewStore[string]()
	old := Entity{Index: 3, Gen: 1}
	s.Set(old, "old")
	fresh := Entity{Index: 3, Gen: 2}
	require.False(t, s.Has(fresh))

	s.Set(fresh, "fresh")
	require.False(t, s.Has(old))
	require.Equal(t, 1, s.Len())
}

func TestStoreCloneIsIndependent(t *testing.T) {
	s := NewStore[[]int]()
	e := Entity{Index: 1, Gen: 1}
	s.Set(e, []int{1, 2})
	c := s.Clone(func(v []int) []int { return append([]int(nil), v...) })

	p, _ := s.Get(e)
	(*p)[0] = 99
	cv, _ := c.Value(e)
	require.Equal(t, []int{1, 2}, cv)
}

func TestStoreEntitiesCachedUntilMembershipChanges(t *testing.T) {
	s := NewStore[int]()
	for _, i := range []uint32{7, 2, 9} {
		s.Set(Entity{Index: i, Gen: 1}, int(i))
	}
	first := s.Entities()
	require.Equal(t, []Entity{{2, 1}, {7, 1}, {9, 1}}, first)

	s.Set(Entity{Index: 7, Gen: 1}, 70)
	require.Same(t, &first[0], &s.Entities()[0], "overwrite keeps the cache")

	// Removing while ranging over the cached slice leaves it intact.
	for _, e := range first {
		if e.Index == 2 {
			s.Remove(e)
		}
	}
	require.Equal(t, []Entity{{2, 1}, {7, 1}, {9, 1}}, first)
	require.Equal(t, []Entity{{7, 1}, {9, 1}}, s.Entities())

	s.Set(Entity{Index: 1, Gen: 1}, 1)
	require.Equal(t, []Entity{{1, 1}, {7, 1}, {9, 1}}, s.Entities())
	s.Clear()
	require.Empty(t, s.Entities())
}
