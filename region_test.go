package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegionContains(t *testing.T) {
	r := region{base: 0x1000, length: 0x100, origin: originHeapExtend}
	require.True(t, r.contains(0x1000))
	require.True(t, r.contains(0x10ff))
	require.False(t, r.contains(0x1100))
	require.False(t, r.contains(0x0fff))
	require.Equal(t, uintptr(0x1000), r.lo())
	require.Equal(t, uintptr(0x1100), r.hi())
}

func TestRegionRegistryAddFindRemove(t *testing.T) {
	var reg regionRegistry
	a := region{base: 0x1000, length: 0x100, origin: originHeapExtend}
	b := region{base: 0x2000, length: 0x200, origin: originPageMap}

	reg.add(a)
	reg.add(b)
	require.Equal(t, 2, reg.count())

	found, ok := reg.find(0x2050)
	require.True(t, ok)
	require.Equal(t, b, found)

	_, ok = reg.find(0x3000)
	require.False(t, ok)

	reg.remove(a.base)
	require.Equal(t, 1, reg.count())
	_, ok = reg.find(0x1050)
	require.False(t, ok)
}

func TestRegionRegistryAllIsSnapshot(t *testing.T) {
	var reg regionRegistry
	reg.add(region{base: 0x1000, length: 0x10, origin: originHeapExtend})

	snap := reg.all()
	require.Len(t, snap, 1)

	reg.add(region{base: 0x2000, length: 0x10, origin: originHeapExtend})
	require.Len(t, snap, 1, "earlier snapshot must not observe later mutation")
	require.Equal(t, 2, reg.count())
}
