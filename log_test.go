package stablemem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAppendGet(t *testing.T) {
	backing := NewVectorMemory()
	index := NewRestrictedMemory(backing, 0, 8)
	data := NewRestrictedMemory(backing, 8, 16)

	l, err := InitLog[Text](index, data)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), l.Len())

	entries := []Text{"first", "", "a much longer third entry", "fourth"}
	for i, e := range entries {
		idx, err := l.Append(e)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), idx)
	}
	assert.Equal(t, uint64(len(entries)), l.Len())

	for i, want := range entries {
		got, ok := l.Get(uint64(i))
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := l.Get(uint64(len(entries)))
	assert.False(t, ok)
}

func TestLogReload(t *testing.T) {
	indexMem := NewVectorMemory()
	dataMem := NewVectorMemory()

	l, err := InitLog[Blob](indexMem, dataMem)
	require.NoError(t, err)
	_, err = l.Append(Blob{1, 2, 3})
	require.NoError(t, err)
	_, err = l.Append(Blob{4})
	require.NoError(t, err)

	reloaded, err := InitLog[Blob](indexMem, dataMem)
	require.NoError(t, err)
	require.Equal(t, uint64(2), reloaded.Len())

	got, ok := reloaded.Get(1)
	require.True(t, ok)
	assert.Equal(t, Blob{4}, got)
}

func TestLogIterate(t *testing.T) {
	l, err := InitLog[U32](NewVectorMemory(), NewVectorMemory())
	require.NoError(t, err)
	for i := uint32(0); i < 10; i++ {
		_, err := l.Append(U32(i))
		require.NoError(t, err)
	}

	var sum uint32
	l.Iterate(func(i uint64, v U32) bool {
		sum += uint32(v)
		return i < 4
	})
	assert.Equal(t, uint32(0+1+2+3+4), sum)
}

func TestLogRejectsSwappedMemories(t *testing.T) {
	indexMem := NewVectorMemory()
	dataMem := NewVectorMemory()

	_, err := InitLog[Text](indexMem, dataMem)
	require.NoError(t, err)

	_, err = InitLog[Text](dataMem, indexMem)
	assert.Error(t, err)
}

func TestLogGrowFailureLeavesLogIntact(t *testing.T) {
	indexMem := NewVectorMemory()
	dataMem := &cappedMemory{VectorMemory: NewVectorMemory(), maxPages: 1}

	l, err := InitLog[Blob](indexMem, dataMem)
	require.NoError(t, err)

	_, err = l.Append(make(Blob, 1000))
	require.NoError(t, err)

	// Too big for the one-page data region.
	_, err = l.Append(make(Blob, 2*int(PageSize)))
	var gf *GrowFailed
	require.ErrorAs(t, err, &gf)

	assert.Equal(t, uint64(1), l.Len())
	got, ok := l.Get(0)
	require.True(t, ok)
	assert.Len(t, got, 1000)
}
