package stablemem

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVecPushGetSetPop(t *testing.T) {
	mem := NewVectorMemory()

	v, err := InitVec[U32](mem)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v.Len())

	for i := uint32(0); i < 100; i++ {
		require.NoError(t, v.Push(U32(i*i)))
	}
	assert.Equal(t, uint64(100), v.Len())
	assert.Equal(t, U32(49), v.Get(7))

	v.Set(7, 1000)
	assert.Equal(t, U32(1000), v.Get(7))

	last, ok := v.Pop()
	require.True(t, ok)
	assert.Equal(t, U32(99*99), last)
	assert.Equal(t, uint64(99), v.Len())
}

func TestVecPopEmpty(t *testing.T) {
	mem := NewVectorMemory()

	v, err := InitVec[U64](mem)
	require.NoError(t, err)

	_, ok := v.Pop()
	assert.False(t, ok)
}

func TestVecReloadKeepsElements(t *testing.T) {
	mem := NewVectorMemory()

	v, err := InitVec[U64](mem)
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		require.NoError(t, v.Push(U64(i)))
	}

	reloaded, err := InitVec[U64](mem)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), reloaded.Len())
	for i := 0; i < 1000; i++ {
		require.Equal(t, U64(i), reloaded.Get(uint64(i)), fmt.Sprintf("element %d", i))
	}
}

func TestVecRejectsMismatchedSlotSize(t *testing.T) {
	mem := NewVectorMemory()

	_, err := InitVec[U32](mem)
	require.NoError(t, err)

	_, err = InitVec[U64](mem)
	assert.Error(t, err)
}

func TestVecOutOfRangePanics(t *testing.T) {
	mem := NewVectorMemory()

	v, err := InitVec[U8](mem)
	require.NoError(t, err)
	require.NoError(t, v.Push(1))

	assert.Panics(t, func() { v.Get(1) })
	assert.Panics(t, func() { v.Set(1, 0) })
}

func TestVecIterate(t *testing.T) {
	mem := NewVectorMemory()

	v, err := InitVec[U16](mem)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, v.Push(U16(i)))
	}

	var seen []U16
	v.Iterate(func(i uint64, value U16) bool {
		seen = append(seen, value)
		return value < 5
	})
	assert.Equal(t, []U16{0, 1, 2, 3, 4, 5}, seen)
}

func TestVecGrowFailure(t *testing.T) {
	// One page holds the header plus a few thousand slots; cap the memory
	// and push until it refuses.
	mem := &cappedMemory{VectorMemory: NewVectorMemory(), maxPages: 1}

	v, err := InitVec[U128](mem)
	require.NoError(t, err)

	var pushErr error
	for i := 0; i < 10000; i++ {
		if pushErr = v.Push(U128{Lo: uint64(i)}); pushErr != nil {
			break
		}
	}
	var gf *GrowFailed
	require.ErrorAs(t, pushErr, &gf)

	// The refused push left the vector consistent.
	length := v.Len()
	reloaded, err := InitVec[U128](mem)
	require.NoError(t, err)
	assert.Equal(t, length, reloaded.Len())
}
