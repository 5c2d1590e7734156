package stablemem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellInitAndSet(t *testing.T) {
	mem := NewVectorMemory()

	c, err := InitCell[Text](mem, "initial")
	require.NoError(t, err)
	assert.Equal(t, Text("initial"), c.Get())

	require.NoError(t, c.Set("replaced"))
	assert.Equal(t, Text("replaced"), c.Get())
}

func TestCellReload(t *testing.T) {
	mem := NewVectorMemory()

	c, err := InitCell[U64](mem, 7)
	require.NoError(t, err)
	require.NoError(t, c.Set(1<<40))

	// A fresh handle over the same memory sees the stored value, not the
	// default.
	reloaded, err := InitCell[U64](mem, 7)
	require.NoError(t, err)
	assert.Equal(t, U64(1<<40), reloaded.Get())
}

func TestCellRejectsForeignMemory(t *testing.T) {
	mem := NewVectorMemory()
	require.NoError(t, SafeWrite(mem, 0, []byte("XXX not a cell")))

	_, err := InitCell[Text](mem, "")
	assert.Error(t, err)
}

func TestCellGrowFailure(t *testing.T) {
	mem := &cappedMemory{VectorMemory: NewVectorMemory(), maxPages: 0}

	_, err := InitCell[Text](mem, "no room")
	var gf *GrowFailed
	require.ErrorAs(t, err, &gf)
	assert.Equal(t, uint64(0), mem.Size())
}
