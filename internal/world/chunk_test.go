package world

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

func TestIndexIsBijective(t *testing.T) {
	seen := make(map[int]struct{}, PaddedVolume)
	for z := 0; z < PaddedSize; z++ {
		for y := 0; y < PaddedSize; y++ {
			for x := 0; x < PaddedSize; x++ {
				i := Index(x, y, z)
				require.GreaterOrEqual(t, i, 0)
				require.Less(t, i, PaddedVolume)
				seen[i] = struct{}{}
			}
		}
	}
	assert.Len(t, seen, 39304)
}

func TestIndexPanicsOutOfRange(t *testing.T) {
	bad := [][3]int{{-1, 0, 0}, {0, PaddedSize, 0}, {0, 0, 40}}
	for _, b := range bad {
		func() {
			defer func() {
				r := recover()
				require.NotNil(t, r, "%v должен паниковать", b)
				err, ok := r.(error)
				require.True(t, ok)
				assert.True(t, errors.Is(err, ErrIndexOutOfRange))
			}()
			Index(b[0], b[1], b[2])
		}()
	}
}

func TestChunkLogicalAndPaddedAccess(t *testing.T) {
	c := NewChunk(vec.Vec3{X: 1, Y: -1, Z: 0})
	assert.True(t, c.IsEmpty())

	c.Set(0, 0, 0, block.StoneBlockID)
	assert.Equal(t, block.StoneBlockID, c.GetUnpadded(1, 1, 1))
	assert.False(t, c.IsEmpty())

	c.SetUnpadded(0, 5, 5, block.DirtBlockID)
	assert.Equal(t, block.DirtBlockID, c.Blocks[Index(0, 5, 5)])
	assert.Equal(t, vec.Vec3{X: 32, Y: -32, Z: 0}, c.Origin())
}

func TestChunkCloneIsIndependent(t *testing.T) {
	c := NewChunk(vec.Vec3{})
	c.Set(3, 4, 5, block.SandBlockID)
	clone := c.Clone()
	clone.Set(3, 4, 5, block.AirBlockID)

	assert.Equal(t, block.SandBlockID, c.Get(3, 4, 5))
	assert.Equal(t, block.AirBlockID, clone.Get(3, 4, 5))
}

func TestChunkVersionBumps(t *testing.T) {
	c := NewChunk(vec.Vec3{})
	v := c.Version
	c.Set(1, 1, 1, block.StoneBlockID)
	assert.Greater(t, c.Version, v)
}

func TestChunkFromBlocksChecksLength(t *testing.T) {
	_, err := ChunkFromBlocks(vec.Vec3{}, make([]block.BlockID, 10))
	assert.ErrorIs(t, err, ErrPayloadSize)

	c, err := ChunkFromBlocks(vec.Vec3{X: 2}, make([]block.BlockID, PaddedVolume))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Coords.X)
}

func TestFillLogicalLeavesPadding(t *testing.T) {
	c := NewChunk(vec.Vec3{})
	c.FillLogical(block.StoneBlockID)
	assert.Equal(t, ChunkSize*ChunkSize*ChunkSize, c.CountBlocks(block.StoneBlockID))
	assert.Equal(t, block.AirBlockID, c.GetUnpadded(0, 0, 0))
	assert.Equal(t, block.AirBlockID, c.GetUnpadded(PaddedSize-1, 10, 10))
}
