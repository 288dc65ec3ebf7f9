package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

func TestCoordinateConversion(t *testing.T) {
	pos := vec.Vec3{X: -1, Y: 33, Z: 64}
	assert.Equal(t, vec.Vec3{X: -1, Y: 1, Z: 2}, ChunkCoordsOf(pos))
	assert.Equal(t, vec.Vec3{X: 31, Y: 1, Z: 0}, LocalCoordsOf(pos))
	assert.Equal(t, pos, WorldCoordsOf(ChunkCoordsOf(pos), LocalCoordsOf(pos)))
}

func TestStoreSetGetRoundTrip(t *testing.T) {
	s := NewStore()
	s.Insert(NewChunk(vec.Vec3{}))

	pos := vec.Vec3{X: 5, Y: 6, Z: 7}
	affected := s.SetBlock(pos, block.LogBlockID)
	assert.Equal(t, []vec.Vec3{{}}, affected)

	id, ok := s.GetBlock(pos)
	require.True(t, ok)
	assert.Equal(t, block.LogBlockID, id)
	assert.True(t, s.IsSolidAt(pos))
}

func TestStoreAbsentChunk(t *testing.T) {
	s := NewStore()

	_, ok := s.Get(vec.Vec3Float{X: 100.5, Y: 0, Z: -3.2})
	assert.False(t, ok)

	_, ok = s.GetBlock(vec.Vec3{X: 1000})
	assert.False(t, ok)
	assert.False(t, s.IsSolidAt(vec.Vec3{X: 1000}))

	assert.Nil(t, s.SetBlock(vec.Vec3{X: 1000}, block.StoneBlockID))
	assert.Equal(t, 0, s.Len())
}

func TestStoreGetByFloatPosition(t *testing.T) {
	s := NewStore()
	s.Insert(NewChunk(vec.Vec3{X: -1}))

	c, ok := s.Get(vec.Vec3Float{X: -0.5, Y: 3, Z: 3})
	require.True(t, ok)
	assert.Equal(t, vec.Vec3{X: -1}, c.Coords)
}

func TestInstantiateRadius(t *testing.T) {
	s := NewStore()
	center := vec.Vec3{}

	missing := s.InstantiateRadius(center, 2)
	assert.Len(t, missing, 64)

	for _, c := range missing {
		assert.GreaterOrEqual(t, c.X, -2)
		assert.Less(t, c.X, 2)
		s.Insert(NewChunk(c))
	}
	assert.Empty(t, s.InstantiateRadius(center, 2))
	assert.Equal(t, 64, s.Len())
}

func TestSetBlockUpdatesNeighborPadding(t *testing.T) {
	s := NewStore()
	left := vec.Vec3{}
	right := vec.Vec3{X: 1}
	s.Insert(NewChunk(left))
	s.Insert(NewChunk(right))

	// Последний слой левого чанка по X
	pos := vec.Vec3{X: 31, Y: 10, Z: 10}
	affected := s.SetBlock(pos, block.StoneBlockID)
	assert.ElementsMatch(t, []vec.Vec3{left, right}, affected)

	r, _ := s.Chunk(right)
	assert.Equal(t, block.StoneBlockID, r.GetUnpadded(0, 11, 11))

	// Первый слой правого чанка попадает в поле левого
	s.SetBlock(vec.Vec3{X: 32, Y: 0, Z: 0}, block.DirtBlockID)
	l, _ := s.Chunk(left)
	assert.Equal(t, block.DirtBlockID, l.GetUnpadded(PaddedSize-1, 1, 1))
}

func TestSetBlockCornerTouchesSevenNeighbors(t *testing.T) {
	s := NewStore()
	for _, c := range s.Instantiate(vec.Vec3{}, vec.Splat(1)) {
		s.Insert(NewChunk(c))
	}
	require.Equal(t, 8, s.Len())

	affected := s.SetBlock(vec.Vec3{X: -1, Y: -1, Z: -1}, block.SandBlockID)
	assert.Len(t, affected, 8)

	origin, _ := s.Chunk(vec.Vec3{})
	assert.Equal(t, block.SandBlockID, origin.GetUnpadded(0, 0, 0))
}

func TestInsertRefreshesPadding(t *testing.T) {
	s := NewStore()

	full := NewChunk(vec.Vec3{})
	full.FillLogical(block.StoneBlockID)
	s.Insert(full)

	// Новый сосед сверху видит камень в своём нижнем поле
	s.Insert(NewChunk(vec.Vec3{Y: 1}))
	top, _ := s.Chunk(vec.Vec3{Y: 1})
	assert.Equal(t, block.StoneBlockID, top.GetUnpadded(5, 0, 5))

	// И старый чанк видит воздух нового соседа
	assert.Equal(t, block.AirBlockID, full.GetUnpadded(5, PaddedSize-1, 5))
}

func TestSnapshotIsCopy(t *testing.T) {
	s := NewStore()
	s.Insert(NewChunk(vec.Vec3{}))

	snap, ok := s.Snapshot(vec.Vec3{})
	require.True(t, ok)
	snap.Set(0, 0, 0, block.StoneBlockID)

	id, _ := s.GetBlock(vec.Vec3{})
	assert.Equal(t, block.AirBlockID, id)

	_, ok = s.Snapshot(vec.Vec3{X: 9})
	assert.False(t, ok)
}

func TestRemoveAndCoords(t *testing.T) {
	s := NewStore()
	s.Insert(NewChunk(vec.Vec3{X: 1}))
	s.Insert(NewChunk(vec.Vec3{X: -1}))

	assert.Equal(t, []vec.Vec3{{X: -1}, {X: 1}}, s.Coords())
	assert.True(t, s.Remove(vec.Vec3{X: 1}))
	assert.False(t, s.Remove(vec.Vec3{X: 1}))
	assert.Equal(t, 1, s.Len())
}
