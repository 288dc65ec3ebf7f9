package world

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

func TestGeneratorIsDeterministic(t *testing.T) {
	a := NewGenerator(DefaultGeneratorParams(1234))
	b := NewGenerator(DefaultGeneratorParams(1234))

	coords := vec.Vec3{X: 3, Y: 0, Z: -2}
	assert.Equal(t, a.GenerateChunk(coords).Blocks, b.GenerateChunk(coords).Blocks)

	for i := -50; i < 50; i++ {
		pos := vec.Vec3{X: i * 13, Y: i, Z: -i * 7}
		assert.Equal(t, a.BlockAt(pos), b.BlockAt(pos))
	}
}

func TestGeneratorLayers(t *testing.T) {
	g := NewGenerator(DefaultGeneratorParams(5))

	sky := g.GenerateChunk(vec.Vec3{Y: 10})
	assert.True(t, sky.IsEmpty(), "высоко над рельефом только воздух")

	deep := g.GenerateChunk(vec.Vec3{Y: -10})
	assert.Equal(t, ChunkSize*ChunkSize*ChunkSize, deep.CountBlocks(block.StoneBlockID))
}

func TestGeneratedPaddingMatchesNeighbor(t *testing.T) {
	g := NewGenerator(DefaultGeneratorParams(77))
	a := g.GenerateChunk(vec.Vec3{})
	b := g.GenerateChunk(vec.Vec3{X: 1})

	for z := 0; z < ChunkSize; z++ {
		for y := 0; y < ChunkSize; y++ {
			assert.Equal(t, b.Get(0, y, z), a.GetUnpadded(PaddedSize-1, y+1, z+1))
			assert.Equal(t, a.Get(ChunkSize-1, y, z), b.GetUnpadded(0, y+1, z+1))
		}
	}
}

func TestFoliageOnlyAboveGrass(t *testing.T) {
	params := DefaultGeneratorParams(9)
	params.FoliageChance = 1
	g := NewGenerator(params)

	c := g.GenerateChunk(vec.Vec3{})
	for z := 0; z < ChunkSize; z++ {
		for y := 1; y < ChunkSize; y++ {
			for x := 0; x < ChunkSize; x++ {
				id := c.Get(x, y, z)
				if id == block.TallGrassBlockID || id == block.FlowerBlockID {
					assert.Equal(t, block.GrassBlockID, c.Get(x, y-1, z))
				}
			}
		}
	}
}

func TestFingerprint(t *testing.T) {
	p := DefaultGeneratorParams(1)
	assert.Equal(t, p.Fingerprint(), DefaultGeneratorParams(1).Fingerprint())
	assert.NotEqual(t, p.Fingerprint(), DefaultGeneratorParams(2).Fingerprint())

	q := p
	q.Noise.Octaves++
	assert.NotEqual(t, p.Fingerprint(), q.Fingerprint())
}

func TestDensityVariesBelowZeroZ(t *testing.T) {
	g := NewGenerator(DefaultGeneratorParams(9))

	differ, samples := 0, 0
	for x := -90; x < 90; x += 7 {
		for y := -30; y < 30; y += 5 {
			samples++
			if g.Density(x, y, -1) != g.Density(x, y, -500) {
				differ++
			}
		}
	}
	assert.Greater(t, differ, samples*9/10)

	// Соседние чанки по отрицательной оси z не повторяют друг друга
	a := g.GenerateChunk(vec.Vec3{Z: -1})
	b := g.GenerateChunk(vec.Vec3{Z: -7})
	assert.NotEqual(t, a.Blocks, b.Blocks)
}
