package mesh

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
)

func TestEmptyChunkHasNoMesh(t *testing.T) {
	b := NewBuilder()
	assert.Nil(t, b.Build(world.NewChunk(vec.Vec3{})))
}

func TestSingleCubeEmitsSixFaces(t *testing.T) {
	b := NewBuilder()
	c := world.NewChunk(vec.Vec3{})
	c.Set(10, 10, 10, block.StoneBlockID)

	g := b.Build(c)
	require.NotNil(t, g)
	require.NoError(t, g.Validate())
	assert.Equal(t, 6, g.FaceCount())
	assert.Equal(t, 24, g.VertexCount())
	assert.Equal(t, uint8(0x3f), b.VisibilityMask(c, 10, 10, 10))
}

func TestFullChunkEmitsOnlyBoundary(t *testing.T) {
	b := NewBuilder()
	c := world.NewChunk(vec.Vec3{})
	c.FillLogical(block.StoneBlockID)

	g := b.Build(c)
	require.NotNil(t, g)
	require.NoError(t, g.Validate())
	assert.Equal(t, 6*world.ChunkSize*world.ChunkSize, g.FaceCount())
	assert.Equal(t, uint8(0), b.VisibilityMask(c, 5, 5, 5))
}

func TestSolidPaddingHidesBoundary(t *testing.T) {
	b := NewBuilder()
	c := world.NewChunk(vec.Vec3{})
	c.Fill(block.StoneBlockID)
	assert.Nil(t, b.Build(c))
}

func TestNeighborCullsSharedFace(t *testing.T) {
	b := NewBuilder()
	c := world.NewChunk(vec.Vec3{})
	c.Set(3, 3, 3, block.DirtBlockID)
	c.Set(4, 3, 3, block.DirtBlockID)

	g := b.Build(c)
	assert.Equal(t, 10, g.FaceCount())
	assert.Zero(t, b.VisibilityMask(c, 3, 3, 3)&block.FacePosX.Bit())
}

func TestCrossIgnoresNeighbors(t *testing.T) {
	b := NewBuilder()
	c := world.NewChunk(vec.Vec3{})
	c.Set(1, 1, 1, block.TallGrassBlockID)

	g := b.Build(c)
	require.NotNil(t, g)
	assert.Equal(t, 4, g.FaceCount(), "две плоскости, каждая с обеих сторон")

	// Растительность не закрывает грани соседнего куба
	c.Set(2, 1, 1, block.StoneBlockID)
	g = b.Build(c)
	assert.Equal(t, 4+6, g.FaceCount())
}

func TestCrossIsDoubleSided(t *testing.T) {
	b := NewBuilder()
	c := world.NewChunk(vec.Vec3{})
	c.Set(0, 0, 0, block.FlowerBlockID)

	g := b.Build(c)
	require.NotNil(t, g)
	require.NoError(t, g.Validate())
	require.Equal(t, 4, g.FaceCount())

	for q := 0; q < g.FaceCount(); q += 2 {
		front, back := q*4, (q+1)*4
		assert.Equal(t, g.Normals[front].Mul(-1), g.Normals[back], "обратная сторона плоскости %d", q/2)

		// Обход треугольника совпадает с нормалью для обеих сторон
		for _, v := range []int{front, back} {
			p := g.Positions[v : v+4]
			winding := p[1].Sub(p[0]).Cross(p[2].Sub(p[0])).Normalize()
			assert.InDelta(t, 1.0, float64(winding.Dot(g.Normals[v])), 1e-5)
		}

		// Вершина в той же точке несёт ту же текстурную координату
		assert.Equal(t, g.UVs[front+1], g.UVs[back+2])
		assert.Equal(t, g.Positions[front+1], g.Positions[back+2])
	}
}

func TestFaceWindingMatchesNormal(t *testing.T) {
	for _, f := range block.Faces {
		v := faceCorners[f]
		tangent := v[1].Sub(v[0])
		bitangent := v[2].Sub(v[0])
		n := f.Normal()
		assert.Equal(t, mgl32.Vec3{n[0], n[1], n[2]}, tangent.Cross(bitangent), "грань %s", f)
		assert.Equal(t, v[1].Add(bitangent), v[3], "грань %s", f)
	}
	for _, q := range crossQuads {
		got := q.corners[1].Sub(q.corners[0]).Cross(q.corners[2].Sub(q.corners[0])).Normalize()
		assert.InDelta(t, 1.0, float64(got.Dot(q.normal)), 1e-5)
	}
}

func TestIndicesFollowQuadPattern(t *testing.T) {
	b := NewBuilder()
	c := world.NewChunk(vec.Vec3{})
	c.Set(0, 0, 0, block.SandBlockID)

	g := b.Build(c)
	require.NotNil(t, g)
	for q := 0; q < g.FaceCount(); q++ {
		for i, idx := range QuadIndices {
			assert.Equal(t, uint32(q*4)+idx, g.Indices[q*6+i])
		}
	}
}

type fakeRegistry map[block.BlockID]block.Block

func (r fakeRegistry) Get(id block.BlockID) (block.Block, bool) {
	b, ok := r[id]
	return b, ok
}

func TestBuilderUsesRegistry(t *testing.T) {
	reg := fakeRegistry{
		block.AirBlockID:   {ID: block.AirBlockID, Mesh: block.MeshNone},
		block.StoneBlockID: {ID: block.StoneBlockID, Mesh: block.MeshCross},
	}
	b := &Builder{Registry: reg, Atlas: DefaultAtlas()}

	c := world.NewChunk(vec.Vec3{})
	c.Set(0, 0, 0, block.StoneBlockID)
	c.Set(5, 5, 5, block.DirtBlockID) // нет в таблице, пропускается

	assert.Equal(t, 4, b.Build(c).FaceCount())
}

func TestBuildFromStoreUsesNeighbors(t *testing.T) {
	s := world.NewStore()
	a := world.NewChunk(vec.Vec3{})
	a.FillLogical(block.StoneBlockID)
	n := world.NewChunk(vec.Vec3{X: 1})
	n.FillLogical(block.StoneBlockID)
	s.Insert(a)
	s.Insert(n)

	g, ok := NewBuilder().BuildFromStore(s, vec.Vec3{})
	require.True(t, ok)
	assert.Equal(t, 5*world.ChunkSize*world.ChunkSize, g.FaceCount())

	_, ok = NewBuilder().BuildFromStore(s, vec.Vec3{Z: 4})
	assert.False(t, ok)
}

func TestAtlasUVs(t *testing.T) {
	a := DefaultAtlas()
	origin, size := a.Rect(17)
	assert.InDelta(t, 1.0/16, float64(origin.X()), 1e-6)
	assert.InDelta(t, 1.0/16, float64(origin.Y()), 1e-6)
	assert.InDelta(t, 1.0/16, float64(size.X()), 1e-6)

	uvs := a.QuadUVs(0)
	assert.Equal(t, mgl32.Vec2{0, 1.0 / 16}, uvs[0])
	assert.Equal(t, mgl32.Vec2{1.0 / 16, 0}, uvs[3])
}

func TestValidateDetectsMismatch(t *testing.T) {
	g := &GeometryData{}
	g.AddQuad([4]mgl32.Vec3{}, [4]mgl32.Vec2{}, mgl32.Vec3{0, 1, 0})
	require.NoError(t, g.Validate())

	g.Indices = append(g.Indices, 0, 1, 2, 2, 1, 9)
	assert.ErrorIs(t, g.Validate(), ErrInvalidGeometry)

	g = &GeometryData{Positions: make([]mgl32.Vec3, 4)}
	assert.ErrorIs(t, g.Validate(), ErrInvalidGeometry)

	clone := (&GeometryData{Indices: []uint32{1}}).Clone()
	assert.Equal(t, []uint32{1}, clone.Indices)
}
