// Package mesh строит геометрию чанка: грани кубов с отсечением закрытых
// граней и кресты для растительности.
package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// faceCorners углы единичного куба для каждой грани. Для v0=base, v1=base+t,
// v2=base+b, v3=base+t+b выполняется t x b = нормаль грани.
var faceCorners = [block.FaceCount][4]mgl32.Vec3{
	block.FaceTop:    {{0, 1, 0}, {0, 1, 1}, {1, 1, 0}, {1, 1, 1}},
	block.FaceBottom: {{0, 0, 0}, {1, 0, 0}, {0, 0, 1}, {1, 0, 1}},
	block.FacePosX:   {{1, 0, 1}, {1, 0, 0}, {1, 1, 1}, {1, 1, 0}},
	block.FaceNegX:   {{0, 0, 0}, {0, 0, 1}, {0, 1, 0}, {0, 1, 1}},
	block.FaceNegZ:   {{1, 0, 0}, {0, 0, 0}, {1, 1, 0}, {0, 1, 0}},
	block.FacePosZ:   {{0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1}},
}

var invSqrt2 = float32(1 / math.Sqrt2)

// crossQuads две диагональные плоскости креста, лицевые стороны
var crossQuads = [2]struct {
	corners [4]mgl32.Vec3
	normal  mgl32.Vec3
}{
	{[4]mgl32.Vec3{{0, 0, 0}, {1, 0, 1}, {0, 1, 0}, {1, 1, 1}}, mgl32.Vec3{-invSqrt2, 0, invSqrt2}},
	{[4]mgl32.Vec3{{1, 0, 0}, {0, 0, 1}, {1, 1, 0}, {0, 1, 1}}, mgl32.Vec3{-invSqrt2, 0, -invSqrt2}},
}

// Builder строит меши чанков. Не хранит состояния между вызовами,
// один экземпляр можно использовать из нескольких воркеров.
// Растительность двусторонняя: каждая плоскость креста выдаётся дважды,
// с обратным обходом и противоположной нормалью, так что отсечение
// задних граней можно не выключать.
type Builder struct {
	Registry block.Registry
	Atlas    Atlas
}

// NewBuilder создаёт построитель с глобальной таблицей блоков
func NewBuilder() *Builder {
	return &Builder{Registry: block.Default, Atlas: DefaultAtlas()}
}

func (b *Builder) lookup(id block.BlockID) block.Block {
	blk, ok := b.Registry.Get(id)
	if !ok {
		return block.Block{ID: id, Mesh: block.MeshNone}
	}
	return blk
}

// VisibilityMask возвращает маску граней ячейки (логические координаты),
// которые нужно рисовать: бит установлен, если сосед грань не закрывает.
// Соседи на границе берутся из полей чанка.
func (b *Builder) VisibilityMask(c *world.Chunk, x, y, z int) uint8 {
	var mask uint8
	for _, f := range block.Faces {
		o := f.Offset()
		n := b.lookup(c.GetUnpadded(x+1+o.X, y+1+o.Y, z+1+o.Z))
		if !n.Occludes() {
			mask |= f.Bit()
		}
	}
	return mask
}

// Build строит меш чанка. Если рисовать нечего, возвращает nil.
func (b *Builder) Build(c *world.Chunk) *GeometryData {
	g := &GeometryData{}

	for z := 0; z < world.ChunkSize; z++ {
		for y := 0; y < world.ChunkSize; y++ {
			for x := 0; x < world.ChunkSize; x++ {
				blk := b.lookup(c.Get(x, y, z))
				switch blk.Mesh {
				case block.MeshCube:
					b.addCube(g, blk, x, y, z, b.VisibilityMask(c, x, y, z))
				case block.MeshCross:
					b.addCross(g, blk, x, y, z)
				}
			}
		}
	}

	if g.Empty() {
		return nil
	}
	return g
}

func (b *Builder) addCube(g *GeometryData, blk block.Block, x, y, z int, mask uint8) {
	if mask == 0 {
		return
	}
	base := mgl32.Vec3{float32(x), float32(y), float32(z)}
	for _, f := range block.Faces {
		if mask&f.Bit() == 0 {
			continue
		}
		var corners [4]mgl32.Vec3
		for i, c := range faceCorners[f] {
			corners[i] = base.Add(c)
		}
		n := f.Normal()
		g.AddQuad(corners, b.Atlas.QuadUVs(blk.Texture(f)), mgl32.Vec3{n[0], n[1], n[2]})
	}
}

func (b *Builder) addCross(g *GeometryData, blk block.Block, x, y, z int) {
	base := mgl32.Vec3{float32(x), float32(y), float32(z)}
	uvs := b.Atlas.QuadUVs(blk.Texture(block.FacePosZ))
	for _, q := range crossQuads {
		var corners [4]mgl32.Vec3
		for i, c := range q.corners {
			corners[i] = base.Add(c)
		}
		g.AddQuad(corners, uvs, q.normal)
		back, backUVs := backFace(corners, uvs)
		g.AddQuad(back, backUVs, q.normal.Mul(-1))
	}
}

// backFace меняет местами v1 и v2: обход и нормаль разворачиваются,
// а у каждой вершины остаётся её текстурная координата
func backFace(corners [4]mgl32.Vec3, uvs [4]mgl32.Vec2) ([4]mgl32.Vec3, [4]mgl32.Vec2) {
	corners[1], corners[2] = corners[2], corners[1]
	uvs[1], uvs[2] = uvs[2], uvs[1]
	return corners, uvs
}

// BuildFromStore снимает копию чанка, обновляет её поля по соседям
// из хранилища и строит меш. false, если чанк не загружен.
func (b *Builder) BuildFromStore(store *world.Store, coords vec.Vec3) (*GeometryData, bool) {
	snap, ok := store.Snapshot(coords)
	if !ok {
		logging.GetMeshLogger().Debug("Чанк %v не загружен, меш не строится", coords)
		return nil, false
	}
	store.FillPadding(snap)
	return b.Build(snap), true
}
