package mesh

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// QuadIndices порядок индексов двух треугольников квада
var QuadIndices = [6]uint32{0, 1, 2, 2, 1, 3}

var ErrInvalidGeometry = errors.New("invalid geometry")

// GeometryData содержит буферы вершин меша чанка. Координаты локальны
// для чанка, отрисовщик сдвигает их на Chunk.Origin().
type GeometryData struct {
	Positions []mgl32.Vec3
	UVs       []mgl32.Vec2
	Normals   []mgl32.Vec3
	Indices   []uint32
}

// VertexCount число вершин
func (g *GeometryData) VertexCount() int {
	if g == nil {
		return 0
	}
	return len(g.Positions)
}

// FaceCount число квадов
func (g *GeometryData) FaceCount() int {
	if g == nil {
		return 0
	}
	return len(g.Indices) / len(QuadIndices)
}

// Empty возвращает true, если рисовать нечего
func (g *GeometryData) Empty() bool {
	return g == nil || len(g.Indices) == 0
}

// Validate проверяет согласованность буферов
func (g *GeometryData) Validate() error {
	if g == nil {
		return nil
	}
	n := len(g.Positions)
	if len(g.UVs) != n || len(g.Normals) != n {
		return fmt.Errorf("%w: %d positions, %d uvs, %d normals",
			ErrInvalidGeometry, n, len(g.UVs), len(g.Normals))
	}
	if n%4 != 0 {
		return fmt.Errorf("%w: vertex count %d is not a multiple of 4", ErrInvalidGeometry, n)
	}
	if len(g.Indices)%len(QuadIndices) != 0 {
		return fmt.Errorf("%w: index count %d", ErrInvalidGeometry, len(g.Indices))
	}
	for i, idx := range g.Indices {
		if int(idx) >= n {
			return fmt.Errorf("%w: index %d at %d out of range", ErrInvalidGeometry, idx, i)
		}
	}
	return nil
}

// AddQuad добавляет квад из четырёх вершин в порядке v0..v3
func (g *GeometryData) AddQuad(corners [4]mgl32.Vec3, uvs [4]mgl32.Vec2, normal mgl32.Vec3) {
	base := uint32(len(g.Positions))
	for i := 0; i < 4; i++ {
		g.Positions = append(g.Positions, corners[i])
		g.UVs = append(g.UVs, uvs[i])
		g.Normals = append(g.Normals, normal)
	}
	for _, idx := range QuadIndices {
		g.Indices = append(g.Indices, base+idx)
	}
}

// Clone создаёт глубокую копию, чтобы кэш и потребитель не делили буферы
func (g *GeometryData) Clone() *GeometryData {
	if g == nil {
		return nil
	}
	return &GeometryData{
		Positions: append([]mgl32.Vec3(nil), g.Positions...),
		UVs:       append([]mgl32.Vec2(nil), g.UVs...),
		Normals:   append([]mgl32.Vec3(nil), g.Normals...),
		Indices:   append([]uint32(nil), g.Indices...),
	}
}

// SizeBytes примерный объём буферов, используется как стоимость в кэше
func (g *GeometryData) SizeBytes() int64 {
	if g == nil {
		return 0
	}
	return int64(len(g.Positions)*12 + len(g.UVs)*8 + len(g.Normals)*12 + len(g.Indices)*4)
}
