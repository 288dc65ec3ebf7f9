package mesh

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxel-engine/internal/world/block"
)

// Atlas текстурный атлас из одинаковых тайлов, нумерация строка*Columns + колонка
type Atlas struct {
	Columns int
	Rows    int
}

// DefaultAtlas атлас 16x16 тайлов
func DefaultAtlas() Atlas {
	return Atlas{Columns: 16, Rows: 16}
}

// tileCorners UV углов квада внутри тайла (v0..v3), v растёт вниз по изображению
var tileCorners = [4]mgl32.Vec2{{0, 1}, {1, 1}, {0, 0}, {1, 0}}

// Rect возвращает левый верхний угол и размер тайла в UV
func (a Atlas) Rect(tex block.TextureID) (origin, size mgl32.Vec2) {
	cols, rows := a.Columns, a.Rows
	if cols <= 0 {
		cols = 1
	}
	if rows <= 0 {
		rows = 1
	}
	col := int(tex) % cols
	row := (int(tex) / cols) % rows
	size = mgl32.Vec2{1 / float32(cols), 1 / float32(rows)}
	origin = mgl32.Vec2{float32(col) * size.X(), float32(row) * size.Y()}
	return origin, size
}

// QuadUVs возвращает UV четырёх углов квада для тайла
func (a Atlas) QuadUVs(tex block.TextureID) [4]mgl32.Vec2 {
	origin, size := a.Rect(tex)
	var out [4]mgl32.Vec2
	for i, c := range tileCorners {
		out[i] = mgl32.Vec2{origin.X() + c.X()*size.X(), origin.Y() + c.Y()*size.Y()}
	}
	return out
}
