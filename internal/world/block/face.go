package block

import "github.com/annel0/voxel-engine/internal/vec"

// Face определяет грань куба. Порядок фиксирован и совпадает
// с порядком текстур в Block.Textures.
type Face uint8

const (
	FaceTop    Face = iota // +Y
	FaceBottom             // -Y
	FacePosX               // +X
	FaceNegX               // -X
	FaceNegZ               // -Z
	FacePosZ               // +Z

	FaceCount // всегда последний
)

// Faces перечисляет все грани в каноническом порядке
var Faces = [FaceCount]Face{FaceTop, FaceBottom, FacePosX, FaceNegX, FaceNegZ, FacePosZ}

var faceOffsets = [FaceCount]vec.Vec3{
	FaceTop:    {X: 0, Y: 1, Z: 0},
	FaceBottom: {X: 0, Y: -1, Z: 0},
	FacePosX:   {X: 1, Y: 0, Z: 0},
	FaceNegX:   {X: -1, Y: 0, Z: 0},
	FaceNegZ:   {X: 0, Y: 0, Z: -1},
	FacePosZ:   {X: 0, Y: 0, Z: 1},
}

var faceNames = [FaceCount]string{"top", "bottom", "+x", "-x", "-z", "+z"}

// Offset возвращает смещение к соседней ячейке через эту грань
func (f Face) Offset() vec.Vec3 {
	return faceOffsets[f]
}

// Normal возвращает внешнюю нормаль грани
func (f Face) Normal() [3]float32 {
	o := faceOffsets[f]
	return [3]float32{float32(o.X), float32(o.Y), float32(o.Z)}
}

// Bit возвращает бит грани в маске видимости
func (f Face) Bit() uint8 {
	return 1 << f
}

func (f Face) String() string {
	if f < FaceCount {
		return faceNames[f]
	}
	return "unknown"
}
