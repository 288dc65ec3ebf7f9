package world

import (
	"errors"
	"fmt"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

const (
	// ChunkSize длина ребра чанка в блоках
	ChunkSize = 32
	// PaddedSize ребро хранилища: по одной ячейке-копии соседа с каждой стороны
	PaddedSize = ChunkSize + 2
	// PaddedVolume число ячеек в хранилище чанка
	PaddedVolume = PaddedSize * PaddedSize * PaddedSize
)

// ErrIndexOutOfRange обращение за пределы хранилища чанка. Это ошибка
// вызывающего кода (неверный перевод координат), поэтому Index паникует с ней.
var ErrIndexOutOfRange = errors.New("voxel index out of range")

// ErrPayloadSize возвращается, если массив блоков не совпадает по длине с PaddedVolume
var ErrPayloadSize = errors.New("chunk payload has wrong size")

// Chunk представляет кубический участок мира 32x32x32 блока.
//
// Blocks хранится с полями: ячейки с координатой 0 или PaddedSize-1 по любой
// оси содержат копию граничного слоя соседнего чанка. Логические координаты
// (x,y,z) в [0,ChunkSize) лежат в хранилище по адресу (x+1,y+1,z+1).
type Chunk struct {
	Coords vec.Vec3        // Координаты чанка в пространстве чанков
	Blocks []block.BlockID // PaddedVolume элементов, x меняется быстрее всех

	// Version увеличивается при каждом изменении, по нему отбрасываются устаревшие меши
	Version uint64
}

// NewChunk создаёт пустой (воздух) чанк с указанными координатами
func NewChunk(coords vec.Vec3) *Chunk {
	return &Chunk{
		Coords: coords,
		Blocks: make([]block.BlockID, PaddedVolume),
	}
}

// ChunkFromBlocks создаёт чанк из готового массива (например, после декодирования)
func ChunkFromBlocks(coords vec.Vec3, blocks []block.BlockID) (*Chunk, error) {
	if len(blocks) != PaddedVolume {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrPayloadSize, len(blocks), PaddedVolume)
	}
	return &Chunk{Coords: coords, Blocks: blocks}, nil
}

// Index возвращает линейный индекс ячейки хранилища: x + P*(y + P*z).
// Этот порядок совпадает с порядком сериализации кодека.
func Index(x, y, z int) int {
	if x < 0 || x >= PaddedSize || y < 0 || y >= PaddedSize || z < 0 || z >= PaddedSize {
		panic(fmt.Errorf("%w: (%d,%d,%d)", ErrIndexOutOfRange, x, y, z))
	}
	return x + PaddedSize*(y+PaddedSize*z)
}

// Get возвращает блок по логическим координатам [0,ChunkSize)
func (c *Chunk) Get(x, y, z int) block.BlockID {
	return c.Blocks[Index(x+1, y+1, z+1)]
}

// Set устанавливает блок по логическим координатам [0,ChunkSize)
func (c *Chunk) Set(x, y, z int, id block.BlockID) {
	c.Blocks[Index(x+1, y+1, z+1)] = id
	c.Version++
}

// GetUnpadded возвращает блок по координатам хранилища [0,PaddedSize)
func (c *Chunk) GetUnpadded(x, y, z int) block.BlockID {
	return c.Blocks[Index(x, y, z)]
}

// SetUnpadded устанавливает блок по координатам хранилища [0,PaddedSize)
func (c *Chunk) SetUnpadded(x, y, z int, id block.BlockID) {
	c.Blocks[Index(x, y, z)] = id
	c.Version++
}

// GetLocal то же, что Get, но принимает вектор
func (c *Chunk) GetLocal(local vec.Vec3) block.BlockID {
	return c.Get(local.X, local.Y, local.Z)
}

// SetLocal то же, что Set, но принимает вектор
func (c *Chunk) SetLocal(local vec.Vec3, id block.BlockID) {
	c.Set(local.X, local.Y, local.Z, id)
}

// Origin возвращает мировую позицию блока с логическими координатами (0,0,0)
func (c *Chunk) Origin() vec.Vec3 {
	return c.Coords.Scale(ChunkSize)
}

// IsEmpty возвращает true, если весь чанк (включая поля) состоит из воздуха
func (c *Chunk) IsEmpty() bool {
	for _, id := range c.Blocks {
		if id != block.AirBlockID {
			return false
		}
	}
	return true
}

// Clone возвращает независимую копию чанка (снимок для воркеров)
func (c *Chunk) Clone() *Chunk {
	blocks := make([]block.BlockID, len(c.Blocks))
	copy(blocks, c.Blocks)
	return &Chunk{
		Coords:  c.Coords,
		Blocks:  blocks,
		Version: c.Version,
	}
}

// Fill заполняет весь объём чанка (включая поля) одним блоком
func (c *Chunk) Fill(id block.BlockID) {
	for i := range c.Blocks {
		c.Blocks[i] = id
	}
	c.Version++
}

// FillLogical заполняет только логическую часть чанка, поля не трогает
func (c *Chunk) FillLogical(id block.BlockID) {
	for z := 0; z < ChunkSize; z++ {
		for y := 0; y < ChunkSize; y++ {
			for x := 0; x < ChunkSize; x++ {
				c.Blocks[Index(x+1, y+1, z+1)] = id
			}
		}
	}
	c.Version++
}

// CountBlocks возвращает число ячеек логической части с указанным блоком
func (c *Chunk) CountBlocks(id block.BlockID) int {
	n := 0
	for z := 0; z < ChunkSize; z++ {
		for y := 0; y < ChunkSize; y++ {
			for x := 0; x < ChunkSize; x++ {
				if c.Get(x, y, z) == id {
					n++
				}
			}
		}
	}
	return n
}

// isPadding возвращает true для ячеек поля (граница хранилища)
func isPadding(x, y, z int) bool {
	return x == 0 || y == 0 || z == 0 ||
		x == PaddedSize-1 || y == PaddedSize-1 || z == PaddedSize-1
}
