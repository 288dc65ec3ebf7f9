package block

import (
	"errors"
	"fmt"
)

// ErrUnknownBlock возвращается при попытке преобразовать неизвестный код в BlockID
var ErrUnknownBlock = errors.New("unknown block id")

// BlockID представляет идентификатор блока. Значение совпадает с кодом на проводе.
type BlockID uint8

// Константы ID блоков
const (
	AirBlockID       BlockID = iota // 0
	StoneBlockID                    // 1
	DirtBlockID                     // 2
	GrassBlockID                    // 3
	SandBlockID                     // 4
	LogBlockID                      // 5
	LeavesBlockID                   // 6
	TallGrassBlockID                // 7 - растительность, рисуется крестом
	FlowerBlockID                   // 8 - растительность, рисуется крестом

	blockCount // всегда последний
)

// MeshKind определяет, как блок превращается в геометрию
type MeshKind uint8

const (
	MeshNone  MeshKind = iota // воздух, геометрии нет
	MeshCube                  // шесть граней
	MeshCross                 // два пересекающихся квада
)

func (k MeshKind) String() string {
	switch k {
	case MeshNone:
		return "none"
	case MeshCube:
		return "cube"
	case MeshCross:
		return "cross"
	default:
		return "unknown"
	}
}

// TextureID индекс тайла в текстурном атласе
type TextureID uint16

// Block описывает свойства типа блока
type Block struct {
	ID       BlockID
	Name     string
	Textures [FaceCount]TextureID // top, bottom, +x, -x, -z, +z
	Solid    bool
	Mesh     MeshKind
}

// Occludes возвращает true, если блок закрывает соседнюю грань куба
func (b Block) Occludes() bool {
	return b.Solid && b.Mesh == MeshCube
}

// Texture возвращает текстуру для грани
func (b Block) Texture(f Face) TextureID {
	return b.Textures[f]
}

// Registry даёт доступ к описаниям блоков (нужен для подмены таблицы в тестах)
type Registry interface {
	Get(id BlockID) (Block, bool)
}

// Table неизменяемая таблица блоков, индексируемая BlockID
type Table struct {
	blocks  [256]Block
	present [256]bool
}

// Get возвращает описание блока по ID
func (t *Table) Get(id BlockID) (Block, bool) {
	return t.blocks[id], t.present[id]
}

// NewTable собирает таблицу из списка описаний. Повтор ID считается ошибкой.
func NewTable(blocks ...Block) (*Table, error) {
	t := &Table{}
	for _, b := range blocks {
		if t.present[b.ID] {
			return nil, fmt.Errorf("duplicate block id %d (%s)", b.ID, b.Name)
		}
		t.blocks[b.ID] = b
		t.present[b.ID] = true
	}
	return t, nil
}

// Default глобальная таблица, собирается один раз при старте процесса
var Default *Table

func init() {
	t, err := NewTable(defaultBlocks()...)
	if err != nil {
		panic(err)
	}
	Default = t
}

func uniform(tex TextureID) [FaceCount]TextureID {
	return [FaceCount]TextureID{tex, tex, tex, tex, tex, tex}
}

func sides(top, bottom, side TextureID) [FaceCount]TextureID {
	return [FaceCount]TextureID{top, bottom, side, side, side, side}
}

// defaultBlocks описывает все известные блоки. Номера текстур соответствуют
// тайлам атласа 16x16 (строка*16 + колонка).
func defaultBlocks() []Block {
	return []Block{
		{ID: AirBlockID, Name: "air", Solid: false, Mesh: MeshNone},
		{ID: StoneBlockID, Name: "stone", Textures: uniform(1), Solid: true, Mesh: MeshCube},
		{ID: DirtBlockID, Name: "dirt", Textures: uniform(2), Solid: true, Mesh: MeshCube},
		{ID: GrassBlockID, Name: "grass", Textures: sides(0, 2, 3), Solid: true, Mesh: MeshCube},
		{ID: SandBlockID, Name: "sand", Textures: uniform(18), Solid: true, Mesh: MeshCube},
		{ID: LogBlockID, Name: "log", Textures: sides(21, 21, 20), Solid: true, Mesh: MeshCube},
		{ID: LeavesBlockID, Name: "leaves", Textures: uniform(52), Solid: true, Mesh: MeshCube},
		{ID: TallGrassBlockID, Name: "tall_grass", Textures: uniform(39), Solid: false, Mesh: MeshCross},
		{ID: FlowerBlockID, Name: "flower", Textures: uniform(12), Solid: false, Mesh: MeshCross},
	}
}

// Get возвращает описание блока из глобальной таблицы
func Get(id BlockID) (Block, bool) {
	return Default.Get(id)
}

// MustGet возвращает описание блока или паникует для неизвестного ID
func MustGet(id BlockID) Block {
	b, ok := Default.Get(id)
	if !ok {
		panic(fmt.Sprintf("block %d is not registered", id))
	}
	return b
}

// IsValidBlockID проверяет, является ли ID допустимым идентификатором блока
func IsValidBlockID(id BlockID) bool {
	_, exists := Default.Get(id)
	return exists
}

// All возвращает все зарегистрированные блоки в порядке возрастания ID
func All() []Block {
	out := make([]Block, 0, blockCount)
	for i := 0; i < 256; i++ {
		if b, ok := Default.Get(BlockID(i)); ok {
			out = append(out, b)
		}
	}
	return out
}

// ByName ищет блок по имени
func ByName(name string) (Block, bool) {
	for _, b := range All() {
		if b.Name == name {
			return b, true
		}
	}
	return Block{}, false
}

// Code возвращает код блока на проводе
func (id BlockID) Code() int32 {
	return int32(id)
}

// FromCode преобразует код с провода в BlockID.
// Неизвестный код считается ошибкой, а не воздухом.
func FromCode(code int32) (BlockID, error) {
	if code < 0 || code > 255 || !IsValidBlockID(BlockID(code)) {
		return AirBlockID, fmt.Errorf("%w: %d", ErrUnknownBlock, code)
	}
	return BlockID(code), nil
}

func (id BlockID) String() string {
	if b, ok := Get(id); ok {
		return b.Name
	}
	return fmt.Sprintf("block(%d)", uint8(id))
}
