package world

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/annel0/voxel-engine/internal/util"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// GeneratorParams параметры генерации рельефа
type GeneratorParams struct {
	Seed  int64
	Noise util.NoiseParams

	BaseHeight  float64 // Высота, на которой плотность без шума равна нулю
	HeightScale float64 // На сколько блоков плотность падает на единицу

	StoneThreshold float64 // Плотность выше порога - камень
	DirtThreshold  float64 // Плотность выше порога - земля, ниже (но > 0) - трава
	FoliageChance  float64 // Вероятность растительности над травой, [0,1]
}

// DefaultGeneratorParams параметры по умолчанию для указанного сида
func DefaultGeneratorParams(seed int64) GeneratorParams {
	return GeneratorParams{
		Seed:           seed,
		Noise:          util.DefaultNoiseParams(),
		BaseHeight:     32,
		HeightScale:    24,
		StoneThreshold: 0.25,
		DirtThreshold:  0.05,
		FoliageChance:  0.08,
	}
}

// Fingerprint возвращает хэш параметров. Клиент и сервер сравнивают его
// при рукопожатии, чтобы заметить расхождение генераторов.
func (p GeneratorParams) Fingerprint() uint64 {
	h := xxhash.New()
	var buf [8]byte
	putU := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	putF := func(v float64) { putU(math.Float64bits(v)) }

	putU(uint64(p.Seed))
	putU(uint64(p.Noise.Octaves))
	putF(p.Noise.Frequency.X)
	putF(p.Noise.Frequency.Y)
	putF(p.Noise.Frequency.Z)
	putF(p.Noise.Amplitude)
	putF(p.Noise.Persistence)
	putF(p.Noise.Lacunarity)
	putF(p.BaseHeight)
	putF(p.HeightScale)
	putF(p.StoneThreshold)
	putF(p.DirtThreshold)
	putF(p.FoliageChance)
	return h.Sum64()
}

// Generator заполняет чанки по 3D-полю плотности.
// Чистая функция от (параметры, позиция), безопасен для параллельного вызова.
type Generator struct {
	params GeneratorParams
	noise  *util.Fractal
}

// NewGenerator создаёт генератор
func NewGenerator(params GeneratorParams) *Generator {
	if params.HeightScale == 0 {
		params.HeightScale = 1
	}
	return &Generator{
		params: params,
		noise:  util.NewFractal(params.Noise, params.Seed),
	}
}

// Params возвращает параметры генератора
func (g *Generator) Params() GeneratorParams {
	return g.params
}

// Density значение поля плотности в мировой позиции
func (g *Generator) Density(x, y, z int) float64 {
	n := g.noise.Sample3D(float64(x), float64(y), float64(z))
	return n + (g.params.BaseHeight-float64(y))/g.params.HeightScale
}

func (g *Generator) classify(d float64) block.BlockID {
	switch {
	case d > g.params.StoneThreshold:
		return block.StoneBlockID
	case d > g.params.DirtThreshold:
		return block.DirtBlockID
	case d > 0:
		return block.GrassBlockID
	default:
		return block.AirBlockID
	}
}

// BlockAt возвращает блок в мировой позиции
func (g *Generator) BlockAt(pos vec.Vec3) block.BlockID {
	id := g.classify(g.Density(pos.X, pos.Y, pos.Z))
	if id != block.AirBlockID {
		return id
	}

	// Растительность только в воздухе прямо над травой
	if g.params.FoliageChance <= 0 {
		return id
	}
	if g.classify(g.Density(pos.X, pos.Y-1, pos.Z)) != block.GrassBlockID {
		return id
	}
	h := util.Hash3(g.params.Seed, pos.X, pos.Y, pos.Z)
	if h >= g.params.FoliageChance {
		return id
	}
	// Нижняя часть интервала - цветы, остальное - трава
	if h < g.params.FoliageChance*0.25 {
		return block.FlowerBlockID
	}
	return block.TallGrassBlockID
}

// Generate заполняет все ячейки чанка, включая поля, так что
// свежий чанк сразу согласован с будущими соседями.
func (g *Generator) Generate(c *Chunk) {
	origin := c.Origin()
	for z := 0; z < PaddedSize; z++ {
		for y := 0; y < PaddedSize; y++ {
			for x := 0; x < PaddedSize; x++ {
				pos := origin.Add(vec.Vec3{X: x - 1, Y: y - 1, Z: z - 1})
				c.Blocks[Index(x, y, z)] = g.BlockAt(pos)
			}
		}
	}
	c.Version++
}

// GenerateChunk создаёт и заполняет новый чанк
func (g *Generator) GenerateChunk(coords vec.Vec3) *Chunk {
	c := NewChunk(coords)
	g.Generate(c)
	return c
}
