package util

import (
	"encoding/binary"
	"math"

	"github.com/aquilax/go-perlin"
	"github.com/cespare/xxhash/v2"

	"github.com/annel0/voxel-engine/internal/vec"
)

// NoiseParams описывает многооктавный шум
type NoiseParams struct {
	Octaves     int           // Количество октав
	Frequency   vec.Vec3Float // Базовая частота по каждой оси
	Amplitude   float64       // Амплитуда первой октавы
	Persistence float64       // Множитель амплитуды между октавами
	Lacunarity  float64       // Множитель частоты между октавами
}

// DefaultNoiseParams параметры, дающие холмистый рельеф с высотой порядка сотни блоков
func DefaultNoiseParams() NoiseParams {
	return NoiseParams{
		Octaves:     4,
		Frequency:   vec.Vec3Float{X: 0.01, Y: 0.02, Z: 0.01},
		Amplitude:   1.0,
		Persistence: 0.5,
		Lacunarity:  2.0,
	}
}

// latticePeriod период решётки градиентов go-perlin (таблица из 256 элементов)
const latticePeriod = 256.0

// wrap переносит координату в [0, latticePeriod). Шум периодичен с этим
// периодом, а Noise3D при z < 0 молча переходит на Noise2D и теряет ось z.
func wrap(v float64) float64 {
	v = math.Mod(v, latticePeriod)
	if v < 0 {
		v += latticePeriod
	}
	return v
}

// Fractal суммирует октавы шума Перлина. После создания только читается,
// поэтому один экземпляр можно использовать из нескольких воркеров.
type Fractal struct {
	params NoiseParams
	base   *perlin.Perlin
	norm   float64
}

// NewFractal создаёт генератор шума с указанным сидом
func NewFractal(params NoiseParams, seed int64) *Fractal {
	if params.Octaves < 1 {
		params.Octaves = 1
	}

	// Одна октава в perlin: октавы складываем сами, чтобы частота была своей по каждой оси
	alpha := 2.0
	beta := 2.0
	base := perlin.NewPerlin(alpha, beta, 1, seed)

	// Сумма амплитуд, чтобы результат оставался в [-Amplitude, Amplitude]
	norm := 0.0
	amp := 1.0
	for i := 0; i < params.Octaves; i++ {
		norm += amp
		amp *= params.Persistence
	}
	if norm == 0 {
		norm = 1
	}

	return &Fractal{params: params, base: base, norm: norm}
}

// Params возвращает параметры шума
func (f *Fractal) Params() NoiseParams {
	return f.params
}

// Sample3D возвращает значение шума в точке, примерно в [-Amplitude, Amplitude]
func (f *Fractal) Sample3D(x, y, z float64) float64 {
	p := f.params
	sum := 0.0
	amp := 1.0
	freq := 1.0
	for i := 0; i < p.Octaves; i++ {
		sum += amp * f.base.Noise3D(
			wrap(x*p.Frequency.X*freq),
			wrap(y*p.Frequency.Y*freq),
			wrap(z*p.Frequency.Z*freq),
		)
		amp *= p.Persistence
		freq *= p.Lacunarity
	}
	return p.Amplitude * sum / f.norm
}

// Hash3 детерминированный хэш целочисленной позиции, равномерный в [0,1)
func Hash3(seed int64, x, y, z int) float64 {
	var buf [32]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(seed))
	binary.LittleEndian.PutUint64(buf[8:], uint64(int64(x)))
	binary.LittleEndian.PutUint64(buf[16:], uint64(int64(y)))
	binary.LittleEndian.PutUint64(buf[24:], uint64(int64(z)))
	h := xxhash.Sum64(buf[:])
	return float64(h>>11) / float64(uint64(1)<<53)
}
