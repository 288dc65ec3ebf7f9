package world

import (
	"sort"
	"sync"

	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// Store хранит загруженные чанки по их координатам.
//
// Писатель один (цикл тика движка), читателей может быть много: воркеры
// берут снимки через Snapshot и не держат блокировку во время работы.
type Store struct {
	mu     sync.RWMutex
	chunks map[vec.Vec3]*Chunk
	logger *logging.Logger
}

// NewStore создаёт пустое хранилище чанков
func NewStore() *Store {
	return &Store{
		chunks: make(map[vec.Vec3]*Chunk),
		logger: logging.GetWorldLogger(),
	}
}

// ChunkCoordsOf возвращает координаты чанка, которому принадлежит мировая позиция
func ChunkCoordsOf(pos vec.Vec3) vec.Vec3 {
	return pos.FloorDiv(ChunkSize)
}

// LocalCoordsOf возвращает логические координаты позиции внутри её чанка, всегда [0,ChunkSize)
func LocalCoordsOf(pos vec.Vec3) vec.Vec3 {
	return pos.FloorMod(ChunkSize)
}

// WorldCoordsOf обратное преобразование: чанк + локальные координаты -> мировая позиция
func WorldCoordsOf(chunk, local vec.Vec3) vec.Vec3 {
	return chunk.Scale(ChunkSize).Add(local)
}

// Insert добавляет чанк, заменяя существующий с теми же координатами.
// После вставки поля самого чанка и его 26 соседей пересчитываются.
// Версия по координатам только растёт, даже если чанк заменён целиком.
func (s *Store) Insert(c *Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.chunks[c.Coords]; ok && c.Version <= old.Version {
		c.Version = old.Version + 1
	}
	s.chunks[c.Coords] = c
	s.refreshAround(c.Coords)
}

// Remove выгружает чанк. Отсутствующий чанк не ошибка.
func (s *Store) Remove(coords vec.Vec3) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chunks[coords]; !ok {
		return false
	}
	delete(s.chunks, coords)
	return true
}

// Len возвращает число загруженных чанков
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Coords возвращает координаты всех загруженных чанков в детерминированном порядке
func (s *Store) Coords() []vec.Vec3 {
	s.mu.RLock()
	out := make([]vec.Vec3, 0, len(s.chunks))
	for c := range s.chunks {
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return out
}

// Chunk возвращает чанк по координатам чанка
func (s *Store) Chunk(coords vec.Vec3) (*Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[coords]
	return c, ok
}

// ChunkAt возвращает чанк, которому принадлежит мировая позиция блока
func (s *Store) ChunkAt(pos vec.Vec3) (*Chunk, bool) {
	return s.Chunk(ChunkCoordsOf(pos))
}

// Get возвращает чанк, содержащий точку с плавающими координатами
func (s *Store) Get(pos vec.Vec3Float) (*Chunk, bool) {
	return s.ChunkAt(pos.Floor())
}

// Snapshot возвращает копию чанка, которую можно передать воркеру
func (s *Store) Snapshot(coords vec.Vec3) (*Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[coords]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Instantiate возвращает координаты отсутствующих чанков в кубе
// [center-radius, center+radius) по каждой оси. Сам метод ничего не создаёт.
func (s *Store) Instantiate(center, radius vec.Vec3) []vec.Vec3 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []vec.Vec3
	for z := center.Z - radius.Z; z < center.Z+radius.Z; z++ {
		for y := center.Y - radius.Y; y < center.Y+radius.Y; y++ {
			for x := center.X - radius.X; x < center.X+radius.X; x++ {
				c := vec.Vec3{X: x, Y: y, Z: z}
				if _, ok := s.chunks[c]; !ok {
					out = append(out, c)
				}
			}
		}
	}
	return out
}

// InstantiateRadius то же, что Instantiate, с одинаковым радиусом по всем осям
func (s *Store) InstantiateRadius(center vec.Vec3, radius int) []vec.Vec3 {
	return s.Instantiate(center, vec.Splat(radius))
}

// GetBlock возвращает блок по мировой позиции; false, если чанк не загружен
func (s *Store) GetBlock(pos vec.Vec3) (block.BlockID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chunks[ChunkCoordsOf(pos)]
	if !ok {
		return block.AirBlockID, false
	}
	return c.GetLocal(LocalCoordsOf(pos)), true
}

// IsSolidAt сообщает, твёрдый ли блок в позиции. Незагруженный чанк считается пустым.
func (s *Store) IsSolidAt(pos vec.Vec3) bool {
	id, ok := s.GetBlock(pos)
	if !ok {
		return false
	}
	b, ok := block.Get(id)
	return ok && b.Solid
}

// SetBlock записывает блок в чанк-владелец и во все ячейки полей соседей,
// которые кэшируют эту позицию. Возвращает координаты затронутых чанков
// (владелец первым). Если чанк не загружен, изменение отбрасывается.
func (s *Store) SetBlock(pos vec.Vec3, id block.BlockID) []vec.Vec3 {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner := ChunkCoordsOf(pos)
	c, ok := s.chunks[owner]
	if !ok {
		s.logger.Warn("SetBlock: чанк %v для позиции %v не загружен, изменение отброшено", owner, pos)
		return nil
	}

	local := LocalCoordsOf(pos)
	c.SetLocal(local, id)
	affected := []vec.Vec3{owner}

	// Позиция на границе попадает в поля до 7 соседей (грань, ребро, угол)
	dxs := neighborSteps(local.X)
	dys := neighborSteps(local.Y)
	dzs := neighborSteps(local.Z)
	for _, dz := range dzs {
		for _, dy := range dys {
			for _, dx := range dxs {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				nc := owner.Add(vec.Vec3{X: dx, Y: dy, Z: dz})
				n, ok := s.chunks[nc]
				if !ok {
					continue
				}
				// В хранилище соседа позиция лежит за его логической областью
				n.SetUnpadded(
					local.X+1-dx*ChunkSize,
					local.Y+1-dy*ChunkSize,
					local.Z+1-dz*ChunkSize,
					id,
				)
				affected = append(affected, nc)
			}
		}
	}
	return affected
}

// neighborSteps возвращает смещения чанков по оси, в поля которых попадает локальная координата
func neighborSteps(l int) []int {
	switch l {
	case 0:
		return []int{0, -1}
	case ChunkSize - 1:
		return []int{0, 1}
	default:
		return []int{0}
	}
}

// RefreshPadding копирует граничные слои загруженных соседей в поля чанка.
// Поля напротив незагруженных соседей не меняются.
func (s *Store) RefreshPadding(coords vec.Vec3) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chunks[coords]
	if !ok {
		return false
	}
	s.fillPadding(c, s.chunks)
	return true
}

// FillPadding заполняет поля произвольного чанка (например, снимка) из соседей в хранилище
func (s *Store) FillPadding(c *Chunk) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.fillPadding(c, s.chunks)
}

func (s *Store) refreshAround(center vec.Vec3) {
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if c, ok := s.chunks[center.Add(vec.Vec3{X: dx, Y: dy, Z: dz})]; ok {
					s.fillPadding(c, s.chunks)
				}
			}
		}
	}
}

// fillPadding проходит по всем ячейкам полей и копирует значение из соседнего чанка.
// Вызывающий держит блокировку.
func (s *Store) fillPadding(c *Chunk, chunks map[vec.Vec3]*Chunk) {
	origin := c.Origin()
	var cached vec.Vec3
	var neighbor *Chunk

	for z := 0; z < PaddedSize; z++ {
		for y := 0; y < PaddedSize; y++ {
			for x := 0; x < PaddedSize; x++ {
				if !isPadding(x, y, z) {
					continue
				}
				pos := origin.Add(vec.Vec3{X: x - 1, Y: y - 1, Z: z - 1})
				nc := ChunkCoordsOf(pos)
				if neighbor == nil || !cached.Equals(nc) {
					cached = nc
					neighbor = chunks[nc]
				}
				if neighbor == nil {
					continue
				}
				c.Blocks[Index(x, y, z)] = neighbor.GetLocal(LocalCoordsOf(pos))
			}
		}
	}
	c.Version++
}
