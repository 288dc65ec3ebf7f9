package engine

import (
	"errors"
	"sync"

	"github.com/annel0/voxel-engine/internal/protocol"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
)

// ErrBatchFull возвращается, когда пакет изменений переполнен до ближайшего тика
var ErrBatchFull = errors.New("edit batch is full")

// DefaultBatchCapacity сколько изменений принимается за один тик
const DefaultBatchCapacity = 4096

// Edit изменение блока в пакете. Peer заполняет сервер для изменений,
// пришедших от клиента: после применения они рассылаются остальным.
type Edit struct {
	protocol.BlockUpdate
	Peer string
}

// FlushResult итог применения пакета
type FlushResult struct {
	// Rebuild чанки, которым нужен новый меш, каждый не больше одного раза
	Rebuild []vec.Vec3
	// Outgoing применённые изменения для рассылки: локальные и пришедшие
	// от клиентов. Изменения без Peer с удалённым происхождением сюда не попадают.
	Outgoing []Edit
	// Applied сколько изменений легло в загруженные чанки
	Applied int
	// Dropped сколько изменений пришлось на незагруженные чанки
	Dropped int
}

// EditBatch накапливает изменения блоков между тиками. Добавлять можно из
// любой горутины (сетевые обработчики, API), применяет только Flush.
type EditBatch struct {
	mu       sync.Mutex
	buf      []Edit
	capacity int
}

// NewEditBatch создаёт пакет с указанным лимитом
func NewEditBatch(capacity int) *EditBatch {
	if capacity <= 0 {
		capacity = DefaultBatchCapacity
	}
	return &EditBatch{capacity: capacity}
}

// Add добавляет изменение в конец пакета
func (b *EditBatch) Add(u protocol.BlockUpdate) error {
	return b.AddFrom("", u)
}

// AddFrom добавляет изменение, полученное от клиента peer
func (b *EditBatch) AddFrom(peer string, u protocol.BlockUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buf) >= b.capacity {
		return ErrBatchFull
	}
	b.buf = append(b.buf, Edit{BlockUpdate: u, Peer: peer})
	return nil
}

// Len число ожидающих изменений
func (b *EditBatch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// take забирает накопленные изменения
func (b *EditBatch) take() []Edit {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 {
		return nil
	}
	out := make([]Edit, len(b.buf))
	copy(out, b.buf)
	b.buf = b.buf[:0]
	return out
}

// Flush применяет изменения к хранилищу в порядке поступления и возвращает
// список чанков для перестройки. Изменение незагруженного чанка отбрасывается
// и не рассылается.
func (b *EditBatch) Flush(store *world.Store) FlushResult {
	var res FlushResult
	edits := b.take()
	if len(edits) == 0 {
		return res
	}

	seen := make(map[vec.Vec3]struct{})
	for _, u := range edits {
		affected := store.SetBlock(u.Position, u.Block)
		if affected == nil {
			res.Dropped++
			continue
		}
		res.Applied++
		for _, c := range affected {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			res.Rebuild = append(res.Rebuild, c)
		}
		if u.Origin == protocol.OriginLocal || u.Peer != "" {
			res.Outgoing = append(res.Outgoing, u)
		}
	}
	return res
}
