// Package engine связывает хранилище чанков, генератор, построитель мешей
// и пул воркеров в один цикл тиков с единственным писателем.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/voxel-engine/internal/cache"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/mesh"
	"github.com/annel0/voxel-engine/internal/protocol"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/annel0/voxel-engine/internal/world/codec"
)

// Config настройки движка
type Config struct {
	Workers       int
	Generator     world.GeneratorParams
	Generate      bool // генерировать недостающие чанки (сервер); клиент только получает
	BuildMeshes   bool // строить меши (клиент); серверу они не нужны
	BatchCapacity int

	Registerer   prometheus.Registerer // nil - метрики не регистрируются
	PayloadCache cache.PayloadCache    // nil - чанки кодируются при каждом запросе
}

// DefaultConfig конфигурация для указанного сида
func DefaultConfig(seed int64) Config {
	return Config{
		Generator:     world.DefaultGeneratorParams(seed),
		Generate:      true,
		BuildMeshes:   true,
		BatchCapacity: DefaultBatchCapacity,
	}
}

// TickResult что произошло за один шаг
type TickResult struct {
	Tick      uint64
	Committed []vec.Vec3             // вставленные чанки
	Scheduled []vec.Vec3             // чанки, отправленные на построение меша
	Meshed    []vec.Vec3             // чанки с новым мешем
	Outgoing  []Edit                 // применённые изменения для рассылки
	Applied   int                    // применённые изменения блоков
}

// Stats снимок состояния для отладочного API
type Stats struct {
	Tick            uint64        `json:"tick"`
	Chunks          int           `json:"chunks"`
	Meshes          int           `json:"meshes"`
	PendingGenerate int           `json:"pending_generate"`
	PendingMesh     int           `json:"pending_mesh"`
	PendingEdits    int           `json:"pending_edits"`
	PendingRequests int           `json:"pending_requests"`
	PendingInbox    int           `json:"pending_inbox"`
	Fingerprint     uint64        `json:"generator_fingerprint"`
	Cache           cache.Metrics `json:"cache"`
}

type meshEntry struct {
	version  uint64
	geometry *mesh.GeometryData
}

// chunkRequest ожидает загрузки всех координат, затем отвечает
type chunkRequest struct {
	coords []vec.Vec3
	reply  func([]protocol.ChunkData)
}

var ErrNotLoaded = errors.New("chunk is not loaded")

// Engine владеет миром. Все изменения хранилища выполняются внутри Tick;
// остальные методы только ставят работу в очередь или читают.
type Engine struct {
	cfg       Config
	store     *world.Store
	generator *world.Generator
	builder   *mesh.Builder
	workers   *Workers
	batch     *EditBatch
	payloads  cache.PayloadCache
	metrics   *Metrics
	logger    *logging.Logger

	inboxMu  sync.Mutex
	inbox    []*world.Chunk
	requests []chunkRequest

	meshMu sync.RWMutex
	meshes map[vec.Vec3]meshEntry

	hooksMu   sync.RWMutex
	broadcast func([]Edit)
	onCommit  func([]vec.Vec3)

	tick atomic.Uint64
}

// New создаёт движок с пустым хранилищем
func New(cfg Config) *Engine {
	gen := world.NewGenerator(cfg.Generator)
	builder := mesh.NewBuilder()

	var workerGen *world.Generator
	if cfg.Generate {
		workerGen = gen
	}

	return &Engine{
		cfg:       cfg,
		store:     world.NewStore(),
		generator: gen,
		builder:   builder,
		workers:   NewWorkers(cfg.Workers, workerGen, builder),
		batch:     NewEditBatch(cfg.BatchCapacity),
		payloads:  cfg.PayloadCache,
		metrics:   NewMetrics(cfg.Registerer),
		logger:    logging.GetWorldLogger(),
		meshes:    make(map[vec.Vec3]meshEntry),
	}
}

// Store возвращает хранилище для чтения
func (e *Engine) Store() *world.Store { return e.store }

// Generator возвращает генератор мира
func (e *Engine) Generator() *world.Generator { return e.generator }

// Fingerprint отпечаток параметров генератора
func (e *Engine) Fingerprint() uint64 { return e.cfg.Generator.Fingerprint() }

// SetBroadcaster задаёт функцию рассылки изменений. Вызывается из Tick
// только с изменениями, которые действительно легли в хранилище.
func (e *Engine) SetBroadcaster(fn func([]Edit)) {
	e.hooksMu.Lock()
	e.broadcast = fn
	e.hooksMu.Unlock()
}

// SetCommitListener задаёт функцию, которую Tick вызывает с координатами
// чанков, вставленных в хранилище за этот тик
func (e *Engine) SetCommitListener(fn func([]vec.Vec3)) {
	e.hooksMu.Lock()
	e.onCommit = fn
	e.hooksMu.Unlock()
}

// RequestArea ставит в очередь генерацию отсутствующих чанков вокруг центра.
// Возвращает координаты, для которых задача действительно поставлена.
func (e *Engine) RequestArea(center vec.Vec3, radius int) []vec.Vec3 {
	if !e.cfg.Generate {
		return nil
	}
	var submitted []vec.Vec3
	for _, c := range e.store.InstantiateRadius(center, radius) {
		if e.workers.SubmitGenerate(c) {
			submitted = append(submitted, c)
		}
	}
	return submitted
}

// RequestChunks ответит reply закодированными чанками, когда все они будут
// загружены. reply вызывается из Tick. Недостающие чанки генерируются,
// если генерация включена; иначе в ответ попадут только загруженные.
func (e *Engine) RequestChunks(coords []vec.Vec3, reply func([]protocol.ChunkData)) {
	e.inboxMu.Lock()
	e.requests = append(e.requests, chunkRequest{
		coords: append([]vec.Vec3(nil), coords...),
		reply:  reply,
	})
	e.inboxMu.Unlock()
}

// ApplyRemoteChunk декодирует чанк, полученный по сети, и ставит его на вставку
// в ближайший тик. Повреждённый поток отклоняется целиком.
func (e *Engine) ApplyRemoteChunk(coords vec.Vec3, payload []byte) error {
	c, err := codec.DecodeChunk(coords, payload)
	if err != nil {
		e.metrics.decodeErrors.Inc()
		e.logger.LogDecodeError(fmt.Sprintf("chunk %v", coords), err, payload)
		return err
	}

	e.inboxMu.Lock()
	e.inbox = append(e.inbox, c)
	e.inboxMu.Unlock()
	return nil
}

// SubmitEdit ставит изменение блока в пакет текущего тика
func (e *Engine) SubmitEdit(u protocol.BlockUpdate) error {
	if err := e.batch.Add(u); err != nil {
		e.metrics.editsDropped.Inc()
		return err
	}
	return nil
}

// SubmitPeerEdit ставит изменение, полученное от клиента peer. После
// применения оно попадёт в рассылку с этим Peer; отброшенное не рассылается.
func (e *Engine) SubmitPeerEdit(peer string, u protocol.BlockUpdate) error {
	if err := e.batch.AddFrom(peer, u); err != nil {
		e.metrics.editsDropped.Inc()
		return err
	}
	return nil
}

// SetBlock ставит локальное изменение блока
func (e *Engine) SetBlock(pos vec.Vec3, id block.BlockID) error {
	return e.SubmitEdit(protocol.BlockUpdate{Position: pos, Block: id, Origin: protocol.OriginLocal})
}

// GetBlock читает блок из хранилища
func (e *Engine) GetBlock(pos vec.Vec3) (block.BlockID, bool) {
	return e.store.GetBlock(pos)
}

// Mesh возвращает последний построенный меш чанка. Второе значение false,
// если меш ещё не строился; nil-геометрия с true означает пустой чанк.
func (e *Engine) Mesh(coords vec.Vec3) (*mesh.GeometryData, bool) {
	e.meshMu.RLock()
	defer e.meshMu.RUnlock()
	m, ok := e.meshes[coords]
	return m.geometry, ok
}

// ChunkInfo краткое описание загруженного чанка
type ChunkInfo struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Z         int    `json:"z"`
	Version   uint64 `json:"version"`
	NonAir    int    `json:"non_air"`
	HasMesh   bool   `json:"has_mesh"`
	MeshFaces int    `json:"mesh_faces"`
}

// ChunkInfo возвращает описание чанка; false, если он не загружен
func (e *Engine) ChunkInfo(coords vec.Vec3) (ChunkInfo, bool) {
	snap, ok := e.store.Snapshot(coords)
	if !ok {
		return ChunkInfo{}, false
	}
	info := ChunkInfo{
		X:       coords.X,
		Y:       coords.Y,
		Z:       coords.Z,
		Version: snap.Version,
		NonAir:  world.ChunkSize*world.ChunkSize*world.ChunkSize - snap.CountBlocks(block.AirBlockID),
	}
	if g, ok := e.Mesh(coords); ok {
		info.HasMesh = true
		info.MeshFaces = g.FaceCount()
	}
	return info, true
}

// ChunkPayload возвращает закодированный чанк, используя кеш по версии
func (e *Engine) ChunkPayload(coords vec.Vec3) ([]byte, error) {
	snap, ok := e.store.Snapshot(coords)
	if !ok {
		return nil, ErrNotLoaded
	}
	if e.payloads != nil {
		if data, ok := e.payloads.Get(coords, snap.Version); ok {
			return data, nil
		}
	}
	data := codec.EncodeChunk(snap)
	if e.payloads != nil {
		e.payloads.Set(coords, snap.Version, data)
	}
	return data, nil
}

// Tick выполняет один шаг: вставляет готовые чанки, применяет пакет
// изменений, ставит перестройку мешей и забирает готовые меши.
func (e *Engine) Tick() TickResult {
	start := time.Now()
	res := TickResult{Tick: e.tick.Add(1)}
	rebuild := newCoordSet()

	// 1. Готовые чанки: сгенерированные и пришедшие по сети
	for _, r := range e.workers.DrainGenerated() {
		e.commitChunk(r.Chunk, rebuild)
		e.metrics.chunksGenerated.Inc()
		res.Committed = append(res.Committed, r.Coords)
	}
	e.inboxMu.Lock()
	inbox := e.inbox
	e.inbox = nil
	e.inboxMu.Unlock()
	for _, c := range inbox {
		e.commitChunk(c, rebuild)
		res.Committed = append(res.Committed, c.Coords)
	}
	if len(res.Committed) > 0 {
		e.hooksMu.RLock()
		fn := e.onCommit
		e.hooksMu.RUnlock()
		if fn != nil {
			fn(res.Committed)
		}
	}

	// 2. Изменения блоков, строго после вставки чанков
	flushed := e.batch.Flush(e.store)
	for _, c := range flushed.Rebuild {
		rebuild.add(c)
	}
	res.Applied = flushed.Applied
	res.Outgoing = flushed.Outgoing
	e.countEdits(flushed)

	// 3. Запросы чанков, которые теперь можно удовлетворить
	e.serveRequests()

	// 4. Готовые меши; устаревшие отправляются на повторное построение
	for _, r := range e.workers.DrainMeshes() {
		if e.commitMesh(r) {
			res.Meshed = append(res.Meshed, r.Coords)
		} else if _, loaded := e.store.Chunk(r.Coords); loaded {
			rebuild.add(r.Coords)
		}
	}

	// 5. Перестройка мешей после того, как все записи тика сделаны
	if e.cfg.BuildMeshes {
		for _, c := range rebuild.list {
			snap, ok := e.store.Snapshot(c)
			if !ok {
				continue
			}
			if e.workers.SubmitMesh(snap, snap.Version) {
				res.Scheduled = append(res.Scheduled, c)
			}
		}
	}

	if len(res.Outgoing) > 0 {
		e.hooksMu.RLock()
		fn := e.broadcast
		e.hooksMu.RUnlock()
		if fn != nil {
			fn(res.Outgoing)
		}
	}

	e.metrics.chunksLoaded.Set(float64(e.store.Len()))
	e.metrics.tickDuration.Observe(time.Since(start).Seconds())
	return res
}

// commitChunk вставляет чанк и помечает для перестройки его и загруженных соседей,
// чьи поля изменились
func (e *Engine) commitChunk(c *world.Chunk, rebuild *coordSet) {
	e.store.Insert(c)
	if e.payloads != nil {
		e.payloads.Invalidate(c.Coords)
	}
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				n := c.Coords.Add(vec.Vec3{X: dx, Y: dy, Z: dz})
				if _, ok := e.store.Chunk(n); ok {
					rebuild.add(n)
				}
			}
		}
	}
}

// commitMesh сохраняет меш, если чанк не менялся после снятия копии
func (e *Engine) commitMesh(r MeshResult) bool {
	c, ok := e.store.Chunk(r.Coords)
	if !ok || c.Version != r.Version {
		e.metrics.meshesStale.Inc()
		return false
	}

	e.meshMu.Lock()
	e.meshes[r.Coords] = meshEntry{version: r.Version, geometry: r.Geometry}
	e.meshMu.Unlock()

	e.metrics.meshesBuilt.Inc()
	e.metrics.meshFaces.Observe(float64(r.Geometry.FaceCount()))
	return true
}

func (e *Engine) countEdits(f FlushResult) {
	local := 0
	for _, u := range f.Outgoing {
		if u.Origin == protocol.OriginLocal {
			local++
		}
	}
	e.metrics.editsApplied.WithLabelValues(protocol.OriginLocal.String()).Add(float64(local))
	e.metrics.editsApplied.WithLabelValues(protocol.OriginRemote.String()).Add(float64(f.Applied - local))
	if f.Dropped > 0 {
		e.metrics.editsDropped.Add(float64(f.Dropped))
		e.logger.Debug("Отброшено %d изменений в незагруженных чанках", f.Dropped)
	}
}

func (e *Engine) serveRequests() {
	e.inboxMu.Lock()
	pending := e.requests
	e.requests = nil
	e.inboxMu.Unlock()

	var waiting []chunkRequest
	for _, req := range pending {
		ready := true
		for _, c := range req.coords {
			if _, ok := e.store.Chunk(c); ok {
				continue
			}
			if e.cfg.Generate {
				ready = false
				e.workers.SubmitGenerate(c)
			}
		}
		if !ready {
			waiting = append(waiting, req)
			continue
		}

		out := make([]protocol.ChunkData, 0, len(req.coords))
		for _, c := range req.coords {
			data, err := e.ChunkPayload(c)
			if err != nil {
				continue
			}
			out = append(out, protocol.ChunkData{Coords: c, Payload: data})
		}
		req.reply(out)
	}

	if len(waiting) > 0 {
		e.inboxMu.Lock()
		e.requests = append(waiting, e.requests...)
		e.inboxMu.Unlock()
	}
}

// Stats снимок состояния
func (e *Engine) Stats() Stats {
	gen, meshPending := e.workers.Pending()

	e.meshMu.RLock()
	meshes := len(e.meshes)
	e.meshMu.RUnlock()

	e.inboxMu.Lock()
	requests := len(e.requests)
	inbox := len(e.inbox)
	e.inboxMu.Unlock()

	s := Stats{
		Tick:            e.tick.Load(),
		Chunks:          e.store.Len(),
		Meshes:          meshes,
		PendingGenerate: gen,
		PendingMesh:     meshPending,
		PendingEdits:    e.batch.Len(),
		PendingRequests: requests,
		PendingInbox:    inbox,
		Fingerprint:     e.Fingerprint(),
	}
	if e.payloads != nil {
		s.Cache = e.payloads.Metrics()
	}
	return s
}

// Run вызывает Tick с заданным интервалом до отмены контекста
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Stop останавливает воркеров
func (e *Engine) Stop() {
	e.workers.Stop()
}

// coordSet множество координат с сохранением порядка добавления
type coordSet struct {
	seen map[vec.Vec3]struct{}
	list []vec.Vec3
}

func newCoordSet() *coordSet {
	return &coordSet{seen: make(map[vec.Vec3]struct{})}
}

func (s *coordSet) add(c vec.Vec3) {
	if _, ok := s.seen[c]; ok {
		return
	}
	s.seen[c] = struct{}{}
	s.list = append(s.list, c)
}
