package engine

import (
	"runtime"
	"sync"

	"github.com/alitto/pond/v2"

	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/mesh"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
)

// GenerateResult готовый чанк от воркера генерации
type GenerateResult struct {
	Coords vec.Vec3
	Chunk  *world.Chunk
}

// MeshResult готовый меш. Version - версия чанка в хранилище на момент
// снятия копии; по ней потребитель отбрасывает устаревшие результаты.
type MeshResult struct {
	Coords   vec.Vec3
	Version  uint64
	Geometry *mesh.GeometryData
}

const resultBuffer = 1024

// Workers выполняет генерацию и построение мешей в пуле горутин.
// Воркеры работают только с собственными копиями чанков и ничего не пишут
// в хранилище: результаты забирает единственный потребитель (Engine.Tick).
type Workers struct {
	pool      pond.Pool
	generator *world.Generator
	builder   *mesh.Builder

	generated chan GenerateResult
	meshed    chan MeshResult
	quit      chan struct{}

	mu          sync.Mutex
	pendingGen  map[vec.Vec3]struct{}
	pendingMesh map[vec.Vec3]struct{}
	stopped     bool

	logger *logging.Logger
}

// NewWorkers создаёт пул из n воркеров; n <= 0 означает число CPU
func NewWorkers(n int, generator *world.Generator, builder *mesh.Builder) *Workers {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Workers{
		pool:        pond.NewPool(n),
		generator:   generator,
		builder:     builder,
		generated:   make(chan GenerateResult, resultBuffer),
		meshed:      make(chan MeshResult, resultBuffer),
		quit:        make(chan struct{}),
		pendingGen:  make(map[vec.Vec3]struct{}),
		pendingMesh: make(map[vec.Vec3]struct{}),
		logger:      logging.GetComponentLogger("workers"),
	}
}

// markPending возвращает false, если задача для координат уже в работе
func (w *Workers) markPending(set map[vec.Vec3]struct{}, coords vec.Vec3) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	if _, ok := set[coords]; ok {
		return false
	}
	set[coords] = struct{}{}
	return true
}

func (w *Workers) clearPending(set map[vec.Vec3]struct{}, coords vec.Vec3) {
	w.mu.Lock()
	delete(set, coords)
	w.mu.Unlock()
}

// SubmitGenerate ставит генерацию чанка в очередь. Повторный запрос тех же
// координат, пока первый не забран потребителем, игнорируется.
func (w *Workers) SubmitGenerate(coords vec.Vec3) bool {
	if w.generator == nil || !w.markPending(w.pendingGen, coords) {
		return false
	}

	w.pool.Submit(func() {
		defer w.recoverJob("generate", w.pendingGen, coords)

		c := w.generator.GenerateChunk(coords)
		select {
		case w.generated <- GenerateResult{Coords: coords, Chunk: c}:
		case <-w.quit:
		}
	})
	return true
}

// SubmitMesh ставит построение меша по снимку чанка. Снимок принадлежит воркеру.
func (w *Workers) SubmitMesh(snapshot *world.Chunk, version uint64) bool {
	coords := snapshot.Coords
	if !w.markPending(w.pendingMesh, coords) {
		return false
	}

	w.pool.Submit(func() {
		defer w.recoverJob("mesh", w.pendingMesh, coords)

		g := w.builder.Build(snapshot)
		select {
		case w.meshed <- MeshResult{Coords: coords, Version: version, Geometry: g}:
		case <-w.quit:
		}
	})
	return true
}

func (w *Workers) recoverJob(kind string, set map[vec.Vec3]struct{}, coords vec.Vec3) {
	if r := recover(); r != nil {
		w.logger.Error("[PANIC] воркер %s для чанка %v: %v", kind, coords, r)
		w.clearPending(set, coords)
	}
}

// DrainGenerated забирает все готовые чанки без блокировки
func (w *Workers) DrainGenerated() []GenerateResult {
	var out []GenerateResult
	for {
		select {
		case r := <-w.generated:
			w.clearPending(w.pendingGen, r.Coords)
			out = append(out, r)
		default:
			return out
		}
	}
}

// DrainMeshes забирает все готовые меши без блокировки
func (w *Workers) DrainMeshes() []MeshResult {
	var out []MeshResult
	for {
		select {
		case r := <-w.meshed:
			w.clearPending(w.pendingMesh, r.Coords)
			out = append(out, r)
		default:
			return out
		}
	}
}

// Pending возвращает число задач генерации и мешей, результаты которых ещё не забраны
func (w *Workers) Pending() (generate, mesh int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pendingGen), len(w.pendingMesh)
}

// Stop прекращает приём задач и ждёт завершения начатых.
// Начатые задачи не отменяются, их результаты отбрасываются.
func (w *Workers) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.quit)
	w.pool.StopAndWait()
}
