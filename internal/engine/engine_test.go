package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-engine/internal/cache"
	"github.com/annel0/voxel-engine/internal/mesh"
	"github.com/annel0/voxel-engine/internal/protocol"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/annel0/voxel-engine/internal/world/codec"
)

func newTestEngine(t *testing.T, generate bool) *Engine {
	t.Helper()
	cfg := DefaultConfig(1)
	cfg.Workers = 2
	cfg.Generate = generate
	cfg.Registerer = prometheus.NewRegistry()
	e := New(cfg)
	t.Cleanup(e.Stop)
	return e
}

// settle крутит тики, пока движок не закончит всю фоновую работу
func settle(t *testing.T, e *Engine, chunks int) {
	t.Helper()
	require.Eventually(t, func() bool {
		e.Tick()
		s := e.Stats()
		return s.Chunks == chunks && s.PendingGenerate == 0 && s.PendingMesh == 0 &&
			s.Meshes == chunks && s.PendingRequests == 0
	}, 10*time.Second, 5*time.Millisecond)
}

func TestGenerateAndMeshArea(t *testing.T) {
	e := newTestEngine(t, true)

	submitted := e.RequestArea(vec.Vec3{}, 1)
	assert.Len(t, submitted, 8)
	assert.Empty(t, e.RequestArea(vec.Vec3{}, 1), "повторный запрос не дублирует задачи")

	settle(t, e, 8)

	// Меш из движка совпадает с построенным напрямую по хранилищу
	for _, c := range e.Store().Coords() {
		got, ok := e.Mesh(c)
		require.True(t, ok)
		want, ok := mesh.NewBuilder().BuildFromStore(e.Store(), c)
		require.True(t, ok)
		assert.Equal(t, want.FaceCount(), got.FaceCount(), "чанк %v", c)
	}
}

func remoteChunk(t *testing.T, e *Engine, coords vec.Vec3, fill block.BlockID) {
	t.Helper()
	c := world.NewChunk(coords)
	c.FillLogical(fill)
	require.NoError(t, e.ApplyRemoteChunk(coords, codec.EncodeChunk(c)))
}

func TestEditsAreAppliedAndBroadcast(t *testing.T) {
	e := newTestEngine(t, false)
	remoteChunk(t, e, vec.Vec3{}, block.AirBlockID)
	remoteChunk(t, e, vec.Vec3{X: 1}, block.AirBlockID)

	var committed []vec.Vec3
	e.SetCommitListener(func(c []vec.Vec3) { committed = append(committed, c...) })

	res := e.Tick()
	assert.ElementsMatch(t, []vec.Vec3{{}, {X: 1}}, res.Committed)
	assert.ElementsMatch(t, res.Committed, committed)

	var mu sync.Mutex
	var sent []Edit
	e.SetBroadcaster(func(u []Edit) {
		mu.Lock()
		sent = append(sent, u...)
		mu.Unlock()
	})

	local := vec.Vec3{X: 31, Y: 2, Z: 2}
	require.NoError(t, e.SetBlock(local, block.StoneBlockID))
	require.NoError(t, e.SubmitEdit(protocol.BlockUpdate{
		Position: vec.Vec3{X: 5}, Block: block.SandBlockID, Origin: protocol.OriginRemote,
	}))
	require.NoError(t, e.SetBlock(vec.Vec3{Y: 500}, block.DirtBlockID))
	peerPos := vec.Vec3{X: 40, Y: 1, Z: 1}
	require.NoError(t, e.SubmitPeerEdit("p1", protocol.BlockUpdate{
		Position: peerPos, Block: block.GrassBlockID, Origin: protocol.OriginRemote,
	}))
	require.NoError(t, e.SubmitPeerEdit("p2", protocol.BlockUpdate{
		Position: vec.Vec3{Z: 900}, Block: block.GrassBlockID, Origin: protocol.OriginRemote,
	}))

	res = e.Tick()
	assert.Equal(t, 3, res.Applied)
	require.Len(t, res.Outgoing, 2, "удалённые и отброшенные изменения не рассылаются")
	assert.Equal(t, local, res.Outgoing[0].Position)
	assert.Empty(t, res.Outgoing[0].Peer)
	assert.Equal(t, peerPos, res.Outgoing[1].Position)
	assert.Equal(t, "p1", res.Outgoing[1].Peer)

	mu.Lock()
	assert.Equal(t, res.Outgoing, sent)
	mu.Unlock()

	// Последующий тик без изменений ничего не рассылает и не вставляет
	committed = nil
	res = e.Tick()
	assert.Empty(t, res.Outgoing)
	assert.Empty(t, committed)

	id, ok := e.GetBlock(local)
	require.True(t, ok)
	assert.Equal(t, block.StoneBlockID, id)
	id, _ = e.GetBlock(vec.Vec3{X: 5})
	assert.Equal(t, block.SandBlockID, id)

	// Соседний чанк видит изменение в своём поле
	right, _ := e.Store().Chunk(vec.Vec3{X: 1})
	assert.Equal(t, block.StoneBlockID, right.GetUnpadded(0, 3, 3))

	// Камень и песок в пустом чанке: по шесть граней, снизу чанк не загружен
	settle(t, e, 2)
	g, _ := e.Mesh(vec.Vec3{})
	assert.Equal(t, 12, g.FaceCount())
}

func TestApplyRemoteChunkRejectsGarbage(t *testing.T) {
	e := newTestEngine(t, false)

	err := e.ApplyRemoteChunk(vec.Vec3{}, []byte{1, 2, 3})
	assert.ErrorIs(t, err, codec.ErrMalformedLength)

	e.Tick()
	assert.Equal(t, 0, e.Store().Len())
}

func TestRequestChunksWaitsForGeneration(t *testing.T) {
	cfg := DefaultConfig(9)
	cfg.Workers = 2
	cfg.BuildMeshes = false
	pc, err := cache.NewRistrettoCache(cache.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(pc.Close)
	cfg.PayloadCache = pc
	e := New(cfg)
	t.Cleanup(e.Stop)

	want := []vec.Vec3{{}, {X: 1, Y: -1}}
	replies := make(chan []protocol.ChunkData, 1)
	e.RequestChunks(want, func(d []protocol.ChunkData) { replies <- d })

	var got []protocol.ChunkData
	require.Eventually(t, func() bool {
		e.Tick()
		select {
		case got = <-replies:
			return true
		default:
			return false
		}
	}, 10*time.Second, 5*time.Millisecond)

	require.Len(t, got, 2)
	for _, d := range got {
		decoded, err := codec.DecodeChunk(d.Coords, d.Payload)
		require.NoError(t, err)
		stored, ok := e.Store().Chunk(d.Coords)
		require.True(t, ok)
		assert.Equal(t, stored.Blocks, decoded.Blocks)
	}

	// Повторное кодирование берётся из кеша
	pc.Wait()
	_, err = e.ChunkPayload(vec.Vec3{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, e.Stats().Cache.Hits, int64(1))

	_, err = e.ChunkPayload(vec.Vec3{Z: 50})
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestClientEngineDoesNotGenerate(t *testing.T) {
	e := newTestEngine(t, false)
	assert.Nil(t, e.RequestArea(vec.Vec3{}, 2))

	replied := false
	e.RequestChunks([]vec.Vec3{{X: 3}}, func(d []protocol.ChunkData) {
		replied = true
		assert.Empty(t, d)
	})
	e.Tick()
	assert.True(t, replied)
}
