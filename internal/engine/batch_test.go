package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-engine/internal/mesh"
	"github.com/annel0/voxel-engine/internal/protocol"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
)

func TestFlushDeduplicatesRebuilds(t *testing.T) {
	s := world.NewStore()
	s.Insert(world.NewChunk(vec.Vec3{}))
	s.Insert(world.NewChunk(vec.Vec3{X: 1}))

	b := NewEditBatch(0)
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Add(protocol.BlockUpdate{Position: vec.Vec3{X: i, Y: 1}, Block: block.StoneBlockID}))
	}
	require.NoError(t, b.Add(protocol.BlockUpdate{Position: vec.Vec3{X: 31}, Block: block.DirtBlockID}))

	res := b.Flush(s)
	assert.Equal(t, 6, res.Applied)
	assert.Equal(t, []vec.Vec3{{}, {X: 1}}, res.Rebuild)
	assert.Len(t, res.Outgoing, 6)
	assert.Equal(t, 0, b.Len())

	// Пустой пакет ничего не делает
	assert.Empty(t, b.Flush(s).Rebuild)
}

func TestFlushPreservesOrder(t *testing.T) {
	s := world.NewStore()
	s.Insert(world.NewChunk(vec.Vec3{}))

	b := NewEditBatch(0)
	pos := vec.Vec3{X: 3, Y: 3, Z: 3}
	require.NoError(t, b.Add(protocol.BlockUpdate{Position: pos, Block: block.StoneBlockID}))
	require.NoError(t, b.Add(protocol.BlockUpdate{Position: pos, Block: block.LeavesBlockID}))
	b.Flush(s)

	id, _ := s.GetBlock(pos)
	assert.Equal(t, block.LeavesBlockID, id)
}

func TestFlushRelaysOnlyAppliedPeerEdits(t *testing.T) {
	s := world.NewStore()
	s.Insert(world.NewChunk(vec.Vec3{}))

	b := NewEditBatch(0)
	loaded := protocol.BlockUpdate{Position: vec.Vec3{X: 2}, Block: block.SandBlockID}.Received()
	unloaded := protocol.BlockUpdate{Position: vec.Vec3{X: 3200}, Block: block.SandBlockID}.Received()
	require.NoError(t, b.AddFrom("a", loaded))
	require.NoError(t, b.AddFrom("a", unloaded))
	require.NoError(t, b.Add(protocol.BlockUpdate{Position: vec.Vec3{X: 4}, Block: block.DirtBlockID}.Received()))

	res := b.Flush(s)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Outgoing, 1)
	assert.Equal(t, Edit{BlockUpdate: loaded, Peer: "a"}, res.Outgoing[0])
}

func TestBatchCapacity(t *testing.T) {
	b := NewEditBatch(2)
	require.NoError(t, b.Add(protocol.BlockUpdate{}))
	require.NoError(t, b.Add(protocol.BlockUpdate{}))
	assert.ErrorIs(t, b.Add(protocol.BlockUpdate{}), ErrBatchFull)
}

func TestWorkersDeduplicateJobs(t *testing.T) {
	gen := world.NewGenerator(world.DefaultGeneratorParams(3))
	w := NewWorkers(1, gen, mesh.NewBuilder())
	defer w.Stop()

	assert.True(t, w.SubmitGenerate(vec.Vec3{}))
	assert.False(t, w.SubmitGenerate(vec.Vec3{}))

	var got []GenerateResult
	require.Eventually(t, func() bool {
		got = append(got, w.DrainGenerated()...)
		return len(got) == 1
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, vec.Vec3{}, got[0].Coords)

	// После того как результат забран, координаты можно запросить снова
	assert.True(t, w.SubmitGenerate(vec.Vec3{}))
}

func TestWorkersRejectAfterStop(t *testing.T) {
	w := NewWorkers(1, nil, mesh.NewBuilder())
	w.Stop()
	assert.False(t, w.SubmitMesh(world.NewChunk(vec.Vec3{}), 0))
	assert.False(t, w.SubmitGenerate(vec.Vec3{}), "без генератора задачи не принимаются")
	w.Stop()
}
