package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-engine/internal/network"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()
	frame, err := Encode(msg)
	require.NoError(t, err)
	got, err := Decode(frame)
	require.NoError(t, err)
	return got
}

func TestMessagesRoundTrip(t *testing.T) {
	msgs := []Message{
		&Handshake{ProtocolVersion: ProtocolVersion, GeneratorFingerprint: 0xdeadbeefcafe},
		&Heartbeat{Tick: 42, SentAt: -7},
		&ChunkBatchRequest{Positions: []vec.Vec3{{X: 1, Y: -2, Z: 3}, {X: -100}}},
		&ChunkBatchResponse{Chunks: []ChunkData{{Coords: vec.Vec3{Z: 5}, Payload: []byte{1, 2, 3}}}},
		&BlockUpdate{Position: vec.Vec3{X: -33, Y: 64, Z: 7}, Block: block.FlowerBlockID, Origin: OriginLocal},
	}
	for _, m := range msgs {
		assert.Equal(t, m, roundTrip(t, m), m.Type().String())
	}
}

func TestLargeBodyIsCompressed(t *testing.T) {
	payload := bytes.Repeat([]byte{0, 0, 0, 0, 1, 0, 0, 0}, 2000)
	msg := &ChunkBatchResponse{Chunks: []ChunkData{{Coords: vec.Vec3{X: 1}, Payload: payload}}}

	frame, err := Encode(msg)
	require.NoError(t, err)
	assert.Equal(t, byte(CompressionZstd), frame[1])
	assert.Less(t, len(frame), len(payload))

	got, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestSmallBodyIsNotCompressed(t *testing.T) {
	frame, err := Encode(&Heartbeat{Tick: 1})
	require.NoError(t, err)
	assert.Equal(t, byte(MsgHeartbeat), frame[0])
	assert.Equal(t, byte(CompressionNone), frame[1])
	assert.Len(t, frame, FrameHeaderSize+16)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte{1})
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = Decode([]byte{99, 0})
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = Decode([]byte{byte(MsgHeartbeat), 7})
	assert.ErrorIs(t, err, ErrUnknownCompression)

	_, err = Decode([]byte{byte(MsgHeartbeat), 0, 1, 2})
	assert.ErrorIs(t, err, ErrTruncated)

	frame, _ := Encode(&Heartbeat{Tick: 1})
	_, err = Decode(append(frame, 0))
	assert.ErrorIs(t, err, ErrTrailingBytes)

	_, err = Decode([]byte{byte(MsgChunkBatchRequest), 0, 17})
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestBlockUpdateRejectsUnknownBlock(t *testing.T) {
	frame, err := Encode(&BlockUpdate{Block: block.StoneBlockID})
	require.NoError(t, err)
	// Код блока идёт сразу после трёх координат
	frame[FrameHeaderSize+12] = 200
	_, err = Decode(frame)
	assert.ErrorIs(t, err, block.ErrUnknownBlock)
}

func TestEncodeRejectsOversizedBatch(t *testing.T) {
	_, err := Encode(&ChunkBatchRequest{Positions: make([]vec.Vec3, MaxBatchSize+1)})
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestSplitBatches(t *testing.T) {
	coords := make([]vec.Vec3, 40)
	for i := range coords {
		coords[i] = vec.Vec3{X: i}
	}
	batches := SplitBatches(coords)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0].Positions, 16)
	assert.Len(t, batches[2].Positions, 8)
	assert.Equal(t, 39, batches[2].Positions[7].X)

	assert.Empty(t, SplitBatches(nil))
}

func TestDeliveryClasses(t *testing.T) {
	assert.Equal(t, network.Unreliable, DeliveryClassOf(MsgHeartbeat))
	assert.Equal(t, network.ReliableOrdered, DeliveryClassOf(MsgHandshake))
	assert.Equal(t, network.ReliableUnordered, DeliveryClassOf(MsgChunkBatchResponse))
	assert.Equal(t, network.ReliableUnordered, DeliveryClassOf(MsgBlockUpdate))
}

func TestReceivedMarksRemote(t *testing.T) {
	u := BlockUpdate{Block: block.DirtBlockID, Origin: OriginLocal}
	r := u.Received()
	assert.Equal(t, OriginRemote, r.Origin)
	assert.Equal(t, OriginLocal, u.Origin)
	assert.Equal(t, "remote", r.Origin.String())
}

func TestPeekType(t *testing.T) {
	frame, _ := Encode(&Handshake{})
	typ, ok := PeekType(frame)
	assert.True(t, ok)
	assert.Equal(t, MsgHandshake, typ)

	_, ok = PeekType(nil)
	assert.False(t, ok)
}
