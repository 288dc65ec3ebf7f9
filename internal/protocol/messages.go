package protocol

import (
	"fmt"

	"github.com/annel0/voxel-engine/internal/network"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// ProtocolVersion версия формата сообщений
const ProtocolVersion uint16 = 1

// MaxBatchSize максимум чанков в одном запросе
const MaxBatchSize = 16

// MessageType определяет тип сообщения
type MessageType uint8

const (
	MsgUnknown            MessageType = 0
	MsgHandshake          MessageType = 1
	MsgHeartbeat          MessageType = 3
	MsgBlockUpdate        MessageType = 10
	MsgChunkBatchRequest  MessageType = 12
	MsgChunkBatchResponse MessageType = 13
)

func (t MessageType) String() string {
	switch t {
	case MsgHandshake:
		return "Handshake"
	case MsgHeartbeat:
		return "Heartbeat"
	case MsgBlockUpdate:
		return "BlockUpdate"
	case MsgChunkBatchRequest:
		return "ChunkBatchRequest"
	case MsgChunkBatchResponse:
		return "ChunkBatchResponse"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// DeliveryClassOf возвращает класс доставки для типа сообщения
func DeliveryClassOf(t MessageType) network.DeliveryClass {
	switch t {
	case MsgHeartbeat:
		return network.Unreliable
	case MsgHandshake:
		return network.ReliableOrdered
	default:
		return network.ReliableUnordered
	}
}

// Message общий интерфейс сообщений протокола
type Message interface {
	Type() MessageType
	marshal(w *writer)
	unmarshal(r *reader)
}

// Handshake первое сообщение клиента и ответ сервера
type Handshake struct {
	ProtocolVersion      uint16
	GeneratorFingerprint uint64
}

func (*Handshake) Type() MessageType { return MsgHandshake }

func (m *Handshake) marshal(w *writer) {
	w.u16(m.ProtocolVersion)
	w.u64(m.GeneratorFingerprint)
}

func (m *Handshake) unmarshal(r *reader) {
	m.ProtocolVersion = r.u16()
	m.GeneratorFingerprint = r.u64()
}

// Heartbeat поддерживает соединение и переносит номер тика отправителя
type Heartbeat struct {
	Tick   uint64
	SentAt int64 // UnixNano
}

func (*Heartbeat) Type() MessageType { return MsgHeartbeat }

func (m *Heartbeat) marshal(w *writer) {
	w.u64(m.Tick)
	w.i64(m.SentAt)
}

func (m *Heartbeat) unmarshal(r *reader) {
	m.Tick = r.u64()
	m.SentAt = r.i64()
}

// ChunkBatchRequest запрос клиента на пачку чанков
type ChunkBatchRequest struct {
	Positions []vec.Vec3
}

func (*ChunkBatchRequest) Type() MessageType { return MsgChunkBatchRequest }

func (m *ChunkBatchRequest) marshal(w *writer) {
	w.u8(uint8(len(m.Positions)))
	for _, p := range m.Positions {
		w.vec3(p)
	}
}

func (m *ChunkBatchRequest) unmarshal(r *reader) {
	n := int(r.u8())
	if n > MaxBatchSize {
		r.fail(fmt.Errorf("%w: %d positions", ErrBatchTooLarge, n))
		return
	}
	m.Positions = make([]vec.Vec3, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		m.Positions = append(m.Positions, r.vec3())
	}
}

// ChunkData один чанк в ответе: координаты и поток кодека
type ChunkData struct {
	Coords  vec.Vec3
	Payload []byte
}

// ChunkBatchResponse ответ сервера
type ChunkBatchResponse struct {
	Chunks []ChunkData
}

func (*ChunkBatchResponse) Type() MessageType { return MsgChunkBatchResponse }

func (m *ChunkBatchResponse) marshal(w *writer) {
	w.u8(uint8(len(m.Chunks)))
	for _, c := range m.Chunks {
		w.vec3(c.Coords)
		w.bytes(c.Payload)
	}
}

func (m *ChunkBatchResponse) unmarshal(r *reader) {
	n := int(r.u8())
	if n > MaxBatchSize {
		r.fail(fmt.Errorf("%w: %d chunks", ErrBatchTooLarge, n))
		return
	}
	m.Chunks = make([]ChunkData, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		m.Chunks = append(m.Chunks, ChunkData{Coords: r.vec3(), Payload: r.bytes()})
	}
}

// Origin показывает, откуда пришло изменение блока
type Origin uint8

const (
	// OriginLocal изменение сделано на этом узле и подлежит рассылке
	OriginLocal Origin = iota
	// OriginRemote изменение получено по сети, повторно не рассылается
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// BlockUpdate изменение одного блока
type BlockUpdate struct {
	Position vec.Vec3
	Block    block.BlockID
	Origin   Origin
}

func (*BlockUpdate) Type() MessageType { return MsgBlockUpdate }

func (m *BlockUpdate) marshal(w *writer) {
	w.vec3(m.Position)
	w.i32(m.Block.Code())
	w.u8(uint8(m.Origin))
}

func (m *BlockUpdate) unmarshal(r *reader) {
	m.Position = r.vec3()
	code := r.i32()
	origin := r.u8()
	if r.err != nil {
		return
	}
	id, err := block.FromCode(code)
	if err != nil {
		r.fail(err)
		return
	}
	m.Block = id
	m.Origin = Origin(origin)
}

// Received возвращает копию изменения, помеченную как пришедшую по сети
func (m BlockUpdate) Received() BlockUpdate {
	m.Origin = OriginRemote
	return m
}

// SplitBatches разбивает список координат на запросы не больше MaxBatchSize
func SplitBatches(coords []vec.Vec3) []*ChunkBatchRequest {
	var out []*ChunkBatchRequest
	for start := 0; start < len(coords); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(coords) {
			end = len(coords)
		}
		out = append(out, &ChunkBatchRequest{Positions: append([]vec.Vec3(nil), coords[start:end]...)})
	}
	return out
}

func newMessage(t MessageType) (Message, error) {
	switch t {
	case MsgHandshake:
		return &Handshake{}, nil
	case MsgHeartbeat:
		return &Heartbeat{}, nil
	case MsgBlockUpdate:
		return &BlockUpdate{}, nil
	case MsgChunkBatchRequest:
		return &ChunkBatchRequest{}, nil
	case MsgChunkBatchResponse:
		return &ChunkBatchResponse{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, uint8(t))
	}
}
