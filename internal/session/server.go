package session

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxel-engine/internal/engine"
	"github.com/annel0/voxel-engine/internal/eventbus"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/network"
	"github.com/annel0/voxel-engine/internal/observability"
	"github.com/annel0/voxel-engine/internal/protocol"
)

// Transport то, что обработчику нужно от сетевого сервера
type Transport interface {
	Send(peer string, class network.DeliveryClass, frame []byte) error
	Broadcast(class network.DeliveryClass, frame []byte, except string) int
}

// ServerHandler обслуживает клиентов авторитетного сервера: отдаёт чанки,
// применяет их изменения блоков и рассылает изменения остальным.
type ServerHandler struct {
	engine    *engine.Engine
	transport Transport
	tracer    trace.Tracer
	logger    *logging.Logger

	events eventbus.EventBus // может быть nil
	source string

	edits    atomic.Uint64
	requests atomic.Uint64
}

// NewServerHandler создаёт обработчик и подключает рассылку применённых
// изменений движка: локальные (например, из REST API) уходят всем клиентам,
// изменения клиента всем, кроме него самого
func NewServerHandler(e *engine.Engine, t Transport) *ServerHandler {
	h := &ServerHandler{
		engine:    e,
		transport: t,
		tracer:    observability.Tracer("session"),
		logger:    logging.GetServerLogger(),
	}
	e.SetBroadcaster(h.broadcastApplied)
	return h
}

// SetEvents подключает шину событий мира; source попадает в Envelope.Source
func (h *ServerHandler) SetEvents(bus eventbus.EventBus, source string) {
	h.events = bus
	h.source = source
}

// OnConnect приветствует нового клиента своим отпечатком генератора
func (h *ServerHandler) OnConnect(peer string) {
	h.publish(eventbus.EventPeerJoined, eventbus.PeerEvent{Peer: peer})
	h.reply(peer, &protocol.Handshake{
		ProtocolVersion:      protocol.ProtocolVersion,
		GeneratorFingerprint: h.engine.Fingerprint(),
	})
}

// OnDisconnect вызывается сетевым сервером после отключения клиента
func (h *ServerHandler) OnDisconnect(peer string) {
	h.publish(eventbus.EventPeerLeft, eventbus.PeerEvent{Peer: peer})
}

// HandleMessage разбирает кадр клиента
func (h *ServerHandler) HandleMessage(peer string, class network.DeliveryClass, frame []byte) {
	msg, err := protocol.Decode(frame)
	if err != nil {
		h.logger.LogDecodeError("peer "+peer, err, frame)
		return
	}

	switch m := msg.(type) {
	case *protocol.Handshake:
		h.handleHandshake(peer, m)
	case *protocol.Heartbeat:
		// Эхо: клиент считает RTT по SentAt
		h.reply(peer, m)
	case *protocol.ChunkBatchRequest:
		h.handleChunkRequest(peer, m)
	case *protocol.BlockUpdate:
		h.handleBlockUpdate(peer, m)
	default:
		h.logger.Warn("Неожиданное сообщение %s от %s", msg.Type(), peer)
	}
}

// Stats число применённых изменений клиентов и запросов чанков
func (h *ServerHandler) Stats() (edits, requests uint64) {
	return h.edits.Load(), h.requests.Load()
}

func (h *ServerHandler) handleHandshake(peer string, m *protocol.Handshake) {
	if m.ProtocolVersion != protocol.ProtocolVersion {
		h.logger.Warn("⚠️ Клиент %s использует протокол v%d, сервер v%d", peer, m.ProtocolVersion, protocol.ProtocolVersion)
	}
	if m.GeneratorFingerprint != h.engine.Fingerprint() {
		h.logger.Warn("⚠️ Клиент %s: отпечаток генератора %x не совпадает с серверным %x", peer, m.GeneratorFingerprint, h.engine.Fingerprint())
	}
}

func (h *ServerHandler) handleChunkRequest(peer string, m *protocol.ChunkBatchRequest) {
	_, span := h.tracer.Start(context.Background(), "chunk_batch_request",
		trace.WithAttributes(attribute.String("peer", peer), attribute.Int("chunks", len(m.Positions))))
	h.requests.Add(1)

	h.engine.RequestChunks(m.Positions, func(chunks []protocol.ChunkData) {
		defer span.End()
		span.SetAttributes(attribute.Int("served", len(chunks)))
		h.reply(peer, &protocol.ChunkBatchResponse{Chunks: chunks})
	})
}

// handleBlockUpdate только ставит изменение в пакет: рассылка и событие
// будут после применения в Tick
func (h *ServerHandler) handleBlockUpdate(peer string, m *protocol.BlockUpdate) {
	if err := h.engine.SubmitPeerEdit(peer, m.Received()); err != nil {
		h.logger.Warn("Изменение от %s отброшено: %v", peer, err)
	}
}

// broadcastApplied рассылает изменения, легшие в хранилище за тик.
// Изменение клиента не возвращается ему самому.
func (h *ServerHandler) broadcastApplied(edits []engine.Edit) {
	for i := range edits {
		u := edits[i].BlockUpdate
		if edits[i].Peer != "" {
			h.edits.Add(1)
		}
		h.publishBlock(u, edits[i].Peer)
		class, frame, err := encode(&u)
		if err != nil {
			h.logger.Error("%v", err)
			continue
		}
		h.transport.Broadcast(class, frame, edits[i].Peer)
	}
}

func (h *ServerHandler) reply(peer string, msg protocol.Message) {
	err := send(func(class network.DeliveryClass, frame []byte) error {
		return h.transport.Send(peer, class, frame)
	}, msg)
	if err != nil {
		h.logger.Debug("Ответ %s клиенту %s не отправлен: %v", msg.Type(), peer, err)
	}
}

func (h *ServerHandler) publishBlock(u protocol.BlockUpdate, peer string) {
	h.publish(eventbus.EventBlockChanged, eventbus.BlockChanged{
		X: u.Position.X, Y: u.Position.Y, Z: u.Position.Z,
		Block: u.Block.String(),
		Peer:  peer,
	})
}

func (h *ServerHandler) publish(eventType string, payload interface{}) {
	if h.events == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(h.source, eventType, 1, payload)
	if err == nil {
		err = h.events.Publish(context.Background(), ev)
	}
	if err != nil {
		h.logger.Warn("Событие %s не опубликовано: %v", eventType, err)
	}
}
