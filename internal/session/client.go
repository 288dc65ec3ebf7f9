package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/voxel-engine/internal/engine"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/network"
	"github.com/annel0/voxel-engine/internal/protocol"
	"github.com/annel0/voxel-engine/internal/vec"
)

// ClientHandler сторона клиента: запрашивает чанки у сервера, вставляет
// полученные, отправляет свои изменения и применяет чужие.
type ClientHandler struct {
	engine *engine.Engine
	send   SendFunc
	logger *logging.Logger

	mu        sync.Mutex
	requested map[vec.Vec3]struct{}

	handshake atomic.Bool
	mismatch  atomic.Bool
	rtt       atomic.Int64
	heartbeat atomic.Uint64
}

// NewClientHandler создаёт обработчик; локальные изменения движка
// уходят на сервер через send
func NewClientHandler(e *engine.Engine, send SendFunc) *ClientHandler {
	h := &ClientHandler{
		engine:    e,
		send:      send,
		logger:    logging.GetNetworkLogger(),
		requested: make(map[vec.Vec3]struct{}),
	}
	e.SetBroadcaster(h.sendEdits)
	e.SetCommitListener(h.forget)
	return h
}

// Hello отправляет рукопожатие с отпечатком своего генератора
func (h *ClientHandler) Hello() error {
	return send(h.send, &protocol.Handshake{
		ProtocolVersion:      protocol.ProtocolVersion,
		GeneratorFingerprint: h.engine.Fingerprint(),
	})
}

// Heartbeat отправляет heartbeat; ответ сервера обновит RTT
func (h *ClientHandler) Heartbeat() error {
	return send(h.send, &protocol.Heartbeat{
		Tick:   h.heartbeat.Add(1),
		SentAt: time.Now().UnixNano(),
	})
}

// RequestArea запрашивает у сервера отсутствующие чанки куба вокруг center,
// пачками не больше MaxBatchSize. Уже запрошенные не повторяются.
// Возвращает число запрошенных чанков.
func (h *ClientHandler) RequestArea(center vec.Vec3, radius int) (int, error) {
	missing := h.engine.Store().InstantiateRadius(center, radius)

	h.mu.Lock()
	fresh := missing[:0]
	for _, c := range missing {
		if _, ok := h.requested[c]; ok {
			continue
		}
		h.requested[c] = struct{}{}
		fresh = append(fresh, c)
	}
	h.mu.Unlock()

	for _, req := range protocol.SplitBatches(fresh) {
		if err := send(h.send, req); err != nil {
			h.forget(req.Positions)
			return 0, err
		}
	}
	return len(fresh), nil
}

// Outstanding число запрошенных, но ещё не вставленных в хранилище чанков
func (h *ClientHandler) Outstanding() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.requested)
}

// Handshaked true после ответа сервера на рукопожатие
func (h *ClientHandler) Handshaked() bool { return h.handshake.Load() }

// FingerprintMismatch true, если генератор сервера настроен иначе
func (h *ClientHandler) FingerprintMismatch() bool { return h.mismatch.Load() }

// RTT последнее измеренное время кругового пути
func (h *ClientHandler) RTT() time.Duration { return time.Duration(h.rtt.Load()) }

// HandleMessage разбирает кадр сервера
func (h *ClientHandler) HandleMessage(class network.DeliveryClass, frame []byte) {
	msg, err := protocol.Decode(frame)
	if err != nil {
		h.logger.LogDecodeError("server", err, frame)
		return
	}

	switch m := msg.(type) {
	case *protocol.Handshake:
		h.handshake.Store(true)
		if m.GeneratorFingerprint != h.engine.Fingerprint() {
			h.mismatch.Store(true)
			h.logger.Warn("⚠️ Отпечаток генератора сервера %x не совпадает с локальным %x", m.GeneratorFingerprint, h.engine.Fingerprint())
		} else {
			h.logger.Info("🤝 Рукопожатие с сервером, протокол v%d", m.ProtocolVersion)
		}
	case *protocol.Heartbeat:
		if m.SentAt > 0 {
			h.rtt.Store(time.Now().UnixNano() - m.SentAt)
		}
	case *protocol.ChunkBatchResponse:
		h.handleChunks(m)
	case *protocol.BlockUpdate:
		if err := h.engine.SubmitEdit(m.Received()); err != nil {
			h.logger.Warn("Изменение с сервера отброшено: %v", err)
		}
	default:
		h.logger.Warn("Неожиданное сообщение %s (%s)", msg.Type(), class)
	}
}

// handleChunks ставит чанки на вставку. С учёта они снимаются, когда Tick
// их вставит (SetCommitListener), иначе RequestArea до тика запросит их снова.
// Отклонённые снимаются сразу, чтобы их можно было запросить повторно.
func (h *ClientHandler) handleChunks(m *protocol.ChunkBatchResponse) {
	var rejected []vec.Vec3
	for _, c := range m.Chunks {
		if err := h.engine.ApplyRemoteChunk(c.Coords, c.Payload); err != nil {
			rejected = append(rejected, c.Coords)
		}
	}
	if len(rejected) > 0 {
		h.forget(rejected)
		h.logger.Warn("Отклонено %d из %d чанков в ответе сервера", len(rejected), len(m.Chunks))
	}
}

func (h *ClientHandler) forget(coords []vec.Vec3) {
	h.mu.Lock()
	for _, c := range coords {
		delete(h.requested, c)
	}
	h.mu.Unlock()
}

func (h *ClientHandler) sendEdits(edits []engine.Edit) {
	for i := range edits {
		if edits[i].Origin != protocol.OriginLocal {
			continue
		}
		if err := send(h.send, &edits[i].BlockUpdate); err != nil {
			h.logger.Error("Изменение %v не отправлено: %v", edits[i].Position, err)
		}
	}
}
