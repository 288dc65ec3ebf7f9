package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/voxel-engine/internal/logging"
)

// PacketConn датаграммное соединение с одним узлом. ReadPacket блокируется
// до прихода пакета и возвращает ошибку после Close.
type PacketConn interface {
	WritePacket(p []byte) error
	ReadPacket() ([]byte, error)
	RemoteAddr() string
	Close() error
}

// Handler получает полезную нагрузку, прошедшую проверку класса доставки
type Handler func(class DeliveryClass, payload []byte)

const (
	kindData uint8 = 0
	kindAck  uint8 = 1

	// HeaderSize класс (u8), вид (u8), номер (u64 LE)
	HeaderSize = 10
)

var (
	ErrEndpointClosed = errors.New("endpoint closed")
	ErrTooManyPending = errors.New("too many unacknowledged packets")
	ErrShortPacket    = errors.New("packet shorter than header")
)

type pendingPacket struct {
	data     []byte
	lastSent time.Time
}

// sendState исходящая сторона одного класса
type sendState struct {
	nextSeq uint64
	pending map[uint64]*pendingPacket
}

// recvState входящая сторона одного класса
type recvState struct {
	// next все номера ниже уже получены (надёжные классы);
	// для ненадёжного класса это последний принятый номер + 1
	next     uint64
	seen     map[uint64]struct{}
	buffered map[uint64][]byte
}

// Endpoint доставляет пакеты трёх классов поверх PacketConn. Надёжные пакеты
// повторяются каждые ResendTime до подтверждения, получатель убирает дубликаты,
// упорядоченный класс выдаётся строго по номерам, устаревшие ненадёжные пакеты
// отбрасываются.
type Endpoint struct {
	conn     PacketConn
	channels Channels
	handler  Handler
	metrics  *Metrics
	logger   *logging.Logger

	mu   sync.Mutex
	out  [classCount]*sendState
	in   [classCount]*recvState
	quit chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	closeOnce sync.Once
}

// NewEndpoint запускает чтение и повторную отправку. handler вызывается из
// горутины чтения и не должен надолго блокироваться.
func NewEndpoint(conn PacketConn, channels Channels, handler Handler, metrics *Metrics) *Endpoint {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	e := &Endpoint{
		conn:     conn,
		channels: channels,
		handler:  handler,
		metrics:  metrics,
		logger:   logging.GetNetworkLogger(),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for c := range e.out {
		e.out[c] = &sendState{nextSeq: 1, pending: make(map[uint64]*pendingPacket)}
		e.in[c] = &recvState{next: 1, seen: make(map[uint64]struct{}), buffered: make(map[uint64][]byte)}
	}

	e.wg.Add(2)
	go e.readLoop()
	go e.resendLoop()
	return e
}

// RemoteAddr адрес удалённого узла
func (e *Endpoint) RemoteAddr() string { return e.conn.RemoteAddr() }

// Done закрывается, когда соединение разорвано или Endpoint закрыт
func (e *Endpoint) Done() <-chan struct{} { return e.done }

// Send отправляет полезную нагрузку с гарантиями указанного класса
func (e *Endpoint) Send(class DeliveryClass, payload []byte) error {
	if !class.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownClass, class)
	}

	e.mu.Lock()
	select {
	case <-e.quit:
		e.mu.Unlock()
		return ErrEndpointClosed
	default:
	}

	out := e.out[class]
	cfg := e.channels[class]
	if class.Reliable() && cfg.MaxPending > 0 && len(out.pending) >= cfg.MaxPending {
		e.mu.Unlock()
		return ErrTooManyPending
	}

	seq := out.nextSeq
	out.nextSeq++
	data := encodeHeader(class, kindData, seq, payload)
	if class.Reliable() {
		out.pending[seq] = &pendingPacket{data: data, lastSent: time.Now()}
		e.metrics.pending.Inc()
	}
	e.mu.Unlock()

	e.metrics.packetsSent.WithLabelValues(class.String()).Inc()
	return e.write(data)
}

// Pending число неподтверждённых пакетов класса
func (e *Endpoint) Pending(class DeliveryClass) int {
	if !class.Valid() {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.out[class].pending)
}

// Close останавливает горутины и закрывает соединение
func (e *Endpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.quit)
		err = e.conn.Close()
		e.wg.Wait()

		e.mu.Lock()
		for _, out := range e.out {
			e.metrics.pending.Sub(float64(len(out.pending)))
			out.pending = make(map[uint64]*pendingPacket)
		}
		e.mu.Unlock()
	})
	return err
}

func (e *Endpoint) write(data []byte) error {
	if err := e.conn.WritePacket(data); err != nil {
		return fmt.Errorf("write to %s: %w", e.conn.RemoteAddr(), err)
	}
	e.metrics.bytesSent.Add(float64(len(data)))
	return nil
}

func (e *Endpoint) readLoop() {
	defer e.wg.Done()
	defer close(e.done)

	for {
		data, err := e.conn.ReadPacket()
		if err != nil {
			select {
			case <-e.quit:
			default:
				e.logger.Info("Соединение с %s закрыто: %v", e.conn.RemoteAddr(), err)
			}
			return
		}
		e.metrics.bytesReceived.Add(float64(len(data)))
		e.handlePacket(data)
	}
}

func (e *Endpoint) handlePacket(data []byte) {
	class, kind, seq, payload, err := decodeHeader(data)
	if err != nil {
		e.logger.LogDecodeError(e.conn.RemoteAddr(), err, data)
		return
	}

	if kind == kindAck {
		e.mu.Lock()
		if _, ok := e.out[class].pending[seq]; ok {
			delete(e.out[class].pending, seq)
			e.metrics.pending.Dec()
		}
		e.mu.Unlock()
		return
	}

	if class.Reliable() {
		// Подтверждаем даже дубликаты: предыдущий ack мог потеряться
		if err := e.write(encodeHeader(class, kindAck, seq, nil)); err != nil {
			e.logger.Debug("ack не отправлен: %v", err)
		}
	}

	for _, p := range e.accept(class, seq, payload) {
		e.metrics.packetsReceived.WithLabelValues(class.String()).Inc()
		if e.handler != nil {
			e.handler(class, p)
		}
	}
}

// accept решает, какие пакеты отдать обработчику после прихода seq
func (e *Endpoint) accept(class DeliveryClass, seq uint64, payload []byte) [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	in := e.in[class]
	switch class {
	case Unreliable:
		if seq < in.next {
			e.metrics.packetsDropped.WithLabelValues(class.String(), "stale").Inc()
			return nil
		}
		in.next = seq + 1
		return [][]byte{payload}

	case ReliableUnordered:
		if _, dup := in.seen[seq]; seq < in.next || dup {
			e.metrics.packetsDropped.WithLabelValues(class.String(), "duplicate").Inc()
			return nil
		}
		in.seen[seq] = struct{}{}
		for {
			if _, ok := in.seen[in.next]; !ok {
				break
			}
			delete(in.seen, in.next)
			in.next++
		}
		return [][]byte{payload}

	default: // ReliableOrdered
		if _, dup := in.buffered[seq]; seq < in.next || dup {
			e.metrics.packetsDropped.WithLabelValues(class.String(), "duplicate").Inc()
			return nil
		}
		if seq != in.next {
			in.buffered[seq] = payload
			return nil
		}
		out := [][]byte{payload}
		in.next++
		for {
			p, ok := in.buffered[in.next]
			if !ok {
				break
			}
			delete(in.buffered, in.next)
			out = append(out, p)
			in.next++
		}
		return out
	}
}

func (e *Endpoint) resendLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.resendInterval())
	defer ticker.Stop()

	for {
		select {
		case <-e.quit:
			return
		case <-e.done:
			return
		case now := <-ticker.C:
			e.resendDue(now)
		}
	}
}

// resendInterval шаг проверки: четверть наименьшего ResendTime
func (e *Endpoint) resendInterval() time.Duration {
	interval := DefaultResendTime
	for _, cfg := range e.channels {
		if cfg.Class.Reliable() && cfg.ResendTime > 0 && cfg.ResendTime < interval {
			interval = cfg.ResendTime
		}
	}
	interval /= 4
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	return interval
}

func (e *Endpoint) resendDue(now time.Time) {
	var due [][]byte
	var classes []DeliveryClass

	e.mu.Lock()
	for c, out := range e.out {
		resend := e.channels[c].ResendTime
		if resend <= 0 {
			resend = DefaultResendTime
		}
		for _, p := range out.pending {
			if now.Sub(p.lastSent) >= resend {
				p.lastSent = now
				due = append(due, p.data)
				classes = append(classes, DeliveryClass(c))
			}
		}
	}
	e.mu.Unlock()

	for i, data := range due {
		e.metrics.packetsResent.WithLabelValues(classes[i].String()).Inc()
		if err := e.write(data); err != nil {
			e.logger.Debug("Повторная отправка не удалась: %v", err)
			return
		}
	}
}

func encodeHeader(class DeliveryClass, kind uint8, seq uint64, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = byte(class)
	buf[1] = kind
	binary.LittleEndian.PutUint64(buf[2:HeaderSize], seq)
	copy(buf[HeaderSize:], payload)
	return buf
}

func decodeHeader(data []byte) (DeliveryClass, uint8, uint64, []byte, error) {
	if len(data) < HeaderSize {
		return 0, 0, 0, nil, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(data))
	}
	class := DeliveryClass(data[0])
	if !class.Valid() {
		return 0, 0, 0, nil, fmt.Errorf("%w: %d", ErrUnknownClass, data[0])
	}
	kind := data[1]
	if kind != kindData && kind != kindAck {
		return 0, 0, 0, nil, fmt.Errorf("unknown packet kind %d", kind)
	}
	return class, kind, binary.LittleEndian.Uint64(data[2:HeaderSize]), data[HeaderSize:], nil
}
