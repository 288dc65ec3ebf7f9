package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/annel0/voxel-engine/internal/vec"
)

var (
	ErrUnknownMessage     = errors.New("unknown message type")
	ErrTruncated          = errors.New("message truncated")
	ErrTrailingBytes      = errors.New("trailing bytes after message")
	ErrBatchTooLarge      = errors.New("batch exceeds maximum size")
	ErrUnknownCompression = errors.New("unknown compression type")
	ErrPayloadTooLarge    = errors.New("payload too large")
)

// writer дописывает поля в little-endian
type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) i32(v int32)  { w.u32(uint32(v)) }
func (w *writer) i64(v int64)  { w.u64(uint64(v)) }

func (w *writer) vec3(v vec.Vec3) {
	w.i32(int32(v.X))
	w.i32(int32(v.Y))
	w.i32(int32(v.Z))
}

func (w *writer) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// reader читает поля; первая ошибка запоминается, последующие чтения возвращают нули
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.fail(fmt.Errorf("%w: need %d bytes at offset %d", ErrTruncated, n, r.off))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) i32() int32 { return int32(r.u32()) }
func (r *reader) i64() int64 { return int64(r.u64()) }

func (r *reader) vec3() vec.Vec3 {
	x, y, z := r.i32(), r.i32(), r.i32()
	return vec.Vec3{X: int(x), Y: int(y), Z: int(z)}
}

func (r *reader) bytes() []byte {
	n := r.u32()
	if n > math.MaxInt32 {
		r.fail(fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n))
		return nil
	}
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// MarshalBody сериализует тело сообщения без заголовка кадра
func MarshalBody(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case *ChunkBatchRequest:
		if len(m.Positions) > MaxBatchSize {
			return nil, fmt.Errorf("%w: %d positions", ErrBatchTooLarge, len(m.Positions))
		}
	case *ChunkBatchResponse:
		if len(m.Chunks) > MaxBatchSize {
			return nil, fmt.Errorf("%w: %d chunks", ErrBatchTooLarge, len(m.Chunks))
		}
	}
	w := &writer{buf: make([]byte, 0, 64)}
	msg.marshal(w)
	return w.buf, nil
}

// UnmarshalBody разбирает тело сообщения указанного типа
func UnmarshalBody(t MessageType, body []byte) (Message, error) {
	msg, err := newMessage(t)
	if err != nil {
		return nil, err
	}
	r := &reader{buf: body}
	msg.unmarshal(r)
	if r.err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, r.err)
	}
	if r.off != len(body) {
		return nil, fmt.Errorf("decode %s: %w (%d)", t, ErrTrailingBytes, len(body)-r.off)
	}
	return msg, nil
}
