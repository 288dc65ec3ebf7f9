package protocol

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// CompressionType способ сжатия тела кадра
type CompressionType uint8

const (
	CompressionNone CompressionType = 0
	CompressionZstd CompressionType = 1
)

const (
	// FrameHeaderSize заголовок кадра: [тип u8][сжатие u8]
	FrameHeaderSize = 2
	// CompressThreshold тела меньше этого размера не сжимаются
	CompressThreshold = 256
	// MaxFrameBody предел размера тела после распаковки
	MaxFrameBody = 8 << 20
)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic(err)
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxFrameBody))
	if err != nil {
		panic(err)
	}
}

// Encode сериализует сообщение в кадр. Большие тела сжимаются zstd,
// если это действительно уменьшает размер.
func Encode(msg Message) ([]byte, error) {
	body, err := MarshalBody(msg)
	if err != nil {
		return nil, err
	}

	compression := CompressionNone
	if len(body) >= CompressThreshold {
		packed := zstdEncoder.EncodeAll(body, make([]byte, 0, len(body)/2))
		if len(packed) < len(body) {
			body = packed
			compression = CompressionZstd
		}
	}

	frame := make([]byte, 0, FrameHeaderSize+len(body))
	frame = append(frame, byte(msg.Type()), byte(compression))
	return append(frame, body...), nil
}

// Decode разбирает кадр
func Decode(frame []byte) (Message, error) {
	if len(frame) < FrameHeaderSize {
		return nil, fmt.Errorf("%w: frame of %d bytes", ErrTruncated, len(frame))
	}
	t := MessageType(frame[0])
	body := frame[FrameHeaderSize:]

	switch CompressionType(frame[1]) {
	case CompressionNone:
	case CompressionZstd:
		raw, err := zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd %s: %w", t, err)
		}
		if len(raw) > MaxFrameBody {
			return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(raw))
		}
		body = raw
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, frame[1])
	}

	return UnmarshalBody(t, body)
}

// PeekType возвращает тип сообщения в кадре без разбора тела
func PeekType(frame []byte) (MessageType, bool) {
	if len(frame) < FrameHeaderSize {
		return MsgUnknown, false
	}
	return MessageType(frame[0]), true
}
