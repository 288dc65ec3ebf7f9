// Package codec сериализует содержимое чанка для передачи по сети.
//
// Формат: последовательность токенов по 8 байт, каждый токен - int32 LE код
// блока и int32 LE длина серии. Пустая последовательность кодируется пустым
// потоком.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// TokenSize размер одного токена в байтах
const TokenSize = 8

var (
	ErrMalformedLength = errors.New("rle stream length is not a multiple of token size")
	ErrUnknownSymbol   = errors.New("rle stream contains unknown block code")
	ErrInvalidCount    = errors.New("rle run count must be positive")
	ErrTooLarge        = errors.New("rle stream expands past limit")
)

// Token одна серия одинаковых блоков
type Token struct {
	Symbol block.BlockID
	Count  int32
}

// Tokenize разбивает последовательность на серии за один проход
func Tokenize(blocks []block.BlockID) []Token {
	if len(blocks) == 0 {
		return nil
	}

	tokens := make([]Token, 0, 16)
	cur := Token{Symbol: blocks[0], Count: 1}
	for _, id := range blocks[1:] {
		if id == cur.Symbol && cur.Count < math.MaxInt32 {
			cur.Count++
			continue
		}
		tokens = append(tokens, cur)
		cur = Token{Symbol: id, Count: 1}
	}
	return append(tokens, cur)
}

// Encode кодирует последовательность блоков
func Encode(blocks []block.BlockID) []byte {
	tokens := Tokenize(blocks)
	out := make([]byte, len(tokens)*TokenSize)
	for i, t := range tokens {
		off := i * TokenSize
		binary.LittleEndian.PutUint32(out[off:], uint32(t.Symbol.Code()))
		binary.LittleEndian.PutUint32(out[off+4:], uint32(t.Count))
	}
	return out
}

// Decode разворачивает поток без ограничения на итоговый размер
func Decode(data []byte) ([]block.BlockID, error) {
	return DecodeLimit(data, math.MaxInt)
}

// DecodeLimit разворачивает поток, отказываясь выдавать больше limit элементов.
// При любой ошибке результат не возвращается целиком.
func DecodeLimit(data []byte, limit int) ([]block.BlockID, error) {
	if len(data)%TokenSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedLength, len(data))
	}

	// Первый проход: проверка и подсчёт, чтобы не выделять память под мусор
	total := 0
	for off := 0; off < len(data); off += TokenSize {
		code := int32(binary.LittleEndian.Uint32(data[off:]))
		count := int32(binary.LittleEndian.Uint32(data[off+4:]))

		if _, err := block.FromCode(code); err != nil {
			return nil, fmt.Errorf("%w at token %d: %w", ErrUnknownSymbol, off/TokenSize, err)
		}
		if count < 1 {
			return nil, fmt.Errorf("%w: token %d has count %d", ErrInvalidCount, off/TokenSize, count)
		}
		if int(count) > limit-total {
			return nil, fmt.Errorf("%w: more than %d elements", ErrTooLarge, limit)
		}
		total += int(count)
	}

	out := make([]block.BlockID, 0, total)
	for off := 0; off < len(data); off += TokenSize {
		id := block.BlockID(binary.LittleEndian.Uint32(data[off:]))
		count := int(int32(binary.LittleEndian.Uint32(data[off+4:])))
		for i := 0; i < count; i++ {
			out = append(out, id)
		}
	}
	return out, nil
}

// EncodeChunk кодирует весь объём чанка, включая поля, в порядке world.Index
func EncodeChunk(c *world.Chunk) []byte {
	return Encode(c.Blocks)
}

// DecodeChunk восстанавливает чанк. Поток должен развернуться ровно в world.PaddedVolume блоков.
func DecodeChunk(coords vec.Vec3, data []byte) (*world.Chunk, error) {
	blocks, err := DecodeLimit(data, world.PaddedVolume)
	if err != nil {
		return nil, err
	}
	return world.ChunkFromBlocks(coords, blocks)
}
