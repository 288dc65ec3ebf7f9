// Package session связывает сетевой уровень, протокол и движок мира:
// разбирает входящие кадры и превращает их в операции движка.
package session

import (
	"fmt"

	"github.com/annel0/voxel-engine/internal/network"
	"github.com/annel0/voxel-engine/internal/protocol"
)

// SendFunc отправляет закодированный кадр с заданным классом доставки
type SendFunc func(class network.DeliveryClass, frame []byte) error

// encode кодирует сообщение и выбирает его класс доставки
func encode(msg protocol.Message) (network.DeliveryClass, []byte, error) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return 0, nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	return protocol.DeliveryClassOf(msg.Type()), frame, nil
}

// send кодирует и отправляет сообщение
func send(fn SendFunc, msg protocol.Message) error {
	class, frame, err := encode(msg)
	if err != nil {
		return err
	}
	return fn(class, frame)
}
