// Package network предоставляет надёжную доставку поверх датаграмм:
// три класса доставки, подтверждения и повторная отправка.
package network

import (
	"errors"
	"time"
)

// DeliveryClass определяет гарантии доставки сообщения
type DeliveryClass uint8

const (
	// Unreliable без гарантий: устаревшие пакеты отбрасываются (позиции, heartbeat)
	Unreliable DeliveryClass = iota
	// ReliableOrdered доставка гарантирована, порядок сохраняется
	ReliableOrdered
	// ReliableUnordered доставка гарантирована, порядок не важен (чанки, блоки)
	ReliableUnordered

	classCount
)

// DefaultResendTime интервал повторной отправки неподтверждённых пакетов
const DefaultResendTime = 300 * time.Millisecond

var ErrUnknownClass = errors.New("unknown delivery class")

func (c DeliveryClass) String() string {
	switch c {
	case Unreliable:
		return "unreliable"
	case ReliableOrdered:
		return "reliable_ordered"
	case ReliableUnordered:
		return "reliable_unordered"
	default:
		return "unknown"
	}
}

// Reliable возвращает true для классов с подтверждениями
func (c DeliveryClass) Reliable() bool {
	return c == ReliableOrdered || c == ReliableUnordered
}

// Ordered возвращает true, если получатель должен выдавать пакеты по порядку
func (c DeliveryClass) Ordered() bool {
	return c == ReliableOrdered
}

// Valid проверяет, что класс известен
func (c DeliveryClass) Valid() bool {
	return c < classCount
}

// ChannelConfig содержит конфигурацию одного класса доставки
type ChannelConfig struct {
	Class      DeliveryClass
	ResendTime time.Duration // Через сколько повторять неподтверждённый пакет
	MaxPending int           // Сколько неподтверждённых пакетов держать, 0 - без лимита
}

// DefaultChannelConfig возвращает конфигурацию класса по умолчанию
func DefaultChannelConfig(class DeliveryClass) ChannelConfig {
	cfg := ChannelConfig{
		Class:      class,
		ResendTime: DefaultResendTime,
		MaxPending: 1024,
	}
	if !class.Reliable() {
		cfg.ResendTime = 0
		cfg.MaxPending = 0
	}
	return cfg
}

// Channels конфигурации всех классов, индекс - DeliveryClass
type Channels [classCount]ChannelConfig

// DefaultChannels конфигурации всех трёх классов
func DefaultChannels() Channels {
	var out Channels
	for c := DeliveryClass(0); c < classCount; c++ {
		out[c] = DefaultChannelConfig(c)
	}
	return out
}
