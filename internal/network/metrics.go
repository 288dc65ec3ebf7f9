package network

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics счётчики сетевого уровня по классам доставки
type Metrics struct {
	packetsSent     *prometheus.CounterVec
	packetsResent   *prometheus.CounterVec
	packetsReceived *prometheus.CounterVec
	packetsDropped  *prometheus.CounterVec
	bytesSent       prometheus.Counter
	bytesReceived   prometheus.Counter
	pending         prometheus.Gauge
	peers           prometheus.Gauge
}

// NewMetrics создаёт метрики; reg == nil значит без регистрации
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		packetsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "net",
			Name:      "packets_sent_total",
			Help:      "Отправленные пакеты данных (без повторов).",
		}, []string{"class"}),
		packetsResent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "net",
			Name:      "packets_resent_total",
			Help:      "Повторные отправки неподтверждённых пакетов.",
		}, []string{"class"}),
		packetsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "net",
			Name:      "packets_received_total",
			Help:      "Пакеты данных, переданные обработчику.",
		}, []string{"class"}),
		packetsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "net",
			Name:      "packets_dropped_total",
			Help:      "Отброшенные входящие пакеты по причине.",
		}, []string{"class", "reason"}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "net",
			Name:      "bytes_sent_total",
			Help:      "Байты, записанные в соединения.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "net",
			Name:      "bytes_received_total",
			Help:      "Байты, прочитанные из соединений.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxel",
			Subsystem: "net",
			Name:      "pending_packets",
			Help:      "Надёжные пакеты, ожидающие подтверждения.",
		}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxel",
			Subsystem: "net",
			Name:      "peers",
			Help:      "Подключённые клиенты.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.packetsSent, m.packetsResent, m.packetsReceived, m.packetsDropped,
			m.bytesSent, m.bytesReceived, m.pending, m.peers,
		)
	}
	return m
}
