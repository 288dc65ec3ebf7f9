package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics инкапсулирует Prometheus-метрики движка мира
type Metrics struct {
	chunksGenerated prometheus.Counter
	chunksLoaded    prometheus.Gauge
	meshesBuilt     prometheus.Counter
	meshesStale     prometheus.Counter
	meshFaces       prometheus.Histogram
	editsApplied    *prometheus.CounterVec
	editsDropped    prometheus.Counter
	decodeErrors    prometheus.Counter
	tickDuration    prometheus.Histogram
}

// NewMetrics создаёт метрики и регистрирует их в reg. Если reg == nil,
// метрики работают, но никуда не экспортируются (удобно в тестах).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		chunksGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "chunks_generated_total",
			Help:      "Число сгенерированных чанков.",
		}),
		chunksLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxel",
			Name:      "chunks_loaded",
			Help:      "Число чанков в хранилище.",
		}),
		meshesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "meshes_built_total",
			Help:      "Число построенных мешей.",
		}),
		meshesStale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "meshes_stale_total",
			Help:      "Меши, отброшенные из-за изменения чанка во время построения.",
		}),
		meshFaces: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voxel",
			Name:      "mesh_faces",
			Help:      "Число граней в построенном меше.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 7),
		}),
		editsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "block_edits_applied_total",
			Help:      "Применённые изменения блоков по источнику.",
		}, []string{"origin"}),
		editsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "block_edits_dropped_total",
			Help:      "Изменения, отброшенные из-за переполнения пакета или незагруженного чанка.",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "chunk_decode_errors_total",
			Help:      "Отклонённые потоки кодека.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voxel",
			Name:      "tick_duration_seconds",
			Help:      "Длительность шага Tick.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.chunksGenerated, m.chunksLoaded, m.meshesBuilt, m.meshesStale,
			m.meshFaces, m.editsApplied, m.editsDropped, m.decodeErrors, m.tickDuration,
		)
	}
	return m
}
