// Package cache хранит закодированные чанки, чтобы не кодировать
// один и тот же чанк для каждого клиента заново.
package cache

import (
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"

	"github.com/annel0/voxel-engine/internal/vec"
)

// PayloadCache определяет интерфейс кеша закодированных чанков.
// Запись действительна только для той версии чанка, с которой она была сделана.
//
// Использование:
//
//	c, _ := NewRistrettoCache(DefaultConfig())
//	data, ok := c.Get(coords, chunk.Version)
//	c.Set(coords, chunk.Version, data)
type PayloadCache interface {
	Get(coords vec.Vec3, version uint64) ([]byte, bool)
	Set(coords vec.Vec3, version uint64, payload []byte)
	Invalidate(coords vec.Vec3)
	Metrics() Metrics
	Close()
}

// Metrics содержит счётчики кеша
type Metrics struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	Stale    int64   `json:"stale"`
	HitRatio float64 `json:"hit_ratio"`
}

// Config конфигурация кеша
type Config struct {
	MaxCostBytes int64 `yaml:"max_cost_bytes"`
	NumCounters  int64 `yaml:"num_counters"`
}

// DefaultConfig 64 МБ закодированных чанков
func DefaultConfig() Config {
	return Config{
		MaxCostBytes: 64 << 20,
		NumCounters:  100_000,
	}
}

type entry struct {
	version uint64
	payload []byte
}

// RistrettoCache реализует PayloadCache поверх ristretto
type RistrettoCache struct {
	cache *ristretto.Cache

	hits   atomic.Int64
	misses atomic.Int64
	stale  atomic.Int64
}

// NewRistrettoCache создаёт кеш
func NewRistrettoCache(cfg Config) (*RistrettoCache, error) {
	if cfg.MaxCostBytes <= 0 || cfg.NumCounters <= 0 {
		cfg = DefaultConfig()
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &RistrettoCache{cache: c}, nil
}

func key(coords vec.Vec3) string {
	return fmt.Sprintf("%d:%d:%d", coords.X, coords.Y, coords.Z)
}

// Get возвращает закодированный чанк, если он сохранён для этой версии
func (r *RistrettoCache) Get(coords vec.Vec3, version uint64) ([]byte, bool) {
	v, ok := r.cache.Get(key(coords))
	if !ok {
		r.misses.Add(1)
		return nil, false
	}
	e := v.(entry)
	if e.version != version {
		r.stale.Add(1)
		r.misses.Add(1)
		return nil, false
	}
	r.hits.Add(1)
	return e.payload, true
}

// Set сохраняет закодированный чанк. Запись становится видимой после
// обработки внутреннего буфера ristretto, см. Wait.
func (r *RistrettoCache) Set(coords vec.Vec3, version uint64, payload []byte) {
	r.cache.Set(key(coords), entry{version: version, payload: payload}, int64(len(payload))+32)
}

// Wait дожидается применения всех отложенных Set
func (r *RistrettoCache) Wait() {
	r.cache.Wait()
}

// Invalidate удаляет запись чанка
func (r *RistrettoCache) Invalidate(coords vec.Vec3) {
	r.cache.Del(key(coords))
}

// Metrics возвращает счётчики попаданий
func (r *RistrettoCache) Metrics() Metrics {
	m := Metrics{
		Hits:   r.hits.Load(),
		Misses: r.misses.Load(),
		Stale:  r.stale.Load(),
	}
	if total := m.Hits + m.Misses; total > 0 {
		m.HitRatio = float64(m.Hits) / float64(total)
	}
	return m
}

// Close останавливает фоновые горутины ristretto
func (r *RistrettoCache) Close() {
	r.cache.Close()
}
