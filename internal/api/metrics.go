package api

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessMetrics сведения о процессе сервера для отладочного API
type ProcessMetrics struct {
	StartTime time.Time
	proc      *process.Process
}

// ProcessSnapshot снимок использования ресурсов
type ProcessSnapshot struct {
	Uptime     string  `json:"uptime"`
	UptimeSec  float64 `json:"uptime_seconds"`
	MemoryMB   float64 `json:"memory_mb"`
	HeapMB     float64 `json:"heap_mb"`
	NumGC      uint32  `json:"num_gc"`
	Goroutines int     `json:"goroutines"`
	CPUPercent float64 `json:"cpu_percent"`
}

// NewProcessMetrics создаёт сборщик; без доступа к /proc CPU всегда 0
func NewProcessMetrics() *ProcessMetrics {
	pm := &ProcessMetrics{StartTime: time.Now()}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		pm.proc = proc
	}
	return pm
}

// Uptime время работы в человекочитаемом виде
func (pm *ProcessMetrics) Uptime() string {
	return formatUptime(time.Since(pm.StartTime))
}

func formatUptime(uptime time.Duration) string {
	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	default:
		return fmt.Sprintf("%dс", seconds)
	}
}

// CPUPercent загрузка CPU процессом
func (pm *ProcessMetrics) CPUPercent() float64 {
	if pm.proc == nil {
		return 0
	}
	pct, err := pm.proc.CPUPercent()
	if err != nil {
		return 0
	}
	return pct
}

// Snapshot собирает текущие значения
func (pm *ProcessMetrics) Snapshot() ProcessSnapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	up := time.Since(pm.StartTime)
	return ProcessSnapshot{
		Uptime:     formatUptime(up),
		UptimeSec:  up.Seconds(),
		MemoryMB:   float64(m.Alloc) / 1024 / 1024,
		HeapMB:     float64(m.HeapAlloc) / 1024 / 1024,
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
		CPUPercent: pm.CPUPercent(),
	}
}
