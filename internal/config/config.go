package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/annel0/voxel-engine/internal/cache"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/network"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
)

// Config корневая структура конфигурации сервера и клиента.
// Нулевые значения полей заменяются значениями по умолчанию.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	World   WorldConfig   `yaml:"world"`
	Network NetworkConfig `yaml:"network"`
	Workers WorkersConfig `yaml:"workers"`
	Cache   cache.Config  `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
	Events  EventsConfig  `yaml:"events"`

	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	KCPPort  int    `yaml:"kcp_port"`
	RESTPort int    `yaml:"rest_port"`
}

// WorldConfig параметры генерации. Клиент и сервер должны совпадать, иначе
// отпечатки генератора в рукопожатии разойдутся.
type WorldConfig struct {
	Seed       int64 `yaml:"seed"`
	ViewRadius int   `yaml:"view_radius"` // радиус в чанках вокруг игрока

	Octaves     int        `yaml:"octaves"`
	Frequency   [3]float64 `yaml:"frequency"`
	Amplitude   float64    `yaml:"amplitude"`
	Persistence float64    `yaml:"persistence"`
	Lacunarity  float64    `yaml:"lacunarity"`

	BaseHeight     float64 `yaml:"base_height"`
	HeightScale    float64 `yaml:"height_scale"`
	StoneThreshold float64 `yaml:"stone_threshold"`
	DirtThreshold  float64 `yaml:"dirt_threshold"`
	FoliageChance  float64 `yaml:"foliage_chance"`
}

type NetworkConfig struct {
	ResendTimeMs       int `yaml:"resend_time_ms"`
	MaxPending         int `yaml:"max_pending"`
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds"`
	HeartbeatSeconds   int `yaml:"heartbeat_seconds"`
}

type WorkersConfig struct {
	Count         int `yaml:"count"` // 0 - по числу CPU
	BatchCapacity int `yaml:"batch_capacity"`
	TickMs        int `yaml:"tick_ms"`
}

// ObservabilityConfig трассировка OpenTelemetry, по умолчанию выключена
type ObservabilityConfig struct {
	TracingEnabled bool   `yaml:"tracing_enabled"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"` // host:port, пусто - из окружения OTEL_*
	ServiceName    string `yaml:"service_name"`
}

// EventsConfig шина событий мира. Без nats_url события остаются в памяти процесса.
type EventsConfig struct {
	BufferSize       int    `yaml:"buffer_size"`
	LogEvents        bool   `yaml:"log_events"`
	NATSURL          string `yaml:"nats_url"`
	Stream           string `yaml:"stream"`
	RetentionMinutes int    `yaml:"retention_minutes"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"` // пустая строка - только консоль

	// Components уровни отдельных компонентов, например network: debug
	Components map[string]string `yaml:"components"`
}

// Default конфигурация без файла
func Default() *Config {
	gen := world.DefaultGeneratorParams(0)
	f := gen.Noise.Frequency
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			KCPPort:  7777,
			RESTPort: 8088,
		},
		World: WorldConfig{
			Seed:           gen.Seed,
			ViewRadius:     2,
			Octaves:        gen.Noise.Octaves,
			Frequency:      [3]float64{f.X, f.Y, f.Z},
			Amplitude:      gen.Noise.Amplitude,
			Persistence:    gen.Noise.Persistence,
			Lacunarity:     gen.Noise.Lacunarity,
			BaseHeight:     gen.BaseHeight,
			HeightScale:    gen.HeightScale,
			StoneThreshold: gen.StoneThreshold,
			DirtThreshold:  gen.DirtThreshold,
			FoliageChance:  gen.FoliageChance,
		},
		Network: NetworkConfig{
			ResendTimeMs:       int(network.DefaultResendTime / time.Millisecond),
			MaxPending:         1024,
			IdleTimeoutSeconds: 30,
			HeartbeatSeconds:   5,
		},
		Workers: WorkersConfig{
			BatchCapacity: 4096,
			TickMs:        50,
		},
		Cache:         cache.DefaultConfig(),
		Logging:       LoggingConfig{Level: "info"},
		Events: EventsConfig{
			BufferSize:       1024,
			Stream:           "VOXEL",
			RetentionMinutes: 60,
		},
		Observability: ObservabilityConfig{ServiceName: "voxel-engine"},
	}
}

// Load читает YAML поверх Default. Если path == "", берётся VOXEL_CONFIG;
// если и он пуст, возвращаются значения по умолчанию. Затем применяются
// переменные окружения.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("VOXEL_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv переопределяет порты и сид из окружения
func (c *Config) applyEnv() {
	c.Server.KCPPort = envInt("VOXEL_KCP_PORT", c.Server.KCPPort)
	c.Server.RESTPort = envInt("VOXEL_REST_PORT", c.Server.RESTPort)
	if v := os.Getenv("VOXEL_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.World.Seed = seed
		}
	}
}

// envInt возвращает положительное значение из окружения или fallback
func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// Validate проверяет значения, которые нельзя заменить по умолчанию
func (c *Config) Validate() error {
	if c.Server.KCPPort <= 0 || c.Server.KCPPort > 65535 {
		return fmt.Errorf("invalid kcp_port %d", c.Server.KCPPort)
	}
	if c.Server.RESTPort < 0 || c.Server.RESTPort > 65535 {
		return fmt.Errorf("invalid rest_port %d", c.Server.RESTPort)
	}
	if c.World.HeightScale <= 0 {
		return fmt.Errorf("height_scale must be positive, got %v", c.World.HeightScale)
	}
	if c.World.FoliageChance < 0 || c.World.FoliageChance > 1 {
		return fmt.Errorf("foliage_chance must be in [0,1], got %v", c.World.FoliageChance)
	}
	if c.World.ViewRadius < 0 {
		return fmt.Errorf("view_radius must not be negative")
	}
	if c.Events.BufferSize <= 0 {
		return fmt.Errorf("events.buffer_size must be positive, got %d", c.Events.BufferSize)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	for component, level := range c.Logging.Components {
		if _, err := logging.ParseLevel(level); err != nil {
			return fmt.Errorf("logging.components.%s: %w", component, err)
		}
	}
	return nil
}

// KCPAddr адрес для прослушивания или подключения
func (c *Config) KCPAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.KCPPort)
}

// RESTAddr адрес отладочного HTTP API; пустая строка, если он выключен
func (c *Config) RESTAddr() string {
	if c.Server.RESTPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.RESTPort)
}

// GeneratorParams параметры генератора мира
func (c *Config) GeneratorParams() world.GeneratorParams {
	w := c.World
	p := world.DefaultGeneratorParams(w.Seed)
	p.Noise.Octaves = w.Octaves
	p.Noise.Frequency = vec.Vec3Float{X: w.Frequency[0], Y: w.Frequency[1], Z: w.Frequency[2]}
	p.Noise.Amplitude = w.Amplitude
	p.Noise.Persistence = w.Persistence
	p.Noise.Lacunarity = w.Lacunarity
	p.BaseHeight = w.BaseHeight
	p.HeightScale = w.HeightScale
	p.StoneThreshold = w.StoneThreshold
	p.DirtThreshold = w.DirtThreshold
	p.FoliageChance = w.FoliageChance
	return p
}

// Channels конфигурации классов доставки
func (c *Config) Channels() network.Channels {
	ch := network.DefaultChannels()
	for i := range ch {
		if !ch[i].Class.Reliable() {
			continue
		}
		if c.Network.ResendTimeMs > 0 {
			ch[i].ResendTime = time.Duration(c.Network.ResendTimeMs) * time.Millisecond
		}
		ch[i].MaxPending = c.Network.MaxPending
	}
	return ch
}

// ServerNetwork конфигурация сетевого сервера
func (c *Config) ServerNetwork() network.ServerConfig {
	cfg := network.DefaultServerConfig(c.KCPAddr())
	cfg.Channels = c.Channels()
	cfg.IdleTimeout = time.Duration(c.Network.IdleTimeoutSeconds) * time.Second
	return cfg
}

// TickInterval период цикла тиков
func (c *Config) TickInterval() time.Duration {
	if c.Workers.TickMs <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(c.Workers.TickMs) * time.Millisecond
}

// HeartbeatInterval период отправки heartbeat клиентом
func (c *Config) HeartbeatInterval() time.Duration {
	if c.Network.HeartbeatSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Network.HeartbeatSeconds) * time.Second
}

// EventRetention сколько JetStream хранит события
func (c *Config) EventRetention() time.Duration {
	return time.Duration(c.Events.RetentionMinutes) * time.Minute
}

// LogLevel уровень логирования; Validate уже отсеял неверные значения
func (c *Config) LogLevel() logging.LogLevel {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return level
}

// ComponentLevels уровни компонентов из logging.components
func (c *Config) ComponentLevels() map[string]logging.LogLevel {
	out := make(map[string]logging.LogLevel, len(c.Logging.Components))
	for component, s := range c.Logging.Components {
		level, _ := logging.ParseLevel(s)
		out[component] = level
	}
	return out
}
