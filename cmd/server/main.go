package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/annel0/voxel-engine/internal/api"
	"github.com/annel0/voxel-engine/internal/cache"
	"github.com/annel0/voxel-engine/internal/config"
	"github.com/annel0/voxel-engine/internal/engine"
	"github.com/annel0/voxel-engine/internal/eventbus"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/network"
	"github.com/annel0/voxel-engine/internal/observability"
	"github.com/annel0/voxel-engine/internal/session"
	"github.com/annel0/voxel-engine/internal/vec"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию VOXEL_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	if err := logging.InitDefaultLogger("server", cfg.Logging.Dir, cfg.LogLevel()); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	logging.ConfigureComponents(cfg.ComponentLevels())

	logging.Info("🎮 Запуск сервера воксельного мира (seed=%d)", cfg.World.Seed)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.TracingEnabled {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Observability.ServiceName, cfg.Observability.OTLPEndpoint)
		if err != nil {
			logging.Error("❌ Трассировка не инициализирована: %v", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	payloads, err := cache.NewRistrettoCache(cfg.Cache)
	if err != nil {
		log.Fatalf("❌ Ошибка создания кеша чанков: %v", err)
	}
	defer payloads.Close()

	engineCfg := engine.DefaultConfig(cfg.World.Seed)
	engineCfg.Generator = cfg.GeneratorParams()
	engineCfg.Workers = cfg.Workers.Count
	engineCfg.BatchCapacity = cfg.Workers.BatchCapacity
	engineCfg.BuildMeshes = false
	engineCfg.Registerer = registry
	engineCfg.PayloadCache = payloads
	eng := engine.New(engineCfg)
	defer eng.Stop()

	logging.Info("🌍 Генератор: отпечаток %x", eng.Fingerprint())
	spawn := eng.RequestArea(vec.Vec3{}, cfg.World.ViewRadius)
	logging.Info("⛏️ Генерация стартовой области: %d чанков", len(spawn))

	bus := newEventBus(cfg)
	defer bus.Close()
	if err := eventbus.RegisterMetrics(bus, registry); err != nil {
		log.Fatalf("❌ Ошибка регистрации метрик шины событий: %v", err)
	}
	if cfg.Events.LogEvents {
		if _, err := eventbus.StartLoggingListener(bus); err != nil {
			logging.Error("❌ Логирование событий не запущено: %v", err)
		}
	}

	srv := network.NewServer(cfg.ServerNetwork(), network.NewMetrics(registry))
	handler := session.NewServerHandler(eng, srv)
	handler.SetEvents(bus, cfg.Observability.ServiceName)
	srv.SetHandlers(
		func(p *network.Peer) { handler.OnConnect(p.ID) },
		handler.OnDisconnect,
		handler.HandleMessage,
	)
	if err := srv.Start(); err != nil {
		log.Fatalf("❌ Ошибка запуска KCP сервера: %v", err)
	}
	defer srv.Stop()

	var rest *api.RestServer
	if addr := cfg.RESTAddr(); addr != "" {
		rest = api.NewRestServer(api.Config{
			Addr:     addr,
			World:    eng,
			Peers:    srv.PeerCount,
			Registry: registry,
		})
		if err := rest.Start(); err != nil {
			log.Fatalf("❌ Ошибка запуска REST API: %v", err)
		}
	}

	logging.Info("✅ Сервер готов: KCP %s, REST %q", srv.Addr(), cfg.RESTAddr())

	eng.Run(ctx, cfg.TickInterval())

	logging.Info("📡 Получен сигнал завершения, останавливаемся...")
	if rest != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rest.Shutdown(shutdownCtx); err != nil {
			logging.Error("❌ Ошибка остановки REST API: %v", err)
		}
		cancel()
	}
	logging.Info("👋 Сервер остановлен")
}

// newEventBus подключается к NATS JetStream, если он настроен; при ошибке
// события остаются в памяти процесса
func newEventBus(cfg *config.Config) eventbus.EventBus {
	if cfg.Events.NATSURL != "" {
		bus, err := eventbus.NewJetStreamBus(cfg.Events.NATSURL, cfg.Events.Stream, cfg.EventRetention())
		if err == nil {
			logging.Info("📨 События мира публикуются в NATS %s (стрим %s)", cfg.Events.NATSURL, cfg.Events.Stream)
			return bus
		}
		logging.Error("❌ NATS недоступен, события остаются в памяти: %v", err)
	}
	return eventbus.NewMemoryBus(cfg.Events.BufferSize)
}
