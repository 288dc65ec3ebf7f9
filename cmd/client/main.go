package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/voxel-engine/internal/config"
	"github.com/annel0/voxel-engine/internal/engine"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/network"
	"github.com/annel0/voxel-engine/internal/session"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию VOXEL_CONFIG)")
	serverAddr := flag.String("server", "", "адрес сервера host:port (по умолчанию из конфигурации)")
	px := flag.Int("x", 0, "позиция игрока X (в блоках)")
	py := flag.Int("y", 0, "позиция игрока Y (в блоках)")
	pz := flag.Int("z", 0, "позиция игрока Z (в блоках)")
	place := flag.String("place", "", "поставить блок с этим именем над позицией игрока после загрузки")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if err := logging.InitDefaultLogger("client", cfg.Logging.Dir, cfg.LogLevel()); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	logging.ConfigureComponents(cfg.ComponentLevels())

	addr := *serverAddr
	if addr == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", cfg.Server.KCPPort)
	}

	engineCfg := engine.DefaultConfig(cfg.World.Seed)
	engineCfg.Generator = cfg.GeneratorParams()
	engineCfg.Workers = cfg.Workers.Count
	engineCfg.BatchCapacity = cfg.Workers.BatchCapacity
	engineCfg.Generate = false
	engineCfg.BuildMeshes = true
	eng := engine.New(engineCfg)
	defer eng.Stop()

	var ep *network.Endpoint
	handler := session.NewClientHandler(eng, func(class network.DeliveryClass, frame []byte) error {
		return ep.Send(class, frame)
	})
	ep, err = network.Dial(addr, cfg.Channels(), handler.HandleMessage, nil)
	if err != nil {
		log.Fatalf("❌ Не удалось подключиться к %s: %v", addr, err)
	}
	defer ep.Close()

	if err := handler.Hello(); err != nil {
		log.Fatalf("❌ Ошибка рукопожатия: %v", err)
	}

	player := vec.Vec3{X: *px, Y: *py, Z: *pz}
	center := world.ChunkCoordsOf(player)
	logging.Info("🎮 Клиент подключён к %s, игрок в %v (чанк %v)", addr, player, center)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tick := time.NewTicker(cfg.TickInterval())
	defer tick.Stop()
	heartbeat := time.NewTicker(cfg.HeartbeatInterval())
	defer heartbeat.Stop()
	report := time.NewTicker(5 * time.Second)
	defer report.Stop()

	placed := *place == ""
	for {
		select {
		case <-ctx.Done():
			logging.Info("👋 Клиент остановлен")
			return
		case <-ep.Done():
			logging.Warn("🔌 Соединение с сервером потеряно")
			return
		case <-heartbeat.C:
			if err := handler.Heartbeat(); err != nil {
				logging.Warn("Heartbeat не отправлен: %v", err)
			}
		case <-report.C:
			s := eng.Stats()
			logging.Info("📊 Чанков %d, мешей %d, в очереди %d/%d, ожидаем %d, RTT %s",
				s.Chunks, s.Meshes, s.PendingGenerate, s.PendingMesh, handler.Outstanding(), handler.RTT())
		case <-tick.C:
			if _, err := handler.RequestArea(center, cfg.World.ViewRadius); err != nil {
				logging.Warn("Запрос чанков не отправлен: %v", err)
			}
			eng.Tick()

			if !placed && handler.Outstanding() == 0 {
				placed = placeBlock(eng, player, *place)
			}
		}
	}
}

// placeBlock ставит блок над игроком, как только его чанк загружен
func placeBlock(eng *engine.Engine, player vec.Vec3, name string) bool {
	b, ok := block.ByName(name)
	if !ok {
		logging.Error("Неизвестный блок %q", name)
		return true
	}
	pos := player.Add(vec.Vec3{Y: 1})
	if _, loaded := eng.GetBlock(pos); !loaded {
		return false
	}
	if err := eng.SetBlock(pos, b.ID); err != nil {
		logging.Error("Блок не поставлен: %v", err)
		return true
	}
	logging.Info("🧱 Ставим %s в %v", b.Name, pos)
	return true
}
