package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/voxel-engine/internal/engine"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/middleware"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// World часть движка, доступная отладочному API
type World interface {
	Stats() engine.Stats
	GetBlock(pos vec.Vec3) (block.BlockID, bool)
	SetBlock(pos vec.Vec3, id block.BlockID) error
	ChunkInfo(coords vec.Vec3) (engine.ChunkInfo, bool)
}

// Config конфигурация REST сервера
type Config struct {
	Addr     string
	World    World
	Peers    func() int // число подключённых клиентов, может быть nil
	Registry *prometheus.Registry
	Service  string // префикс HTTP-метрик и имя в трассировке
}

// RestServer отладочный HTTP API сервера мира
type RestServer struct {
	router  *gin.Engine
	srv     *http.Server
	world   World
	peers   func() int
	process *ProcessMetrics
	logger  *logging.Logger
}

// GenericResponse общий формат ответа
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// BlockRequest тело POST /api/world/block
type BlockRequest struct {
	X     *int   `json:"x" binding:"required"`
	Y     *int   `json:"y" binding:"required"`
	Z     *int   `json:"z" binding:"required"`
	Block string `json:"block" binding:"required"`
}

// BlockResponse блок в мировой позиции
type BlockResponse struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
	ID    int32  `json:"id"`
	Block string `json:"block"`
}

// StatsResponse ответ /api/world/stats
type StatsResponse struct {
	Engine  engine.Stats    `json:"engine"`
	Peers   int             `json:"peers"`
	Process ProcessSnapshot `json:"process"`
}

// ServerInfoResponse ответ /api/server
type ServerInfoResponse struct {
	Process   ProcessSnapshot   `json:"process"`
	LogLevels map[string]string `json:"log_levels"`
}

// NewRestServer создаёт сервер и настраивает маршруты
func NewRestServer(cfg Config) *RestServer {
	if cfg.Service == "" {
		cfg.Service = "voxel_api"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Service))
	router.Use(middleware.NewRequestLogger().Handler())

	promMw := middleware.NewPrometheusMiddleware(cfg.Service, cfg.Registry)
	router.Use(promMw.Handler())
	middleware.RegisterMetricsEndpoint(router, cfg.Registry)

	rs := &RestServer{
		router:  router,
		world:   cfg.World,
		peers:   cfg.Peers,
		process: NewProcessMetrics(),
		logger:  logging.GetComponentLogger("api"),
	}
	rs.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	rs.setupRoutes()
	return rs
}

func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	{
		api.GET("/blocks", rs.handleBlocks)
		api.GET("/server", rs.handleServerInfo)

		w := api.Group("/world")
		w.GET("/stats", rs.handleStats)
		w.GET("/block", rs.handleGetBlock)
		w.POST("/block", rs.handleSetBlock)
		w.GET("/chunk/:x/:y/:z", rs.handleChunk)
	}
}

// Handler возвращает http.Handler со всеми маршрутами
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Start слушает адрес в отдельной горутине
func (rs *RestServer) Start() error {
	ln, err := net.Listen("tcp", rs.srv.Addr)
	if err != nil {
		return err
	}
	rs.logger.Info("🌐 REST API слушает %s", ln.Addr())
	go func() {
		if err := rs.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rs.logger.Error("REST API остановлен с ошибкой: %v", err)
		}
	}()
	return nil
}

// Shutdown завершает обработку запросов
func (rs *RestServer) Shutdown(ctx context.Context) error {
	return rs.srv.Shutdown(ctx)
}

func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

func (rs *RestServer) handleServerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: ServerInfoResponse{
		Process:   rs.process.Snapshot(),
		LogLevels: logging.GetLoggerManager().Levels(),
	}})
}

func (rs *RestServer) handleBlocks(c *gin.Context) {
	type blockInfo struct {
		ID    int32  `json:"id"`
		Name  string `json:"name"`
		Solid bool   `json:"solid"`
		Mesh  string `json:"mesh"`
	}
	all := block.All()
	out := make([]blockInfo, 0, len(all))
	for _, b := range all {
		out = append(out, blockInfo{ID: b.ID.Code(), Name: b.Name, Solid: b.Solid, Mesh: b.Mesh.String()})
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: out})
}

func (rs *RestServer) handleStats(c *gin.Context) {
	resp := StatsResponse{
		Engine:  rs.world.Stats(),
		Process: rs.process.Snapshot(),
	}
	if rs.peers != nil {
		resp.Peers = rs.peers()
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: resp})
}

func (rs *RestServer) handleGetBlock(c *gin.Context) {
	pos, ok := parseVec(c, c.Query("x"), c.Query("y"), c.Query("z"))
	if !ok {
		return
	}
	id, loaded := rs.world.GetBlock(pos)
	if !loaded {
		c.JSON(http.StatusNotFound, GenericResponse{Message: "Чанк не загружен"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: BlockResponse{
		X: pos.X, Y: pos.Y, Z: pos.Z, ID: id.Code(), Block: id.String(),
	}})
}

func (rs *RestServer) handleSetBlock(c *gin.Context) {
	var req BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неверный формат запроса: " + err.Error()})
		return
	}

	b, ok := block.ByName(req.Block)
	if !ok {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неизвестный блок: " + req.Block})
		return
	}

	pos := vec.Vec3{X: *req.X, Y: *req.Y, Z: *req.Z}
	if err := rs.world.SetBlock(pos, b.ID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrBatchFull) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, GenericResponse{Message: err.Error()})
		return
	}

	rs.logger.Info("🧱 Блок %s поставлен через API в %v", b.Name, pos)
	c.JSON(http.StatusAccepted, GenericResponse{
		Success: true,
		Message: "Изменение применится на ближайшем тике",
		Data:    BlockResponse{X: pos.X, Y: pos.Y, Z: pos.Z, ID: b.ID.Code(), Block: b.Name},
	})
}

func (rs *RestServer) handleChunk(c *gin.Context) {
	coords, ok := parseVec(c, c.Param("x"), c.Param("y"), c.Param("z"))
	if !ok {
		return
	}
	info, loaded := rs.world.ChunkInfo(coords)
	if !loaded {
		c.JSON(http.StatusNotFound, GenericResponse{Message: "Чанк не загружен"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: info})
}

// parseVec разбирает три целых; при ошибке сам отвечает 400
func parseVec(c *gin.Context, xs, ys, zs string) (vec.Vec3, bool) {
	var out [3]int
	for i, s := range []string{xs, ys, zs} {
		n, err := strconv.Atoi(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{Message: "Координаты должны быть целыми: " + s})
			return vec.Vec3{}, false
		}
		out[i] = n
	}
	return vec.Vec3{X: out[0], Y: out[1], Z: out[2]}, true
}
