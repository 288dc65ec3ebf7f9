package network

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xtaci/kcp-go/v5"

	"github.com/annel0/voxel-engine/internal/logging"
)

var ErrPeerNotFound = errors.New("peer not found")

// ServerConfig параметры сервера
type ServerConfig struct {
	Addr        string
	Channels    Channels
	IdleTimeout time.Duration // 0 - не отключать молчащих клиентов
}

// DefaultServerConfig конфигурация по умолчанию для адреса
func DefaultServerConfig(addr string) ServerConfig {
	return ServerConfig{
		Addr:        addr,
		Channels:    DefaultChannels(),
		IdleTimeout: 30 * time.Second,
	}
}

// Peer подключённый клиент
type Peer struct {
	ID          string
	Endpoint    *Endpoint
	ConnectedAt time.Time

	lastSeen time.Time
}

// Server принимает KCP-соединения и держит по Endpoint на клиента
type Server struct {
	cfg      ServerConfig
	listener *kcp.Listener
	metrics  *Metrics

	peers   map[string]*Peer
	peersMu sync.RWMutex

	onConnect    func(p *Peer)
	onDisconnect func(id string)
	onMessage    func(id string, class DeliveryClass, payload []byte)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logging.Logger
}

// NewServer создаёт сервер; metrics == nil значит без экспорта метрик
func NewServer(cfg ServerConfig, metrics *Metrics) *Server {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		metrics: metrics,
		peers:   make(map[string]*Peer),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logging.GetNetworkLogger(),
	}
}

// SetHandlers устанавливает обработчики событий. Вызывать до Start.
func (s *Server) SetHandlers(
	onConnect func(*Peer),
	onDisconnect func(string),
	onMessage func(string, DeliveryClass, []byte),
) {
	s.onConnect = onConnect
	s.onDisconnect = onDisconnect
	s.onMessage = onMessage
}

// Start начинает слушать адрес
func (s *Server) Start() error {
	listener, err := kcp.ListenWithOptions(s.cfg.Addr, nil, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()
	if s.cfg.IdleTimeout > 0 {
		s.wg.Add(1)
		go s.timeoutLoop()
	}

	s.logger.Info("🚀 Сервер запущен на %s", listener.Addr())
	return nil
}

// Addr фактический адрес слушателя (полезно при порте 0)
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Stop закрывает слушатель и всех клиентов
func (s *Server) Stop() error {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.peersMu.Lock()
	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.peersMu.Unlock()

	for _, p := range peers {
		p.Endpoint.Close()
	}
	s.wg.Wait()

	s.logger.Info("🛑 Сервер остановлен")
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.AcceptKCP()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to accept connection: %v", err)
				continue
			}
		}
		s.ServeConn(NewKCPConn(conn))
	}
}

// ServeConn регистрирует клиента на уже установленном соединении
// и возвращает его идентификатор
func (s *Server) ServeConn(conn PacketConn) string {
	id := uuid.NewString()
	now := time.Now()
	peer := &Peer{ID: id, ConnectedAt: now, lastSeen: now}

	// Пакеты, пришедшие сразу после соединения, ждут регистрации клиента
	// и onConnect: обработчик может сразу отвечать через Send
	ready := make(chan struct{})
	peer.Endpoint = NewEndpoint(conn, s.cfg.Channels, func(class DeliveryClass, payload []byte) {
		<-ready
		s.peersMu.Lock()
		peer.lastSeen = time.Now()
		s.peersMu.Unlock()
		if s.onMessage != nil {
			s.onMessage(id, class, payload)
		}
	}, s.metrics)

	s.peersMu.Lock()
	s.peers[id] = peer
	s.peersMu.Unlock()
	s.metrics.peers.Inc()

	s.logger.Info("👤 Клиент %s подключился с %s", id, conn.RemoteAddr())
	if s.onConnect != nil {
		s.onConnect(peer)
	}
	close(ready)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-peer.Endpoint.Done()
		s.disconnect(id)
	}()
	return id
}

func (s *Server) timeoutLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.checkTimeouts(now)
		}
	}
}

func (s *Server) checkTimeouts(now time.Time) {
	var idle []*Peer
	s.peersMu.RLock()
	for _, p := range s.peers {
		if now.Sub(p.lastSeen) > s.cfg.IdleTimeout {
			idle = append(idle, p)
		}
	}
	s.peersMu.RUnlock()

	for _, p := range idle {
		s.logger.Warn("⏱️ Client %s timed out", p.ID)
		// Done закроется, и горутина клиента вызовет disconnect
		p.Endpoint.Close()
	}
}

func (s *Server) disconnect(id string) {
	s.peersMu.Lock()
	p, ok := s.peers[id]
	if ok {
		delete(s.peers, id)
	}
	s.peersMu.Unlock()
	if !ok {
		return
	}

	p.Endpoint.Close()
	s.metrics.peers.Dec()
	if s.onDisconnect != nil {
		s.onDisconnect(id)
	}
	s.logger.Info("👋 Client %s disconnected", id)
}

// Send отправляет пакет одному клиенту
func (s *Server) Send(id string, class DeliveryClass, payload []byte) error {
	s.peersMu.RLock()
	p, ok := s.peers[id]
	s.peersMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, id)
	}
	return p.Endpoint.Send(class, payload)
}

// Broadcast рассылает пакет всем клиентам, кроме except (узел-источник)
func (s *Server) Broadcast(class DeliveryClass, payload []byte, except string) int {
	s.peersMu.RLock()
	targets := make([]*Peer, 0, len(s.peers))
	for id, p := range s.peers {
		if id != except {
			targets = append(targets, p)
		}
	}
	s.peersMu.RUnlock()

	sent := 0
	for _, p := range targets {
		if err := p.Endpoint.Send(class, payload); err != nil {
			s.logger.Error("Failed to send to %s: %v", p.ID, err)
			continue
		}
		sent++
	}
	return sent
}

// PeerCount число подключённых клиентов
func (s *Server) PeerCount() int {
	s.peersMu.RLock()
	defer s.peersMu.RUnlock()
	return len(s.peers)
}

// PeerIDs идентификаторы клиентов по возрастанию
func (s *Server) PeerIDs() []string {
	s.peersMu.RLock()
	ids := make([]string, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	s.peersMu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Dial подключается к серверу и возвращает готовый Endpoint
func Dial(addr string, channels Channels, handler Handler, metrics *Metrics) (*Endpoint, error) {
	conn, err := DialKCP(addr)
	if err != nil {
		return nil, err
	}
	return NewEndpoint(conn, channels, handler, metrics), nil
}
