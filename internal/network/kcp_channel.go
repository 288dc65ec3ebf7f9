package network

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/xtaci/kcp-go/v5"

	"github.com/annel0/voxel-engine/internal/logging"
)

// MaxPacketSize предельный размер одного кадра на проводе
const MaxPacketSize = 16 << 20

var ErrPacketTooLarge = errors.New("packet exceeds size limit")

// KCPConn адаптирует сессию KCP к PacketConn. KCP работает в потоковом
// режиме, поэтому каждый пакет предваряется длиной (u32 LE).
type KCPConn struct {
	conn   *kcp.UDPSession
	reader *bufio.Reader
	wmu    sync.Mutex
	logger *logging.Logger
}

// NewKCPConn настраивает сессию и оборачивает её
func NewKCPConn(conn *kcp.UDPSession) *KCPConn {
	conn.SetStreamMode(true)
	conn.SetWriteDelay(false)
	conn.SetNoDelay(1, 20, 2, 1)
	conn.SetWindowSize(512, 512)
	conn.SetMtu(1400)
	conn.SetACKNoDelay(true)

	return &KCPConn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, 64*1024),
		logger: logging.GetNetworkLogger(),
	}
}

// DialKCP подключается к серверу по KCP
func DialKCP(addr string) (*KCPConn, error) {
	conn, err := kcp.DialWithOptions(addr, nil, 10, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to dial KCP %s: %w", addr, err)
	}

	kc := NewKCPConn(conn)
	kc.logger.Info("KCP channel connected: addr=%s", addr)
	return kc, nil
}

// WritePacket записывает кадр целиком
func (kc *KCPConn) WritePacket(p []byte) error {
	if len(p) > MaxPacketSize {
		return fmt.Errorf("%w: %d", ErrPacketTooLarge, len(p))
	}
	frame := make([]byte, 4+len(p))
	binary.LittleEndian.PutUint32(frame, uint32(len(p)))
	copy(frame[4:], p)

	kc.wmu.Lock()
	defer kc.wmu.Unlock()
	_, err := kc.conn.Write(frame)
	return err
}

// ReadPacket читает следующий кадр
func (kc *KCPConn) ReadPacket() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(kc.reader, header[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(header[:])
	if n > MaxPacketSize {
		return nil, fmt.Errorf("%w: %d", ErrPacketTooLarge, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(kc.reader, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// SetReadDeadline передаёт дедлайн чтения сессии
func (kc *KCPConn) SetReadDeadline(t time.Time) error {
	return kc.conn.SetReadDeadline(t)
}

// RemoteAddr адрес удалённого узла
func (kc *KCPConn) RemoteAddr() string {
	return kc.conn.RemoteAddr().String()
}

// LocalAddr локальный адрес сессии
func (kc *KCPConn) LocalAddr() net.Addr {
	return kc.conn.LocalAddr()
}

// Close закрывает сессию
func (kc *KCPConn) Close() error {
	return kc.conn.Close()
}
