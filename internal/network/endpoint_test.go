package network

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memConn половина датаграммного канала в памяти. drop решает по номеру
// записи, потерять ли пакет.
type memConn struct {
	name   string
	in     chan []byte
	peer   *memConn
	drop   func(n int64) bool
	writes atomic.Int64
	closed chan struct{}
	once   sync.Once
}

func memPipe() (*memConn, *memConn) {
	a := &memConn{name: "a", in: make(chan []byte, 4096), closed: make(chan struct{})}
	b := &memConn{name: "b", in: make(chan []byte, 4096), closed: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (c *memConn) WritePacket(p []byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	n := c.writes.Add(1)
	if c.drop != nil && c.drop(n) {
		return nil
	}
	cp := append([]byte(nil), p...)
	select {
	case c.peer.in <- cp:
	case <-c.peer.closed:
	}
	return nil
}

func (c *memConn) ReadPacket() ([]byte, error) {
	select {
	case p := <-c.in:
		return p, nil
	case <-c.closed:
		return nil, io.EOF
	case <-c.peer.closed:
		return nil, io.EOF
	}
}

func (c *memConn) RemoteAddr() string { return "mem-" + c.peer.name }

func (c *memConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// collector собирает доставленные пакеты
type collector struct {
	mu  sync.Mutex
	got map[DeliveryClass][]string
}

func newCollector() *collector {
	return &collector{got: make(map[DeliveryClass][]string)}
}

func (c *collector) handle(class DeliveryClass, payload []byte) {
	c.mu.Lock()
	c.got[class] = append(c.got[class], string(payload))
	c.mu.Unlock()
}

func (c *collector) get(class DeliveryClass) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.got[class]...)
}

func fastChannels() Channels {
	ch := DefaultChannels()
	for i := range ch {
		if ch[i].Class.Reliable() {
			ch[i].ResendTime = 20 * time.Millisecond
		}
	}
	return ch
}

func packet(class DeliveryClass, seq uint64, payload string) []byte {
	return encodeHeader(class, kindData, seq, []byte(payload))
}

func TestDeliveryClassDefaults(t *testing.T) {
	ch := DefaultChannels()
	assert.Equal(t, time.Duration(0), ch[Unreliable].ResendTime)
	assert.Equal(t, 300*time.Millisecond, ch[ReliableOrdered].ResendTime)
	assert.Equal(t, 300*time.Millisecond, ch[ReliableUnordered].ResendTime)

	assert.True(t, ReliableOrdered.Ordered())
	assert.False(t, ReliableUnordered.Ordered())
	assert.False(t, Unreliable.Reliable())
	assert.False(t, DeliveryClass(7).Valid())
	assert.Equal(t, "reliable_unordered", ReliableUnordered.String())
}

func TestOrderedClassReleasesInSequence(t *testing.T) {
	a, _ := memPipe()
	c := newCollector()
	e := NewEndpoint(a, fastChannels(), c.handle, nil)
	defer e.Close()

	e.handlePacket(packet(ReliableOrdered, 2, "two"))
	e.handlePacket(packet(ReliableOrdered, 3, "three"))
	assert.Empty(t, c.get(ReliableOrdered), "без первого пакета ничего не выдаётся")

	e.handlePacket(packet(ReliableOrdered, 1, "one"))
	e.handlePacket(packet(ReliableOrdered, 2, "two"))
	assert.Equal(t, []string{"one", "two", "three"}, c.get(ReliableOrdered))
}

func TestUnorderedClassDeduplicates(t *testing.T) {
	a, _ := memPipe()
	c := newCollector()
	e := NewEndpoint(a, fastChannels(), c.handle, nil)
	defer e.Close()

	for _, seq := range []uint64{2, 1, 2, 1, 3} {
		e.handlePacket(packet(ReliableUnordered, seq, string(rune('0'+seq))))
	}
	assert.Equal(t, []string{"2", "1", "3"}, c.get(ReliableUnordered))
}

func TestUnreliableClassDropsStale(t *testing.T) {
	a, _ := memPipe()
	c := newCollector()
	e := NewEndpoint(a, fastChannels(), c.handle, nil)
	defer e.Close()

	e.handlePacket(packet(Unreliable, 5, "5"))
	e.handlePacket(packet(Unreliable, 3, "3"))
	e.handlePacket(packet(Unreliable, 5, "5"))
	e.handlePacket(packet(Unreliable, 6, "6"))
	assert.Equal(t, []string{"5", "6"}, c.get(Unreliable))
}

func TestMalformedPacketsIgnored(t *testing.T) {
	a, _ := memPipe()
	c := newCollector()
	e := NewEndpoint(a, fastChannels(), c.handle, nil)
	defer e.Close()

	e.handlePacket([]byte{1, 2})
	e.handlePacket(encodeHeader(DeliveryClass(9), kindData, 1, nil))
	e.handlePacket(encodeHeader(Unreliable, 7, 1, nil))

	for class := DeliveryClass(0); class < classCount; class++ {
		assert.Empty(t, c.get(class))
	}

	_, _, _, _, err := decodeHeader([]byte{0})
	assert.ErrorIs(t, err, ErrShortPacket)
	_, _, _, _, err = decodeHeader(encodeHeader(DeliveryClass(9), kindData, 1, nil))
	assert.ErrorIs(t, err, ErrUnknownClass)
}

func TestReliableDeliveryOverLossyLink(t *testing.T) {
	a, b := memPipe()
	// Теряется каждая вторая запись отправителя, включая повторы
	a.drop = func(n int64) bool { return n%2 == 0 }

	sender := NewEndpoint(a, fastChannels(), nil, nil)
	defer sender.Close()
	c := newCollector()
	receiver := NewEndpoint(b, fastChannels(), c.handle, nil)
	defer receiver.Close()

	var want []string
	for i := 0; i < 20; i++ {
		msg := string(rune('a' + i))
		want = append(want, msg)
		require.NoError(t, sender.Send(ReliableOrdered, []byte(msg)))
		require.NoError(t, sender.Send(ReliableUnordered, []byte(msg)))
	}

	require.Eventually(t, func() bool {
		return len(c.get(ReliableOrdered)) == 20 && len(c.get(ReliableUnordered)) == 20 &&
			sender.Pending(ReliableOrdered) == 0 && sender.Pending(ReliableUnordered) == 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, want, c.get(ReliableOrdered))
	assert.ElementsMatch(t, want, c.get(ReliableUnordered))
}

func TestUnreliableIsNotResent(t *testing.T) {
	a, b := memPipe()
	a.drop = func(int64) bool { return true }

	sender := NewEndpoint(a, fastChannels(), nil, nil)
	defer sender.Close()
	c := newCollector()
	receiver := NewEndpoint(b, fastChannels(), c.handle, nil)
	defer receiver.Close()

	require.NoError(t, sender.Send(Unreliable, []byte("lost")))
	assert.Equal(t, 0, sender.Pending(Unreliable))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, c.get(Unreliable))
}

func TestSendLimitsAndErrors(t *testing.T) {
	a, _ := memPipe()
	a.drop = func(int64) bool { return true }

	ch := fastChannels()
	ch[ReliableUnordered].MaxPending = 2
	e := NewEndpoint(a, ch, nil, nil)

	require.NoError(t, e.Send(ReliableUnordered, []byte("1")))
	require.NoError(t, e.Send(ReliableUnordered, []byte("2")))
	assert.ErrorIs(t, e.Send(ReliableUnordered, []byte("3")), ErrTooManyPending)
	assert.ErrorIs(t, e.Send(DeliveryClass(5), nil), ErrUnknownClass)

	require.NoError(t, e.Close())
	assert.True(t, errors.Is(e.Send(Unreliable, nil), ErrEndpointClosed))
	assert.Equal(t, 0, e.Pending(ReliableUnordered))

	select {
	case <-e.Done():
	case <-time.After(time.Second):
		t.Fatal("Done не закрыт после Close")
	}
}
