package herisson

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// The tcp transport writes length-prefixed wire frames over a stream
// connection. Outputs dial the peer lazily and redial once on a broken
// write; inputs listen and accept one connection at a time, moving to the
// next connection when the current one ends.
//
// Configuration keys:
//
//	out_host / out_port   destination (default 127.0.0.1)
//	in_addr / in_port     listen address (default all interfaces)
//	out_queue             send queue depth (default 64)

const tcpDialTimeout = 5 * time.Second

func init() {
	RegisterInputTransport("tcp", newTCPInput)
	RegisterOutputTransport("tcp", newTCPOutput)
}

type tcpOutput struct {
	mu   sync.Mutex
	addr string
	conn net.Conn
	desc TransportDescriptor
	buf  []byte
}

func newTCPOutput(p Params) (SendTransport, error) {
	host := p.Get("out_host", "127.0.0.1")
	port := p.Int("out_port", 0)
	if port <= 0 {
		return nil, fmt.Errorf("%w: tcp output needs out_port", ErrInvalidArgument)
	}
	return &tcpOutput{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		desc: TransportDescriptor{Name: "tcp", QueueDepth: p.Int("out_queue", 64), Policy: PolicyBlock},
	}, nil
}

func (t *tcpOutput) Descriptor() TransportDescriptor {
	return t.desc
}

// connect dials the peer if no connection is up. Caller holds t.mu.
func (t *tcpOutput) connect() error {
	if t.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", t.addr, tcpDialTimeout)
	if err != nil {
		return fmt.Errorf("herisson: dialing tcp destination %s: %w", t.addr, err)
	}
	t.conn = conn
	return nil
}

func (t *tcpOutput) Send(h FrameHeaders, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = appendWireHeader(t.buf[:0], h)
	t.buf = append(t.buf, payload...)

	// One redial on a broken pipe; anything beyond that is the
	// application's problem to hear about.
	for attempt := 0; ; attempt++ {
		if err := t.connect(); err != nil {
			return err
		}
		_, err := t.conn.Write(t.buf)
		if err == nil {
			return nil
		}
		t.conn.Close()
		t.conn = nil
		if attempt > 0 {
			return fmt.Errorf("herisson: tcp send to %s: %w", t.addr, err)
		}
		logger.Warn("tcp send failed, redialing", "addr", t.addr, "err", err)
	}
}

// setParameter retargets the destination; the next Send dials the new peer.
func (t *tcpOutput) setParameter(kind OutputParam, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	host, port, err := net.SplitHostPort(t.addr)
	if err != nil {
		return err
	}
	switch kind {
	case OutputParamDestHost:
		host = value
	case OutputParamDestPort:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("%w: bad port %q", ErrInvalidArgument, value)
		}
		port = value
	default:
		return nil
	}
	t.addr = net.JoinHostPort(host, port)
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	return nil
}

func (t *tcpOutput) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		err := t.conn.Close()
		t.conn = nil
		return err
	}
	return nil
}

type tcpInput struct {
	ln      net.Listener
	mu      sync.Mutex
	conn    net.Conn
	scratch []byte
	closed  bool
}

func newTCPInput(p Params) (ReceiveTransport, error) {
	addr := p.Get("in_addr", "")
	port := p.Int("in_port", 0)
	if port <= 0 {
		return nil, fmt.Errorf("%w: tcp input needs in_port", ErrInvalidArgument)
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("herisson: binding tcp input: %w", err)
	}
	return &tcpInput{ln: ln}, nil
}

func (t *tcpInput) Receive() (FrameHeaders, []byte, error) {
	for {
		conn := t.current()
		if conn == nil {
			accepted, err := t.ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return FrameHeaders{}, nil, ErrClosed
				}
				return FrameHeaders{}, nil, err
			}
			t.setCurrent(accepted)
			conn = accepted
		}

		h, payload, err := readWireFrame(conn, &t.scratch)
		if err == nil {
			return h, payload, nil
		}
		// Peer went away or the stream desynced: drop the connection
		// and wait for the next one.
		conn.Close()
		t.setCurrent(nil)
		if t.isClosed() {
			return FrameHeaders{}, nil, ErrClosed
		}
		logger.Info("tcp input connection ended", "err", err)
	}
}

func (t *tcpInput) current() net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *tcpInput) setCurrent(c net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn = c
}

func (t *tcpInput) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *tcpInput) Close() error {
	t.mu.Lock()
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	return t.ln.Close()
}
