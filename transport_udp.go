package herisson

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// The udp transport carries one frame per datagram: wire header plus
// payload. Frames larger than a datagram can hold are rejected at Send.
// A multicast bind address joins the group on the input side; an output with
// a multicast destination sends to it without joining.
//
// Configuration keys:
//
//	out_host / out_port   destination (default 127.0.0.1)
//	in_addr / in_port     bind address (default 0.0.0.0); multicast joins
//	out_policy            "drop" (default) or "block"

// maxDatagram is the largest frame a udp pin will carry, header included.
const maxDatagram = 65000

func init() {
	RegisterInputTransport("udp", newUDPInput)
	RegisterOutputTransport("udp", newUDPOutput)
}

type udpOutput struct {
	conn *net.UDPConn
	desc TransportDescriptor
	buf  []byte
}

func newUDPOutput(p Params) (SendTransport, error) {
	host := p.Get("out_host", "127.0.0.1")
	port := p.Int("out_port", 0)
	if port <= 0 {
		return nil, fmt.Errorf("%w: udp output needs out_port", ErrInvalidArgument)
	}
	policy := PolicyDrop
	if p.Get("out_policy", "drop") == "block" {
		policy = PolicyBlock
	}
	t := &udpOutput{
		desc: TransportDescriptor{Name: "udp", QueueDepth: p.Int("out_queue", 64), Policy: policy},
	}
	if err := t.dial(host, port); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *udpOutput) dial(host string, port int) error {
	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("herisson: resolving udp destination: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("herisson: dialing udp destination: %w", err)
	}
	if t.conn != nil {
		t.conn.Close()
	}
	t.conn = conn
	return nil
}

func (t *udpOutput) Descriptor() TransportDescriptor {
	return t.desc
}

func (t *udpOutput) Send(h FrameHeaders, payload []byte) error {
	if wireHeaderSize+len(payload) > maxDatagram {
		return fmt.Errorf("herisson: frame of %d bytes exceeds udp datagram limit", len(payload))
	}
	t.buf = appendWireHeader(t.buf[:0], h)
	t.buf = append(t.buf, payload...)
	_, err := t.conn.Write(t.buf)
	return err
}

// setParameter retargets the destination while the pin is live.
func (t *udpOutput) setParameter(kind OutputParam, value string) error {
	remote := t.conn.RemoteAddr().(*net.UDPAddr)
	switch kind {
	case OutputParamDestHost:
		return t.dial(value, remote.Port)
	case OutputParamDestPort:
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: bad port %q", ErrInvalidArgument, value)
		}
		return t.dial(remote.IP.String(), port)
	default:
		return nil
	}
}

func (t *udpOutput) Close() error {
	return t.conn.Close()
}

type udpInput struct {
	conn *net.UDPConn
	buf  [maxDatagram + wireHeaderSize]byte
}

func newUDPInput(p Params) (ReceiveTransport, error) {
	addr := p.Get("in_addr", "0.0.0.0")
	port := p.Int("in_port", 0)
	if port <= 0 {
		return nil, fmt.Errorf("%w: udp input needs in_port", ErrInvalidArgument)
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return nil, fmt.Errorf("%w: bad udp bind address %q", ErrInvalidArgument, addr)
	}

	var (
		conn *net.UDPConn
		err  error
	)
	if ip.IsMulticast() {
		conn, err = net.ListenMulticastUDP("udp", nil, &net.UDPAddr{IP: ip, Port: port})
	} else {
		conn, err = net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: port})
	}
	if err != nil {
		return nil, fmt.Errorf("herisson: binding udp input: %w", err)
	}
	return &udpInput{conn: conn}, nil
}

func (t *udpInput) Receive() (FrameHeaders, []byte, error) {
	for {
		n, _, err := t.conn.ReadFromUDP(t.buf[:])
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return FrameHeaders{}, nil, ErrClosed
			}
			return FrameHeaders{}, nil, err
		}
		h, err := decodeWireHeader(t.buf[:n])
		if err != nil {
			logger.Error("discarding malformed udp datagram", "err", err)
			continue
		}
		if wireHeaderSize+h.MediaSize > n {
			logger.Error("discarding truncated udp datagram", "want", h.MediaSize, "got", n-wireHeaderSize)
			continue
		}
		return h, t.buf[wireHeaderSize : wireHeaderSize+h.MediaSize], nil
	}
}

func (t *udpInput) Close() error {
	return t.conn.Close()
}
