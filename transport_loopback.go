package herisson

import (
	"sync"
)

// The loopback transport moves frames between modules of the same process
// over named in-memory buses. An output pin configured with out_bus=NAME
// feeds every input pin configured with in_bus=NAME (first reader wins per
// frame when several inputs share a bus).
//
// Configuration keys:
//
//	out_bus / in_bus    bus name (default "default")
//	out_queue           bus depth in frames (default 16, set by first attach)
//	out_policy          "block" (default) or "drop"

type loopbackFrame struct {
	hdrs    FrameHeaders
	payload []byte
}

type loopbackBus struct {
	name string
	ch   chan loopbackFrame
}

var (
	loopbackMu    sync.Mutex
	loopbackBuses = make(map[string]*loopbackBus)
)

// attachLoopbackBus returns the named bus, creating it with the given depth
// on first attach. Buses live for the remainder of the process.
func attachLoopbackBus(name string, depth int) *loopbackBus {
	loopbackMu.Lock()
	defer loopbackMu.Unlock()
	if b, ok := loopbackBuses[name]; ok {
		return b
	}
	if depth <= 0 {
		depth = 16
	}
	b := &loopbackBus{name: name, ch: make(chan loopbackFrame, depth)}
	loopbackBuses[name] = b
	return b
}

func init() {
	RegisterInputTransport("loopback", newLoopbackInput)
	RegisterOutputTransport("loopback", newLoopbackOutput)
}

type loopbackInput struct {
	bus  *loopbackBus
	done chan struct{}
	once sync.Once
}

func newLoopbackInput(p Params) (ReceiveTransport, error) {
	bus := attachLoopbackBus(p.Get("in_bus", "default"), 0)
	return &loopbackInput{bus: bus, done: make(chan struct{})}, nil
}

func (t *loopbackInput) Receive() (FrameHeaders, []byte, error) {
	select {
	case f := <-t.bus.ch:
		return f.hdrs, f.payload, nil
	case <-t.done:
		return FrameHeaders{}, nil, ErrClosed
	}
}

func (t *loopbackInput) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

type loopbackOutput struct {
	bus  *loopbackBus
	desc TransportDescriptor
	done chan struct{}
	once sync.Once
}

func newLoopbackOutput(p Params) (SendTransport, error) {
	depth := p.Int("out_queue", 16)
	bus := attachLoopbackBus(p.Get("out_bus", "default"), depth)
	policy := PolicyBlock
	if p.Get("out_policy", "block") == "drop" {
		policy = PolicyDrop
	}
	return &loopbackOutput{
		bus:  bus,
		done: make(chan struct{}),
		desc: TransportDescriptor{Name: "loopback", QueueDepth: depth, Policy: policy},
	}, nil
}

func (t *loopbackOutput) Descriptor() TransportDescriptor {
	return t.desc
}

func (t *loopbackOutput) Send(h FrameHeaders, payload []byte) error {
	// The sender releases its ref as soon as Send returns, so the bus
	// carries its own copy of the payload.
	f := loopbackFrame{hdrs: h, payload: append([]byte(nil), payload...)}

	if t.desc.Policy == PolicyDrop {
		select {
		case t.bus.ch <- f:
			return nil
		case <-t.done:
			return ErrClosed
		default:
			logger.Warn("loopback bus full, dropping frame", "bus", t.bus.name)
			return nil
		}
	}
	select {
	case t.bus.ch <- f:
		return nil
	case <-t.done:
		return ErrClosed
	}
}

func (t *loopbackOutput) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}
