package herisson

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// moduleTable is the process-wide registry of live modules, keyed by the
// handles the public surface trades in. Handles are monotonically increasing
// and never reused; closing a module tombstones its entry. Mutations happen
// only at create and close, so steady-state lookups take the read lock.
var moduleTable = struct {
	sync.RWMutex
	next    ModuleHandle
	entries map[ModuleHandle]*Module
}{next: 1, entries: make(map[ModuleHandle]*Module)}

// registerModule assigns the module its process-wide handle.
func registerModule(m *Module) ModuleHandle {
	moduleTable.Lock()
	defer moduleTable.Unlock()
	h := moduleTable.next
	moduleTable.next++
	moduleTable.entries[h] = m
	return h
}

// lookupModule resolves a module handle, or nil for unknown and tombstoned
// handles.
func lookupModule(h ModuleHandle) *Module {
	if h == InvalidModule {
		return nil
	}
	moduleTable.RLock()
	defer moduleTable.RUnlock()
	return moduleTable.entries[h]
}

// unregisterModule tombstones a closed module's handle.
func unregisterModule(h ModuleHandle) {
	moduleTable.Lock()
	defer moduleTable.Unlock()
	delete(moduleTable.entries, h)
}

// moduleState is the lifecycle position of a module.
type moduleState int

// Lifecycle states. Close is terminal.
const (
	stateCreated moduleState = iota
	stateInitialised
	stateStarted
	stateStopped
	stateClosed
)

// String returns the string representation of the state.
func (s moduleState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateInitialised:
		return "initialised"
	case stateStarted:
		return "started"
	case stateStopped:
		return "stopped"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Module is one running processing unit: an ordered set of input and output
// pins, an out-of-band control channel, and the callback that receives
// lifecycle events and arriving frames.
//
// The pin lists are fixed at creation; the lifecycle mutex serialises
// start/stop/close against each other and against the control channel.
type Module struct {
	handle   ModuleHandle
	callback Callback
	userData any
	params   Params
	pool     *FramePool

	mu      sync.Mutex // lifecycle
	state   moduleState
	inputs  []*InputPin
	outputs []*OutputPin
	control *controlChannel
	nextPin PinHandle

	// inCallback flags a synchronous lifecycle delivery in progress; it
	// backs the documented rule that callbacks must not drive their own
	// module's lifecycle.
	inCallback atomic.Bool
}

// newModule parses the configuration, builds one pin per declared bucket and
// binds the control channel. The module is registered process-wide and left
// in the initialised state.
func newModule(port int, callback Callback, config string, userData any, pool *FramePool) (*Module, error) {
	if callback == nil {
		return nil, fmt.Errorf("%w: nil callback", ErrInvalidArgument)
	}
	cfg, err := SplitConfig(config)
	if err != nil {
		return nil, err
	}

	m := &Module{
		callback: callback,
		userData: userData,
		params:   ParseParams(cfg.Module),
		pool:     pool,
		state:    stateCreated,
	}

	for _, bucket := range cfg.Inputs {
		if err := m.createInput(bucket); err != nil {
			m.teardownPins()
			return nil, err
		}
	}
	for _, bucket := range cfg.Outputs {
		if err := m.createOutput(bucket); err != nil {
			m.teardownPins()
			return nil, err
		}
	}

	if err := m.init(port); err != nil {
		m.teardownPins()
		return nil, err
	}

	m.handle = registerModule(m)
	logger.Info("module created", "module", m.handle,
		"type", m.params.Get("type", ""), "inputs", len(m.inputs), "outputs", len(m.outputs))
	return m, nil
}

// createInput builds an input pin from one configuration bucket.
func (m *Module) createInput(bucket string) error {
	in, err := newInputPin(m, m.assignPin(), bucket)
	if err != nil {
		return fmt.Errorf("input %q: %w", bucket, err)
	}
	m.inputs = append(m.inputs, in)
	return nil
}

// createOutput builds an output pin from one configuration bucket.
func (m *Module) createOutput(bucket string) error {
	out, err := newOutputPin(m, m.assignPin(), bucket)
	if err != nil {
		return fmt.Errorf("output %q: %w", bucket, err)
	}
	m.outputs = append(m.outputs, out)
	return nil
}

// assignPin hands out the next pin handle, unique within the module.
func (m *Module) assignPin() PinHandle {
	h := m.nextPin
	m.nextPin++
	return h
}

// init binds the control channel and moves the module to the initialised
// state; the pins are left as created. A port of zero or less, and no
// control_port in the module bucket, leaves the module without a control
// channel.
func (m *Module) init(port int) error {
	if port <= 0 {
		port = m.params.Int("control_port", 0)
	}
	if port > 0 {
		c, err := newControlChannel(m, m.params.Get("control_addr", "127.0.0.1"), port)
		if err != nil {
			return err
		}
		m.control = c
	}
	m.state = stateInitialised
	return nil
}

// teardownPins closes transports of pins built so far; used when creation
// fails halfway.
func (m *Module) teardownPins() {
	for _, in := range m.inputs {
		in.close()
	}
	for _, out := range m.outputs {
		out.close()
	}
}

// start starts all pins and the control-channel task, then delivers CmdStart
// through the callback before returning. Idempotent while started. Must not
// be called from inside the module callback.
func (m *Module) start() error {
	if m.inCallback.Load() {
		logger.Error("start from inside module callback", "module", m.handle)
		return ErrInCallback
	}

	m.mu.Lock()
	switch m.state {
	case stateClosed:
		m.mu.Unlock()
		return ErrClosed
	case stateStarted:
		m.mu.Unlock()
		return nil
	}
	for _, out := range m.outputs {
		out.start()
	}
	for _, in := range m.inputs {
		if err := in.start(); err != nil {
			logger.Error("input pin failed to start", "module", m.handle, "pin", in.handle, "err", err)
		}
	}
	if m.control != nil {
		m.control.start()
	}
	m.state = stateStarted
	m.mu.Unlock()

	m.deliverLifecycle(CmdStart)
	logger.Info("module started", "module", m.handle)
	return nil
}

// stop stops pins and quiesces their queues, then delivers CmdStop.
// Idempotent. The control channel keeps serving until close.
func (m *Module) stop() error {
	if m.inCallback.Load() {
		logger.Error("stop from inside module callback", "module", m.handle)
		return ErrInCallback
	}

	m.mu.Lock()
	switch m.state {
	case stateClosed:
		m.mu.Unlock()
		return ErrClosed
	case stateStarted:
	default:
		m.mu.Unlock()
		return nil
	}
	for _, in := range m.inputs {
		in.stop()
	}
	for _, out := range m.outputs {
		out.stop()
	}
	m.state = stateStopped
	m.mu.Unlock()

	m.deliverLifecycle(CmdStop)
	logger.Info("module stopped", "module", m.handle)
	return nil
}

// close stops the module if needed, tears down pins and the control channel,
// and tombstones the registry entry. Close is terminal.
func (m *Module) close() error {
	if m.inCallback.Load() {
		logger.Error("close from inside module callback", "module", m.handle)
		return ErrInCallback
	}

	m.mu.Lock()
	if m.state == stateClosed {
		m.mu.Unlock()
		return nil
	}
	wasStarted := m.state == stateStarted
	m.mu.Unlock()

	// A running module goes through a full stop first, CmdStop delivery
	// included.
	if wasStarted {
		if err := m.stop(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	if m.state == stateClosed {
		m.mu.Unlock()
		return nil
	}
	m.teardownPins()
	m.state = stateClosed
	control := m.control
	m.control = nil
	m.mu.Unlock()

	// The control task may itself be executing a command against this
	// module; waiting for it under the lifecycle mutex would deadlock.
	if control != nil {
		control.close()
	}

	unregisterModule(m.handle)
	logger.Info("module closed", "module", m.handle)
	return nil
}

// deliver hands one event to the module callback. TICK deliveries run on the
// receiving pin's task; the frame's reference is held by the caller for the
// duration of the callback.
func (m *Module) deliver(pin PinHandle, frame FrameHandle, cmd Command) {
	m.callback(m.userData, m.handle, pin, frame, cmd)
}

// deliverLifecycle delivers START/STOP synchronously on the caller's task,
// flagged so reentrant lifecycle calls are caught.
func (m *Module) deliverLifecycle(cmd Command) {
	m.inCallback.Store(true)
	defer m.inCallback.Store(false)
	m.callback(m.userData, m.handle, InvalidPin, InvalidFrame, cmd)
}

// status renders the STATUS reply for the control channel.
func (m *Module) status() string {
	m.mu.Lock()
	state := m.state
	ins, outs := len(m.inputs), len(m.outputs)
	m.mu.Unlock()
	return fmt.Sprintf("OK state=%s inputs=%d outputs=%d frames=%d/%d",
		state, ins, outs, m.pool.Live(), m.pool.Cap())
}

// Handle returns the module's registry handle.
func (m *Module) Handle() ModuleHandle {
	return m.handle
}

// InputCount returns the number of input pins.
func (m *Module) InputCount() int {
	return len(m.inputs)
}

// OutputCount returns the number of output pins.
func (m *Module) OutputCount() int {
	return len(m.outputs)
}

// Input returns the i-th input pin in declaration order.
func (m *Module) Input(i int) (*InputPin, error) {
	if i < 0 || i >= len(m.inputs) {
		return nil, fmt.Errorf("%w: input %d of %d", ErrOutOfRange, i, len(m.inputs))
	}
	return m.inputs[i], nil
}

// Output returns the i-th output pin in declaration order.
func (m *Module) Output(i int) (*OutputPin, error) {
	if i < 0 || i >= len(m.outputs) {
		return nil, fmt.Errorf("%w: output %d of %d", ErrOutOfRange, i, len(m.outputs))
	}
	return m.outputs[i], nil
}

// outputByHandle finds an output pin by its handle, or nil.
func (m *Module) outputByHandle(h PinHandle) *OutputPin {
	for _, out := range m.outputs {
		if out.handle == h {
			return out
		}
	}
	return nil
}

// ControlAddr returns the bound control-channel address, or "" when the
// module has no control channel.
func (m *Module) ControlAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.control == nil {
		return ""
	}
	return m.control.Addr().String()
}

