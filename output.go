package herisson

import (
	"fmt"
	"sync"
	"time"
)

// OutputParam addresses one tunable of an output pin. The set is open;
// kinds above OutputParamUser are free for transport registrations.
type OutputParam int

// Output parameters.
const (
	OutputParamBitrate OutputParam = iota
	OutputParamDestHost
	OutputParamDestPort
	OutputParamPID

	// OutputParamUser is the first transport-defined parameter kind.
	OutputParamUser OutputParam = 0x1000
)

// outputFlushTimeout bounds how long stopping keeps transmitting queued
// frames before truncating the queue.
const outputFlushTimeout = 3 * time.Second

// OutputPin queues frames for a dedicated send task that transmits them via
// the transport in Send order. Send takes its own reference on the frame;
// the send task releases it after transmission, so the caller may release
// immediately after Send returns.
//
// Send runs on arbitrary application tasks while start/stop run under the
// module lifecycle, so the stop signal and the started/stopped flags live
// behind the pin's own mutex; a restart swaps the stop channel under it.
type OutputPin struct {
	pin
	tr    SendTransport
	mod   *Module
	queue chan FrameHandle

	mu       sync.Mutex
	stopping chan struct{}
	done     chan struct{}
	stopped  bool
	started  bool
}

// newOutputPin builds a pin from one out_type bucket of the module config.
func newOutputPin(mod *Module, handle PinHandle, bucket string) (*OutputPin, error) {
	params := ParseParams(bucket)
	typeName := params.Get(outputDelimiterKey, "")
	tr, err := newOutputTransport(typeName, params)
	if err != nil {
		return nil, err
	}
	desc := tr.Descriptor()
	depth := desc.QueueDepth
	if depth <= 0 {
		depth = 1
	}
	return &OutputPin{
		pin:      pin{handle: handle, polarity: PolarityOutput, typeName: typeName, params: params},
		tr:       tr,
		mod:      mod,
		queue:    make(chan FrameHandle, depth),
		stopping: make(chan struct{}),
	}, nil
}

// Descriptor returns the transport's fixed properties.
func (out *OutputPin) Descriptor() TransportDescriptor {
	return out.tr.Descriptor()
}

// Send takes a reference on the frame, enqueues it for the send task and
// returns. Backpressure follows the transport's descriptor: PolicyBlock
// waits for room, PolicyDrop discards the frame with a log entry.
func (out *OutputPin) Send(h FrameHandle) error {
	if n := out.mod.pool.AddRef(h); n < 0 {
		return fmt.Errorf("%w: frame %d", ErrHandleNotFound, h)
	}

	// Snapshot the stop signal under the pin mutex; a concurrent restart
	// swaps the channel, and an unguarded read would race it.
	out.mu.Lock()
	if out.stopped {
		out.mu.Unlock()
		out.mod.pool.Release(h)
		return ErrClosed
	}
	stopping := out.stopping
	out.mu.Unlock()

	if out.tr.Descriptor().Policy == PolicyDrop {
		select {
		case out.queue <- h:
			return nil
		default:
			out.mod.pool.Release(h)
			logger.Warn("send queue full, dropping frame", "pin", out.handle, "frame", h)
			return nil
		}
	}

	select {
	case out.queue <- h:
		return nil
	case <-stopping:
		out.mod.pool.Release(h)
		return ErrClosed
	}
}

// SetParameter applies an output parameter. Transports that support live
// retargeting get it directly. Every accepted value is also recorded in the
// pin's configuration under the key param_<kind>; nothing reads that key
// back, so a parameter the transport does not apply has no effect on
// transmission, including after a restart.
func (out *OutputPin) SetParameter(kind OutputParam, value string) error {
	if ps, ok := out.tr.(parameterSetter); ok {
		if err := ps.setParameter(kind, value); err != nil {
			return err
		}
	}
	out.params[fmt.Sprintf("param_%d", int(kind))] = value
	return nil
}

// start spawns the send task. A restart after stop gets a fresh stop signal,
// swapped under the pin mutex so in-flight Sends keep a coherent channel;
// the transport survives stop and is only torn down at module close.
// Called with the module lifecycle held.
func (out *OutputPin) start() {
	out.mu.Lock()
	if out.started {
		out.mu.Unlock()
		return
	}
	if out.stopped {
		out.stopping = make(chan struct{})
		out.stopped = false
	}
	out.started = true
	out.done = make(chan struct{})
	stopping, done := out.stopping, out.done
	out.mu.Unlock()

	go out.run(stopping, done)
}

// stop flushes the queue through the transport until the flush timeout, then
// truncates. Called with the module lifecycle held.
func (out *OutputPin) stop() {
	out.mu.Lock()
	if !out.started {
		out.mu.Unlock()
		return
	}
	out.started = false
	out.stopped = true
	close(out.stopping)
	done := out.done
	out.mu.Unlock()

	select {
	case <-done:
	case <-time.After(outputFlushTimeout + time.Second):
		logger.Error("output send task did not stop in time", "pin", out.handle)
	}
	// A Send racing the stop may have slipped one more frame in; drop the
	// stragglers' refs so they do not pin pool slots forever.
	for {
		select {
		case h := <-out.queue:
			out.mod.pool.Release(h)
		default:
			return
		}
	}
}

// run is the send task: drain the queue in FIFO order, transmit, release.
// The stop signal and completion channel are those of this task's incarnation;
// a restarted pin gets fresh ones.
func (out *OutputPin) run(stopping <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case h := <-out.queue:
			out.transmit(h)
		case <-stopping:
			out.flush()
			return
		}
	}
}

// flush transmits what is still queued, truncating at the flush timeout.
func (out *OutputPin) flush() {
	deadline := time.Now().Add(outputFlushTimeout)
	for {
		select {
		case h := <-out.queue:
			if time.Now().Before(deadline) {
				out.transmit(h)
			} else {
				out.mod.pool.Release(h)
			}
		default:
			return
		}
	}
}

// transmit sends one frame and drops the queue's reference.
func (out *OutputPin) transmit(h FrameHandle) {
	f := out.mod.pool.Lookup(h)
	if f == nil {
		logger.Error("queued frame vanished before transmit", "pin", out.handle, "frame", h)
		return
	}
	if err := out.tr.Send(f.Headers(), f.Buffer()); err != nil {
		logger.Error("transmit failed", "pin", out.handle, "frame", h, "err", err)
	}
	out.mod.pool.Release(h)
}

// close tears the transport down. The send task is already stopped.
func (out *OutputPin) close() {
	out.tr.Close()
}
