package herisson

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// inputStopTimeout bounds how long stopping waits for a receive task to
// notice its transport closed.
const inputStopTimeout = 5 * time.Second

// InputPin receives frames from its transport and hands them to the module
// callback. The receive task holds one reference on each frame for the
// duration of the callback; callbacks that keep the frame longer must
// FrameAddRef before returning.
type InputPin struct {
	pin
	tr        ReceiveTransport
	mod       *Module
	started   bool
	done      chan struct{}
	nextIndex int64
}

// newInputPin builds a pin from one in_type bucket of the module config.
func newInputPin(mod *Module, handle PinHandle, bucket string) (*InputPin, error) {
	params := ParseParams(bucket)
	typeName := params.Get(inputDelimiterKey, "")
	tr, err := newInputTransport(typeName, params)
	if err != nil {
		return nil, err
	}
	return &InputPin{
		pin: pin{handle: handle, polarity: PolarityInput, typeName: typeName, params: params},
		tr:  tr,
		mod: mod,
	}, nil
}

// start spawns the receive task, rebuilding the transport when a previous
// stop tore it down. Called with the module lifecycle held.
func (in *InputPin) start() error {
	if in.started {
		return nil
	}
	if in.tr == nil {
		tr, err := newInputTransport(in.typeName, in.params)
		if err != nil {
			return err
		}
		in.tr = tr
	}
	in.started = true
	in.done = make(chan struct{})
	go in.run()
	return nil
}

// stop closes the transport to unblock the receive task and waits for it to
// drain. Called with the module lifecycle held.
func (in *InputPin) stop() {
	if !in.started {
		return
	}
	in.started = false
	in.tr.Close()
	select {
	case <-in.done:
	case <-time.After(inputStopTimeout):
		logger.Error("input receive task did not stop in time", "pin", in.handle)
	}
	in.tr = nil
}

// run is the receive task: block on the transport, stage the payload into a
// pooled frame, deliver it, release the task's ref.
func (in *InputPin) run() {
	defer close(in.done)

	for {
		hdrs, payload, err := in.tr.Receive()
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return
			}
			if errors.Is(err, io.EOF) {
				logger.Info("input stream ended", "module", in.mod.handle, "pin", in.handle)
			} else {
				logger.Error("input transport failed", "module", in.mod.handle, "pin", in.handle, "err", err)
			}
			in.mod.deliver(in.handle, InvalidFrame, CmdQuit)
			return
		}

		fh, err := in.stage(hdrs, payload)
		if err != nil {
			logger.Error("dropping received frame", "pin", in.handle, "err", err)
			continue
		}
		in.mod.deliver(in.handle, fh, CmdTick)
		in.mod.pool.Release(fh)
	}
}

// close tears the transport down for a pin that is not running.
func (in *InputPin) close() {
	if in.tr != nil {
		in.tr.Close()
		in.tr = nil
	}
}

// stage acquires a pooled frame sized from the received headers and copies
// the payload in. Frames arriving without an index are stamped with the
// pin's receive counter.
func (in *InputPin) stage(hdrs FrameHeaders, payload []byte) (FrameHandle, error) {
	if hdrs.MediaSize != len(payload) {
		return InvalidFrame, fmt.Errorf("%w: header size %d vs payload %d", ErrInvalidArgument, hdrs.MediaSize, len(payload))
	}
	idx := in.nextIndex
	in.nextIndex++
	if hdrs.FrameIndex == 0 {
		hdrs.FrameIndex = idx
	}

	fh, err := in.mod.pool.AcquireWithInit(hdrs)
	if err != nil {
		return InvalidFrame, err
	}
	copy(in.mod.pool.Buffer(fh), payload)
	return fh, nil
}
