package herisson

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cbEvent is one callback invocation captured by collectorCallback.
type cbEvent struct {
	pin     PinHandle
	frame   FrameHandle
	cmd     Command
	payload []byte
	index   int64
}

// collectorCallback forwards every callback invocation to ch, copying the
// frame payload while the receive task's reference is still held.
func collectorCallback(pool *FramePool, ch chan cbEvent) Callback {
	return func(_ any, _ ModuleHandle, pin PinHandle, frame FrameHandle, cmd Command) {
		ev := cbEvent{pin: pin, frame: frame, cmd: cmd}
		if cmd == CmdTick {
			ev.payload = append([]byte{}, pool.Buffer(frame)...)
			ev.index, _ = pool.GetHeader(frame, HeaderFrameIndex)
		}
		ch <- ev
	}
}

func TestModule_CreateAndAccessors(t *testing.T) {
	pool := NewFramePool(4)
	events := make(chan cbEvent, 16)

	m, err := newModule(0, collectorCallback(pool, events),
		"type=probe,in_type=loopback,in_bus=acc-in,out_type=loopback,out_bus=acc-out", nil, pool)
	require.NoError(t, err)
	defer m.close()

	assert.Equal(t, 1, m.InputCount())
	assert.Equal(t, 1, m.OutputCount())

	in, err := m.Input(0)
	require.NoError(t, err)
	assert.Equal(t, PolarityInput, in.Polarity())
	assert.Equal(t, "loopback", in.Type())
	assert.Equal(t, "acc-in", in.Config().Get("in_bus", ""))

	out, err := m.Output(0)
	require.NoError(t, err)
	assert.Equal(t, PolarityOutput, out.Polarity())
	assert.NotEqual(t, in.Handle(), out.Handle())

	// The same module is reachable through the handle surface.
	assert.Equal(t, 1, GetInputCount(m.Handle()))
	assert.Equal(t, in.Handle(), GetInputHandle(m.Handle(), 0))
	assert.Equal(t, out.Handle(), GetOutputHandle(m.Handle(), 0))

	// Out-of-range pin indices report the invalid handle.
	assert.Equal(t, InvalidPin, GetInputHandle(m.Handle(), 3))
	assert.Equal(t, InvalidPin, GetOutputHandle(m.Handle(), -1))
	_, err = m.Input(1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestModule_UnknownTransportFailsCreate(t *testing.T) {
	h := CreateModule(0, func(any, ModuleHandle, PinHandle, FrameHandle, Command) {},
		"type=x,in_type=carrier-pigeon", nil)
	assert.Equal(t, InvalidModule, h)
}

func TestModule_NilCallbackFailsCreate(t *testing.T) {
	assert.Equal(t, InvalidModule, CreateModule(0, nil, "type=x", nil))
}

func TestModule_LifecycleEventsAndIdempotence(t *testing.T) {
	pool := NewFramePool(4)
	events := make(chan cbEvent, 16)

	m, err := newModule(0, collectorCallback(pool, events), "type=lc", nil, pool)
	require.NoError(t, err)

	require.NoError(t, m.start())
	require.NoError(t, m.start()) // idempotent, no second event
	assert.Equal(t, CmdStart, (<-events).cmd)

	require.NoError(t, m.stop())
	require.NoError(t, m.stop())
	assert.Equal(t, CmdStop, (<-events).cmd)
	select {
	case ev := <-events:
		t.Fatalf("unexpected extra event %v", ev.cmd)
	default:
	}

	require.NoError(t, m.close())
	require.NoError(t, m.close())
	assert.ErrorIs(t, m.start(), ErrClosed)

	// Closed modules are tombstoned out of the registry.
	assert.Equal(t, ResultError, StartModule(m.Handle()))
	assert.Equal(t, -1, GetInputCount(m.Handle()))
}

func TestModule_CloseWhileStarted(t *testing.T) {
	pool := NewFramePool(4)
	events := make(chan cbEvent, 16)

	m, err := newModule(0, collectorCallback(pool, events),
		"type=cw,in_type=loopback,in_bus=cw-bus", nil, pool)
	require.NoError(t, err)

	require.NoError(t, m.start())
	assert.Equal(t, CmdStart, (<-events).cmd)
	require.NoError(t, m.close())
}

func TestModule_UnknownModuleHandleOperations(t *testing.T) {
	assert.Equal(t, ResultError, StartModule(ModuleHandle(999999)))
	assert.Equal(t, ResultError, StopModule(InvalidModule))
	assert.Equal(t, ResultError, CloseModule(ModuleHandle(999999)))
	assert.Equal(t, -1, GetOutputCount(InvalidModule))
	assert.Equal(t, ResultError, Send(InvalidModule, 0, 0))
}

func TestModuleRegistry_HandlesAreNeverReused(t *testing.T) {
	pool := NewFramePool(4)
	events := make(chan cbEvent, 16)

	seen := make(map[ModuleHandle]bool)
	for i := 0; i < 10; i++ {
		m, err := newModule(0, collectorCallback(pool, events), "type=reuse", nil, pool)
		require.NoError(t, err)
		require.False(t, seen[m.Handle()], "handle %d assigned twice", m.Handle())
		seen[m.Handle()] = true
		require.NoError(t, m.close())

		// Tombstoned immediately: the handle never resolves again.
		assert.Equal(t, -1, GetInputCount(m.Handle()))
	}
}

func TestModuleRegistry_ConcurrentLookups(t *testing.T) {
	pool := NewFramePool(4)
	events := make(chan cbEvent, 16)

	m, err := newModule(0, collectorCallback(pool, events),
		"type=conc,out_type=loopback,out_bus=reg-conc", nil, pool)
	require.NoError(t, err)
	defer m.close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if GetOutputCount(m.Handle()) != 1 {
					t.Error("live module vanished from the registry")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestGlobalParameters(t *testing.T) {
	orig := GetParameter(ParamMaxFramesInList)
	defer SetParameter(ParamMaxFramesInList, orig)

	assert.Equal(t, ResultOK, SetParameter(ParamMaxFramesInList, 32))
	assert.Equal(t, 32, GetParameter(ParamMaxFramesInList))

	assert.Equal(t, ResultError, SetParameter(ParamCurFramesInList, 5))
	assert.GreaterOrEqual(t, GetParameter(ParamCurFramesInList), 0)

	assert.Equal(t, -1, GetParameter(GlobalParam(42)))
	assert.Equal(t, ResultError, SetParameter(ParamMaxFramesInList, 0))
}
