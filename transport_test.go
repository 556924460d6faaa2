package herisson

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportRegistry_UnknownType(t *testing.T) {
	_, err := newInputTransport("bogus", Params{})
	assert.ErrorIs(t, err, ErrTransportUnknown)
	_, err = newOutputTransport("bogus", Params{})
	assert.ErrorIs(t, err, ErrTransportUnknown)
}

func TestTransportRegistry_CustomRegistration(t *testing.T) {
	RegisterInputTransport("test-null", func(Params) (ReceiveTransport, error) {
		return &loopbackInput{bus: attachLoopbackBus("test-null", 1), done: make(chan struct{})}, nil
	})
	tr, err := newInputTransport("test-null", Params{})
	require.NoError(t, err)
	tr.Close()
}

// Frames cross a TCP hop between two modules: sender output dials the
// receiver input's listener, wire framing preserves payload and headers.
func TestTCPTransport_EndToEnd(t *testing.T) {
	port := freePort(t)
	pool := NewFramePool(16)
	events := make(chan cbEvent, 64)

	rxCfg := fmt.Sprintf("type=rx,in_type=tcp,in_addr=127.0.0.1,in_port=%d", port)
	rx, err := newModule(0, collectorCallback(pool, events), rxCfg, nil, pool)
	require.NoError(t, err)
	defer rx.close()
	require.NoError(t, rx.start())
	require.Equal(t, CmdStart, (<-events).cmd)

	txCfg := fmt.Sprintf("type=tx,out_type=tcp,out_host=127.0.0.1,out_port=%d", port)
	txEvents := make(chan cbEvent, 16)
	tx, err := newModule(0, collectorCallback(pool, txEvents), txCfg, nil, pool)
	require.NoError(t, err)
	defer tx.close()
	require.NoError(t, tx.start())
	<-txEvents

	out := GetOutputHandle(tx.Handle(), 0)
	for i := 0; i < 3; i++ {
		h, err := pool.AcquireWithInit(FrameHeaders{MediaFormat: MediaData, MediaSize: 4, PTS: int64(100 * i)})
		require.NoError(t, err)
		copy(pool.Buffer(h), []byte{0xCA, 0xFE, 0x00, byte(i)})
		require.Equal(t, ResultOK, Send(tx.Handle(), out, h))
		pool.Release(h)
	}

	for i := 0; i < 3; i++ {
		ev := nextTick(t, events)
		assert.Equal(t, []byte{0xCA, 0xFE, 0x00, byte(i)}, ev.payload)
	}
}

// A file output records wire frames that a file input replays; the replay
// ends with CmdQuit when the recording runs out.
func TestFileTransport_RecordAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.rec")
	pool := NewFramePool(16)

	recEvents := make(chan cbEvent, 16)
	rec, err := newModule(0, collectorCallback(pool, recEvents),
		"type=rec,out_type=file,out_path="+path, nil, pool)
	require.NoError(t, err)
	require.NoError(t, rec.start())
	<-recEvents

	out := GetOutputHandle(rec.Handle(), 0)
	for i := 0; i < 2; i++ {
		h := acquireDataFrame(t, pool, []byte{byte('A' + i)})
		require.Equal(t, ResultOK, Send(rec.Handle(), out, h))
		pool.Release(h)
	}
	// Close flushes and closes the recording.
	require.NoError(t, rec.close())

	playEvents := make(chan cbEvent, 16)
	play, err := newModule(0, collectorCallback(pool, playEvents),
		"type=play,in_type=file,in_path="+path, nil, pool)
	require.NoError(t, err)
	defer play.close()
	require.NoError(t, play.start())
	require.Equal(t, CmdStart, (<-playEvents).cmd)

	assert.Equal(t, []byte("A"), nextTick(t, playEvents).payload)
	assert.Equal(t, []byte("B"), nextTick(t, playEvents).payload)

	// End of recording surfaces as QUIT with no frame.
	for {
		select {
		case ev := <-playEvents:
			if ev.cmd == CmdQuit {
				assert.Equal(t, InvalidFrame, ev.frame)
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no QUIT after recording ended")
		}
	}
}

// A frame survives a UDP hop. Datagrams may drop even on loopback, so the
// sender repeats until the receiver reports one.
func TestUDPTransport_EndToEnd(t *testing.T) {
	port := freePort(t)
	pool := NewFramePool(16)
	events := make(chan cbEvent, 64)

	rxCfg := fmt.Sprintf("type=rx,in_type=udp,in_addr=127.0.0.1,in_port=%d", port)
	rx, err := newModule(0, collectorCallback(pool, events), rxCfg, nil, pool)
	require.NoError(t, err)
	defer rx.close()
	require.NoError(t, rx.start())
	<-events

	txCfg := fmt.Sprintf("type=tx,out_type=udp,out_host=127.0.0.1,out_port=%d", port)
	txEvents := make(chan cbEvent, 16)
	tx, err := newModule(0, collectorCallback(pool, txEvents), txCfg, nil, pool)
	require.NoError(t, err)
	defer tx.close()
	require.NoError(t, tx.start())
	<-txEvents

	out := GetOutputHandle(tx.Handle(), 0)
	deadline := time.Now().Add(5 * time.Second)
	for {
		h := acquireDataFrame(t, pool, []byte("ping"))
		require.Equal(t, ResultOK, Send(tx.Handle(), out, h))
		pool.Release(h)

		select {
		case ev := <-events:
			if ev.cmd == CmdTick {
				assert.Equal(t, []byte("ping"), ev.payload)
				return
			}
		case <-time.After(100 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("no datagram made it through the loopback")
		}
	}
}
