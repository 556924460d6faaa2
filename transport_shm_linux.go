//go:build linux

package herisson

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// The shm transport moves frames through a single-producer single-consumer
// ring mapped from a shared file, typically under /dev/shm. The output pin
// creates and sizes the ring; the input pin maps the same path. Indices are
// published with atomic loads and stores on the mapped region, so exactly one
// writer and one reader per ring.
//
// Configuration keys:
//
//	out_path / in_path   ring file path (required)
//	out_slots            ring depth in frames (default 8)
//	out_slot_size        max payload bytes per frame (default 1 MiB)
//
// Frames larger than the slot size fail at Send. The ring never blocks the
// producer: when the consumer lags a full ring behind, Send drops.

const (
	shmMagic   uint32 = 0x4852534D // "HRSM"
	shmVersion uint32 = 1

	shmHeaderSize = 64

	shmOffMagic    = 0
	shmOffVersion  = 4
	shmOffSlots    = 8
	shmOffSlotSize = 12
	shmOffHead     = 16
	shmOffTail     = 20

	shmPollInterval = time.Millisecond
)

func init() {
	RegisterInputTransport("shm", newShmInput)
	RegisterOutputTransport("shm", newShmOutput)
}

// shmRing is one mapped ring. All index arithmetic is on free-running
// uint32 counters; the distance head-tail is the fill level.
type shmRing struct {
	m        []byte
	slots    uint32
	slotSize uint32
}

func (r *shmRing) u32(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&r.m[off]))
}

func (r *shmRing) slot(i uint32) []byte {
	stride := int(wireHeaderSize + r.slotSize)
	off := shmHeaderSize + int(i%r.slots)*stride
	return r.m[off : off+stride]
}

func mapShmRing(path string, create bool, slots, slotSize uint32) (*shmRing, *os.File, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("herisson: opening shm ring %q: %w", path, err)
	}

	size := shmHeaderSize + int(slots)*int(wireHeaderSize+slotSize)
	if create {
		if err := unix.Ftruncate(int(f.Fd()), int64(size)); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("herisson: sizing shm ring: %w", err)
		}
	} else {
		st, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		if st.Size() < int64(shmHeaderSize) {
			f.Close()
			return nil, nil, fmt.Errorf("herisson: shm ring %q not initialised", path)
		}
		size = int(st.Size())
	}

	m, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("herisson: mapping shm ring: %w", err)
	}

	r := &shmRing{m: m}
	if create {
		binary.LittleEndian.PutUint32(m[shmOffSlots:], slots)
		binary.LittleEndian.PutUint32(m[shmOffSlotSize:], slotSize)
		atomic.StoreUint32(r.u32(shmOffHead), 0)
		atomic.StoreUint32(r.u32(shmOffTail), 0)
		binary.LittleEndian.PutUint32(m[shmOffVersion:], shmVersion)
		// Magic last: a reader treats the ring as live once it appears.
		atomic.StoreUint32(r.u32(shmOffMagic), shmMagic)
	} else {
		if atomic.LoadUint32(r.u32(shmOffMagic)) != shmMagic {
			unix.Munmap(m)
			f.Close()
			return nil, nil, fmt.Errorf("herisson: shm ring %q has no live producer header", path)
		}
		if v := binary.LittleEndian.Uint32(m[shmOffVersion:]); v != shmVersion {
			unix.Munmap(m)
			f.Close()
			return nil, nil, fmt.Errorf("herisson: shm ring version %d unsupported", v)
		}
	}
	r.slots = binary.LittleEndian.Uint32(m[shmOffSlots:])
	r.slotSize = binary.LittleEndian.Uint32(m[shmOffSlotSize:])
	if r.slots == 0 || r.slotSize == 0 {
		unix.Munmap(m)
		f.Close()
		return nil, nil, fmt.Errorf("herisson: shm ring %q has zero geometry", path)
	}
	return r, f, nil
}

type shmOutput struct {
	ring *shmRing
	f    *os.File
	desc TransportDescriptor
}

func newShmOutput(p Params) (SendTransport, error) {
	path := p.Get("out_path", "")
	if path == "" {
		return nil, fmt.Errorf("%w: shm output needs out_path", ErrInvalidArgument)
	}
	slots := uint32(p.Int("out_slots", 8))
	slotSize := uint32(p.Int("out_slot_size", 1<<20))
	ring, f, err := mapShmRing(path, true, slots, slotSize)
	if err != nil {
		return nil, err
	}
	return &shmOutput{
		ring: ring,
		f:    f,
		desc: TransportDescriptor{Name: "shm", QueueDepth: int(slots), Policy: PolicyDrop},
	}, nil
}

func (t *shmOutput) Descriptor() TransportDescriptor {
	return t.desc
}

func (t *shmOutput) Send(h FrameHeaders, payload []byte) error {
	if uint32(len(payload)) > t.ring.slotSize {
		return fmt.Errorf("herisson: frame of %d bytes exceeds shm slot size %d", len(payload), t.ring.slotSize)
	}
	head := atomic.LoadUint32(t.ring.u32(shmOffHead))
	tail := atomic.LoadUint32(t.ring.u32(shmOffTail))
	if head-tail >= t.ring.slots {
		logger.Warn("shm ring full, dropping frame", "slots", t.ring.slots)
		return nil
	}
	slot := t.ring.slot(head)
	hdr := appendWireHeader(slot[:0], h)
	copy(slot[len(hdr):], payload)
	atomic.StoreUint32(t.ring.u32(shmOffHead), head+1)
	return nil
}

func (t *shmOutput) Close() error {
	unix.Munmap(t.ring.m)
	return t.f.Close()
}

type shmInput struct {
	mu      sync.Mutex
	ring    *shmRing
	f       *os.File
	scratch []byte
	done    chan struct{}
	once    sync.Once
}

func newShmInput(p Params) (ReceiveTransport, error) {
	path := p.Get("in_path", "")
	if path == "" {
		return nil, fmt.Errorf("%w: shm input needs in_path", ErrInvalidArgument)
	}
	ring, f, err := mapShmRing(path, false, 0, 0)
	if err != nil {
		return nil, err
	}
	return &shmInput{ring: ring, f: f, done: make(chan struct{})}, nil
}

func (t *shmInput) Receive() (FrameHeaders, []byte, error) {
	for {
		t.mu.Lock()
		ring := t.ring
		if ring == nil {
			t.mu.Unlock()
			return FrameHeaders{}, nil, ErrClosed
		}

		head := atomic.LoadUint32(ring.u32(shmOffHead))
		tail := atomic.LoadUint32(ring.u32(shmOffTail))
		if head == tail {
			t.mu.Unlock()
			select {
			case <-t.done:
				return FrameHeaders{}, nil, ErrClosed
			case <-time.After(shmPollInterval):
			}
			continue
		}

		slot := ring.slot(tail)
		h, err := decodeWireHeader(slot)
		if err != nil {
			atomic.StoreUint32(ring.u32(shmOffTail), tail+1)
			t.mu.Unlock()
			logger.Error("discarding malformed shm slot", "err", err)
			continue
		}
		if uint32(h.MediaSize) > ring.slotSize {
			atomic.StoreUint32(ring.u32(shmOffTail), tail+1)
			t.mu.Unlock()
			logger.Error("discarding oversized shm slot", "size", h.MediaSize)
			continue
		}
		if cap(t.scratch) < h.MediaSize {
			t.scratch = make([]byte, h.MediaSize)
		}
		buf := t.scratch[:h.MediaSize]
		copy(buf, slot[wireHeaderSize:wireHeaderSize+h.MediaSize])
		atomic.StoreUint32(ring.u32(shmOffTail), tail+1)
		t.mu.Unlock()
		return h, buf, nil
	}
}

// Close unblocks a pending Receive and unmaps the ring. The mutex keeps the
// unmap from racing a reader that is mid-copy.
func (t *shmInput) Close() error {
	t.once.Do(func() { close(t.done) })
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ring == nil {
		return nil
	}
	unix.Munmap(t.ring.m)
	t.ring = nil
	return t.f.Close()
}
