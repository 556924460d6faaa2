package herisson

// Frame is a reference-counted, header-tagged media buffer. Frames live in
// slots owned by a FramePool and are addressed by FrameHandle; application
// code never holds a Frame across a release of its last reference.
//
// The buffer is stable across reference-count changes: releasing a frame for
// reuse keeps the slot's backing array so a later acquire of the same slot
// does not reallocate unless it needs more room.
type Frame struct {
	buf      []byte
	headers  FrameHeaders
	refcount int
	free     bool
}

// reset prepares a recycled frame for a fresh acquire. The backing array is
// kept when it is large enough for the new payload.
func (f *Frame) reset(h FrameHeaders) {
	f.headers = h
	f.refcount = 1
	f.free = false
	size := h.MediaSize
	if size < 0 {
		size = 0
	}
	if cap(f.buf) < size {
		f.buf = make([]byte, size)
	} else {
		f.buf = f.buf[:size]
	}
}

// Buffer returns the frame's payload buffer. The slice stays valid while the
// caller holds at least one reference on the frame.
func (f *Frame) Buffer() []byte {
	return f.buf
}

// Headers returns a copy of the frame's structured headers.
func (f *Frame) Headers() FrameHeaders {
	return f.headers
}

// Size returns the payload size in bytes.
func (f *Frame) Size() int {
	return f.headers.MediaSize
}

// SetHeaders replaces the frame's headers wholesale and resizes the payload
// buffer to the new media size.
func (f *Frame) SetHeaders(h FrameHeaders) {
	f.headers = h
	f.SetHeader(HeaderMediaSize, int64(h.MediaSize))
}

// GetHeader reads one header field by kind.
func (f *Frame) GetHeader(kind HeaderKind) int64 {
	return f.headers.Get(kind)
}

// SetHeader writes one header field by kind. Resizing the payload via
// HeaderMediaSize grows the buffer to match.
func (f *Frame) SetHeader(kind HeaderKind, value int64) {
	f.headers.Set(kind, value)
	if kind == HeaderMediaSize {
		size := f.headers.MediaSize
		if size < 0 {
			size = 0
			f.headers.MediaSize = 0
		}
		if cap(f.buf) < size {
			grown := make([]byte, size)
			copy(grown, f.buf)
			f.buf = grown
		} else {
			f.buf = f.buf[:size]
		}
	}
}
