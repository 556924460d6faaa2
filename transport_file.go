package herisson

import (
	"bufio"
	"errors"
	"fmt"
	"os"
)

// The file transport records frames to, or replays them from, a file of
// wire-framed units. A file input delivers io.EOF when the recording ends,
// which surfaces to the module callback as CmdQuit.
//
// Configuration keys:
//
//	out_path / in_path   file path (required)
//	out_append           "1" appends to an existing recording

func init() {
	RegisterInputTransport("file", newFileInput)
	RegisterOutputTransport("file", newFileOutput)
}

type fileOutput struct {
	f    *os.File
	w    *bufio.Writer
	buf  []byte
	desc TransportDescriptor
}

func newFileOutput(p Params) (SendTransport, error) {
	path := p.Get("out_path", "")
	if path == "" {
		return nil, fmt.Errorf("%w: file output needs out_path", ErrInvalidArgument)
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if p.Get("out_append", "0") == "1" {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("herisson: opening recording %q: %w", path, err)
	}
	return &fileOutput{
		f:    f,
		w:    bufio.NewWriter(f),
		desc: TransportDescriptor{Name: "file", QueueDepth: 64, Policy: PolicyBlock},
	}, nil
}

func (t *fileOutput) Descriptor() TransportDescriptor {
	return t.desc
}

func (t *fileOutput) Send(h FrameHeaders, payload []byte) error {
	t.buf = appendWireHeader(t.buf[:0], h)
	if _, err := t.w.Write(t.buf); err != nil {
		return err
	}
	_, err := t.w.Write(payload)
	return err
}

func (t *fileOutput) Close() error {
	if err := t.w.Flush(); err != nil {
		t.f.Close()
		return err
	}
	return t.f.Close()
}

type fileInput struct {
	f       *os.File
	r       *bufio.Reader
	scratch []byte
}

func newFileInput(p Params) (ReceiveTransport, error) {
	path := p.Get("in_path", "")
	if path == "" {
		return nil, fmt.Errorf("%w: file input needs in_path", ErrInvalidArgument)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("herisson: opening recording %q: %w", path, err)
	}
	return &fileInput{f: f, r: bufio.NewReader(f)}, nil
}

func (t *fileInput) Receive() (FrameHeaders, []byte, error) {
	h, payload, err := readWireFrame(t.r, &t.scratch)
	if errors.Is(err, os.ErrClosed) {
		return FrameHeaders{}, nil, ErrClosed
	}
	return h, payload, err
}

func (t *fileInput) Close() error {
	return t.f.Close()
}
