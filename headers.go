package herisson

import "fmt"

// MediaFormat identifies the payload class a frame carries.
type MediaFormat int

// Media formats.
const (
	MediaUnknown MediaFormat = iota
	MediaVideo
	MediaAudio
	MediaData
)

// String returns the string representation of the media format.
func (m MediaFormat) String() string {
	switch m {
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	case MediaData:
		return "data"
	default:
		return "unknown"
	}
}

// SamplingFormat is the pixel layout tag for video frames.
type SamplingFormat int

// Sampling formats.
const (
	SamplingUnknown SamplingFormat = iota
	SamplingBGRA
	SamplingRGBA
	SamplingBGR
	SamplingRGB
	SamplingYCbCr422
)

// String returns the string representation of the sampling format.
func (s SamplingFormat) String() string {
	switch s {
	case SamplingBGRA:
		return "bgra"
	case SamplingRGBA:
		return "rgba"
	case SamplingBGR:
		return "bgr"
	case SamplingRGB:
		return "rgb"
	case SamplingYCbCr422:
		return "ycbcr422"
	default:
		return "unknown"
	}
}

// components returns the per-pixel component multiplier for the sampling
// format, or 0 when the layout is unknown and sizes must be supplied
// externally.
func (s SamplingFormat) components() int {
	switch s {
	case SamplingBGRA, SamplingRGBA:
		return 4
	case SamplingBGR, SamplingRGB:
		return 3
	case SamplingYCbCr422:
		return 2
	default:
		return 0
	}
}

// HeaderKind addresses one field of a frame's headers. The set is open;
// kinds above HeaderUser are free for applications and travel in the frame's
// extension map.
type HeaderKind int

// Header kinds.
const (
	HeaderMediaFormat HeaderKind = iota
	HeaderMediaSize
	HeaderWidth
	HeaderHeight
	HeaderDepth
	HeaderSampling
	HeaderPTS
	HeaderFrameIndex

	// HeaderUser is the first application-defined header kind.
	HeaderUser HeaderKind = 0x1000
)

// FrameHeaders is the structured description of a frame's payload.
// MediaSize is the payload size in bytes; for video it is derivable from the
// geometry when the sampling layout is known, for audio it must always be
// supplied by the producer.
type FrameHeaders struct {
	MediaFormat MediaFormat
	MediaSize   int
	Width       int
	Height      int
	Depth       int // sample depth in bits
	Sampling    SamplingFormat
	PTS         int64
	FrameIndex  int64

	extra map[HeaderKind]int64
}

// DerivedMediaSize computes the payload size of a video frame:
// width * height * depth * components / 8. It fails when the sampling layout
// is unknown or the geometry is not positive.
func DerivedMediaSize(width, height, depth int, sampling SamplingFormat) (int, error) {
	comps := sampling.components()
	if comps == 0 {
		return 0, fmt.Errorf("%w: media size not derivable for sampling %s", ErrInvalidArgument, sampling)
	}
	if width <= 0 || height <= 0 || depth <= 0 {
		return 0, fmt.Errorf("%w: bad video geometry %dx%dx%d", ErrInvalidArgument, width, height, depth)
	}
	return width * height * comps * depth / 8, nil
}

// validate checks the headers the way the pool requires before sizing a
// buffer from them.
func (h *FrameHeaders) validate() error {
	switch h.MediaFormat {
	case MediaVideo:
		derived, err := DerivedMediaSize(h.Width, h.Height, h.Depth, h.Sampling)
		if err != nil {
			// Unknown sampling: the size must come from the producer.
			if h.MediaSize <= 0 {
				return fmt.Errorf("%w: video frame needs an explicit media size", ErrInvalidArgument)
			}
			return nil
		}
		if h.MediaSize == 0 {
			h.MediaSize = derived
			return nil
		}
		if h.MediaSize != derived {
			return fmt.Errorf("%w: media size %d does not match derived %d", ErrInvalidArgument, h.MediaSize, derived)
		}
		return nil
	case MediaAudio:
		// Audio sizes are never derived.
		if h.MediaSize <= 0 {
			return fmt.Errorf("%w: audio frame needs an explicit media size", ErrInvalidArgument)
		}
		return nil
	default:
		if h.MediaSize < 0 {
			return fmt.Errorf("%w: negative media size", ErrInvalidArgument)
		}
		return nil
	}
}

// Get returns the value of one header field, dispatching on kind.
// Unknown kinds fall through to the extension set; a kind that was never set
// reads as 0.
func (h *FrameHeaders) Get(kind HeaderKind) int64 {
	switch kind {
	case HeaderMediaFormat:
		return int64(h.MediaFormat)
	case HeaderMediaSize:
		return int64(h.MediaSize)
	case HeaderWidth:
		return int64(h.Width)
	case HeaderHeight:
		return int64(h.Height)
	case HeaderDepth:
		return int64(h.Depth)
	case HeaderSampling:
		return int64(h.Sampling)
	case HeaderPTS:
		return h.PTS
	case HeaderFrameIndex:
		return h.FrameIndex
	default:
		return h.extra[kind]
	}
}

// Set stores the value of one header field, dispatching on kind.
func (h *FrameHeaders) Set(kind HeaderKind, value int64) {
	switch kind {
	case HeaderMediaFormat:
		h.MediaFormat = MediaFormat(value)
	case HeaderMediaSize:
		h.MediaSize = int(value)
	case HeaderWidth:
		h.Width = int(value)
	case HeaderHeight:
		h.Height = int(value)
	case HeaderDepth:
		h.Depth = int(value)
	case HeaderSampling:
		h.Sampling = SamplingFormat(value)
	case HeaderPTS:
		h.PTS = value
	case HeaderFrameIndex:
		h.FrameIndex = value
	default:
		if h.extra == nil {
			h.extra = make(map[HeaderKind]int64)
		}
		h.extra[kind] = value
	}
}
