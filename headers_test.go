package herisson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedMediaSize(t *testing.T) {
	tests := []struct {
		name     string
		w, h, d  int
		sampling SamplingFormat
		want     int
		wantErr  bool
	}{
		{"bgra 8-bit", 640, 480, 8, SamplingBGRA, 640 * 480 * 4, false},
		{"rgba 8-bit", 640, 480, 8, SamplingRGBA, 640 * 480 * 4, false},
		{"bgr 8-bit", 640, 480, 8, SamplingBGR, 640 * 480 * 3, false},
		{"rgb 10-bit", 640, 480, 10, SamplingRGB, 640 * 480 * 3 * 10 / 8, false},
		{"ycbcr422 8-bit 1080p", 1920, 1080, 8, SamplingYCbCr422, 4147200, false},
		{"unknown sampling", 640, 480, 8, SamplingUnknown, 0, true},
		{"zero width", 0, 480, 8, SamplingRGB, 0, true},
		{"zero depth", 640, 480, 0, SamplingRGB, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DerivedMediaSize(tt.w, tt.h, tt.d, tt.sampling)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFrameHeaders_Validate(t *testing.T) {
	t.Run("video derives missing size", func(t *testing.T) {
		h := FrameHeaders{MediaFormat: MediaVideo, Width: 8, Height: 8, Depth: 8, Sampling: SamplingRGB}
		require.NoError(t, h.validate())
		assert.Equal(t, 8*8*3, h.MediaSize)
	})

	t.Run("video keeps matching explicit size", func(t *testing.T) {
		h := FrameHeaders{MediaFormat: MediaVideo, MediaSize: 192, Width: 8, Height: 8, Depth: 8, Sampling: SamplingRGB}
		require.NoError(t, h.validate())
	})

	t.Run("video with unknown sampling needs explicit size", func(t *testing.T) {
		h := FrameHeaders{MediaFormat: MediaVideo, Width: 8, Height: 8, Depth: 8}
		require.ErrorIs(t, h.validate(), ErrInvalidArgument)

		h.MediaSize = 100
		require.NoError(t, h.validate())
	})

	t.Run("data format passes with any non-negative size", func(t *testing.T) {
		h := FrameHeaders{MediaFormat: MediaData, MediaSize: 10}
		require.NoError(t, h.validate())
	})
}

func TestFrameHeaders_GetSetDispatch(t *testing.T) {
	var h FrameHeaders

	h.Set(HeaderMediaFormat, int64(MediaVideo))
	h.Set(HeaderWidth, 1280)
	h.Set(HeaderHeight, 720)
	h.Set(HeaderDepth, 8)
	h.Set(HeaderSampling, int64(SamplingBGRA))
	h.Set(HeaderMediaSize, 1280*720*4)
	h.Set(HeaderPTS, 3600)
	h.Set(HeaderFrameIndex, 25)

	assert.Equal(t, MediaVideo, h.MediaFormat)
	assert.Equal(t, 1280, h.Width)
	assert.Equal(t, 720, h.Height)
	assert.Equal(t, SamplingBGRA, h.Sampling)
	assert.Equal(t, int64(3600), h.Get(HeaderPTS))
	assert.Equal(t, int64(25), h.Get(HeaderFrameIndex))
	assert.Equal(t, int64(1280*720*4), h.Get(HeaderMediaSize))

	// Unset extension kinds read as zero.
	assert.Equal(t, int64(0), h.Get(HeaderUser+1))
	h.Set(HeaderUser+1, -5)
	assert.Equal(t, int64(-5), h.Get(HeaderUser+1))
}
