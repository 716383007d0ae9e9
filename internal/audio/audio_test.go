package audio

import (
	"context"
	"math"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkFFmpeg skips test if ffmpeg is not available.
func checkFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
}

func sine(freq float64, sampleRate int, seconds float64) []float64 {
	n := int(seconds * float64(sampleRate))
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestNewWaveform(t *testing.T) {
	_, err := NewWaveform([]float64{0}, 0)
	assert.ErrorIs(t, err, ErrInvalidSampleRate)

	w, err := NewWaveform(make([]float64, 22050), 44100)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Channels)
	assert.InDelta(t, 0.5, w.Duration(), 1e-9)
}

func TestWaveform_Slice(t *testing.T) {
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = float64(i)
	}
	w := &Waveform{Samples: samples, SampleRate: 10}

	t.Run("rounds boundaries to samples", func(t *testing.T) {
		s := w.Slice(1.04, 2.06)
		require.Len(t, s, 11)
		assert.Equal(t, 10.0, s[0])
		assert.Equal(t, 20.0, s[len(s)-1])
	})

	t.Run("clips past the end", func(t *testing.T) {
		s := w.Slice(9.5, 12)
		assert.Len(t, s, 5)
	})

	t.Run("interval entirely past the end is empty", func(t *testing.T) {
		assert.Empty(t, w.Slice(11, 12.8))
	})
}

func TestMixdown(t *testing.T) {
	out := Mixdown([]float64{1, 0, 0.5, 0.5, -1, 1, 0.3}, 2)
	assert.Equal(t, []float64{0.5, 0.5, 0}, out)

	mono := []float64{0.1, 0.2}
	copied := Mixdown(mono, 1)
	copied[0] = 9
	assert.Equal(t, 0.1, mono[0], "mono mixdown must copy")
}

func TestEncodeDecodeWAV(t *testing.T) {
	in := sine(440, 8000, 0.25)

	data, err := EncodeWAVBytes(in, 8000)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[0:4]))

	w, err := DecodeWAVBytes(data)
	require.NoError(t, err)
	assert.Equal(t, 8000, w.SampleRate)
	assert.Equal(t, 1, w.Channels)
	require.Len(t, w.Samples, len(in))
	for i := range in {
		assert.InDelta(t, in[i], w.Samples[i], 1e-3)
	}
}

func TestEncodeWAVBytes_EmptyIsPadded(t *testing.T) {
	data, err := EncodeWAVBytes(nil, 1000)
	require.NoError(t, err)

	w, err := DecodeWAVBytes(data)
	require.NoError(t, err)
	assert.Len(t, w.Samples, 10)
}

func TestDecodeWAV_Invalid(t *testing.T) {
	_, err := DecodeWAVBytes([]byte("definitely not a riff file"))
	assert.ErrorIs(t, err, ErrInvalidWAV)
}

func TestAutoDecoder(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes WAV without fallback", func(t *testing.T) {
		data, err := EncodeWAVBytes(sine(220, 8000, 0.1), 8000)
		require.NoError(t, err)

		w, err := NewAutoDecoder(nil).Decode(ctx, data, "anything.bin")
		require.NoError(t, err)
		assert.Equal(t, 8000, w.SampleRate)
	})

	t.Run("rejects other formats without fallback", func(t *testing.T) {
		_, err := NewAutoDecoder(nil).Decode(ctx, []byte("ID3...."), "song.mp3")
		assert.Error(t, err)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := NewAutoDecoder(nil).Decode(ctx, nil, "song.wav")
		assert.ErrorIs(t, err, ErrEmptyInput)
	})
}

func TestFFmpegDecoder_Decode(t *testing.T) {
	checkFFmpeg(t)

	data, err := EncodeWAVBytes(sine(440, 16000, 0.5), 16000)
	require.NoError(t, err)

	w, err := NewFFmpegDecoder("", 22050).Decode(context.Background(), data, "tone.wav")
	require.NoError(t, err)
	assert.Equal(t, 22050, w.SampleRate)
	assert.InDelta(t, 0.5, w.Duration(), 0.05)
}

func TestParseFloat32LE(t *testing.T) {
	raw := []byte{0, 0, 0x80, 0x3f, 0, 0, 0, 0xbf, 0xff}
	assert.Equal(t, []float64{1, -0.5}, parseFloat32LE(raw))
}
