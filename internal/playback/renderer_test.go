package playback_test

import (
	"encoding/binary"
	"testing"

	"github.com/book-expert/audio-bible/internal/audio"
	"github.com/book-expert/audio-bible/internal/playback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplesOf(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}

	return out
}

func TestRender_MonoToStereo(t *testing.T) {
	t.Parallel()

	buf := audio.Buffer{SampleRate: 8000, Channels: [][]float32{{0.5, -0.5}}}

	got := samplesOf(playback.Render(buf, 0, 1, playback.Format{SampleRate: 8000, Channels: 2}))
	assert.Equal(t, []int16{16383, 16383, -16384, -16384}, got)
}

func TestRender_StereoToMonoAverages(t *testing.T) {
	t.Parallel()

	buf := audio.Buffer{SampleRate: 8000, Channels: [][]float32{{1, 0}, {0, 0}}}

	got := samplesOf(playback.Render(buf, 0, 1, playback.Format{SampleRate: 8000, Channels: 1}))
	assert.Equal(t, []int16{16383, 0}, got)
}

func TestRender_UpsamplesWithInterpolation(t *testing.T) {
	t.Parallel()

	buf := audio.Buffer{SampleRate: 4000, Channels: [][]float32{{0, 0.5}}}

	got := samplesOf(playback.Render(buf, 0, 1, playback.Format{SampleRate: 8000, Channels: 1}))
	require.Len(t, got, 4)
	assert.Equal(t, []int16{0, 8191, 16383, 16383}, got)
}

func TestRender_SpeedAndOffset(t *testing.T) {
	t.Parallel()

	buf := audio.NewBuffer(1, 8000, 8000)
	format := playback.Format{SampleRate: 8000, Channels: 1}

	assert.Len(t, playback.Render(buf, 0, 2, format), 4000*2)
	assert.Len(t, playback.Render(buf, 0.5, 1, format), 4000*2)
	assert.Len(t, playback.Render(buf, 0, 0.5, format), 16000*2)
	assert.Empty(t, playback.Render(buf, 1, 1, format))
	assert.Empty(t, playback.Render(audio.Buffer{}, 0, 1, format))
}

func TestOtoOutput_DefaultFormatWithoutDevice(t *testing.T) {
	t.Parallel()

	output := playback.NewOtoOutput(playback.Format{})
	assert.Equal(t, playback.Format{SampleRate: 48000, Channels: 2}, output.Format())

	output = playback.NewOtoOutput(playback.Format{SampleRate: 22050, Channels: 1})
	assert.Equal(t, playback.Format{SampleRate: 22050, Channels: 1}, output.Format())
}
