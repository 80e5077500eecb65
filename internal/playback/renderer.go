package playback

import (
	"encoding/binary"
	"math"

	"github.com/book-expert/audio-bible/internal/audio"
)

const bytesPerSample = 2

// Render converts buf into device PCM starting at offsetSeconds, played at
// speed. Resampling is linear interpolation over the source frames; a speed
// above 1 consumes source frames faster. Mono sources are duplicated to every
// output channel and multichannel sources are averaged down to mono.
func Render(buf audio.Buffer, offsetSeconds, speed float64, format Format) []byte {
	frames := buf.Frames()
	srcChannels := buf.NumChannels()

	if frames == 0 || srcChannels == 0 || format.SampleRate <= 0 || format.Channels <= 0 || speed <= 0 {
		return nil
	}

	start := math.Max(0, offsetSeconds) * float64(buf.SampleRate)
	if start >= float64(frames) {
		return nil
	}

	step := speed * float64(buf.SampleRate) / float64(format.SampleRate)
	outFrames := int((float64(frames) - start) / step)
	out := make([]byte, outFrames*format.Channels*bytesPerSample)

	pos := 0
	for i := range outFrames {
		srcPos := start + float64(i)*step
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		for c := range format.Channels {
			sample := mapChannel(buf, srcIdx, frac, c, format.Channels)
			binary.LittleEndian.PutUint16(out[pos:], uint16(audio.Quantize(sample)))
			pos += bytesPerSample
		}
	}

	return out
}

func mapChannel(buf audio.Buffer, srcIdx int, frac float32, outChannel, outChannels int) float32 {
	srcChannels := buf.NumChannels()

	switch {
	case srcChannels == outChannels:
		return interpolate(buf.Channels[outChannel], srcIdx, frac)
	case outChannels == 1:
		var sum float32
		for c := range srcChannels {
			sum += interpolate(buf.Channels[c], srcIdx, frac)
		}

		return sum / float32(srcChannels)
	default:
		return interpolate(buf.Channels[outChannel%srcChannels], srcIdx, frac)
	}
}

func interpolate(samples []float32, idx int, frac float32) float32 {
	s0 := samples[idx]
	s1 := s0

	if idx+1 < len(samples) {
		s1 = samples[idx+1]
	}

	return s0*(1-frac) + s1*frac
}
