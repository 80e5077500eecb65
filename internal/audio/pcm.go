package audio

import "encoding/binary"

// DecodePCM converts headerless little-endian signed 16-bit PCM into a Buffer.
//
// Interleaved frames are split per channel and every sample is divided by
// 32768, so -32768 maps to exactly -1.0 and 32767 to just under 1.0. A
// trailing partial frame is dropped. Input that yields no frames is a decode
// failure rather than an empty clip.
func DecodePCM(data []byte, sampleRate, channels int) (Buffer, error) {
	err := validateFormat(sampleRate, channels)
	if err != nil {
		return Buffer{}, decodeErr("pcm: %w", err)
	}

	frameSize := bytesPerSample * channels
	frames := len(data) / frameSize

	if frames == 0 {
		return Buffer{}, decodeErr("pcm: %d bytes hold no complete %d-channel frame", len(data), channels)
	}

	buf := NewBuffer(channels, frames, sampleRate)

	for i := range frames {
		base := i * frameSize
		for c := range channels {
			offset := base + c*bytesPerSample
			sample := int16(binary.LittleEndian.Uint16(data[offset:]))
			buf.Channels[c][i] = float32(float64(sample) / negativeScale)
		}
	}

	return buf, nil
}
