package audio

import (
	"bytes"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// mp3Channels is fixed: go-mp3 always decodes to 16-bit stereo.
const mp3Channels = 2

// DecodeMP3 decodes an MP3 clip into a Buffer at the stream's sample rate.
func DecodeMP3(data []byte) (Buffer, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Buffer{}, decodeErr("mp3: %w", err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return Buffer{}, decodeErr("mp3: read samples: %w", err)
	}

	return DecodePCM(pcm, decoder.SampleRate(), mp3Channels)
}
