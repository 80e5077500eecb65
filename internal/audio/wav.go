package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Canonical WAV layout.
const (
	WAV_HEADER_SIZE = 44

	riffChunkID     = "RIFF"
	waveFormatID    = "WAVE"
	fmtChunkID      = "fmt "
	dataChunkID     = "data"
	fmtChunkSize    = 16
	pcmAudioFormat  = 1
	riffHeaderBytes = 8
)

// EncodeWAV serializes buf as a canonical 16-bit PCM WAV file with a 44-byte header.
//
// Samples are clamped to [-1, 1]; negative values are scaled by 32768 and the
// rest by 32767, then truncated toward zero. Frames are interleaved in
// channel order.
func EncodeWAV(buf Buffer) ([]byte, error) {
	err := buf.Validate()
	if err != nil {
		return nil, fmt.Errorf("wav encode: %w", err)
	}

	channels := buf.NumChannels()
	frames := buf.Frames()
	dataLength := frames * channels * bytesPerSample
	out := make([]byte, WAV_HEADER_SIZE+dataLength)

	copy(out[0:4], riffChunkID)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-riffHeaderBytes))
	copy(out[8:12], waveFormatID)
	copy(out[12:16], fmtChunkID)
	binary.LittleEndian.PutUint32(out[16:20], fmtChunkSize)
	binary.LittleEndian.PutUint16(out[20:22], pcmAudioFormat)
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(buf.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(buf.SampleRate*bytesPerSample*channels))
	binary.LittleEndian.PutUint16(out[32:34], uint16(bytesPerSample*channels))
	binary.LittleEndian.PutUint16(out[34:36], BIT_DEPTH_16)
	copy(out[36:40], dataChunkID)
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataLength))

	pos := WAV_HEADER_SIZE
	for i := range frames {
		for c := range channels {
			binary.LittleEndian.PutUint16(out[pos:], uint16(Quantize(buf.Channels[c][i])))
			pos += bytesPerSample
		}
	}

	return out, nil
}

// Quantize converts a normalised sample to int16 with the asymmetric WAV scaling.
func Quantize(sample float32) int16 {
	s := math.Max(-1, math.Min(1, float64(sample)))
	if s < 0 {
		return int16(s * negativeScale)
	}

	return int16(s * positiveScale)
}

// DecodeWAV reads an integer PCM WAV file into a Buffer. 16-bit data uses the
// same /32768 scaling as DecodePCM so stored audio plays back bit-for-bit.
func DecodeWAV(data []byte) (Buffer, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return Buffer{}, decodeErr("wav: not a valid WAV file (%d bytes)", len(data))
	}

	if decoder.WavAudioFormat != pcmAudioFormat {
		return Buffer{}, decodeErr("wav: unsupported audio format %d", decoder.WavAudioFormat)
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return Buffer{}, decodeErr("wav: read samples: %w", err)
	}

	return fromIntBuffer(pcm, int(decoder.BitDepth))
}

// fromIntBuffer de-interleaves a go-audio integer buffer, scaling by the
// source bit depth.
func fromIntBuffer(pcm *goaudio.IntBuffer, bitDepth int) (Buffer, error) {
	if pcm == nil || pcm.Format == nil {
		return Buffer{}, decodeErr("wav: missing format")
	}

	channels := pcm.Format.NumChannels
	sampleRate := pcm.Format.SampleRate

	err := validateFormat(sampleRate, channels)
	if err != nil {
		return Buffer{}, decodeErr("wav: %w", err)
	}

	scale, err := fullScale(bitDepth)
	if err != nil {
		return Buffer{}, err
	}

	frames := len(pcm.Data) / channels
	if frames == 0 {
		return Buffer{}, decodeErr("wav: no audio frames")
	}

	buf := NewBuffer(channels, frames, sampleRate)
	for i := range frames {
		for c := range channels {
			sample := pcm.Data[i*channels+c]
			if bitDepth == BIT_DEPTH_8 {
				// 8-bit WAV is unsigned with a 128 midpoint.
				sample -= 128
			}

			buf.Channels[c][i] = float32(float64(sample) / scale)
		}
	}

	return buf, nil
}

func fullScale(bitDepth int) (float64, error) {
	switch bitDepth {
	case BIT_DEPTH_8:
		return 128, nil
	case BIT_DEPTH_16:
		return negativeScale, nil
	case BIT_DEPTH_24:
		return 1 << 23, nil
	case BIT_DEPTH_32:
		return 1 << 31, nil
	default:
		return 0, decodeErr("wav: unsupported bit depth %d", bitDepth)
	}
}
