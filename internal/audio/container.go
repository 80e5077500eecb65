package audio

import "bytes"

// Container identifies an encoded audio format.
type Container string

// Supported containers.
const (
	CONTAINER_WAV     Container = "wav"
	CONTAINER_MP3     Container = "mp3"
	CONTAINER_UNKNOWN Container = ""
)

const sniffLength = 12

// Sniff identifies the container of an encoded clip from its leading bytes.
func Sniff(data []byte) Container {
	if len(data) >= sniffLength && bytes.Equal(data[0:4], []byte(riffChunkID)) &&
		bytes.Equal(data[8:12], []byte(waveFormatID)) {
		return CONTAINER_WAV
	}

	if len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")) {
		return CONTAINER_MP3
	}

	// MPEG audio frame sync: eleven set bits.
	if len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return CONTAINER_MP3
	}

	return CONTAINER_UNKNOWN
}

// DecodeContainer decodes an already container-encoded clip, the way a host
// audio decoder would.
func DecodeContainer(data []byte) (Buffer, error) {
	switch Sniff(data) {
	case CONTAINER_WAV:
		return DecodeWAV(data)
	case CONTAINER_MP3:
		return DecodeMP3(data)
	default:
		return Buffer{}, decodeErr("unrecognised audio container (%d bytes)", len(data))
	}
}
