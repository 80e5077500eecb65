package playback

import (
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// Default device format.
const (
	DEFAULT_DEVICE_SAMPLE_RATE = 48000
	DEFAULT_DEVICE_CHANNELS    = 2
)

const errFmtOtoContext = "failed to initialise audio device (rate=%d, channels=%d): %w"

// OtoOutput plays PCM through the system audio device. The device is opened
// on the first Open; only one oto context can exist per process.
type OtoOutput struct {
	ctx    *oto.Context
	err    error
	format Format
	once   sync.Once
}

// NewOtoOutput fills zero fields of format with the device defaults.
func NewOtoOutput(format Format) *OtoOutput {
	if format.SampleRate <= 0 {
		format.SampleRate = DEFAULT_DEVICE_SAMPLE_RATE
	}

	if format.Channels <= 0 {
		format.Channels = DEFAULT_DEVICE_CHANNELS
	}

	return &OtoOutput{format: format}
}

// Format implements Output.
func (o *OtoOutput) Format() Format {
	return o.format
}

// Open implements Output. *oto.Player already satisfies Voice.
func (o *OtoOutput) Open(pcm io.Reader) (Voice, error) {
	o.once.Do(o.openDevice)

	if o.err != nil {
		return nil, o.err
	}

	return o.ctx.NewPlayer(pcm), nil
}

func (o *OtoOutput) openDevice() {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   o.format.SampleRate,
		ChannelCount: o.format.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		o.err = fmt.Errorf(errFmtOtoContext, o.format.SampleRate, o.format.Channels, err)

		return
	}
	<-ready

	o.ctx = ctx
}
