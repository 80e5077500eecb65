// Package openai synthesizes speech with the OpenAI audio speech API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/audio-bible/internal/provider"
	"github.com/book-expert/logger"
)

// API defaults.
const (
	DEFAULT_MODEL = "gpt-4o-mini-tts"
	serviceName   = "OpenAI"
)

const errFmtEmptyAudio = "%w: OpenAI returned no audio"

// Client implements provider.Synthesizer on the openai-go SDK. The API key is
// supplied per request so key changes apply without rebuilding the client.
type Client struct {
	client oai.Client
	apiKey provider.KeyFunc
	log    *logger.Logger
	model  string
}

// NewClient creates an OpenAI speech client. An empty baseURL keeps the SDK default.
func NewClient(baseURL, model string, timeout time.Duration, apiKey provider.KeyFunc, log *logger.Logger) *Client {
	if model == "" {
		model = DEFAULT_MODEL
	}

	reqOpts := []option.RequestOption{}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}

	if timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}

	return &Client{
		client: oai.NewClient(reqOpts...),
		apiKey: apiKey,
		log:    log,
		model:  model,
	}
}

// ID implements provider.Synthesizer.
func (c *Client) ID() core.ProviderID {
	return core.ProviderOpenAI
}

// Voices returns the built-in voice catalogue.
func (c *Client) Voices(_ context.Context) ([]provider.Voice, error) {
	return provider.Catalogue(core.ProviderOpenAI), nil
}

// Synthesize requests headerless PCM, which the API returns as 24 kHz mono int16.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) (provider.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return provider.Audio{}, fmt.Errorf(provider.ErrFmtEmptyText, core.ErrInput)
	}

	key := c.apiKey()
	if key == "" {
		return provider.Audio{}, provider.MissingKeyError(serviceName)
	}

	resp, err := c.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(c.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voiceID),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}, option.WithAPIKey(key))
	if err != nil {
		return provider.Audio{}, apiError(err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Audio{}, fmt.Errorf(provider.ErrFmtReadResponse, core.ErrUpstream, serviceName, err)
	}

	if len(pcm) == 0 {
		return provider.Audio{}, fmt.Errorf(errFmtEmptyAudio, core.ErrUpstream)
	}

	return provider.RawPCM(pcm), nil
}

func apiError(err error) error {
	var sdkErr *oai.Error
	if errors.As(err, &sdkErr) && sdkErr.Message != "" {
		return fmt.Errorf(provider.ErrFmtAPIError, core.ErrUpstream, serviceName, sdkErr.Message)
	}

	return fmt.Errorf(provider.ErrFmtRequest, core.ErrUpstream, serviceName, err)
}
