// Package elevenlabs synthesizes speech with the ElevenLabs REST API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/audio-bible/internal/provider"
	"github.com/book-expert/logger"
)

// API endpoints and defaults.
const (
	DEFAULT_BASE_URL  = "https://api.elevenlabs.io"
	DEFAULT_MODEL     = "eleven_multilingual_v2"
	apiTextToSpeech   = "/v1/text-to-speech/"
	apiVoices         = "/v1/voices"
	serviceName       = "ElevenLabs"
	defaultStability  = 0.5
	defaultSimilarity = 0.75
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	headerAPIKey      = "xi-api-key"
	contentTypeJSON   = "application/json"
	contentTypeMPEG   = "audio/mpeg"
)

// Error messages.
const (
	errFmtEmptyAudio      = "%w: ElevenLabs returned no audio"
	errFmtVoicesStatus    = "%w: failed to fetch ElevenLabs voices. Status: %d. %s"
	errFmtVoicesStructure = "%w: invalid response structure from ElevenLabs voices API"
	errFmtMarshal         = "failed to marshal ElevenLabs request: %w"
	errFmtNewRequest      = "failed to create ElevenLabs request: %w"
)

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type voicesResponse struct {
	Voices *[]struct {
		Labels struct {
			Description string `json:"description"`
			Accent      string `json:"accent"`
		} `json:"labels"`
		VoiceID string `json:"voice_id"`
		Name    string `json:"name"`
	} `json:"voices"`
}

// errorResponse carries "detail" as either an object with a message or a plain string.
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// Client implements provider.Synthesizer for ElevenLabs.
type Client struct {
	httpClient *http.Client
	apiKey     provider.KeyFunc
	log        *logger.Logger
	baseURL    string
	model      string
}

// NewClient creates an ElevenLabs client. Empty baseURL and model select the defaults.
func NewClient(baseURL, model string, timeout time.Duration, apiKey provider.KeyFunc, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DEFAULT_BASE_URL
	}

	if model == "" {
		model = DEFAULT_MODEL
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		log:        log,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
	}
}

// ID implements provider.Synthesizer.
func (c *Client) ID() core.ProviderID {
	return core.ProviderElevenLabs
}

// Synthesize returns MP3 bytes for text.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) (provider.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return provider.Audio{}, fmt.Errorf(provider.ErrFmtEmptyText, core.ErrInput)
	}

	key := c.apiKey()
	if key == "" {
		return provider.Audio{}, provider.MissingKeyError(serviceName)
	}

	body, err := json.Marshal(speechRequest{
		Text:    text,
		ModelID: c.model,
		VoiceSettings: voiceSettings{
			Stability:       defaultStability,
			SimilarityBoost: defaultSimilarity,
		},
	})
	if err != nil {
		return provider.Audio{}, fmt.Errorf(errFmtMarshal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+apiTextToSpeech+url.PathEscape(voiceID), bytes.NewReader(body))
	if err != nil {
		return provider.Audio{}, fmt.Errorf(errFmtNewRequest, err)
	}

	req.Header.Set(headerAccept, contentTypeMPEG)
	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAPIKey, key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return provider.Audio{}, fmt.Errorf(provider.ErrFmtRequest, core.ErrUpstream, serviceName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Audio{}, fmt.Errorf(provider.ErrFmtReadResponse, core.ErrUpstream, serviceName, err)
	}

	if resp.StatusCode != http.StatusOK {
		message := detailMessage(raw)
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}

		return provider.Audio{}, fmt.Errorf(provider.ErrFmtAPIError, core.ErrUpstream, serviceName, message)
	}

	if len(raw) == 0 {
		return provider.Audio{}, fmt.Errorf(errFmtEmptyAudio, core.ErrUpstream)
	}

	return provider.Container(raw), nil
}

// Voices lists the account's voices labelled "Name (Description, Accent)".
// Without a key it returns the built-in catalogue.
func (c *Client) Voices(ctx context.Context) ([]provider.Voice, error) {
	key := c.apiKey()
	if key == "" {
		return provider.Catalogue(core.ProviderElevenLabs), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiVoices, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf(errFmtNewRequest, err)
	}

	req.Header.Set(headerAPIKey, key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf(provider.ErrFmtRequest, core.ErrUpstream, serviceName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf(provider.ErrFmtReadResponse, core.ErrUpstream, serviceName, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(errFmtVoicesStatus, core.ErrUpstream, resp.StatusCode, detailMessage(raw))
	}

	var parsed voicesResponse

	err = json.Unmarshal(raw, &parsed)
	if err != nil || parsed.Voices == nil {
		return nil, fmt.Errorf(errFmtVoicesStructure, core.ErrUpstream)
	}

	voices := make([]provider.Voice, 0, len(*parsed.Voices))
	for _, voice := range *parsed.Voices {
		voices = append(voices, provider.Voice{
			ID:   voice.VoiceID,
			Name: voiceName(voice.Name, voice.Labels.Description, voice.Labels.Accent),
		})
	}

	c.log.Info("Loaded %d ElevenLabs voice(s)", len(voices))

	return voices, nil
}

func voiceName(name string, labels ...string) string {
	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		if label != "" {
			parts = append(parts, capitalize(label))
		}
	}

	if len(parts) == 0 {
		return name
	}

	return name + " (" + strings.Join(parts, ", ") + ")"
}

func capitalize(s string) string {
	first, size := utf8.DecodeRuneInString(s)

	return string(unicode.ToUpper(first)) + s[size:]
}

func detailMessage(raw []byte) string {
	var errorResp errorResponse

	if json.Unmarshal(raw, &errorResp) != nil || len(errorResp.Detail) == 0 {
		return ""
	}

	var detail struct {
		Message string `json:"message"`
	}

	if json.Unmarshal(errorResp.Detail, &detail) == nil && detail.Message != "" {
		return detail.Message
	}

	var plain string
	if json.Unmarshal(errorResp.Detail, &plain) == nil {
		return plain
	}

	return ""
}
