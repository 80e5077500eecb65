// Package gemini synthesizes speech with the Gemini generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/audio-bible/internal/provider"
	"github.com/book-expert/logger"
)

// API defaults.
const (
	DEFAULT_BASE_URL = "https://generativelanguage.googleapis.com"
	DEFAULT_MODEL    = "gemini-2.5-flash-preview-tts"
	apiGenerateFmt   = "/v1beta/models/%s:generateContent"
	serviceName      = "Gemini"
	modalityAudio    = "AUDIO"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAPIKey      = "x-goog-api-key"
	contentTypeJSON   = "application/json"
)

// Error messages.
const (
	errFmtNoAudio    = "%w: No audio data received from Gemini API. The response may have been blocked or contained an error."
	errFmtBadBase64  = "%w: Gemini audio is not valid base64: %w"
	errFmtStatus     = "%w: Gemini API returned status %s: %s"
	errFmtMarshal    = "failed to marshal Gemini request: %w"
	errFmtNewRequest = "failed to create Gemini request: %w"
)

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	InlineData *inlineData `json:"inlineData,omitempty"`
	Text       string      `json:"text,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	SpeechConfig       speechConfig `json:"speechConfig"`
	ResponseModalities []string     `json:"responseModalities"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Client implements provider.Synthesizer for Gemini TTS.
type Client struct {
	httpClient *http.Client
	apiKey     provider.KeyFunc
	log        *logger.Logger
	baseURL    string
	model      string
}

// NewClient creates a Gemini client. Empty baseURL and model select the defaults.
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
	return core.ProviderGemini
}

// Voices returns the prebuilt voice catalogue.
func (c *Client) Voices(_ context.Context) ([]provider.Voice, error) {
	return provider.Catalogue(core.ProviderGemini), nil
}

// Synthesize returns raw 24 kHz mono PCM for text.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) (provider.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return provider.Audio{}, fmt.Errorf(provider.ErrFmtEmptyText, core.ErrInput)
	}

	key := c.apiKey()
	if key == "" {
		return provider.Audio{}, provider.MissingKeyError(serviceName)
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: text}}}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{modalityAudio},
			SpeechConfig: speechConfig{VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voiceID},
			}},
		},
	})
	if err != nil {
		return provider.Audio{}, fmt.Errorf(errFmtMarshal, err)
	}

	url := c.baseURL + fmt.Sprintf(apiGenerateFmt, c.model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return provider.Audio{}, fmt.Errorf(errFmtNewRequest, err)
	}

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
		return provider.Audio{}, parseErrorResponse(resp.Status, raw)
	}

	var parsed generateResponse

	err = json.Unmarshal(raw, &parsed)
	if err != nil {
		return provider.Audio{}, fmt.Errorf(provider.ErrFmtReadResponse, core.ErrUpstream, serviceName, err)
	}

	encoded := firstInlineData(parsed)
	if encoded == "" {
		c.log.Error("Unexpected Gemini response structure: %s", string(raw))

		return provider.Audio{}, fmt.Errorf(errFmtNoAudio, core.ErrUpstream)
	}

	pcm, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return provider.Audio{}, fmt.Errorf(errFmtBadBase64, core.ErrUpstream, err)
	}

	return provider.RawPCM(pcm), nil
}

func firstInlineData(resp generateResponse) string {
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	first := resp.Candidates[0].Content.Parts[0]
	if first.InlineData == nil {
		return ""
	}

	return first.InlineData.Data
}

func parseErrorResponse(status string, raw []byte) error {
	var errorResp errorResponse

	err := json.Unmarshal(raw, &errorResp)
	if err == nil && errorResp.Error.Message != "" {
		return fmt.Errorf(provider.ErrFmtAPIError, core.ErrUpstream, serviceName, errorResp.Error.Message)
	}

	return fmt.Errorf(errFmtStatus, core.ErrUpstream, status, string(raw))
}
