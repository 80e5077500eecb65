// Package esv fetches passage text from the ESV API.
package esv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/audio-bible/internal/passage"
	"github.com/book-expert/logger"
)

// API endpoints and paths.
const (
	DEFAULT_BASE_URL = "https://api.esv.org"
	apiPassageText   = "/v3/passage/text/"
)

// HTTP headers.
const (
	headerAuthorization = "Authorization"
	tokenPrefix         = "Token "
)

// Query flags sent with every request.
var passageFlags = map[string]string{
	"include-headings":           "false",
	"include-footnotes":          "false",
	"include-verse-numbers":      "true",
	"include-short-copyright":    "false",
	"include-passage-references": "true",
}

const (
	querySeparator   = ";"
	unknownReference = "Unknown Reference"
)

// Error messages.
const (
	errFmtMissingKey    = "%w: please enter your ESV API key"
	errFmtEmptyQuery    = "%w: no references to fetch"
	errFmtAPIDetail     = "%w: ESV API error: %s"
	errFmtAPIStatus     = "%w: failed to fetch from ESV API, status: %d"
	errFmtNoPassages    = "%w: Invalid reference or no passage found. Please check your input."
	errFmtRequest       = "%w: failed to send request to ESV API at %s: %w"
	errFmtDecodeBody    = "%w: failed to decode ESV response: %w"
	errFmtCreateRequest = "failed to create ESV request: %w"
)

type passageResponse struct {
	Passages []string `json:"passages"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Client implements core.TextSource against the ESV HTTP API.
type Client struct {
	httpClient *http.Client
	cleaner    *passage.Cleaner
	dashes     *strings.Replacer
	log        *logger.Logger
	baseURL    string
}

// NewClient creates an ESV client. An empty baseURL selects DEFAULT_BASE_URL.
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DEFAULT_BASE_URL
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		cleaner:    passage.NewCleaner(),
		dashes:     passage.NewDashReplacer(),
		log:        log,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// NormalizeQuery turns comma or newline separated references into the
// semicolon-separated form the API expects, with dashes as hyphens.
func (c *Client) NormalizeQuery(query string) string {
	parts := strings.Split(strings.ReplaceAll(query, "\n", ","), ",")

	refs := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			refs = append(refs, trimmed)
		}
	}

	return c.dashes.Replace(strings.Join(refs, querySeparator))
}

// FetchPassages returns the passages for query in the order the API lists them.
func (c *Client) FetchPassages(ctx context.Context, query, apiKey string) ([]core.Passage, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf(errFmtMissingKey, core.ErrInput)
	}

	normalized := c.NormalizeQuery(query)
	if normalized == "" {
		return nil, fmt.Errorf(errFmtEmptyQuery, core.ErrInput)
	}

	params := url.Values{}
	params.Set("q", normalized)

	for key, value := range passageFlags {
		params.Set(key, value)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+apiPassageText+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf(errFmtCreateRequest, err)
	}

	req.Header.Set(headerAuthorization, tokenPrefix+strings.TrimSpace(apiKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf(errFmtRequest, core.ErrUpstream, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	var body passageResponse

	err = json.NewDecoder(resp.Body).Decode(&body)
	if err != nil {
		return nil, fmt.Errorf(errFmtDecodeBody, core.ErrUpstream, err)
	}

	if len(body.Passages) == 0 {
		return nil, fmt.Errorf(errFmtNoPassages, core.ErrUpstream)
	}

	passages := make([]core.Passage, 0, len(body.Passages))
	for _, content := range body.Passages {
		reference, text := c.cleaner.SplitPassage(content)
		if reference == "" {
			reference = unknownReference
		}

		passages = append(passages, core.Passage{Reference: reference, Text: text})
	}

	c.log.Info("Fetched %d passage(s) for '%s'", len(passages), normalized)

	return passages, nil
}

func parseErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)

	var errorResp errorResponse

	err := json.Unmarshal(raw, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtAPIDetail, core.ErrUpstream, errorResp.Detail)
	}

	return fmt.Errorf(errFmtAPIStatus, core.ErrUpstream, resp.StatusCode)
}
