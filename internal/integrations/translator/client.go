// Package translator wraps a Google-Translate-v2-compatible REST API for
// language detection and translation.
package translator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// detectResponse is the minimal response shape of the detect endpoint.
type detectResponse struct {
	Data struct {
		Detections [][]struct {
			Language   string  `json:"language"`
			Confidence float64 `json:"confidence"`
		} `json:"detections"`
	} `json:"data"`
}

// translateResponse is the minimal response shape of the translate endpoint.
type translateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("translator: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client calls the translation provider. Unlike the chat-completion client
// it is not funneled through the dispatch scheduler; calls may overlap.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a translation client with the given API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("translator: api key must not be empty")
	}
	c := &Client{
		baseURL:    "https://translation.googleapis.com",
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Detect returns the provider's best-guess language code for text.
func (c *Client) Detect(ctx context.Context, text string) (string, error) {
	form := url.Values{"q": {text}}
	raw, err := c.postForm(ctx, "/language/translate/v2/detect", form)
	if err != nil {
		return "", err
	}

	var payload detectResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", fmt.Errorf("translator: decode detect response: %w", decErr)
	}
	if len(payload.Data.Detections) == 0 || len(payload.Data.Detections[0]) == 0 {
		return "", errors.New("translator: no detections in response")
	}
	return payload.Data.Detections[0][0].Language, nil
}

// Translate converts text into target and returns the translated string.
func (c *Client) Translate(ctx context.Context, text, target string) (string, error) {
	form := url.Values{
		"q":      {text},
		"target": {target},
		"format": {"text"},
	}
	raw, err := c.postForm(ctx, "/language/translate/v2", form)
	if err != nil {
		return "", err
	}

	var payload translateResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", fmt.Errorf("translator: decode translate response: %w", decErr)
	}
	if len(payload.Data.Translations) == 0 {
		return "", errors.New("translator: no translations in response")
	}
	return payload.Data.Translations[0].TranslatedText, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	endpoint := strings.TrimRight(c.baseURL, "/") + path + "?key=" + url.QueryEscape(c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("translator: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("translator: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        strings.TrimRight(c.baseURL, "/") + path,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("translator: read response body: %w", err)
	}
	return buf, nil
}
