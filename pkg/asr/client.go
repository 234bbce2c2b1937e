// Package asr talks to a whisper-style speech recognition service.
package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	defaultLanguage       = "pt"
	defaultConnectTimeout = 30 * time.Second
	defaultRequestTimeout = 5 * time.Minute
	transcribePath        = "/asr"
	formField             = "audio_file"
	formFilename          = "audio.wav"
)

var (
	ErrEmptyResponse = errors.New("asr returned an empty body")
	ErrNoTimestamps  = errors.New("asr response has no subtitle timings")
)

// StatusError is returned when the service answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("asr http %d: %s", e.StatusCode, e.Body)
}

// Client turns an audio file into SubRip text.
type Client interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type Option func(*httpClient)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *httpClient) {
		if client != nil {
			c.http = client
		}
	}
}

func WithLanguage(language string) Option {
	return func(c *httpClient) {
		if strings.TrimSpace(language) != "" {
			c.language = strings.TrimSpace(language)
		}
	}
}

// WithTimeouts sets the dial timeout and the overall request timeout.
func WithTimeouts(connect, request time.Duration) Option {
	return func(c *httpClient) {
		if connect <= 0 {
			connect = defaultConnectTimeout
		}
		if request <= 0 {
			request = defaultRequestTimeout
		}
		c.http = newHTTPClient(connect, request)
	}
}

type httpClient struct {
	baseURL  string
	language string
	http     *http.Client
}

func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		language: defaultLanguage,
		http:     newHTTPClient(defaultConnectTimeout, defaultRequestTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newHTTPClient(connect, request time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = connect
	return &http.Client{Transport: transport, Timeout: request}
}

func (c *httpClient) endpoint() (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("asr client: missing base url")
	}
	u, err := url.Parse(c.baseURL + transcribePath)
	if err != nil {
		return "", fmt.Errorf("asr client: parse base url: %w", err)
	}
	q := u.Query()
	q.Set("language", c.language)
	q.Set("output", "srt")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Transcribe streams the audio file as multipart form data and returns the
// raw subtitle text.
func (c *httpClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return "", err
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("asr client: open audio: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile(formField, formFilename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("asr client: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("asr client: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("asr client: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}

	text := string(body)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	if !strings.Contains(text, "-->") {
		return "", ErrNoTimestamps
	}
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
