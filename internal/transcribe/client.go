// Package transcribe provides the batch transcription adapter for stored
// call recordings.
//
// The adapter delegates to a whisper-server instance (REST API at
// POST /inference). Unlike a live dialogue system there is no streaming
// path here: a recording only exists once the call has ended, so the whole
// file is uploaded as a single inference request and the full transcript
// comes back in one response.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// Error is the transcription failure type. The pipeline treats any *Error as
// terminal for the call: no SMS is sent.
type Error struct {
	// Path is the recording that could not be transcribed.
	Path string

	// Err is the underlying cause (unreadable file, engine rejection,
	// transport failure to the engine).
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transcribe %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transcript is the immutable text produced from one recording.
type Transcript struct {
	Text string
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithLanguage sets the language hint sent to the engine (e.g., "en").
// Empty lets the engine auto-detect.
func WithLanguage(language string) Option {
	return func(c *Client) {
		c.language = language
	}
}

// WithModel selects a server-side model when the server hosts several.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithTimeout bounds a single inference request. Default: 60s.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the HTTP client. Tests use this to point at a
// httptest server with custom transport behaviour.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client uploads stored recordings to a whisper-server for transcription.
// It is read-only after construction and safe for concurrent use.
type Client struct {
	serverURL  string
	language   string
	model      string
	httpClient *http.Client
}

// New creates a Client that connects to the whisper-server at serverURL
// (e.g., "http://localhost:8178"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("transcribe: serverURL must not be empty")
	}
	c := &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Transcribe uploads the recording at localPath and returns its transcript.
// All failures are reported as *Error so callers can distinguish
// transcription problems from their own.
func (c *Client) Transcribe(ctx context.Context, localPath string) (Transcript, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return Transcript{}, &Error{Path: localPath, Err: err}
	}
	defer f.Close()

	body, contentType, err := c.buildForm(f, filepath.Base(localPath))
	if err != nil {
		return Transcript{}, &Error{Path: localPath, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/inference", body)
	if err != nil {
		return Transcript{}, &Error{Path: localPath, Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Transcript{}, &Error{Path: localPath, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Transcript{}, &Error{Path: localPath, Err: fmt.Errorf("engine returned HTTP %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcript{}, &Error{Path: localPath, Err: fmt.Errorf("read response: %w", err)}
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return Transcript{}, &Error{Path: localPath, Err: fmt.Errorf("parse response: %w", err)}
	}

	return Transcript{Text: strings.TrimSpace(result.Text)}, nil
}

// buildForm assembles the multipart body for an inference request: the audio
// file plus optional language and model hint fields.
func (c *Client) buildForm(audio io.Reader, filename string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return nil, "", fmt.Errorf("copy audio: %w", err)
	}
	if c.language != "" {
		if err := mw.WriteField("language", c.language); err != nil {
			return nil, "", fmt.Errorf("write language field: %w", err)
		}
	}
	if c.model != "" {
		if err := mw.WriteField("model", c.model); err != nil {
			return nil, "", fmt.Errorf("write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return &buf, mw.FormDataContentType(), nil
}
