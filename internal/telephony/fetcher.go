package telephony

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// TransportError is a recording transfer failure: connection problems,
// non-2xx responses, or a stream interrupted mid-copy. The pipeline treats
// it as terminal for the call.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch recording %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TokenSource mints a fresh bearer token for one authenticated fetch.
// *Credentials is the production implementation.
type TokenSource interface {
	Token() (string, error)
}

// Fetcher streams call recordings from the telephony provider to durable
// storage. Safe for concurrent use; concurrent fetches write distinct files.
type Fetcher struct {
	tokens     TokenSource
	dir        string
	httpClient *http.Client
}

// FetcherOption is a functional option for configuring a [Fetcher].
type FetcherOption func(*Fetcher)

// WithFetchHTTPClient replaces the HTTP client used for recording downloads.
func WithFetchHTTPClient(hc *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.httpClient = hc
	}
}

// NewFetcher creates a Fetcher writing recordings into dir, creating it if
// needed.
func NewFetcher(tokens TokenSource, dir string, opts ...FetcherOption) (*Fetcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("telephony: recording dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("telephony: create recording dir: %w", err)
	}
	f := &Fetcher{
		tokens:     tokens,
		dir:        dir,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

// Fetch downloads the recording at recordingURL into
// <dir>/<recordingUUID> and returns the local path. It returns only after
// the file has been fully written and closed; a short response does not
// count as completion. On any failure the partial file is removed and a
// *TransportError is returned. No retry is attempted.
func (f *Fetcher) Fetch(ctx context.Context, recordingURL, recordingUUID string) (string, error) {
	token, err := f.tokens.Token()
	if err != nil {
		return "", &TransportError{URL: recordingURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return "", &TransportError{URL: recordingURL, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{URL: recordingURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &TransportError{URL: recordingURL, Err: fmt.Errorf("provider returned HTTP %d", resp.StatusCode)}
	}

	localPath := filepath.Join(f.dir, recordingUUID)
	out, err := os.Create(localPath)
	if err != nil {
		return "", &TransportError{URL: recordingURL, Err: err}
	}

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		out.Close()
		f.discard(localPath)
		return "", &TransportError{URL: recordingURL, Err: fmt.Errorf("stream interrupted after %d bytes: %w", written, err)}
	}
	if err := out.Close(); err != nil {
		f.discard(localPath)
		return "", &TransportError{URL: recordingURL, Err: err}
	}

	slog.Debug("recording fetched", "uuid", recordingUUID, "bytes", written, "path", localPath)
	return localPath, nil
}

// discard removes a partial recording after a failed transfer.
func (f *Fetcher) discard(path string) {
	if err := os.Remove(path); err != nil {
		slog.Warn("could not remove partial recording", "path", path, "err", err)
	}
}
