package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrTooLarge is returned when a download exceeds the fetch cap.
var ErrTooLarge = errors.New("image exceeds fetch cap")

// Image is a downloaded attachment.
type Image struct {
	URL       string
	MediaType string
	Data      []byte
}

// Fetcher downloads attachment bytes over HTTP with a hard size cap.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithFetchClient overrides the HTTP client.
func WithFetchClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// NewFetcher creates a Fetcher that refuses bodies larger than maxBytes.
func NewFetcher(maxBytes int64, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{},
		maxBytes: maxBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads url within timeout. The media type comes from the
// Content-Type header, then content sniffing, then image/jpeg.
func (f *Fetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (*Image, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	reader := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}

	mediaType := headerImageType(resp.Header.Get("Content-Type"))
	if mediaType == "" {
		mediaType = SniffImageType(data)
	}

	return &Image{URL: url, MediaType: mediaType, Data: data}, nil
}
