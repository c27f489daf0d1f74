package source

import (
	"fmt"
	"io"
	"net/http"
)

// skipRangeThreshold is the point past which Skip issues a ranged GET
// instead of reading and discarding bytes over the existing connection.
// Below this size, the round-trip cost of opening a new range request
// outweighs just reading past the bytes.
const skipRangeThreshold = 32 * 1024

// HTTPSource reads a bundle over HTTP, using Range requests to resume
// after a Skip once the skipped span is large enough to be worth a new
// request.
type HTTPSource struct {
	client *http.Client
	url    string
	pos    int64
	body   io.ReadCloser
}

var _ Source = (*HTTPSource)(nil)

// NewHTTPSource opens a streaming GET against url. The caller must Close
// the returned source when done.
func NewHTTPSource(client *http.Client, url string) (*HTTPSource, error) {
	if client == nil {
		client = http.DefaultClient
	}

	s := &HTTPSource{client: client, url: url}
	if err := s.open(0); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *HTTPSource) open(from int64) error {
	if s.body != nil {
		s.body.Close()
	}

	req, err := http.NewRequest(http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	if from > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", from))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()

		return fmt.Errorf("source: unexpected status %d fetching %s", resp.StatusCode, s.url)
	}

	s.body = resp.Body
	s.pos = from

	return nil
}

func (s *HTTPSource) Read(p []byte) (int, error) {
	n, err := s.body.Read(p)
	s.pos += int64(n)

	return n, err
}

func (s *HTTPSource) ReadFull(p []byte) error {
	return readFull(s, p)
}

// Skip advances past n bytes. Spans shorter than skipRangeThreshold are
// read and discarded over the open connection; longer spans reopen the
// request with a Range header starting past the skipped bytes, avoiding
// downloading data that will never be used.
func (s *HTTPSource) Skip(n int64) error {
	if n < skipRangeThreshold {
		_, err := io.CopyN(io.Discard, s, n)

		return err
	}

	return s.open(s.pos + n)
}

// Close releases the underlying HTTP response body.
func (s *HTTPSource) Close() error {
	if s.body == nil {
		return nil
	}

	return s.body.Close()
}
