package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"conveyor/internal/common/errors"
)

// HTTPStore talks to a remote artifact repository over HTTP. Artifacts are
// addressed as {base}/{repository}/{version}/{filename}; uploads use PUT
// with an X-Overwrite header, downloads use GET. A 409 maps to a conflict
// error and a 404 to a not-found error, matching the filesystem store.
type HTTPStore struct {
	base   string
	client *http.Client
	token  string
}

// HTTPStoreOption configures an HTTPStore.
type HTTPStoreOption func(*HTTPStore)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) HTTPStoreOption {
	return func(s *HTTPStore) { s.client = c }
}

// WithBearerToken sends the token on every request.
func WithBearerToken(token string) HTTPStoreOption {
	return func(s *HTTPStore) { s.token = token }
}

// NewHTTPStore creates a client for the artifact repository at base.
func NewHTTPStore(base string, opts ...HTTPStoreOption) (*HTTPStore, error) {
	if base == "" {
		return nil, errors.ConfigError("artifact repository URL is required")
	}
	s := &HTTPStore{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Upload sends the artifact to the repository.
func (s *HTTPStore) Upload(ctx context.Context, repository, version, filename string, data []byte, overwrite bool) error {
	req, err := s.newRequest(ctx, http.MethodPut, repository, version, filename, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if overwrite {
		req.Header.Set("X-Overwrite", "true")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload artifact: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusConflict:
		return errors.ConflictError(fmt.Sprintf("artifact %s/%s/%s", repository, version, filename))
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		return errors.InternalError(fmt.Sprintf("artifact upload returned status %d", resp.StatusCode), nil)
	}
}

// Download fetches the artifact bytes from the repository.
func (s *HTTPStore) Download(ctx context.Context, repository, version, filename string) ([]byte, error) {
	req, err := s.newRequest(ctx, http.MethodGet, repository, version, filename, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NotFoundError(fmt.Sprintf("artifact %s/%s/%s", repository, version, filename))
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read artifact body: %w", err)
		}
		return data, nil
	default:
		return nil, errors.InternalError(fmt.Sprintf("artifact download returned status %d", resp.StatusCode), nil)
	}
}

func (s *HTTPStore) newRequest(ctx context.Context, method, repository, version, filename string, body io.Reader) (*http.Request, error) {
	for _, part := range []string{repository, version, filename} {
		if part == "" || strings.Contains(part, "/") {
			return nil, errors.ValidationError(fmt.Sprintf("invalid artifact coordinate %q", part))
		}
	}
	target := fmt.Sprintf("%s/%s/%s/%s",
		s.base,
		url.PathEscape(repository),
		url.PathEscape(version),
		url.PathEscape(filename))

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build artifact request: %w", err)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return req, nil
}
