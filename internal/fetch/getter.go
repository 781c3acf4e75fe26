package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"
)

// DefaultTimeout bounds a single HTTP fetch.
const DefaultTimeout = 30 * time.Second

// HTTPGetter loads http and https URLs.
type HTTPGetter struct {
	Client *http.Client
}

// NewHTTPGetter creates a getter whose client gives up after timeout.
func NewHTTPGetter(timeout time.Duration) *HTTPGetter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPGetter{Client: &http.Client{Timeout: timeout}}
}

// Get performs a GET request. Non-2xx responses are returned with their
// status and body; the caller decides what counts as success.
func (g *HTTPGetter) Get(ctx context.Context, rawURL string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Response{}, &FetchError{URL: rawURL, Err: err}
	}
	res, err := g.Client.Do(req)
	if err != nil {
		return Response{}, &FetchError{URL: rawURL, Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{}, &FetchError{URL: rawURL, Status: res.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	return Response{URL: rawURL, Status: res.StatusCode, Body: body}, nil
}

// FileGetter loads file URLs and scheme-less paths. Relative paths are
// resolved against Root and may not escape it.
type FileGetter struct {
	Root string
}

// Get reads the file behind rawURL. A successful read reports StatusFile.
func (g *FileGetter) Get(_ context.Context, rawURL string) (Response, error) {
	p, err := g.path(rawURL)
	if err != nil {
		return Response{}, &FetchError{URL: rawURL, Status: http.StatusBadRequest, Err: err}
	}
	body, err := os.ReadFile(p)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, fs.ErrNotExist) {
			status = http.StatusNotFound
		}
		return Response{}, &FetchError{URL: rawURL, Status: status, Err: err}
	}
	return Response{URL: rawURL, Status: StatusFile, Body: body}, nil
}

func (g *FileGetter) path(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "file" {
		if u.Path == "" {
			return "", fmt.Errorf("empty file path")
		}
		return filepath.FromSlash(u.Path), nil
	}
	root := g.Root
	if root == "" {
		root = "."
	}
	// Cleaning against "/" keeps ".." from leaving the root.
	return filepath.Join(root, filepath.FromSlash(path.Clean("/"+u.Path))), nil
}
