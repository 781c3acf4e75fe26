package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Fetch modes, used as metric labels and in attempt records.
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// StatusFile is the status reported for a successful read of a local file.
const StatusFile = 0

// Request identifies one fetch attempt.
type Request struct {
	// Module is the resource name the body is fetched for.
	Module string
	URL    string
	Async  bool
}

// Mode returns ModeSync or ModeAsync.
func (r Request) Mode() string {
	if r.Async {
		return ModeAsync
	}
	return ModeSync
}

// Response is a fetched body.
type Response struct {
	URL    string
	Status int
	Body   []byte
}

// Success reports whether the status counts as a successful load: 200 for
// HTTP, 0 for local files.
func Success(status int) bool {
	return status == http.StatusOK || status == StatusFile
}

// FetchError reports a failed load of a URL.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil && e.Status > 0:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Getter reads the body behind a URL. Implementations must be safe for
// concurrent use; async fetches call them from background goroutines.
type Getter interface {
	Get(ctx context.Context, url string) (Response, error)
}

// GetterFunc adapts a function to the Getter interface.
type GetterFunc func(ctx context.Context, url string) (Response, error)

// Get calls f.
func (f GetterFunc) Get(ctx context.Context, url string) (Response, error) {
	return f(ctx, url)
}

// Attempt describes a finished fetch attempt.
type Attempt struct {
	Module   string
	URL      string
	Mode     string
	Status   int
	Bytes    int
	Duration time.Duration
	Err      error
}

// Recorder receives every finished attempt. It may be called from any goroutine.
type Recorder interface {
	Record(a Attempt)
}

// do runs one attempt through g, turning unsuccessful statuses into a
// FetchError and recording the outcome.
func do(ctx context.Context, g Getter, req Request, rec Recorder) (Response, error) {
	start := time.Now()
	resp, err := g.Get(ctx, req.URL)
	if err == nil && !Success(resp.Status) {
		err = &FetchError{URL: req.URL, Status: resp.Status}
	}
	elapsed := time.Since(start)

	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	fetchAttemptsTotal.WithLabelValues(req.Mode(), outcome).Inc()
	fetchDuration.WithLabelValues(req.Mode()).Observe(elapsed.Seconds())

	if rec != nil {
		a := Attempt{
			Module:   req.Module,
			URL:      req.URL,
			Mode:     req.Mode(),
			Status:   resp.Status,
			Bytes:    len(resp.Body),
			Duration: elapsed,
			Err:      err,
		}
		if fe, ok := err.(*FetchError); ok && a.Status == 0 {
			a.Status = fe.Status
		}
		rec.Record(a)
	}
	return resp, err
}
