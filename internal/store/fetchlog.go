package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/seantiz/modloader/internal/fetch"
	"github.com/seantiz/modloader/internal/model"
)

// FetchLog records fetch attempts in a Store.
type FetchLog struct {
	Store  Store
	Logger *slog.Logger
}

var _ fetch.Recorder = (*FetchLog)(nil)

// Record implements fetch.Recorder. Storage errors are logged, never
// returned to the loader.
func (f *FetchLog) Record(a fetch.Attempt) {
	r := &FetchRecord{
		Module:     a.Module,
		URL:        a.URL,
		Mode:       a.Mode,
		Status:     a.Status,
		Bytes:      a.Bytes,
		DurationMS: a.Duration.Milliseconds(),
	}
	if a.Err != nil {
		r.Error = a.Err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.Store.InsertFetch(ctx, r); err != nil && f.Logger != nil {
		f.Logger.Error("failed to record fetch", "url", a.URL, "error", err)
	}
}

// Preload turns the bundle into preload bodies for the loader.
func (b *Bundle) Preload() model.Preload {
	p := make(model.Preload, len(b.Modules))
	for name, src := range b.Modules {
		p[name] = model.Source(src)
	}
	return p
}
