package catalog

import (
	"context"
	"sync"
	"time"
)

// Loader produces a catalog. *Aggregator satisfies it.
type Loader interface {
	LoadCatalog(ctx context.Context) (*Catalog, error)
}

// ViewState describes the last refresh outcome of a View.
type ViewState string

const (
	ViewIdle    ViewState = "idle"
	ViewLoading ViewState = "loading"
	ViewReady   ViewState = "ready"
	ViewFailed  ViewState = "failed"
)

// ViewStatus is a point-in-time summary of a View.
type ViewStatus struct {
	State       ViewState `json:"state"`
	Generation  uint64    `json:"generation"`
	PublishedAt time.Time `json:"publishedAt,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
}

// View holds the most recently published catalog. Every Refresh cancels the
// load still in flight, and a load publishes only while it is the newest, so
// an older response can never overwrite a newer one.
type View struct {
	loader Loader

	mu          sync.Mutex
	generation  uint64
	cancel      context.CancelFunc
	current     *Catalog
	state       ViewState
	lastErr     error
	publishedAt time.Time
}

func NewView(loader Loader) *View {
	return &View{loader: loader, state: ViewIdle}
}

// Refresh loads a new catalog and publishes it. It returns ErrSuperseded if a
// later Refresh or Invalidate took over before the load finished.
func (v *View) Refresh(ctx context.Context) (*Catalog, error) {
	loadCtx, cancel := context.WithCancel(ctx)

	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
	}
	v.generation++
	gen := v.generation
	v.cancel = cancel
	v.state = ViewLoading
	v.mu.Unlock()

	cat, err := v.loader.LoadCatalog(loadCtx)

	v.mu.Lock()
	defer v.mu.Unlock()
	cancel()

	if gen != v.generation {
		return nil, ErrSuperseded
	}
	v.cancel = nil
	if err != nil {
		v.state = ViewFailed
		v.lastErr = err
		return nil, err
	}
	v.current = cat
	v.state = ViewReady
	v.lastErr = nil
	v.publishedAt = cat.LoadedAt
	return cat, nil
}

// Current returns the last published catalog, or nil if none was published.
func (v *View) Current() *Catalog {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Invalidate cancels any in-flight refresh and keeps it from publishing.
// The current catalog stays available.
func (v *View) Invalidate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.generation++
	if v.state == ViewLoading {
		if v.current != nil {
			v.state = ViewReady
		} else {
			v.state = ViewIdle
		}
	}
}

func (v *View) Status() ViewStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	st := ViewStatus{
		State:       v.state,
		Generation:  v.generation,
		PublishedAt: v.publishedAt,
	}
	if v.lastErr != nil {
		st.LastError = v.lastErr.Error()
	}
	return st
}
