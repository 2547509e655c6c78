package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"real-estate-catalog/internal/models"
)

// gatedLoader blocks each load until its gate is released or ctx ends.
type gatedLoader struct {
	mu    sync.Mutex
	gates []chan *Catalog
}

func (g *gatedLoader) LoadCatalog(ctx context.Context) (*Catalog, error) {
	gate := make(chan *Catalog, 1)
	g.mu.Lock()
	g.gates = append(g.gates, gate)
	g.mu.Unlock()

	select {
	case cat := <-gate:
		return cat, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gatedLoader) release(i int, cat *Catalog) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gates[i] <- cat
}

func (g *gatedLoader) started() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.gates)
}

func catalogNamed(name string) *Catalog {
	return &Catalog{
		Properties: []models.Property{{ID: name, Name: name}},
		Images:     ImageIndex{name: {}},
		LoadedAt:   time.Now(),
	}
}

func TestView_RefreshPublishes(t *testing.T) {
	loader := &gatedLoader{}
	v := NewView(loader)
	assert.Nil(t, v.Current())
	assert.Equal(t, ViewIdle, v.Status().State)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := v.Refresh(context.Background())
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return loader.started() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, ViewLoading, v.Status().State)

	loader.release(0, catalogNamed("first"))
	<-done

	require.NotNil(t, v.Current())
	assert.Equal(t, "first", v.Current().Properties[0].ID)
	assert.Equal(t, ViewReady, v.Status().State)
}

func TestView_NewerRefreshSupersedesOlder(t *testing.T) {
	loader := &gatedLoader{}
	v := NewView(loader)

	firstErr := make(chan error, 1)
	go func() {
		_, err := v.Refresh(context.Background())
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return loader.started() == 1 }, time.Second, time.Millisecond)

	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		cat, err := v.Refresh(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, "second", cat.Properties[0].ID)
	}()

	// the first load is cancelled as soon as the second starts
	assert.ErrorIs(t, <-firstErr, ErrSuperseded)

	require.Eventually(t, func() bool { return loader.started() == 2 }, time.Second, time.Millisecond)
	loader.release(1, catalogNamed("second"))
	<-secondDone

	assert.Equal(t, "second", v.Current().Properties[0].ID)
}

// staleLoader ignores cancellation, so an older response arrives after a newer one.
type staleLoader struct {
	first  chan struct{}
	called int
	mu     sync.Mutex
}

func (s *staleLoader) LoadCatalog(ctx context.Context) (*Catalog, error) {
	s.mu.Lock()
	s.called++
	n := s.called
	s.mu.Unlock()
	if n == 1 {
		<-s.first
		return catalogNamed("stale"), nil
	}
	return catalogNamed("fresh"), nil
}

func TestView_LateResponseIsDiscarded(t *testing.T) {
	loader := &staleLoader{first: make(chan struct{})}
	v := NewView(loader)

	firstErr := make(chan error, 1)
	go func() {
		_, err := v.Refresh(context.Background())
		firstErr <- err
	}()
	require.Eventually(t, func() bool {
		loader.mu.Lock()
		defer loader.mu.Unlock()
		return loader.called == 1
	}, time.Second, time.Millisecond)

	_, err := v.Refresh(context.Background())
	require.NoError(t, err)

	close(loader.first)
	assert.ErrorIs(t, <-firstErr, ErrSuperseded)
	assert.Equal(t, "fresh", v.Current().Properties[0].ID)
}

type failingLoader struct{ err error }

func (f failingLoader) LoadCatalog(context.Context) (*Catalog, error) {
	return nil, f.err
}

func TestView_FailureKeepsPreviousCatalog(t *testing.T) {
	v := NewView(failingLoader{err: ErrCatalogUnavailable})
	v.current = catalogNamed("old")

	_, err := v.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
	assert.Equal(t, "old", v.Current().Properties[0].ID)

	st := v.Status()
	assert.Equal(t, ViewFailed, st.State)
	assert.Equal(t, ErrCatalogUnavailable.Error(), st.LastError)
}

func TestView_InvalidateCancelsInFlight(t *testing.T) {
	loader := &gatedLoader{}
	v := NewView(loader)

	errc := make(chan error, 1)
	go func() {
		_, err := v.Refresh(context.Background())
		errc <- err
	}()
	require.Eventually(t, func() bool { return loader.started() == 1 }, time.Second, time.Millisecond)

	v.Invalidate()
	err := <-errc
	assert.True(t, errors.Is(err, ErrSuperseded), "got %v", err)
	assert.Nil(t, v.Current())
	assert.Equal(t, ViewIdle, v.Status().State)
}
