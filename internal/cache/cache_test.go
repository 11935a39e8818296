package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/domain"
	"github.com/SDG223157/trendwise0706-sub001/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote is an in-memory Remote; failing flips it into an unreachable
// state where every call errors.
type fakeRemote struct {
	mu      sync.Mutex
	data    map[string][]byte
	failing bool
	gets    int
	sets    int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{data: map[string][]byte{}}
}

var errRemoteDown = errors.New("connection refused")

func (f *fakeRemote) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.failing {
		return nil, errRemoteDown
	}
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return nil, domain.ErrCacheMiss
}

func (f *fakeRemote) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.failing {
		return errRemoteDown
	}
	f.data[key] = value
	return nil
}

func (f *fakeRemote) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errRemoteDown
	}
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeRemote) Flush(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return 0, errRemoteDown
	}
	n := int64(len(f.data))
	f.data = map[string][]byte{}
	return n, nil
}

func (f *fakeRemote) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errRemoteDown
	}
	return nil
}

func testTTLs() TTLs {
	return TTLs{Hot: 5 * time.Minute, Warm: 30 * time.Minute, Cold: 6 * time.Hour}
}

func testLog() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "text", ServiceName: "test"})
}

func staticLoader(value string) Loader {
	return func(context.Context) ([]byte, error) { return []byte(value), nil }
}

func TestGetMissLoadsAndWritesBack(t *testing.T) {
	remote := newFakeRemote()
	c := New(remote, 16, testTTLs(), testLog())

	got, err := c.Get(context.Background(), "k1", ClassWarm, staticLoader("v1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	// Written back to the remote tier.
	assert.Equal(t, []byte("v1"), remote.data["k1"])
	assert.Equal(t, int64(1), c.Stats().LoaderCalls)
}

func TestGetLocalHitSkipsRemote(t *testing.T) {
	remote := newFakeRemote()
	c := New(remote, 16, testTTLs(), testLog())

	_, err := c.Get(context.Background(), "k1", ClassHot, staticLoader("v1"))
	require.NoError(t, err)
	getsAfterFirst := remote.gets

	got, err := c.Get(context.Background(), "k1", ClassHot, staticLoader("other"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
	assert.Equal(t, getsAfterFirst, remote.gets)
	assert.Equal(t, int64(1), c.Stats().LocalHits)
}

func TestGetRemoteHit(t *testing.T) {
	remote := newFakeRemote()
	remote.data["k1"] = []byte("cached")
	c := New(remote, 16, testTTLs(), testLog())

	got, err := c.Get(context.Background(), "k1", ClassWarm, func(context.Context) ([]byte, error) {
		t.Fatal("loader must not run on a remote hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), got)
	assert.Equal(t, int64(1), c.Stats().RemoteHits)
}

func TestGetDegradesWhenRemoteUnreachable(t *testing.T) {
	remote := newFakeRemote()
	remote.failing = true
	c := New(remote, 16, testTTLs(), testLog())

	// The read must come back from the loader with no error surfaced.
	got, err := c.Get(context.Background(), "k1", ClassWarm, staticLoader("from-store"))
	require.NoError(t, err)
	assert.Equal(t, []byte("from-store"), got)
	assert.Positive(t, c.Stats().RemoteErrors)
	assert.False(t, c.Healthy(context.Background()))
}

func TestGetNilRemote(t *testing.T) {
	c := New(nil, 16, testTTLs(), testLog())

	got, err := c.Get(context.Background(), "k1", ClassCold, staticLoader("v"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.True(t, c.Healthy(context.Background()))
}

func TestGetLoaderErrorPropagates(t *testing.T) {
	c := New(newFakeRemote(), 16, testTTLs(), testLog())
	loadErr := errors.New("store is down")

	_, err := c.Get(context.Background(), "k1", ClassWarm, func(context.Context) ([]byte, error) {
		return nil, loadErr
	})
	assert.ErrorIs(t, err, loadErr)
}

func TestLocalEntryExpires(t *testing.T) {
	remote := newFakeRemote()
	c := New(remote, 16, TTLs{Hot: 10 * time.Millisecond, Warm: 10 * time.Millisecond, Cold: time.Hour}, testLog())

	_, err := c.Get(context.Background(), "k1", ClassHot, staticLoader("v1"))
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	// Local entry expired; the read goes to the remote tier again.
	getsBefore := remote.gets
	_, err = c.Get(context.Background(), "k1", ClassHot, staticLoader("v2"))
	require.NoError(t, err)
	assert.Greater(t, remote.gets, getsBefore)
}

func TestInvalidateAndFlush(t *testing.T) {
	remote := newFakeRemote()
	c := New(remote, 16, testTTLs(), testLog())

	_, err := c.Get(context.Background(), "k1", ClassWarm, staticLoader("v1"))
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "k2", ClassWarm, staticLoader("v2"))
	require.NoError(t, err)

	c.Invalidate(context.Background(), "k1")
	assert.NotContains(t, remote.data, "k1")
	assert.Contains(t, remote.data, "k2")

	// k2 is still held in both tiers, so the flush reports two removals.
	n := c.Flush(context.Background())
	assert.Equal(t, int64(2), n)
	assert.Empty(t, remote.data)
}

func TestFlushCountsLocalWithoutRemote(t *testing.T) {
	c := New(nil, 16, testTTLs(), testLog())

	_, err := c.Get(context.Background(), "k1", ClassHot, staticLoader("v1"))
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "k2", ClassHot, staticLoader("v2"))
	require.NoError(t, err)

	assert.Equal(t, int64(2), c.Flush(context.Background()))
	assert.Zero(t, c.Flush(context.Background()))
}

func TestFlushToleratesRemoteFailure(t *testing.T) {
	remote := newFakeRemote()
	c := New(remote, 16, testTTLs(), testLog())

	_, err := c.Get(context.Background(), "k1", ClassWarm, staticLoader("v1"))
	require.NoError(t, err)
	remote.failing = true

	// The local purge is still counted when the remote tier errors.
	assert.Equal(t, int64(1), c.Flush(context.Background()))
}

func TestKeyDeterministic(t *testing.T) {
	k1 := Key("symbol", "AAPL", "20")
	k2 := Key("symbol", "AAPL", "20")
	k3 := Key("symbol", "MSFT", "20")
	k4 := Key("keyword", "AAPL", "20")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, k1, k4)
	assert.Contains(t, k1, "symbol:")
}
