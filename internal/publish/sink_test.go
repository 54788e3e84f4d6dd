package publish

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veia/viewsync/pkg/errorutil"
)

func TestFileSink_WritesAtomically(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	require.NoError(t, sink.Write(context.Background(), "run-1", "particles", []byte(`{"a":1}`)))
	require.NoError(t, sink.Write(context.Background(), "run-2", "particles", []byte(`{"a":2}`)))

	data, err := os.ReadFile(sink.Path("particles"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

type fakeSaver struct {
	err   error
	runID string
	name  string
}

func (f *fakeSaver) SaveView(ctx context.Context, runID, name string, payload []byte) error {
	f.runID, f.name = runID, name
	return f.err
}

func TestMySQLSink_ErrorsAreRetryable(t *testing.T) {
	saver := &fakeSaver{}
	sink := NewMySQLSink(saver)
	require.NoError(t, sink.Write(context.Background(), "run-1", "stats", []byte(`{}`)))
	assert.Equal(t, "run-1", saver.runID)
	assert.Equal(t, "stats", saver.name)

	saver.err = errors.New("deadlock")
	err := sink.Write(context.Background(), "run-1", "stats", []byte(`{}`))
	assert.True(t, errorutil.IsRetryable(err))
}

type fakeCache struct{ calls int }

func (f *fakeCache) StoreView(ctx context.Context, runID, name string, payload []byte) error {
	f.calls++
	return nil
}

func TestRedisSink(t *testing.T) {
	cache := &fakeCache{}
	require.NoError(t, NewRedisSink(cache).Write(context.Background(), "run-1", "network", nil))
	assert.Equal(t, 1, cache.calls)
}

type fakeQueue struct {
	queue string
	data  []byte
	ttl   uint32
	err   error
}

func (f *fakeQueue) Publish(queue string, data []byte, ttl, delay uint32) (string, error) {
	f.queue, f.data, f.ttl = queue, data, ttl
	return "job-1", f.err
}

func TestLmstfySink_PublishesLocationOnly(t *testing.T) {
	q := &fakeQueue{}
	sink := NewLmstfySink(q, "veia_view_published", 600)

	require.NoError(t, sink.Write(context.Background(), "run-1", "wash_ring", []byte(`{"nodes":[]}`)))
	assert.Equal(t, "veia_view_published", q.queue)
	assert.Equal(t, uint32(600), q.ttl)

	var job ViewPublishedJob
	require.NoError(t, json.Unmarshal(q.data, &job))
	assert.Equal(t, "run-1", job.RunID)
	assert.Equal(t, "wash_ring", job.Artifact)
	assert.Equal(t, 12, job.Bytes)

	q.err = errors.New("queue full")
	err := sink.Write(context.Background(), "run-1", "wash_ring", nil)
	assert.True(t, errorutil.IsRetryable(err))
}
