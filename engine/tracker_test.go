package engine

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/gofastq/store"
)

type MockStore struct {
	mu      sync.Mutex
	Jobs    map[string]*store.JobRecord
	Queue   []byte
	Failed  []store.FailedRecord
	SaveErr error
}

func newMockStore() *MockStore {
	return &MockStore{Jobs: make(map[string]*store.JobRecord)}
}

func (m *MockStore) SaveJob(job *store.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	cp := *job
	m.Jobs[job.ID] = &cp
	return nil
}

func (m *MockStore) GetJob(id string) (*store.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.Jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *MockStore) ListJobs() ([]*store.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.JobRecord
	for _, j := range m.Jobs {
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockStore) SaveQueue(any) error                       { return nil }
func (m *MockStore) LoadQueue(any) error                       { return store.ErrNoSnapshot }
func (m *MockStore) SaveFailed(r []store.FailedRecord) error   { m.Failed = r; return nil }
func (m *MockStore) LoadFailed() ([]store.FailedRecord, error) { return m.Failed, nil }
func (m *MockStore) Close() error                              { return nil }

func TestJobTracker(t *testing.T) {
	mockStore := newMockStore()
	tracker := NewJobTracker(mockStore, DefaultCheckpointConfig)
	key := JobKey("ftp://h/src", "/dst")

	require.NoError(t, tracker.InitJob(key, "ftp://h/src", "/dst", 42, 1))

	record, err := mockStore.GetJob(key)
	require.NoError(t, err)
	assert.Equal(t, store.StatePending, record.State)
	assert.Equal(t, int64(42), record.TotalBytes)
	assert.Equal(t, 1, record.Attempts)

	require.NoError(t, tracker.MarkInProgress(key))
	record, _ = mockStore.GetJob(key)
	assert.Equal(t, store.StateInProgress, record.State)

	require.NoError(t, tracker.MarkFailed(key, errors.New("boom")))
	record, _ = mockStore.GetJob(key)
	assert.Equal(t, store.StateFailed, record.State)
	assert.Equal(t, "boom", record.Error)

	require.NoError(t, tracker.MarkCompleted(key))
	record, _ = mockStore.GetJob(key)
	assert.Equal(t, store.StateCompleted, record.State)
	assert.Equal(t, int64(42), record.BytesTransferred)
	assert.Empty(t, record.Error)
}

func TestJobTracker_MissingJob(t *testing.T) {
	tracker := NewJobTracker(newMockStore(), DefaultCheckpointConfig)
	assert.ErrorIs(t, tracker.MarkInProgress("nope"), store.ErrJobNotFound)
}

func TestJobTracker_NilStore(t *testing.T) {
	tracker := NewJobTracker(nil, DefaultCheckpointConfig)
	require.NoError(t, tracker.InitJob("k", "a", "b", 1, 0))
	require.NoError(t, tracker.MarkCompleted("k"))

	var reported int64
	tw := tracker.NewTrackedWriter(new(bytes.Buffer), "k", 0, func(n int64) { reported += n })
	_, err := tw.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), reported)
}

func TestTrackedWriter_Checkpointing(t *testing.T) {
	mockStore := newMockStore()
	tracker := NewJobTracker(mockStore, CheckpointConfig{
		BytesInterval: 10,
		TimeInterval:  time.Hour,
	})

	require.NoError(t, tracker.InitJob("job2", "a", "b", 11, 0))
	require.NoError(t, tracker.MarkInProgress("job2"))

	buf := new(bytes.Buffer)
	var reported int64
	tw := tracker.NewTrackedWriter(buf, "job2", 0, func(n int64) { reported += n })

	// below the byte interval: no checkpoint yet
	n, err := tw.Write([]byte("12345"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	record, _ := mockStore.GetJob("job2")
	assert.Equal(t, int64(0), record.BytesTransferred)

	n, err = tw.Write([]byte("678901"))
	require.NoError(t, err)
	require.Equal(t, 6, n)

	record, _ = mockStore.GetJob("job2")
	assert.Equal(t, int64(11), record.BytesTransferred)
	assert.Equal(t, int64(11), tw.BytesWritten())
	assert.Equal(t, int64(11), reported)
	assert.Equal(t, "12345678901", buf.String())
}
