package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	// ErrJobNotFound is returned when a job is not found in the state store.
	ErrJobNotFound = errors.New("job not found")
	// ErrNoSnapshot is returned by LoadQueue when no queue was saved.
	ErrNoSnapshot = errors.New("no queue snapshot")
)

var (
	jobsBucket   = []byte("jobs")
	queueBucket  = []byte("queue")
	failedBucket = []byte("failed")

	snapshotKey = []byte("snapshot")
	failedKey   = []byte("list")
)

// JobState represents the current state of a file transfer.
type JobState string

const (
	StatePending    JobState = "Pending"
	StateInProgress JobState = "InProgress"
	StateCompleted  JobState = "Completed"
	StateFailed     JobState = "Failed"
)

// JobRecord is the checkpoint of one file transfer. ID is derived from the
// source and destination so it survives restarts.
type JobRecord struct {
	ID               string   `json:"id"`
	SourcePath       string   `json:"source_path"`
	DestinationPath  string   `json:"destination_path"`
	State            JobState `json:"state"`
	BytesTransferred int64    `json:"bytes_transferred"`
	TotalBytes       int64    `json:"total_bytes"`
	Attempts         int      `json:"attempts"`
	Error            string   `json:"error,omitempty"`
}

// FailedRecord is one entry of the failed-transfer registry.
type FailedRecord struct {
	Source  string `json:"source"`
	Dest    string `json:"dest"`
	Size    int64  `json:"size"`
	Retries int    `json:"retries"`
	Error   string `json:"error"`
	Dir     bool   `json:"dir,omitempty"`
}

// Store persists checkpoints, the queue snapshot and the failed registry.
type Store interface {
	SaveJob(job *JobRecord) error
	GetJob(id string) (*JobRecord, error)
	ListJobs() ([]*JobRecord, error)
	SaveQueue(snapshot any) error
	LoadQueue(snapshot any) error
	SaveFailed(records []FailedRecord) error
	LoadFailed() ([]FailedRecord, error)
	Close() error
}

// BoltStore is a Store implementation backed by bbolt.
type BoltStore struct {
	db *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore creates a new BoltStore at the given path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{jobsBucket, queueBucket, failedBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) put(bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", bucket, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucket).Put(key, data); err != nil {
			return fmt.Errorf("failed to put %s: %w", bucket, err)
		}
		return nil
	})
}

// get decodes bucket/key into v and returns missing when the key is absent.
func (s *BoltStore) get(bucket, key []byte, v any, missing error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get(key)
		if data == nil {
			return missing
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", bucket, err)
		}
		return nil
	})
}

// SaveJob saves a job checkpoint.
func (s *BoltStore) SaveJob(job *JobRecord) error {
	return s.put(jobsBucket, []byte(job.ID), job)
}

// GetJob retrieves a job checkpoint.
func (s *BoltStore) GetJob(id string) (*JobRecord, error) {
	var job JobRecord
	if err := s.get(jobsBucket, []byte(id), &job, ErrJobNotFound); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns every checkpoint in key order.
func (s *BoltStore) ListJobs() ([]*JobRecord, error) {
	var jobs []*JobRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(jobsBucket).ForEach(func(k, v []byte) error {
			var job JobRecord
			if err := json.Unmarshal(v, &job); err != nil {
				return fmt.Errorf("failed to unmarshal job %s: %w", k, err)
			}
			jobs = append(jobs, &job)
			return nil
		})
	})
	return jobs, err
}

// SaveQueue replaces the stored queue snapshot.
func (s *BoltStore) SaveQueue(snapshot any) error {
	return s.put(queueBucket, snapshotKey, snapshot)
}

// LoadQueue decodes the stored snapshot into snapshot.
func (s *BoltStore) LoadQueue(snapshot any) error {
	return s.get(queueBucket, snapshotKey, snapshot, ErrNoSnapshot)
}

// SaveFailed replaces the stored failed-transfer registry.
func (s *BoltStore) SaveFailed(records []FailedRecord) error {
	return s.put(failedBucket, failedKey, records)
}

// LoadFailed returns the stored failed-transfer registry, empty if none.
func (s *BoltStore) LoadFailed() ([]FailedRecord, error) {
	var records []FailedRecord
	err := s.get(failedBucket, failedKey, &records, nil)
	return records, err
}

// Close closes the underlying store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
