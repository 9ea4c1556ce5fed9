package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Failed to create BoltStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltStore_SaveAndGetJob(t *testing.T) {
	s := openTestStore(t)

	job := &JobRecord{
		ID:              "ftp://h/a.txt -> /tmp/a.txt",
		SourcePath:      "ftp://h/a.txt",
		DestinationPath: "/tmp/a.txt",
		State:           StatePending,
		TotalBytes:      1024,
	}
	if err := s.SaveJob(job); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}

	job.State = StateInProgress
	job.BytesTransferred = 512
	job.Attempts = 2
	if err := s.SaveJob(job); err != nil {
		t.Fatalf("Failed to update job: %v", err)
	}

	got, err := s.GetJob(job.ID)
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if got.State != StateInProgress || got.BytesTransferred != 512 || got.Attempts != 2 {
		t.Errorf("unexpected job record: %+v", got)
	}

	if _, err := s.GetJob("non-existent"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}

	jobs, err := s.ListJobs()
	if err != nil || len(jobs) != 1 {
		t.Errorf("Expected 1 job, got %d (err=%v)", len(jobs), err)
	}
}

func TestBoltStore_QueueSnapshot(t *testing.T) {
	s := openTestStore(t)

	type item struct {
		Source string `json:"source"`
	}
	var empty []item
	if err := s.LoadQueue(&empty); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("Expected ErrNoSnapshot, got %v", err)
	}

	if err := s.SaveQueue([]item{{Source: "ftp://h/a"}, {Source: "ftp://h/b"}}); err != nil {
		t.Fatalf("SaveQueue failed: %v", err)
	}
	var loaded []item
	if err := s.LoadQueue(&loaded); err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}
	if len(loaded) != 2 || loaded[1].Source != "ftp://h/b" {
		t.Errorf("unexpected snapshot: %+v", loaded)
	}
}

func TestBoltStore_Failed(t *testing.T) {
	s := openTestStore(t)

	records, err := s.LoadFailed()
	if err != nil || len(records) != 0 {
		t.Fatalf("Expected empty registry, got %v (err=%v)", records, err)
	}

	want := []FailedRecord{{Source: "ftp://h/x", Dest: "/tmp/x", Size: 3, Retries: 2, Error: "550 denied"}}
	if err := s.SaveFailed(want); err != nil {
		t.Fatalf("SaveFailed failed: %v", err)
	}
	records, err = s.LoadFailed()
	if err != nil || len(records) != 1 || records[0] != want[0] {
		t.Errorf("unexpected failed records: %+v (err=%v)", records, err)
	}
}

func TestBoltStore_Close(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "closed.db"))
	if err != nil {
		t.Fatalf("Failed to create BoltStore: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Failed to close BoltStore: %v", err)
	}
	if _, err := s.GetJob("job-123"); err == nil {
		t.Error("Expected error when accessing closed store, got nil")
	}
}
