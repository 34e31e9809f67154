package inmemory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkachan/finsight/internal/jobs"
)

func TestSaveAndGetReturnsCopy(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	job := &jobs.ImportJob{JobID: "j1", UserID: "u1", Status: jobs.StatusPending}
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	got, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}

	// Mutating the returned copy must not affect stored state.
	got.Status = jobs.StatusFailed
	again, _ := store.GetJob(ctx, "j1")
	if again.Status != jobs.StatusPending {
		t.Errorf("stored status = %s, want pending", again.Status)
	}
}

func TestSaveRequiresJobID(t *testing.T) {
	store := NewStore()
	if err := store.SaveJob(context.Background(), &jobs.ImportJob{}); err == nil {
		t.Error("expected error for missing job ID")
	}
}

func TestListJobsFiltersAndOrders(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	seed := []*jobs.ImportJob{
		{JobID: "a", UserID: "u1", Status: jobs.StatusCompleted, CreatedAt: base},
		{JobID: "b", UserID: "u1", Status: jobs.StatusPending, CreatedAt: base.Add(time.Minute)},
		{JobID: "c", UserID: "u2", Status: jobs.StatusPending, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, j := range seed {
		if err := store.SaveJob(ctx, j); err != nil {
			t.Fatalf("SaveJob(%s): %v", j.JobID, err)
		}
	}

	list, err := store.ListJobs(ctx, jobs.Filter{UserID: "u1"})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d jobs, want 2", len(list))
	}
	if list[0].JobID != "b" || list[1].JobID != "a" {
		t.Errorf("order = [%s %s], want newest first", list[0].JobID, list[1].JobID)
	}

	list, err = store.ListJobs(ctx, jobs.Filter{Status: jobs.StatusPending})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("got %d pending jobs, want 2", len(list))
	}

	list, _ = store.ListJobs(ctx, jobs.Filter{Limit: 1})
	if len(list) != 1 || list[0].JobID != "c" {
		t.Errorf("limit 1 = %v", list)
	}

	list, _ = store.ListJobs(ctx, jobs.Filter{Offset: 5})
	if len(list) != 0 {
		t.Errorf("out-of-range offset returned %d jobs", len(list))
	}
}

func TestQueueProcessesJob(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, store)
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	processed := make(map[string]int)

	handler := func(ctx context.Context, job *jobs.ImportJob) error {
		mu.Lock()
		processed[job.JobID]++
		mu.Unlock()
		job.ImportedCount = 7
		return nil
	}

	go func() {
		_ = queue.Start(ctx, handler)
	}()

	job := &jobs.ImportJob{UserID: "u1", GCSURI: "gs://bucket/file.xlsx"}
	if err := queue.PublishImport(ctx, job); err != nil {
		t.Fatalf("PublishImport: %v", err)
	}
	if job.JobID == "" {
		t.Fatal("job ID not assigned on publish")
	}

	deadline := time.After(2 * time.Second)
	for {
		got, err := store.GetJob(ctx, job.JobID)
		if err == nil && got.Status == jobs.StatusCompleted {
			if got.ImportedCount != 7 {
				t.Errorf("imported count = %d, want 7", got.ImportedCount)
			}
			mu.Lock()
			runs := processed[job.JobID]
			mu.Unlock()
			if runs != 1 {
				t.Errorf("handler ran %d times, want 1", runs)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("job never completed; last state: %+v, err: %v", got, err)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
