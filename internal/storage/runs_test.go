package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
)

func newTestRunStore(t *testing.T) *RunStore {
	t.Helper()
	store, err := OpenRunStore(":memory:")
	if err != nil {
		t.Fatalf("OpenRunStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := newTestRunStore(t)

	run := &models.TrainingRun{
		ID:              "run-1",
		FileName:        "flows.csv",
		FileSize:        2048,
		NTrees:          100,
		MaxDepth:        20,
		MinSamplesSplit: 4,
		MinSamplesLeaf:  2,
		MaxFeatures:     7,
		Status:          "queued",
		StartedAt:       time.Now(),
	}
	if err := store.Create(run); err != nil {
		t.Fatalf("Create: %v", err)
	}

	info := &models.ModelInfo{TestAccuracy: 0.98, F1Score: 0.95}
	if err := store.Finish("run-1", "completed", info, nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, err := store.Get("run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != "completed" || got.TestAccuracy != 0.98 || got.FinishedAt == nil {
		t.Errorf("run = %+v", got)
	}
	if got.MinSamplesSplit != 4 || got.MinSamplesLeaf != 2 || got.MaxFeatures != 7 {
		t.Errorf("run params = %+v", got)
	}
}

func TestFinishWithError(t *testing.T) {
	store := newTestRunStore(t)
	store.Create(&models.TrainingRun{ID: "run-2", Status: "queued", StartedAt: time.Now()})

	if err := store.Finish("run-2", "failed", nil, errors.New("backend returned 500")); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	got, _ := store.Get("run-2")
	if got.Status != "failed" || got.Error != "backend returned 500" {
		t.Errorf("run = %+v", got)
	}
}

func TestUnknownRun(t *testing.T) {
	store := newTestRunStore(t)

	if _, err := store.Get("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Get error = %v", err)
	}
	if err := store.Finish("missing", "completed", nil, nil); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Finish error = %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := newTestRunStore(t)
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		store.Create(&models.TrainingRun{ID: id, Status: "completed", StartedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	runs, err := store.List(2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("runs = %+v", runs)
	}
}
