package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "obtml-runs.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func samplePredictions() []Prediction {
	return []Prediction{
		{Key: "o1", Class: 0, Probability: 0.2, HasProbability: true, Category: "Low Risk"},
		{Key: "o2", Class: 1, Probability: 0.95, HasProbability: true, Category: "High Risk"},
		{Key: "o3", Class: 1, Probability: 0.72, HasProbability: true, Category: "High Risk"},
	}
}

func TestNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "runs.db")

	store, err := New(path)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNew_InvalidPath(t *testing.T) {
	// A regular file where the parent directory should be.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := New(filepath.Join(blocker, "runs.db"))
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestStore_Close(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Error closing store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Error closing already closed store: %v", err)
	}
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{}
	if err := store.Close(); err != nil {
		t.Errorf("Expected nil error closing empty store, got %v", err)
	}
}

func TestStoreRun_RoundTrip(t *testing.T) {
	store := newStore(t)

	run, err := store.StoreRun(NewRun("delay", "models/delivery_delay_model.gob"), samplePredictions())
	if err != nil {
		t.Fatalf("StoreRun: %v", err)
	}
	if run.Rows != 3 {
		t.Errorf("Expected 3 rows, got %d", run.Rows)
	}

	got, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Task != "delay" || got.ModelPath != "models/delivery_delay_model.gob" || got.Rows != 3 {
		t.Errorf("Unexpected run header: %+v", got)
	}
	if !got.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("Expected created at %v, got %v", run.CreatedAt, got.CreatedAt)
	}

	preds, err := store.GetPredictions(run.ID)
	if err != nil {
		t.Fatalf("GetPredictions: %v", err)
	}
	want := samplePredictions()
	if len(preds) != len(want) {
		t.Fatalf("Expected %d predictions, got %d", len(want), len(preds))
	}
	for i := range want {
		if preds[i] != want[i] {
			t.Errorf("Prediction %d: expected %+v, got %+v", i, want[i], preds[i])
		}
	}
}

func TestStoreRun_RowOrder(t *testing.T) {
	store := newStore(t)

	// More than 255 rows checks the index encoding keeps numeric order.
	preds := make([]Prediction, 300)
	for i := range preds {
		preds[i] = Prediction{Key: uuid.NewString(), Class: i % 2}
	}
	run, err := store.StoreRun(NewRun("churn", "m.gob"), preds)
	if err != nil {
		t.Fatalf("StoreRun: %v", err)
	}

	got, err := store.GetPredictions(run.ID)
	if err != nil {
		t.Fatalf("GetPredictions: %v", err)
	}
	for i := range preds {
		if got[i].Key != preds[i].Key {
			t.Fatalf("Row %d out of order", i)
		}
	}
}

func TestStoreRun_Duplicate(t *testing.T) {
	store := newStore(t)

	run, err := store.StoreRun(NewRun("delay", "m.gob"), samplePredictions())
	if err != nil {
		t.Fatalf("StoreRun: %v", err)
	}
	if _, err := store.StoreRun(run, nil); err == nil {
		t.Error("Expected error storing the same run twice")
	}

	// The failed write leaves the original rows intact.
	preds, err := store.GetPredictions(run.ID)
	if err != nil || len(preds) != 3 {
		t.Errorf("Expected 3 predictions after failed write, got %d (%v)", len(preds), err)
	}
}

func TestStoreRun_FillsDefaults(t *testing.T) {
	store := newStore(t)

	run, err := store.StoreRun(Run{Task: "churn"}, nil)
	if err != nil {
		t.Fatalf("StoreRun: %v", err)
	}
	if run.ID == uuid.Nil {
		t.Error("Expected a generated run id")
	}
	if run.CreatedAt.IsZero() {
		t.Error("Expected a creation time")
	}
	preds, err := store.GetPredictions(run.ID)
	if err != nil {
		t.Fatalf("GetPredictions: %v", err)
	}
	if len(preds) != 0 {
		t.Errorf("Expected no predictions, got %d", len(preds))
	}
}

func TestGetRun_NotFound(t *testing.T) {
	store := newStore(t)

	_, err := store.GetRun(uuid.New())
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
	_, err = store.GetPredictions(uuid.New())
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	store := newStore(t)
	base := time.Date(2018, 8, 1, 12, 0, 0, 0, time.UTC)

	for i, task := range []string{"delay", "churn", "delay"} {
		run := NewRun(task, task+".gob")
		run.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if _, err := store.StoreRun(run, samplePredictions()[:i+1]); err != nil {
			t.Fatalf("StoreRun: %v", err)
		}
	}

	all, err := store.ListRuns("")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(all))
	}
	if all[0].Rows != 3 || all[2].Rows != 1 {
		t.Error("Expected newest run first")
	}

	delay, err := store.ListRuns("delay")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(delay) != 2 {
		t.Errorf("Expected 2 delay runs, got %d", len(delay))
	}

	ranged, err := store.RunsInRange(base.Add(30*time.Minute), base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("RunsInRange: %v", err)
	}
	if len(ranged) != 2 || ranged[0].Task != "churn" {
		t.Errorf("Expected churn then delay within range, got %+v", ranged)
	}
}

func TestGetPredictionsAbove(t *testing.T) {
	store := newStore(t)

	preds := append(samplePredictions(), Prediction{Key: "o4", Class: 1})
	run, err := store.StoreRun(NewRun("delay", "m.gob"), preds)
	if err != nil {
		t.Fatalf("StoreRun: %v", err)
	}

	got, err := store.GetPredictionsAbove(run.ID, 0.7)
	if err != nil {
		t.Fatalf("GetPredictionsAbove: %v", err)
	}
	if len(got) != 2 || got[0].Key != "o2" || got[1].Key != "o3" {
		t.Errorf("Expected o2 and o3, got %+v", got)
	}
}

func TestDeleteRun(t *testing.T) {
	store := newStore(t)

	keep, err := store.StoreRun(NewRun("delay", "m.gob"), samplePredictions())
	if err != nil {
		t.Fatal(err)
	}
	drop, err := store.StoreRun(NewRun("delay", "m.gob"), samplePredictions())
	if err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteRun(drop.ID); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := store.GetRun(drop.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected deleted run to be gone, got %v", err)
	}
	preds, err := store.GetPredictions(keep.ID)
	if err != nil || len(preds) != 3 {
		t.Errorf("Expected other run untouched, got %d predictions (%v)", len(preds), err)
	}
	if err := store.DeleteRun(drop.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound deleting twice, got %v", err)
	}
}

func TestStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	store, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	run, err := store.StoreRun(NewRun("churn", "churn_model.gob"), samplePredictions())
	if err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	defer reopened.Close()
	preds, err := reopened.GetPredictions(run.ID)
	if err != nil {
		t.Fatalf("GetPredictions after reopen: %v", err)
	}
	if len(preds) != 3 {
		t.Errorf("Expected 3 predictions after reopen, got %d", len(preds))
	}
}
