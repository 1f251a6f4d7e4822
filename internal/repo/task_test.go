// internal/repo/task_test.go
package repo

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BuzzLyutic/taskflow/internal/model"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		t.Fatal(err)
	}

	// Очистка
	pool.Exec(context.Background(), "TRUNCATE tasks RESTART IDENTITY CASCADE")

	return pool
}

func TestTaskRepo_CreateAssignsNextOrder(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	ctx := context.Background()

	first, err := repo.Create(ctx, model.Task{
		UserID: 7, Title: "first", Status: model.StatusPending, Priority: model.PriorityMedium,
	})
	if err != nil {
		t.Fatal(err)
	}
	if first.Order != 1 {
		t.Errorf("expected order=1 for empty list, got %d", first.Order)
	}

	second, err := repo.Create(ctx, model.Task{
		UserID: 7, Title: "second", Status: model.StatusPending, Priority: model.PriorityMedium,
	})
	if err != nil {
		t.Fatal(err)
	}
	if second.Order != 2 {
		t.Errorf("expected order=2, got %d", second.Order)
	}

	// Другой владелец стартует с 1
	other, err := repo.Create(ctx, model.Task{
		UserID: 8, Title: "other", Status: model.StatusPending, Priority: model.PriorityMedium,
	})
	if err != nil {
		t.Fatal(err)
	}
	if other.Order != 1 {
		t.Errorf("expected order=1 for another owner, got %d", other.Order)
	}
}

func TestTaskRepo_ListSortedAndFiltered(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	ctx := context.Background()

	a, _ := repo.Create(ctx, model.Task{UserID: 7, Title: "Buy milk", Status: model.StatusPending, Priority: model.PriorityLow})
	b, _ := repo.Create(ctx, model.Task{UserID: 7, Title: "Ship release", Description: "v2 GA", Status: model.StatusCompleted, Priority: model.PriorityHigh})

	if err := repo.BulkSetOrder(ctx, 7, []model.TaskOrder{
		{ID: a.ID, Order: 2},
		{ID: b.ID, Order: 1},
	}); err != nil {
		t.Fatal(err)
	}

	tasks, err := repo.ListByOwner(ctx, 7, model.TaskFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 || tasks[0].ID != b.ID {
		t.Errorf("expected b first after reorder, got %+v", tasks)
	}

	completed, err := repo.ListByOwner(ctx, 7, model.TaskFilter{Status: model.StatusCompleted})
	if err != nil {
		t.Fatal(err)
	}
	if len(completed) != 1 || completed[0].ID != b.ID {
		t.Errorf("status filter failed: %+v", completed)
	}

	found, err := repo.ListByOwner(ctx, 7, model.TaskFilter{Search: "MILK"})
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != a.ID {
		t.Errorf("case-insensitive search failed: %+v", found)
	}
}

func TestTaskRepo_SoftDeleteLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	ctx := context.Background()

	task, err := repo.Create(ctx, model.Task{UserID: 7, Title: "doomed", Status: model.StatusPending, Priority: model.PriorityMedium})
	if err != nil {
		t.Fatal(err)
	}

	ok, err := repo.SoftDelete(ctx, task.ID)
	if err != nil || !ok {
		t.Fatalf("soft delete failed: ok=%v err=%v", ok, err)
	}

	if _, err := repo.Get(ctx, task.ID); err != ErrorNotFound {
		t.Errorf("expected not found for soft-deleted task, got %v", err)
	}

	ok, err = repo.Restore(ctx, task.ID)
	if err != nil || !ok {
		t.Fatalf("restore failed: ok=%v err=%v", ok, err)
	}

	if _, err := repo.Get(ctx, task.ID); err != nil {
		t.Errorf("expected restored task to be live, got %v", err)
	}

	if err := repo.Purge(ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetAny(ctx, task.ID); err != ErrorNotFound {
		t.Errorf("expected not found after purge, got %v", err)
	}
}

func TestTaskRepo_Stats(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	ctx := context.Background()

	repo.Create(ctx, model.Task{UserID: 7, Title: "one", Status: model.StatusPending, Priority: model.PriorityLow})
	repo.Create(ctx, model.Task{UserID: 7, Title: "two", Status: model.StatusCompleted, Priority: model.PriorityHigh})

	stats, err := repo.StatsByOwner(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 || stats.Completed != 1 || stats.Pending != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.HighPriority != 1 || stats.LowPriority != 1 {
		t.Errorf("unexpected priority counts: %+v", stats)
	}
}
