package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/hperssn/cadence/internal/domain"
)

type repoFactory func(t *testing.T) Repository

func factories() map[string]repoFactory {
	return map[string]repoFactory{
		"file": func(t *testing.T) Repository {
			repo, err := NewFileRepository(filepath.Join(t.TempDir(), "data", "cadence.json"))
			if err != nil {
				t.Fatalf("file repo: %v", err)
			}
			return repo
		},
		"sqlite": func(t *testing.T) Repository {
			repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "cadence.db"))
			if err != nil {
				t.Fatalf("sqlite repo: %v", err)
			}
			return repo
		},
		"badger": func(t *testing.T) Repository {
			opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
			repo, err := NewBadgerRepositoryWithOptions(opts)
			if err != nil {
				t.Fatalf("badger repo: %v", err)
			}
			return repo
		},
		"postgres": func(t *testing.T) Repository {
			url := os.Getenv("POSTGRES_TEST_URL")
			if url == "" {
				t.Skip("POSTGRES_TEST_URL not set")
			}
			repo, err := NewPostgresRepository(url)
			if err != nil {
				t.Fatalf("postgres repo: %v", err)
			}
			if _, err := repo.db.Exec(`TRUNCATE sessions`); err != nil {
				t.Fatalf("truncate: %v", err)
			}
			return repo
		},
	}
}

func forEachRepo(t *testing.T, fn func(t *testing.T, repo Repository)) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			repo := factory(t)
			t.Cleanup(func() { repo.Close() })
			fn(t, repo)
		})
	}
}

func input(avg float64, steps int, dur float64) domain.SessionInput {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return domain.NewSessionInput(ts, avg, steps, dur)
}

func TestReadAllEmpty(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		records, err := repo.ReadAll(context.Background())
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if records == nil || len(records) != 0 {
			t.Fatalf("expected empty non-nil slice, got %#v", records)
		}
	})
}

func TestCreateThenReadByID(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		created, err := repo.Create(ctx, input(112.5, 640, 301.25))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if created.ID == "" || created.CreatedAt == "" {
			t.Fatalf("expected generated id and createdAt: %+v", created)
		}

		got, err := repo.ReadByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("ReadByID: %v", err)
		}
		if got != created {
			t.Fatalf("ReadByID = %+v, want %+v", got, created)
		}

		want := domain.SessionRecord{
			ID:             created.ID,
			Timestamp:      "2024-01-01T00:00:00.000Z",
			AverageCadence: 112.5,
			TotalSteps:     640,
			Duration:       301.25,
			CreatedAt:      created.CreatedAt,
		}
		if got != want {
			t.Fatalf("stored record = %+v, want %+v", got, want)
		}
	})
}

func TestReadAllPreservesInsertionOrder(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		var ids []string
		for i := 0; i < 5; i++ {
			rec, err := repo.Create(ctx, input(float64(100+i), i, 1))
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			ids = append(ids, rec.ID)
		}

		records, err := repo.ReadAll(ctx)
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		var got []string
		for _, r := range records {
			got = append(got, r.ID)
		}
		if !reflect.DeepEqual(got, ids) {
			t.Fatalf("order = %v, want %v", got, ids)
		}
	})
}

func TestCreateValidationLeavesStoreUntouched(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		in := domain.SessionInput{SessionFields: domain.SessionFields{
			Timestamp:  domain.Time(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
			TotalSteps: domain.Int(10),
			Duration:   domain.Float(5),
		}}
		_, err := repo.Create(ctx, in)

		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if !reflect.DeepEqual(verr.Missing, []string{"averageCadence"}) {
			t.Fatalf("missing = %v", verr.Missing)
		}

		records, err := repo.ReadAll(ctx)
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if len(records) != 0 {
			t.Fatalf("store changed after rejected create: %v", records)
		}
	})
}

func TestUpdate(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		created, err := repo.Create(ctx, input(100, 500, 300))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		patch := domain.SessionPatch{SessionFields: domain.SessionFields{AverageCadence: domain.Float(130)}}
		updated, err := repo.Update(ctx, created.ID, patch)
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if updated.AverageCadence != 130 || updated.TotalSteps != 500 {
			t.Fatalf("unexpected merge: %+v", updated)
		}
		if updated.ID != created.ID || updated.CreatedAt != created.CreatedAt {
			t.Fatalf("id/createdAt must not change: %+v", updated)
		}
		if updated.UpdatedAt == "" {
			t.Fatalf("expected updatedAt to be set")
		}

		got, err := repo.ReadByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("ReadByID: %v", err)
		}
		if got != updated {
			t.Fatalf("persisted = %+v, want %+v", got, updated)
		}
	})
}

func TestUpdateMissingLeavesCollectionUnchanged(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		if _, err := repo.Create(ctx, input(100, 500, 300)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		before, err := repo.ReadAll(ctx)
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}

		patch := domain.SessionPatch{SessionFields: domain.SessionFields{TotalSteps: domain.Int(1)}}
		if _, err := repo.Update(ctx, "missing", patch); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		after, err := repo.ReadAll(ctx)
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if !reflect.DeepEqual(before, after) {
			t.Fatalf("collection changed: %v -> %v", before, after)
		}
	})
}

func TestUpdateRejectsNegative(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		created, err := repo.Create(ctx, input(100, 500, 300))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		patch := domain.SessionPatch{SessionFields: domain.SessionFields{TotalSteps: domain.Int(-4)}}
		var verr *domain.ValidationError
		if _, err := repo.Update(ctx, created.ID, patch); !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}

		got, err := repo.ReadByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("ReadByID: %v", err)
		}
		if got != created {
			t.Fatalf("record changed after rejected update: %+v", got)
		}
	})
}

func TestDelete(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		keep, err := repo.Create(ctx, input(90, 100, 60))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		gone, err := repo.Create(ctx, input(100, 500, 300))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		deleted, err := repo.Delete(ctx, gone.ID)
		if err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if deleted != gone {
			t.Fatalf("Delete returned %+v, want %+v", deleted, gone)
		}

		if _, err := repo.ReadByID(ctx, gone.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		if _, err := repo.Delete(ctx, gone.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}

		records, err := repo.ReadAll(ctx)
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if len(records) != 1 || records[0] != keep {
			t.Fatalf("remaining = %v", records)
		}
	})
}

func TestReadByIDMissing(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		if _, err := repo.ReadByID(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestConcurrentCreatesLoseNothing(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		const n = 25

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := repo.Create(ctx, input(float64(i), i, 1)); err != nil {
					errs <- fmt.Errorf("create %d: %w", i, err)
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatal(err)
		}

		records, err := repo.ReadAll(ctx)
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if len(records) != n {
			t.Fatalf("got %d records, want %d", len(records), n)
		}

		seen := make(map[string]bool, n)
		for _, r := range records {
			if seen[r.ID] {
				t.Fatalf("duplicate id %s", r.ID)
			}
			seen[r.ID] = true
		}
	})
}
