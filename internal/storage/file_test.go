package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hperssn/cadence/internal/domain"
)

func TestFileRepositorySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.json")
	ctx := context.Background()

	first, err := NewFileRepository(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	created, err := first.Create(ctx, input(100, 500, 300))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	second, err := NewFileRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := second.ReadByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("ReadByID after reopen: %v", err)
	}
	if got != created {
		t.Fatalf("reopened record = %+v, want %+v", got, created)
	}
}

func TestFileRepositoryWritesJSONArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cadence.json")
	repo, err := NewFileRepository(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := repo.Create(context.Background(), input(100, 500, 300)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("document is not a JSON array: %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("expected one record, got %d", len(raw))
	}
	for _, key := range []string{"id", "timestamp", "averageCadence", "totalSteps", "duration", "createdAt"} {
		if _, ok := raw[0][key]; !ok {
			t.Errorf("persisted record missing %q", key)
		}
	}
	if _, ok := raw[0]["updatedAt"]; ok {
		t.Errorf("fresh record should not persist updatedAt")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestFileRepositoryCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	repo, err := NewFileRepository(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var perr *domain.PersistenceError
	if _, err := repo.ReadAll(context.Background()); !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if _, err := repo.Create(context.Background(), input(1, 1, 1)); !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError on create, got %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "{not json" {
		t.Fatalf("corrupt document was overwritten")
	}
}

func TestFileRepositoryFailedWriteKeepsCollection(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "cadence.json")
	ctx := context.Background()

	repo, err := NewFileRepository(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	kept, err := repo.Create(ctx, input(100, 500, 300))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	var perr *domain.PersistenceError
	if _, err := repo.Create(ctx, input(120, 700, 400)); !errors.As(err, &perr) {
		t.Fatalf("Create in read-only dir: expected PersistenceError, got %v", err)
	}
	if _, err := repo.Delete(ctx, kept.ID); !errors.As(err, &perr) {
		t.Fatalf("Delete in read-only dir: expected PersistenceError, got %v", err)
	}
	patch := domain.SessionPatch{SessionFields: domain.SessionFields{TotalSteps: domain.Int(1)}}
	if _, err := repo.Update(ctx, kept.ID, patch); !errors.As(err, &perr) {
		t.Fatalf("Update in read-only dir: expected PersistenceError, got %v", err)
	}

	records, err := repo.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 1 || records[0] != kept {
		t.Fatalf("collection changed after failed writes: %+v", records)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestFileRepositoryEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.json")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	repo, err := NewFileRepository(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	records, err := repo.ReadAll(context.Background())
	if err != nil || len(records) != 0 {
		t.Fatalf("ReadAll on empty file = %v, %v", records, err)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "default is file", opts: Options{DataFile: filepath.Join(dir, "a.json")}},
		{name: "file", opts: Options{Driver: DriverFile, DataFile: filepath.Join(dir, "b.json")}},
		{name: "sqlite", opts: Options{Driver: DriverSQLite, SQLitePath: filepath.Join(dir, "c.db")}},
		{name: "badger", opts: Options{Driver: DriverBadger, BadgerDir: filepath.Join(dir, "badger")}},
		{name: "unknown", opts: Options{Driver: "mongo"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, err := Open(tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer repo.Close()

			if _, err := repo.ReadAll(context.Background()); err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
		})
	}
}

func TestDollarPlaceholders(t *testing.T) {
	got := dollarPlaceholders(`UPDATE sessions SET a = ?, b = ? WHERE id = ?`)
	want := `UPDATE sessions SET a = $1, b = $2 WHERE id = $3`
	if got != want {
		t.Fatalf("dollarPlaceholders = %q want %q", got, want)
	}
}
