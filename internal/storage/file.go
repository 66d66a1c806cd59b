package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hperssn/cadence/internal/domain"
)

// FileRepository keeps the whole collection in one JSON document. Every
// mutation loads the document, applies one change and atomically replaces
// the file. The mutex makes it the only writer.
type FileRepository struct {
	path string
	mu   sync.RWMutex
	now  func() time.Time
}

func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, persistErr("open", err)
	}
	return &FileRepository{path: path, now: time.Now}, nil
}

func (r *FileRepository) load() ([]domain.SessionRecord, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.SessionRecord{}, nil
	}
	if err != nil {
		return nil, persistErr("read", err)
	}
	if len(data) == 0 {
		return []domain.SessionRecord{}, nil
	}

	records := []domain.SessionRecord{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, persistErr("decode", err)
	}
	return records, nil
}

// persist writes next to the target and renames over it so a failed write
// never leaves a truncated document behind.
func (r *FileRepository) persist(records []domain.SessionRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return persistErr("encode", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return persistErr("write", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return persistErr("write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return persistErr("write", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return persistErr("write", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return persistErr("write", err)
	}
	return nil
}

func indexOf(records []domain.SessionRecord, id string) int {
	for i, rec := range records {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

func (r *FileRepository) Create(_ context.Context, in domain.SessionInput) (domain.SessionRecord, error) {
	rec, err := domain.NewRecord(in, r.now())
	if err != nil {
		return domain.SessionRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return domain.SessionRecord{}, err
	}
	records = append(records, rec)
	if err := r.persist(records); err != nil {
		return domain.SessionRecord{}, err
	}
	return rec, nil
}

func (r *FileRepository) ReadAll(_ context.Context) ([]domain.SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.load()
}

func (r *FileRepository) ReadByID(_ context.Context, id string) (domain.SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records, err := r.load()
	if err != nil {
		return domain.SessionRecord{}, err
	}
	i := indexOf(records, id)
	if i < 0 {
		return domain.SessionRecord{}, domain.ErrNotFound
	}
	return records[i], nil
}

func (r *FileRepository) Update(_ context.Context, id string, patch domain.SessionPatch) (domain.SessionRecord, error) {
	if err := patch.Validate(); err != nil {
		return domain.SessionRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return domain.SessionRecord{}, err
	}
	i := indexOf(records, id)
	if i < 0 {
		return domain.SessionRecord{}, domain.ErrNotFound
	}

	updated, err := patch.Apply(records[i], r.now())
	if err != nil {
		return domain.SessionRecord{}, err
	}
	records[i] = updated
	if err := r.persist(records); err != nil {
		return domain.SessionRecord{}, err
	}
	return updated, nil
}

func (r *FileRepository) Delete(_ context.Context, id string) (domain.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return domain.SessionRecord{}, err
	}
	i := indexOf(records, id)
	if i < 0 {
		return domain.SessionRecord{}, domain.ErrNotFound
	}

	deleted := records[i]
	records = append(records[:i], records[i+1:]...)
	if err := r.persist(records); err != nil {
		return domain.SessionRecord{}, err
	}
	return deleted, nil
}

func (r *FileRepository) Close() error { return nil }
