package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/hperssn/cadence/internal/domain"
)

var (
	recordPrefix = []byte("rec/")
	idPrefix     = []byte("id/")
	seqKey       = []byte("meta/seq")
)

const maxConflictRetries = 5

// BadgerRepository keeps every record under its own key, so each mutation
// is a single atomic transaction rather than a whole-collection rewrite.
// Record keys carry a monotonic sequence to preserve insertion order.
type BadgerRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	now func() time.Time
}

func NewBadgerRepository(dir string) (*BadgerRepository, error) {
	return NewBadgerRepositoryWithOptions(badger.DefaultOptions(dir).WithLogger(nil))
}

func NewBadgerRepositoryWithOptions(opts badger.Options) (*BadgerRepository, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, persistErr("open", err)
	}
	seq, err := db.GetSequence(seqKey, 64)
	if err != nil {
		db.Close()
		return nil, persistErr("open", err)
	}
	return &BadgerRepository{db: db, seq: seq, now: time.Now}, nil
}

func recordKey(n uint64) []byte {
	key := make([]byte, len(recordPrefix)+8)
	copy(key, recordPrefix)
	binary.BigEndian.PutUint64(key[len(recordPrefix):], n)
	return key
}

func idKey(id string) []byte {
	return append(append([]byte(nil), idPrefix...), id...)
}

func lookup(txn *badger.Txn, id string) ([]byte, domain.SessionRecord, error) {
	item, err := txn.Get(idKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.SessionRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.SessionRecord{}, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return nil, domain.SessionRecord{}, err
	}

	item, err = txn.Get(key)
	if err != nil {
		return nil, domain.SessionRecord{}, err
	}
	var rec domain.SessionRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return key, rec, err
}

// update retries transactions that lost a conflict with a concurrent writer.
func (r *BadgerRepository) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = r.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (r *BadgerRepository) Create(_ context.Context, in domain.SessionInput) (domain.SessionRecord, error) {
	rec, err := domain.NewRecord(in, r.now())
	if err != nil {
		return domain.SessionRecord{}, err
	}
	n, err := r.seq.Next()
	if err != nil {
		return domain.SessionRecord{}, persistErr("create", err)
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return domain.SessionRecord{}, persistErr("create", err)
	}
	key := recordKey(n)

	err = r.update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(idKey(rec.ID), key)
	})
	if err != nil {
		return domain.SessionRecord{}, persistErr("create", err)
	}
	return rec, nil
}

func (r *BadgerRepository) ReadAll(_ context.Context) ([]domain.SessionRecord, error) {
	records := []domain.SessionRecord{}
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec domain.SessionRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, persistErr("read", err)
	}
	return records, nil
}

func (r *BadgerRepository) ReadByID(_ context.Context, id string) (domain.SessionRecord, error) {
	var rec domain.SessionRecord
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		_, rec, err = lookup(txn, id)
		return err
	})
	if err != nil {
		return domain.SessionRecord{}, classify("read", err)
	}
	return rec, nil
}

func (r *BadgerRepository) Update(_ context.Context, id string, patch domain.SessionPatch) (domain.SessionRecord, error) {
	if err := patch.Validate(); err != nil {
		return domain.SessionRecord{}, err
	}

	var updated domain.SessionRecord
	err := r.update(func(txn *badger.Txn) error {
		key, current, err := lookup(txn, id)
		if err != nil {
			return err
		}
		updated, err = patch.Apply(current, r.now())
		if err != nil {
			return err
		}
		value, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		return txn.Set(key, value)
	})
	if err != nil {
		return domain.SessionRecord{}, classify("update", err)
	}
	return updated, nil
}

func (r *BadgerRepository) Delete(_ context.Context, id string) (domain.SessionRecord, error) {
	var deleted domain.SessionRecord
	err := r.update(func(txn *badger.Txn) error {
		key, rec, err := lookup(txn, id)
		if err != nil {
			return err
		}
		deleted = rec
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(idKey(id))
	})
	if err != nil {
		return domain.SessionRecord{}, classify("delete", err)
	}
	return deleted, nil
}

func (r *BadgerRepository) Close() error {
	if err := r.seq.Release(); err != nil {
		r.db.Close()
		return err
	}
	return r.db.Close()
}
