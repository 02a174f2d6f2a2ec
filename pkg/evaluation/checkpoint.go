package evaluation

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/XiaoConstantine/evoretrieve/pkg/errors"
)

// Status is the terminal-state marker for one (variant, query) job.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Record is the durable completion record for one job. Result carries the
// JSON-encoded job outcome for done jobs so a resumed run can aggregate
// without recomputation.
type Record struct {
	VariantID string `json:"variant_id"`
	QueryID   string `json:"query_id"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
	Result    []byte `json:"result,omitempty"`
}

// CheckpointStore persists per-job completion records. Writes are
// idempotent: re-marking the same key with the same status is a no-op.
type CheckpointStore interface {
	Get(ctx context.Context, variantID, queryID string) (*Record, error)
	Mark(ctx context.Context, rec Record) error
	ForVariant(ctx context.Context, variantID string) ([]Record, error)
	Close() error
}

// SQLiteCheckpointStore implements CheckpointStore on sqlite.
type SQLiteCheckpointStore struct {
	db *sql.DB
	mu sync.Mutex

	initialized sync.Once
}

// NewSQLiteCheckpointStore opens (or creates) the checkpoint database at
// path. ":memory:" creates an ephemeral store.
func NewSQLiteCheckpointStore(path string) (*SQLiteCheckpointStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.StorageFailed, "failed to open checkpoint database"),
			errors.Fields{"path": path},
		)
	}
	// The worker pool shares one connection pool; a single writer avoids
	// sqlite lock contention.
	db.SetMaxOpenConns(1)

	store := &SQLiteCheckpointStore{db: db}
	if err := store.ensureInitialized(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteCheckpointStore) ensureInitialized() error {
	var initErr error
	s.initialized.Do(func() {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			initErr = errors.Wrap(err, errors.StorageFailed, "failed to enable WAL mode")
			return
		}

		query := `
        CREATE TABLE IF NOT EXISTS checkpoints (
            variant_id TEXT NOT NULL,
            query_id   TEXT NOT NULL,
            status     TEXT NOT NULL,
            error      TEXT NOT NULL DEFAULT '',
            result     BLOB,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (variant_id, query_id)
        );
        `
		if _, err := s.db.Exec(query); err != nil {
			initErr = errors.Wrap(err, errors.StorageFailed, "failed to initialize checkpoint schema")
		}
	})
	return initErr
}

// Get returns the record for (variantID, queryID), or nil when absent.
func (s *SQLiteCheckpointStore) Get(ctx context.Context, variantID, queryID string) (*Record, error) {
	rec := Record{VariantID: variantID, QueryID: queryID}
	var status string
	err := s.db.QueryRowContext(ctx,
		"SELECT status, error, result FROM checkpoints WHERE variant_id = ? AND query_id = ?",
		variantID, queryID,
	).Scan(&status, &rec.Error, &rec.Result)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.CheckpointFailed, "failed to read checkpoint"),
			errors.Fields{"variant_id": variantID, "query_id": queryID},
		)
	}
	rec.Status = Status(status)
	return &rec, nil
}

// Mark upserts the record. The upsert makes re-marking the same key with
// the same status a no-op.
func (s *SQLiteCheckpointStore) Mark(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO checkpoints (variant_id, query_id, status, error, result, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(variant_id, query_id) DO UPDATE SET
            status = excluded.status,
            error = excluded.error,
            result = excluded.result,
            updated_at = excluded.updated_at
    `, rec.VariantID, rec.QueryID, string(rec.Status), rec.Error, rec.Result, time.Now().UTC())
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.CheckpointFailed, "failed to write checkpoint"),
			errors.Fields{"variant_id": rec.VariantID, "query_id": rec.QueryID},
		)
	}
	return nil
}

// ForVariant returns all records for a variant.
func (s *SQLiteCheckpointStore) ForVariant(ctx context.Context, variantID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT query_id, status, error, result FROM checkpoints WHERE variant_id = ?",
		variantID,
	)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.CheckpointFailed, "failed to list checkpoints"),
			errors.Fields{"variant_id": variantID},
		)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec := Record{VariantID: variantID}
		var status string
		if err := rows.Scan(&rec.QueryID, &status, &rec.Error, &rec.Result); err != nil {
			return nil, errors.Wrap(err, errors.CheckpointFailed, "failed to scan checkpoint row")
		}
		rec.Status = Status(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteCheckpointStore) Close() error {
	return s.db.Close()
}
