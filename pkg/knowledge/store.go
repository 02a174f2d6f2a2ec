package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/XiaoConstantine/evoretrieve/pkg/errors"
	"github.com/XiaoConstantine/evoretrieve/pkg/genome"
)

// Store is the narrow knowledge-base surface the evolution engine needs:
// historical genomes read at population initialization and written at the
// end of each run.
type Store interface {
	GetBestGenomes(ctx context.Context, n int) ([]*genome.Genome, error)
	RecordGenome(ctx context.Context, g *genome.Genome) error
	Close() error
}

// SQLiteStore implements Store on sqlite, keyed by gene signature so a
// configuration appears once with its best observed fitness.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex

	initialized sync.Once
}

// NewSQLiteStore opens (or creates) the knowledge database at path.
// ":memory:" creates an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.StorageFailed, "failed to open knowledge database"),
			errors.Fields{"path": path},
		)
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.ensureInitialized(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) ensureInitialized() error {
	var initErr error
	s.initialized.Do(func() {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			initErr = errors.Wrap(err, errors.StorageFailed, "failed to enable WAL mode")
			return
		}

		query := `
        CREATE TABLE IF NOT EXISTS genomes (
            signature  TEXT PRIMARY KEY,
            name       TEXT NOT NULL,
            genes      TEXT NOT NULL,
            generation INTEGER NOT NULL,
            fitness    REAL NOT NULL,
            recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_genomes_fitness ON genomes(fitness DESC);
        `
		if _, err := s.db.Exec(query); err != nil {
			initErr = errors.Wrap(err, errors.StorageFailed, "failed to initialize knowledge schema")
		}
	})
	return initErr
}

// GetBestGenomes returns up to n historical genomes ordered by fitness
// descending. Returned genomes carry fresh ids and cleared fitness so they
// can seed a new population directly.
func (s *SQLiteStore) GetBestGenomes(ctx context.Context, n int) ([]*genome.Genome, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, genes, generation FROM genomes ORDER BY fitness DESC LIMIT ?", n,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to query best genomes")
	}
	defer rows.Close()

	var out []*genome.Genome
	for rows.Next() {
		var name, genesJSON string
		var generation int
		if err := rows.Scan(&name, &genesJSON, &generation); err != nil {
			return nil, errors.Wrap(err, errors.StorageFailed, "failed to scan genome row")
		}
		var genes map[string]genome.GeneValue
		if err := json.Unmarshal([]byte(genesJSON), &genes); err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.StorageFailed, "failed to decode gene map"),
				errors.Fields{"name": name},
			)
		}
		g := &genome.Genome{
			Name:      name,
			Genes:     genes,
			CreatedAt: time.Now(),
		}
		out = append(out, g.Reseed())
	}
	return out, rows.Err()
}

// RecordGenome upserts a genome by signature, keeping the best observed
// fitness for a configuration.
func (s *SQLiteStore) RecordGenome(ctx context.Context, g *genome.Genome) error {
	if !g.Evaluated() {
		return errors.New(errors.InvalidInput, "cannot record unevaluated genome")
	}
	genesJSON, err := json.Marshal(g.Genes)
	if err != nil {
		return errors.Wrap(err, errors.InvalidInput, "failed to encode gene map")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO genomes (signature, name, genes, generation, fitness, recorded_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(signature) DO UPDATE SET
            fitness = MAX(fitness, excluded.fitness),
            recorded_at = excluded.recorded_at
    `, g.Signature(), g.Name, string(genesJSON), g.Generation, g.FitnessOrZero(), time.Now().UTC())
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StorageFailed, "failed to record genome"),
			errors.Fields{"signature": g.Signature()},
		)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
