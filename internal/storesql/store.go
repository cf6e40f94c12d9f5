// Package storesql persists cache entries in a relational database through
// bun. One row per entry, keyed by (namespace, fingerprint); the insert uses
// ON CONFLICT DO NOTHING so concurrent writers race at the database's
// uniqueness guarantee and exactly one row wins.
package storesql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-method-cache/cache"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type entryRow struct {
	bun.BaseModel `bun:"table:cache_entries"`

	Namespace   string    `bun:"namespace,pk"`
	Fingerprint string    `bun:"fingerprint,pk"`
	Result      []byte    `bun:"result"`
	State       []byte    `bun:"state"`
	Meta        []byte    `bun:"meta"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
}

// Store implements cache.Store on a bun database handle.
type Store struct {
	db *bun.DB
}

var _ cache.Store = (*Store)(nil)

// New creates a SQL-backed store. Call Init once to materialize the schema.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// Init creates the cache_entries table when it does not exist.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*entryRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("storesql: create schema: %w", err)
	}
	return nil
}

// Get loads an entry row. A missing row is ok=false; a row whose metadata no
// longer decodes is deleted and reported absent, matching the self-healing
// contract of the filesystem store.
func (s *Store) Get(ctx context.Context, ns cache.Namespace, fp cache.Fingerprint) (cache.Entry, bool, error) {
	row := new(entryRow)
	err := s.db.NewSelect().
		Model(row).
		Where("namespace = ?", ns.String()).
		Where("fingerprint = ?", fp.Hex()).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("storesql: select entry: %w", err)
	}

	entry := cache.Entry{Result: row.Result, State: row.State}
	if err := json.Unmarshal(row.Meta, &entry.Meta); err != nil {
		_, _ = s.db.NewDelete().
			Model((*entryRow)(nil)).
			Where("namespace = ?", ns.String()).
			Where("fingerprint = ?", fp.Hex()).
			Exec(ctx)
		return cache.Entry{}, false, nil
	}
	return entry, true, nil
}

// Delete removes an entry row. Missing rows are a no-op.
func (s *Store) Delete(ctx context.Context, ns cache.Namespace, fp cache.Fingerprint) error {
	_, err := s.db.NewDelete().
		Model((*entryRow)(nil)).
		Where("namespace = ?", ns.String()).
		Where("fingerprint = ?", fp.Hex()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("storesql: delete entry: %w", err)
	}
	return nil
}

// PutIfAbsent inserts the entry, yielding to an existing row. The conflict
// target is the composite primary key, so the database arbitrates the race.
func (s *Store) PutIfAbsent(ctx context.Context, ns cache.Namespace, fp cache.Fingerprint, entry cache.Entry) (bool, error) {
	metaData, err := json.Marshal(entry.Meta)
	if err != nil {
		return false, fmt.Errorf("storesql: encode meta: %w", err)
	}

	row := &entryRow{
		Namespace:   ns.String(),
		Fingerprint: fp.Hex(),
		Result:      entry.Result,
		State:       entry.State,
		Meta:        metaData,
		CreatedAt:   entry.Meta.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("storesql: insert entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storesql: insert entry: %w", err)
	}
	return affected > 0, nil
}
