package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/zerowaste/internal/common"
)

const recordsTable = "household_records"

const createRecordsTable = `CREATE TABLE IF NOT EXISTS household_records (
	household  TEXT NOT NULL,
	collection TEXT NOT NULL,
	position   INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (household, collection, position)
)`

// SQLStore implements Store on a single table, one row per document.
type SQLStore struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

// NewSQLStore creates the records table when missing.
func NewSQLStore(ctx context.Context, drv *entsql.Driver, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := drv.Exec(ctx, createRecordsTable, []any{}, nil); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", common.ErrDatabase, recordsTable, err)
	}
	return &SQLStore{drv: drv, logger: logger}, nil
}

func (s *SQLStore) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.drv.Dialect())
}

// lock serialises writers of one household collection for the rest of tx.
// SQLite needs nothing extra: its single connection already orders writers.
func (s *SQLStore) lock(ctx context.Context, tx dialect.Tx, household, collection string) error {
	if s.drv.Dialect() != dialect.Postgres {
		return nil
	}
	if err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", []any{lockKey(household, collection)}, nil); err != nil {
		return fmt.Errorf("%w: lock %s: %v", common.ErrDatabase, collection, err)
	}
	return nil
}

func lockKey(household, collection string) string {
	return recordsTable + "/" + household + "/" + collection
}

// inTx runs fn in a transaction holding the collection lock.
func (s *SQLStore) inTx(ctx context.Context, household, collection string, fn func(tx dialect.Tx) error) error {
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", common.ErrDatabase, err)
	}
	if err := s.lock(ctx, tx, household, collection); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", common.ErrDatabase, err)
	}
	return nil
}

func (s *SQLStore) Replace(ctx context.Context, household, collection string, docs []json.RawMessage) error {
	err := s.inTx(ctx, household, collection, func(tx dialect.Tx) error {
		return s.replaceTx(ctx, tx, household, collection, docs)
	})
	if err != nil {
		return err
	}
	s.logger.Debug("store.sql.replace", "household", household, "collection", collection, "count", len(docs))
	return nil
}

func (s *SQLStore) replaceTx(ctx context.Context, tx dialect.Tx, household, collection string, docs []json.RawMessage) error {
	del, args := s.builder().Delete(recordsTable).
		Where(entsql.And(entsql.EQ("household", household), entsql.EQ("collection", collection))).
		Query()
	if err := tx.Exec(ctx, del, args, nil); err != nil {
		return fmt.Errorf("%w: delete %s: %v", common.ErrDatabase, collection, err)
	}
	return s.insert(ctx, tx, household, collection, 0, docs)
}

func (s *SQLStore) Append(ctx context.Context, household, collection string, docs []json.RawMessage) error {
	if len(docs) == 0 {
		return nil
	}
	err := s.inTx(ctx, household, collection, func(tx dialect.Tx) error {
		q, args := s.builder().Select("COALESCE(MAX(position), -1)").
			From(entsql.Table(recordsTable)).
			Where(entsql.And(entsql.EQ("household", household), entsql.EQ("collection", collection))).
			Query()
		rows := &entsql.Rows{}
		if err := tx.Query(ctx, q, args, rows); err != nil {
			return fmt.Errorf("%w: max position: %v", common.ErrDatabase, err)
		}
		var last int64 = -1
		if rows.Next() {
			if err := rows.Scan(&last); err != nil {
				_ = rows.Close()
				return fmt.Errorf("%w: scan position: %v", common.ErrDatabase, err)
			}
		}
		_ = rows.Close()
		return s.insert(ctx, tx, household, collection, int(last)+1, docs)
	})
	if err != nil {
		return err
	}
	s.logger.Debug("store.sql.append", "household", household, "collection", collection, "count", len(docs))
	return nil
}

// Update replaces a collection with fn's result, reading and writing under
// the same lock so concurrent updates are applied one after another.
func (s *SQLStore) Update(ctx context.Context, household, collection string, fn func([]json.RawMessage) ([]json.RawMessage, error)) error {
	return s.inTx(ctx, household, collection, func(tx dialect.Tx) error {
		current, err := s.list(ctx, tx, household, collection)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		return s.replaceTx(ctx, tx, household, collection, next)
	})
}

func (s *SQLStore) insert(ctx context.Context, tx dialect.Tx, household, collection string, start int, docs []json.RawMessage) error {
	if len(docs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	ins := s.builder().Insert(recordsTable).Columns("household", "collection", "position", "payload", "created_at")
	for i, d := range docs {
		ins.Values(household, collection, start+i, string(d), now)
	}
	q, args := ins.Query()
	if err := tx.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("%w: insert %s: %v", common.ErrDatabase, collection, err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, household, collection string) ([]json.RawMessage, error) {
	return s.list(ctx, s.drv, household, collection)
}

func (s *SQLStore) list(ctx context.Context, q dialect.ExecQuerier, household, collection string) ([]json.RawMessage, error) {
	query, args := s.builder().Select("payload").
		From(entsql.Table(recordsTable)).
		Where(entsql.And(entsql.EQ("household", household), entsql.EQ("collection", collection))).
		OrderBy("position").
		Query()
	rows := &entsql.Rows{}
	if err := q.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", common.ErrDatabase, collection, err)
	}
	defer func() { _ = rows.Close() }()

	var out []json.RawMessage
	for rows.Next() {
		var payload sql.NullString
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", common.ErrDatabase, collection, err)
		}
		out = append(out, json.RawMessage(payload.String))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", common.ErrDatabase, collection, err)
	}
	return out, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return HealthCheck(ctx, s.drv, 2*time.Second, s.logger)
}

func (s *SQLStore) Close() error {
	return s.drv.Close()
}
