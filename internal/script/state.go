package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StateStore persists the small per-command key/value blobs jarvis.state
// exposes to scripts, partitioned by command id. Mutating calls for a given
// command id are serialized, standing in for a file lock on the command's
// own directory.
type StateStore interface {
	Get(ctx context.Context, commandID, key string) (json.RawMessage, bool, error)
	Set(ctx context.Context, commandID, key string, value json.RawMessage) error
	Delete(ctx context.Context, commandID, key string) (bool, error)
	Clear(ctx context.Context, commandID string) error
	Keys(ctx context.Context, commandID string) ([]string, error)
	All(ctx context.Context, commandID string) (map[string]json.RawMessage, error)
}

// PGStateStore is a StateStore backed by a single Postgres table, one row
// per (command id, key). Mutating statements additionally take a
// pg_advisory_xact_lock keyed by the command id, and the in-process
// locks registry below serializes concurrent script invocations for the
// same command within this process before ever reaching the database.
type PGStateStore struct {
	pool  *pgxpool.Pool
	locks *keyedMutex
}

// NewPGStateStore connects to dsn and ensures the backing table exists.
func NewPGStateStore(ctx context.Context, dsn string) (*PGStateStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: connect state store: %v", ErrInitFailed, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping state store: %v", ErrInitFailed, err)
	}
	s := &PGStateStore{pool: pool, locks: newKeyedMutex()}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGStateStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS script_state (
			command_id TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      JSONB NOT NULL,
			PRIMARY KEY (command_id, key)
		)`)
	if err != nil {
		return fmt.Errorf("%w: create script_state table: %v", ErrInitFailed, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *PGStateStore) Close() {
	s.pool.Close()
}

func (s *PGStateStore) Get(ctx context.Context, commandID, key string) (json.RawMessage, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM script_state WHERE command_id = $1 AND key = $2`,
		commandID, key,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %q/%q: %v", ErrIO, commandID, key, err)
	}
	return json.RawMessage(raw), true, nil
}

func (s *PGStateStore) Set(ctx context.Context, commandID, key string, value json.RawMessage) error {
	unlock := s.locks.lock(commandID)
	defer unlock()

	return s.withAdvisoryLock(ctx, commandID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO script_state (command_id, key, value) VALUES ($1, $2, $3)
			ON CONFLICT (command_id, key) DO UPDATE SET value = EXCLUDED.value`,
			commandID, key, value)
		return err
	})
}

func (s *PGStateStore) Delete(ctx context.Context, commandID, key string) (bool, error) {
	unlock := s.locks.lock(commandID)
	defer unlock()

	var existed bool
	err := s.withAdvisoryLock(ctx, commandID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM script_state WHERE command_id = $1 AND key = $2`, commandID, key)
		if err != nil {
			return err
		}
		existed = tag.RowsAffected() > 0
		return nil
	})
	return existed, err
}

func (s *PGStateStore) Clear(ctx context.Context, commandID string) error {
	unlock := s.locks.lock(commandID)
	defer unlock()

	return s.withAdvisoryLock(ctx, commandID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM script_state WHERE command_id = $1`, commandID)
		return err
	})
}

func (s *PGStateStore) Keys(ctx context.Context, commandID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key FROM script_state WHERE command_id = $1 ORDER BY key`, commandID)
	if err != nil {
		return nil, fmt.Errorf("%w: keys %q: %v", ErrIO, commandID, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("%w: keys %q: %v", ErrIO, commandID, err)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, rows.Err()
}

func (s *PGStateStore) All(ctx context.Context, commandID string) (map[string]json.RawMessage, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM script_state WHERE command_id = $1`, commandID)
	if err != nil {
		return nil, fmt.Errorf("%w: all %q: %v", ErrIO, commandID, err)
	}
	defer rows.Close()

	result := map[string]json.RawMessage{}
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("%w: all %q: %v", ErrIO, commandID, err)
		}
		result[k] = json.RawMessage(v)
	}
	return result, rows.Err()
}

func (s *PGStateStore) withAdvisoryLock(ctx context.Context, commandID string, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrIO, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, commandID); err != nil {
		return fmt.Errorf("%w: advisory lock %q: %v", ErrIO, commandID, err)
	}
	if err := fn(tx); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrIO, err)
	}
	return nil
}

// keyedMutex hands out a per-key sync.Mutex, creating it lazily. It
// serializes concurrent script invocations for the same command id within
// this process, ahead of (and independent from) the database-level
// advisory lock.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
