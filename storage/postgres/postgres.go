// Package postgres implements the relay's durable stores on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/shakilkhan1801/NYXAR/crypto"
	"github.com/shakilkhan1801/NYXAR/storage"
	"github.com/shakilkhan1801/NYXAR/storage/postgres/migrations"
	"github.com/shakilkhan1801/NYXAR/wire"
)

// Store implements storage.DirectoryStore and storage.QueueStore on a
// pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against dsn and applies pending migrations.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	if err := migrate(ctx, dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Connect",
	}).Info("PostgreSQL store ready")

	return &Store{pool: pool}, nil
}

// migrate applies goose migrations through a short-lived database/sql
// connection; the pgx pool handles all runtime queries.
func migrate(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Upsert(ctx context.Context, rec storage.DirectoryRecord) error {
	keyJSON, err := json.Marshal(rec.PublicKey)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}

	const query = `
		INSERT INTO directory_entries (id, username, public_key, online, last_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username,
		    public_key = EXCLUDED.public_key,
		    online = EXCLUDED.online,
		    last_active = EXCLUDED.last_active`

	_, err = s.pool.Exec(ctx, query, rec.ID, rec.Username, keyJSON, rec.Online, rec.LastActive)
	return err
}

func (s *Store) SetOnline(ctx context.Context, id string, online bool, at time.Time) error {
	const query = `UPDATE directory_entries SET online = $2, last_active = $3 WHERE id = $1`
	cmd, err := s.pool.Exec(ctx, query, id, online, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (storage.DirectoryRecord, error) {
	const query = `
		SELECT id, username, public_key, online, last_active
		FROM directory_entries WHERE id = $1`

	var (
		rec     storage.DirectoryRecord
		keyJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.Username, &keyJSON, &rec.Online, &rec.LastActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.DirectoryRecord{}, storage.ErrNotFound
		}
		return storage.DirectoryRecord{}, err
	}
	if err := unmarshalKey(keyJSON, &rec); err != nil {
		return storage.DirectoryRecord{}, err
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context) ([]storage.DirectoryRecord, error) {
	const query = `
		SELECT id, username, public_key, online, last_active
		FROM directory_entries ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.DirectoryRecord
	for rows.Next() {
		var (
			rec     storage.DirectoryRecord
			keyJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Username, &keyJSON, &rec.Online, &rec.LastActive); err != nil {
			return nil, err
		}
		if err := unmarshalKey(keyJSON, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Append(ctx context.Context, recipientID string, env wire.Envelope, arrivedAt time.Time) error {
	envJSON, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	const query = `
		INSERT INTO offline_messages (recipient_id, envelope, arrived_at)
		VALUES ($1, $2, $3)`
	_, err = s.pool.Exec(ctx, query, recipientID, envJSON, arrivedAt)
	return err
}

func (s *Store) Pending(ctx context.Context, recipientID string) ([]storage.QueueEntry, error) {
	const query = `
		SELECT seq, recipient_id, envelope, arrived_at
		FROM offline_messages WHERE recipient_id = $1 ORDER BY seq`

	rows, err := s.pool.Query(ctx, query, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.QueueEntry
	for rows.Next() {
		var (
			entry   storage.QueueEntry
			envJSON []byte
		)
		if err := rows.Scan(&entry.Seq, &entry.RecipientID, &envJSON, &entry.ArrivedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(envJSON, &entry.Envelope); err != nil {
			return nil, fmt.Errorf("unmarshal envelope: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, seq int64) error {
	const query = `DELETE FROM offline_messages WHERE seq = $1`
	cmd, err := s.pool.Exec(ctx, query, seq)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func unmarshalKey(keyJSON []byte, rec *storage.DirectoryRecord) error {
	if len(keyJSON) == 0 || string(keyJSON) == "null" {
		return nil
	}
	rec.PublicKey = &crypto.JWK{}
	if err := json.Unmarshal(keyJSON, rec.PublicKey); err != nil {
		return fmt.Errorf("unmarshal public key: %w", err)
	}
	return nil
}

// Interface conformance.
var (
	_ storage.DirectoryStore = (*Store)(nil)
	_ storage.QueueStore     = (*Store)(nil)
)
