package slotserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/abm1119/bita/internal/remote"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS backups (
		account_id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`,
}

// Connect opens the slot database at dsn and creates its schema.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return db, nil
}

type backupRow struct {
	AccountID string    `db:"account_id"`
	Data      string    `db:"data"`
	Timestamp int64     `db:"timestamp"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Repository stores one backup record per account.
type Repository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) Get(ctx context.Context, account string) (remote.Backup, bool, error) {
	var row backupRow
	err := r.db.GetContext(ctx, &row, `
		SELECT account_id, data, timestamp FROM backups WHERE account_id = ?
	`, account)
	if errors.Is(err, sql.ErrNoRows) {
		return remote.Backup{}, false, nil
	}
	if err != nil {
		return remote.Backup{}, false, fmt.Errorf("get backup: %w", err)
	}
	return remote.Backup{Data: row.Data, Timestamp: row.Timestamp}, true, nil
}

// Put overwrites the account's record.
func (r *Repository) Put(ctx context.Context, account string, b remote.Backup) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO backups (account_id, data, timestamp, updated_at)
		VALUES (:account_id, :data, :timestamp, :updated_at)
		ON CONFLICT(account_id) DO UPDATE SET
			data = excluded.data,
			timestamp = excluded.timestamp,
			updated_at = excluded.updated_at
	`, backupRow{AccountID: account, Data: b.Data, Timestamp: b.Timestamp, UpdatedAt: r.now().UTC()})
	if err != nil {
		return fmt.Errorf("put backup: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, account string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM backups WHERE account_id = ?`, account); err != nil {
		return fmt.Errorf("delete backup: %w", err)
	}
	return nil
}

// Count returns the number of stored backups.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM backups`); err != nil {
		return 0, fmt.Errorf("count backups: %w", err)
	}
	return n, nil
}
