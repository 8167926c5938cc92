package codec

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const (
	// ApplicationID is stamped into the database header ("BITA").
	ApplicationID = 0x42495441

	// CurrentSchemaVersion is the PRAGMA user_version written by this build.
	CurrentSchemaVersion = 1

	// headerSize is the fixed size of the SQLite database header.
	headerSize = 100
)

var headerMagic = []byte("SQLite format 3\x00")

// New creates an empty in-memory ledger database with the current schema.
func New(ctx context.Context) (*sql.DB, error) {
	db, err := openMemory(ctx)
	if err != nil {
		return nil, err
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return db, nil
}

// Load reconstructs an in-memory ledger database from an image produced by
// Export. An empty image yields an empty database with the current schema.
//
// Returns a *CorruptSnapshotError if data is not a usable ledger image.
func Load(ctx context.Context, data []byte) (*sql.DB, error) {
	if len(data) == 0 {
		return New(ctx)
	}
	if len(data) < headerSize || !bytes.HasPrefix(data, headerMagic) {
		return nil, corrupt("missing SQLite header", nil)
	}

	scratch, err := openMemory(ctx)
	if err != nil {
		return nil, err
	}
	defer scratch.Close()

	if err := withConn(ctx, scratch, func(c *sqlite3.SQLiteConn) error {
		return c.Deserialize(image(data), "main")
	}); err != nil {
		return nil, corrupt("deserialize", err)
	}
	if err := check(ctx, scratch); err != nil {
		return nil, err
	}

	// A deserialized image cannot grow, so it is copied into a regular
	// in-memory database before it takes writes.
	db, err := openMemory(ctx)
	if err != nil {
		return nil, err
	}
	if err := copyDatabase(ctx, db, scratch); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to copy snapshot: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, corrupt("apply schema", err)
	}
	return db, nil
}

// Export returns the complete database image of db.
// db must have been created by New or Load.
func Export(ctx context.Context, db *sql.DB) ([]byte, error) {
	var out []byte
	err := withConn(ctx, db, func(c *sqlite3.SQLiteConn) error {
		b, err := c.Serialize("main")
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	return out, nil
}

// SchemaVersion returns the PRAGMA user_version of db.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

// openMemory opens a private in-memory SQLite database.
func openMemory(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to ":memory:" is its own database, so the pool is
	// pinned to a single connection that is never recycled.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// image returns a copy of data that the deserializer can open. Images taken
// from a WAL-mode file are switched back to rollback-journal format, since
// an in-memory database has no WAL to read.
func image(data []byte) []byte {
	b := make([]byte, len(data))
	copy(b, data)
	if b[18] == 2 {
		b[18] = 1
	}
	if b[19] == 2 {
		b[19] = 1
	}
	return b
}

// check runs the format's own integrity checks against a deserialized image.
func check(ctx context.Context, db *sql.DB) error {
	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return corrupt("quick_check", err)
	}
	if result != "ok" {
		return corrupt(fmt.Sprintf("quick_check: %s", result), nil)
	}

	var appID int64
	if err := db.QueryRowContext(ctx, "PRAGMA application_id").Scan(&appID); err != nil {
		return corrupt("read application_id", err)
	}
	if appID != 0 && appID != ApplicationID {
		return corrupt(fmt.Sprintf("application_id %#x is not a ledger snapshot", appID), nil)
	}

	version, err := SchemaVersion(ctx, db)
	if err != nil {
		return corrupt("read user_version", err)
	}
	if version > CurrentSchemaVersion {
		return corrupt(fmt.Sprintf("schema version %d is newer than supported version %d", version, CurrentSchemaVersion), nil)
	}
	return nil
}

// withConn runs fn against the driver connection behind db.
func withConn(ctx context.Context, db *sql.DB, fn func(*sqlite3.SQLiteConn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		return fn(c)
	})
}

// copyDatabase copies every page of src into dst with the online backup API.
func copyDatabase(ctx context.Context, dst, src *sql.DB) error {
	return withConn(ctx, dst, func(d *sqlite3.SQLiteConn) error {
		return withConn(ctx, src, func(s *sqlite3.SQLiteConn) error {
			bk, err := d.Backup("main", s, "main")
			if err != nil {
				return fmt.Errorf("start backup: %w", err)
			}
			done, err := bk.Step(-1)
			if err != nil {
				bk.Finish()
				return fmt.Errorf("backup step: %w", err)
			}
			if !done {
				bk.Finish()
				return fmt.Errorf("backup step: source busy")
			}
			return bk.Finish()
		})
	})
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(ctx context.Context, db *sql.DB) error {
	version, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	if version < 1 {
		if err := migrateToV1(ctx, db); err != nil {
			return err
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", CurrentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 stamps the application id and indexes invoices by vendor for
// the cascade delete.
func migrateToV1(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_invoices_vendor ON invoices(vendorId);
		PRAGMA application_id = %d;
	`, ApplicationID))
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
