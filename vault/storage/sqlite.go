// Package storage provides the SQLite-backed local persisted state for
// the vault: the device record (password hash, salt, wrapped private key)
// and the credential cache snapshot. Credential fields arrive already
// sealed under the owner's identity, so rows hold ciphertext; the private
// key blob is wrapped by the symmetric guard before it reaches this layer.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/srosati/passphrasex/vault"
)

const schemaVersion = 1

// Store implements vault.LocalStore on a single SQLite database file.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (creating if needed) the database at path. Use ":memory:"
// for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vault.ErrStorageUnavailable, err)
	}
	// One connection: every :memory: connection is a separate database,
	// and the store serializes writes anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: failed to set pragma %q: %v", vault.ErrStorageUnavailable, pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	-- Single-row device record: password verification material and the
	-- wrapped private key. The row id is fixed so writes replace it.
	CREATE TABLE IF NOT EXISTS device (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		device_id TEXT NOT NULL,
		public_key TEXT NOT NULL,
		password_hash BLOB NOT NULL,
		password_salt BLOB NOT NULL,
		encrypted_private_key BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	-- Credential cache snapshot. Username and password columns hold
	-- ciphertext and nonce as produced by the credential cipher.
	CREATE TABLE IF NOT EXISTS credentials (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		site TEXT NOT NULL,
		username_cipher TEXT NOT NULL,
		username_nonce TEXT NOT NULL,
		password_cipher TEXT NOT NULL,
		password_nonce TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_credentials_site ON credentials(site);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("%w: failed to initialize schema: %v", vault.ErrStorageUnavailable, err)
	}

	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value, updated_at) VALUES ('schema_version', ?, ?)
		 ON CONFLICT(key) DO NOTHING`,
		strconv.Itoa(schemaVersion), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to record schema version: %v", vault.ErrStorageUnavailable, err)
	}
	return nil
}

// SaveDevice writes the device record and clears the credential snapshot
// in one transaction, so a reopened store never pairs a new identity with
// a stale cache.
func (s *Store) SaveDevice(ctx context.Context, rec vault.DeviceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", vault.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO device (id, device_id, public_key, password_hash, password_salt, encrypted_private_key, created_at, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			device_id = excluded.device_id,
			public_key = excluded.public_key,
			password_hash = excluded.password_hash,
			password_salt = excluded.password_salt,
			encrypted_private_key = excluded.encrypted_private_key,
			updated_at = excluded.updated_at`,
		rec.DeviceID, rec.PublicKey, rec.PasswordHash, rec.PasswordSalt,
		rec.EncryptedPrivateKey, rec.CreatedAt.Unix(), rec.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to save device record: %v", vault.ErrStorageUnavailable, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("%w: failed to clear credentials: %v", vault.ErrStorageUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", vault.ErrStorageUnavailable, err)
	}
	return nil
}

// LoadDevice returns the persisted device record, or nil if the store has
// never been registered.
func (s *Store) LoadDevice(ctx context.Context) (*vault.DeviceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT device_id, public_key, password_hash, password_salt, encrypted_private_key, created_at, updated_at
		 FROM device WHERE id = 1`)

	var rec vault.DeviceRecord
	var createdAt, updatedAt int64
	err := row.Scan(&rec.DeviceID, &rec.PublicKey, &rec.PasswordHash, &rec.PasswordSalt,
		&rec.EncryptedPrivateKey, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load device record: %v", vault.ErrStorageUnavailable, err)
	}

	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	return &rec, nil
}

// ReplaceCredentials swaps the whole snapshot in one transaction.
func (s *Store) ReplaceCredentials(ctx context.Context, creds []vault.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", vault.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("%w: failed to clear credentials: %v", vault.ErrStorageUnavailable, err)
	}

	for _, cred := range creds {
		if err := upsertCredentialTx(ctx, tx, cred); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", vault.ErrStorageUnavailable, err)
	}
	return nil
}

// UpsertCredential writes a single credential row.
func (s *Store) UpsertCredential(ctx context.Context, cred vault.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", vault.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	if err := upsertCredentialTx(ctx, tx, cred); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", vault.ErrStorageUnavailable, err)
	}
	return nil
}

func upsertCredentialTx(ctx context.Context, tx *sql.Tx, cred vault.Credential) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO credentials (id, user_id, site, username_cipher, username_nonce, password_cipher, password_nonce)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			site = excluded.site,
			username_cipher = excluded.username_cipher,
			username_nonce = excluded.username_nonce,
			password_cipher = excluded.password_cipher,
			password_nonce = excluded.password_nonce`,
		cred.ID, cred.UserID, cred.Site,
		cred.Username.Cipher, cred.Username.Nonce,
		cred.Password.Cipher, cred.Password.Nonce,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to save credential: %v", vault.ErrStorageUnavailable, err)
	}
	return nil
}

// DeleteCredential removes a credential row. Deleting an absent id is not
// an error; the authoritative check happened against the remote store.
func (s *Store) DeleteCredential(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: failed to delete credential: %v", vault.ErrStorageUnavailable, err)
	}
	return nil
}

// ListCredentials returns the persisted snapshot.
func (s *Store) ListCredentials(ctx context.Context) ([]vault.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, site, username_cipher, username_nonce, password_cipher, password_nonce
		 FROM credentials ORDER BY site, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list credentials: %v", vault.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var creds []vault.Credential
	for rows.Next() {
		var cred vault.Credential
		err := rows.Scan(&cred.ID, &cred.UserID, &cred.Site,
			&cred.Username.Cipher, &cred.Username.Nonce,
			&cred.Password.Cipher, &cred.Password.Nonce)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan credential: %v", vault.ErrStorageUnavailable, err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", vault.ErrStorageUnavailable, err)
	}
	return creds, nil
}

// SetLastSyncedAt records the time of the last successful sync.
func (s *Store) SetLastSyncedAt(ctx context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value, updated_at) VALUES ('last_synced_at', ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		strconv.FormatInt(at.Unix(), 10), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to record sync time: %v", vault.ErrStorageUnavailable, err)
	}
	return nil
}

// LastSyncedAt returns the recorded time of the last successful sync, or
// the zero time if no sync has completed.
func (s *Store) LastSyncedAt(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM metadata WHERE key = 'last_synced_at'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", vault.ErrStorageUnavailable, err)
	}

	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: corrupt sync timestamp: %v", vault.ErrStorageUnavailable, err)
	}
	return time.Unix(unix, 0), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
