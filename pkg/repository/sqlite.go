package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

// SQLiteStore は modernc.org/sqlite を使った Store の実装です。
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore はデータベースを開き、マイグレーションを実行します。
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// 接続を1本に絞り、Reserve の確認と挿入を直列化します。
	db.SetMaxOpenConns(1)

	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func migrateSQLite(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			token TEXT NOT NULL,
			region TEXT NOT NULL,
			cookies TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS usage_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			credential_id INTEGER NOT NULL,
			type INTEGER NOT NULL,
			day TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (credential_id) REFERENCES credentials(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_credential_day ON usage_records(credential_id, type, day)`,
		`CREATE TABLE IF NOT EXISTS reservations (
			id TEXT PRIMARY KEY,
			credential_id INTEGER NOT NULL,
			type INTEGER NOT NULL,
			day TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	for _, d := range defaultSettings {
		if _, err := db.Exec(`INSERT OR IGNORE INTO settings (key, value, description) VALUES (?, ?, ?)`, d.Key, d.Value, d.Description); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) AddCredential(ctx context.Context, username, rawToken string) (domain.Credential, error) {
	c := domain.NewCredential(0, username, rawToken)
	now := s.now().Unix()
	const q = `
		INSERT INTO credentials (username, token, region, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET updated_at = excluded.updated_at
		WHERE credentials.token = excluded.token AND credentials.region = excluded.region
		RETURNING id`
	err := s.db.QueryRowContext(ctx, q, c.Username, c.Token, string(c.Region), now, now).Scan(&c.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Credential{}, fmt.Errorf("failed to add credential %q: %w", username, ErrCredentialExists)
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to add credential %q: %w", username, err)
	}
	return c, nil
}

func (s *SQLiteStore) ListCredentials(ctx context.Context) ([]domain.Credential, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, token, region, cookies FROM credentials ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var out []domain.Credential
	for rows.Next() {
		var (
			c       domain.Credential
			region  string
			cookies string
		)
		if err := rows.Scan(&c.ID, &c.Username, &c.Token, &region, &cookies); err != nil {
			return nil, err
		}
		c.Region = domain.Region(region)
		if c.Cookies, err = decodeCookies(cookies); err != nil {
			return nil, fmt.Errorf("credential %d: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountUsage(ctx context.Context, id int64, t domain.GenerationType, day string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage_records WHERE credential_id = ? AND type = ? AND day = ?`,
		id, int(t), day,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage for credential %d: %w", id, err)
	}
	return count, nil
}

func (s *SQLiteStore) RecordUsage(ctx context.Context, id int64, t domain.GenerationType) error {
	if err := validType(t); err != nil {
		return err
	}
	now := s.now()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records (credential_id, type, day, created_at) VALUES (?, ?, ?, ?)`,
		id, int(t), domain.Day(now), now.Unix(),
	); err != nil {
		return fmt.Errorf("failed to record usage for credential %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateCookies(ctx context.Context, id int64, jar domain.CookieJar) (bool, error) {
	encoded, err := encodeCookies(jar)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET cookies = ?, updated_at = ? WHERE id = ?`,
		encoded, s.now().Unix(), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update cookies for credential %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) Reserve(ctx context.Context, id int64, t domain.GenerationType, limit int, day string) (domain.Reservation, bool, error) {
	if err := validType(t); err != nil {
		return domain.Reservation{}, false, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Reservation{}, false, fmt.Errorf("starting transaction for reservation: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := s.now()
	var used int
	const countQ = `
		SELECT
			(SELECT COUNT(*) FROM usage_records WHERE credential_id = ? AND type = ? AND day = ?) +
			(SELECT COUNT(*) FROM reservations WHERE credential_id = ? AND type = ? AND day = ? AND created_at > ?)`
	if err := tx.QueryRowContext(ctx, countQ,
		id, int(t), day,
		id, int(t), day, now.Add(-ReservationTTL).Unix(),
	).Scan(&used); err != nil {
		return domain.Reservation{}, false, fmt.Errorf("counting usage for credential %d: %w", id, err)
	}
	if used >= limit {
		return domain.Reservation{}, false, nil
	}

	r := domain.Reservation{ID: uuid.NewString(), CredentialID: id, Type: t, Day: day, CreatedAt: now}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (id, credential_id, type, day, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, id, int(t), day, now.Unix(),
	); err != nil {
		return domain.Reservation{}, false, fmt.Errorf("inserting reservation for credential %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Reservation{}, false, fmt.Errorf("committing reservation for credential %d: %w", id, err)
	}
	return r, true, nil
}

func (s *SQLiteStore) Release(ctx context.Context, r domain.Reservation, commit bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction for release: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, r.ID)
	if err != nil {
		return fmt.Errorf("deleting reservation %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 && commit {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO usage_records (credential_id, type, day, created_at) VALUES (?, ?, ?, ?)`,
			r.CredentialID, int(r.Type), r.Day, s.now().Unix(),
		); err != nil {
			return fmt.Errorf("recording usage for reservation %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Setting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeCookies(jar domain.CookieJar) (string, error) {
	if jar == nil {
		jar = domain.CookieJar{}
	}
	b, err := json.Marshal(jar)
	if err != nil {
		return "", fmt.Errorf("failed to encode cookies: %w", err)
	}
	return string(b), nil
}

func decodeCookies(raw string) (domain.CookieJar, error) {
	if raw == "" {
		return nil, nil
	}
	var jar domain.CookieJar
	if err := json.Unmarshal([]byte(raw), &jar); err != nil {
		return nil, fmt.Errorf("failed to decode cookies: %w", err)
	}
	return jar, nil
}
