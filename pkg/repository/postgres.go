package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

// serializationFailure は直列化可能トランザクションの競合を示す SQLSTATE です。
const serializationFailure = "40001"

// reserveAttempts は競合で失敗した Reserve を試す回数です。
const reserveAttempts = 2

// PostgresStore は pgxpool を使った Store の実装です。
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore は接続プールを作成し、マイグレーションを実行します。
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := &PostgresStore{pool: pool, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			id BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			token TEXT NOT NULL,
			region TEXT NOT NULL,
			cookies JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS usage_records (
			id BIGSERIAL PRIMARY KEY,
			credential_id BIGINT NOT NULL REFERENCES credentials(id) ON DELETE CASCADE,
			type SMALLINT NOT NULL,
			day DATE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_credential_day ON usage_records(credential_id, type, day)`,
		`CREATE TABLE IF NOT EXISTS reservations (
			id UUID PRIMARY KEY,
			credential_id BIGINT NOT NULL,
			type SMALLINT NOT NULL,
			day DATE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	for _, d := range defaultSettings {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO settings (key, value, description) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING`,
			d.Key, d.Value, d.Description,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) AddCredential(ctx context.Context, username, rawToken string) (domain.Credential, error) {
	c := domain.NewCredential(0, username, rawToken)
	const q = `
		INSERT INTO credentials (username, token, region)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET updated_at = now()
		WHERE credentials.token = EXCLUDED.token AND credentials.region = EXCLUDED.region
		RETURNING id`
	err := s.pool.QueryRow(ctx, q, c.Username, c.Token, string(c.Region)).Scan(&c.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Credential{}, fmt.Errorf("adding credential %q: %w", username, ErrCredentialExists)
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("adding credential %q: %w", username, err)
	}
	return c, nil
}

func (s *PostgresStore) ListCredentials(ctx context.Context) ([]domain.Credential, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, username, token, region, cookies::text FROM credentials ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
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
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		c.Region = domain.Region(region)
		if c.Cookies, err = decodeCookies(cookies); err != nil {
			return nil, fmt.Errorf("credential %d: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountUsage(ctx context.Context, id int64, t domain.GenerationType, day string) (int, error) {
	var count int
	const q = `SELECT COUNT(*) FROM usage_records WHERE credential_id = $1 AND type = $2 AND day = $3::date`
	if err := s.pool.QueryRow(ctx, q, id, int(t), day).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting usage for credential %d: %w", id, err)
	}
	return count, nil
}

func (s *PostgresStore) RecordUsage(ctx context.Context, id int64, t domain.GenerationType) error {
	if err := validType(t); err != nil {
		return err
	}
	const q = `INSERT INTO usage_records (credential_id, type, day) VALUES ($1, $2, $3::date)`
	if _, err := s.pool.Exec(ctx, q, id, int(t), domain.Day(s.now())); err != nil {
		return fmt.Errorf("recording usage for credential %d: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) UpdateCookies(ctx context.Context, id int64, jar domain.CookieJar) (bool, error) {
	encoded, err := encodeCookies(jar)
	if err != nil {
		return false, err
	}
	const q = `UPDATE credentials SET cookies = $1::jsonb, updated_at = now() WHERE id = $2`
	tag, err := s.pool.Exec(ctx, q, encoded, id)
	if err != nil {
		return false, fmt.Errorf("updating cookies for credential %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Reserve は直列化可能トランザクションで使用量を数えてから仮押さえを挿入します。
// 直列化の競合 (40001) は数え直すために1回だけやり直します。
func (s *PostgresStore) Reserve(ctx context.Context, id int64, t domain.GenerationType, limit int, day string) (domain.Reservation, bool, error) {
	if err := validType(t); err != nil {
		return domain.Reservation{}, false, err
	}
	var (
		r   domain.Reservation
		ok  bool
		err error
	)
	for attempt := 0; attempt < reserveAttempts; attempt++ {
		r, ok, err = s.reserveOnce(ctx, id, t, limit, day)
		if !isSerializationFailure(err) {
			break
		}
	}
	return r, ok, err
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}

func (s *PostgresStore) reserveOnce(ctx context.Context, id int64, t domain.GenerationType, limit int, day string) (domain.Reservation, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return domain.Reservation{}, false, fmt.Errorf("starting transaction for reservation: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	now := s.now()
	var used int
	const countQ = `
		SELECT
			(SELECT COUNT(*) FROM usage_records WHERE credential_id = $1 AND type = $2 AND day = $3::date) +
			(SELECT COUNT(*) FROM reservations WHERE credential_id = $1 AND type = $2 AND day = $3::date AND created_at > $4)`
	if err := tx.QueryRow(ctx, countQ, id, int(t), day, now.Add(-ReservationTTL)).Scan(&used); err != nil {
		return domain.Reservation{}, false, fmt.Errorf("counting usage for credential %d: %w", id, err)
	}
	if used >= limit {
		return domain.Reservation{}, false, nil
	}

	r := domain.Reservation{ID: uuid.NewString(), CredentialID: id, Type: t, Day: day, CreatedAt: now}
	const insertQ = `INSERT INTO reservations (id, credential_id, type, day, created_at) VALUES ($1, $2, $3, $4::date, $5)`
	if _, err := tx.Exec(ctx, insertQ, r.ID, id, int(t), day, now); err != nil {
		return domain.Reservation{}, false, fmt.Errorf("inserting reservation for credential %d: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Reservation{}, false, fmt.Errorf("committing reservation for credential %d: %w", id, err)
	}
	return r, true, nil
}

func (s *PostgresStore) Release(ctx context.Context, r domain.Reservation, commit bool) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("starting transaction for release: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, r.ID)
	if err != nil {
		return fmt.Errorf("deleting reservation %s: %w", r.ID, err)
	}
	if tag.RowsAffected() > 0 && commit {
		const q = `INSERT INTO usage_records (credential_id, type, day) VALUES ($1, $2, $3::date)`
		if _, err := tx.Exec(ctx, q, r.CredentialID, int(r.Type), r.Day); err != nil {
			return fmt.Errorf("recording usage for reservation %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing release of %s: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) Setting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading setting %q: %w", key, err)
	}
	return v, true, nil
}

func (s *PostgresStore) SetSetting(ctx context.Context, key, value string) error {
	const q = `INSERT INTO settings (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	if _, err := s.pool.Exec(ctx, q, key, value); err != nil {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
