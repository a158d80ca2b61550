package fairness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLJournal persists commits and draws to PostgreSQL, using `ON CONFLICT
// DO NOTHING` for draw idempotency and a conditional UPDATE for one-way
// Pending→Revealed transitions. It is the only component in paygate that
// touches Postgres (see internal/platform.NewPostgresPool).
type SQLJournal struct {
	pool *pgxpool.Pool
}

// NewSQLJournal creates the two RNG tables if absent and returns a journal
// backed by pool.
func NewSQLJournal(ctx context.Context, pool *pgxpool.Pool) (*SQLJournal, error) {
	j := &SQLJournal{pool: pool}
	if err := j.migrate(ctx); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *SQLJournal) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rng_seed_commits (
			day_utc TEXT PRIMARY KEY,
			server_seed_hash TEXT NOT NULL,
			committed_at TIMESTAMPTZ NOT NULL,
			revealed_at TIMESTAMPTZ,
			server_seed BYTEA
		)`,
		`CREATE TABLE IF NOT EXISTS rng_draws (
			case_id TEXT NOT NULL,
			user_id BIGINT NOT NULL,
			nonce TEXT NOT NULL,
			server_seed_hash TEXT NOT NULL,
			roll_hex TEXT NOT NULL,
			ppm BIGINT NOT NULL,
			result_item_id TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (case_id, user_id, nonce)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := j.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("fairness: creating rng tables: %w", err)
		}
	}
	return nil
}

func (j *SQLJournal) GetCommit(day string) (CommitState, bool, error) {
	ctx := context.Background()
	var c CommitState
	var revealedAt *time.Time
	var serverSeed []byte
	row := j.pool.QueryRow(ctx, `SELECT day_utc, server_seed_hash, committed_at, revealed_at, server_seed
		FROM rng_seed_commits WHERE day_utc = $1`, day)
	err := row.Scan(&c.DayUTC, &c.ServerSeedHash, &c.CommittedAt, &revealedAt, &serverSeed)
	if errors.Is(err, pgx.ErrNoRows) {
		return CommitState{}, false, nil
	}
	if err != nil {
		return CommitState{}, false, fmt.Errorf("fairness: querying commit: %w", err)
	}
	if revealedAt != nil {
		c.Revealed = true
		c.RevealedAt = *revealedAt
		c.ServerSeed = serverSeed
	}
	return c, true, nil
}

func (j *SQLJournal) EnsureCommit(day, hash string, committedAt time.Time) (CommitState, error) {
	ctx := context.Background()
	_, err := j.pool.Exec(ctx, `INSERT INTO rng_seed_commits (day_utc, server_seed_hash, committed_at)
		VALUES ($1, $2, $3) ON CONFLICT (day_utc) DO NOTHING`, day, hash, committedAt)
	if err != nil {
		return CommitState{}, fmt.Errorf("fairness: inserting commit: %w", err)
	}
	c, ok, err := j.GetCommit(day)
	if err != nil {
		return CommitState{}, err
	}
	if !ok {
		return CommitState{}, fmt.Errorf("fairness: commit for %q missing after insert", day)
	}
	return c, nil
}

func (j *SQLJournal) Reveal(day string, serverSeed []byte, revealedAt time.Time) (CommitState, error) {
	ctx := context.Background()
	_, err := j.pool.Exec(ctx, `UPDATE rng_seed_commits SET revealed_at = $2, server_seed = $3
		WHERE day_utc = $1 AND server_seed IS NULL`, day, revealedAt, serverSeed)
	if err != nil {
		return CommitState{}, fmt.Errorf("fairness: revealing commit: %w", err)
	}
	c, ok, err := j.GetCommit(day)
	if err != nil {
		return CommitState{}, err
	}
	if !ok {
		return CommitState{}, fmt.Errorf("fairness: no commit for day %q", day)
	}
	return c, nil
}

func (j *SQLJournal) GetDraw(key DrawKey) (DrawRecord, bool, error) {
	ctx := context.Background()
	var d DrawRecord
	row := j.pool.QueryRow(ctx, `SELECT case_id, user_id, nonce, server_seed_hash, roll_hex, ppm, result_item_id, created_at
		FROM rng_draws WHERE case_id = $1 AND user_id = $2 AND nonce = $3`, key.CaseID, key.UserID, key.Nonce)
	err := row.Scan(&d.CaseID, &d.UserID, &d.Nonce, &d.ServerSeedHash, &d.RollHex, &d.Ppm, &d.ResultItemID, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return DrawRecord{}, false, nil
	}
	if err != nil {
		return DrawRecord{}, false, fmt.Errorf("fairness: querying draw: %w", err)
	}
	return d, true, nil
}

func (j *SQLJournal) InsertDrawIfAbsent(record DrawRecord) (DrawRecord, bool, error) {
	ctx := context.Background()
	tag, err := j.pool.Exec(ctx, `INSERT INTO rng_draws
		(case_id, user_id, nonce, server_seed_hash, roll_hex, ppm, result_item_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (case_id, user_id, nonce) DO NOTHING`,
		record.CaseID, record.UserID, record.Nonce, record.ServerSeedHash,
		record.RollHex, record.Ppm, record.ResultItemID, record.CreatedAt)
	if err != nil {
		return DrawRecord{}, false, fmt.Errorf("fairness: inserting draw: %w", err)
	}

	created := tag.RowsAffected() == 1
	key := DrawKey{CaseID: record.CaseID, UserID: record.UserID, Nonce: record.Nonce}
	stored, ok, err := j.GetDraw(key)
	if err != nil {
		return DrawRecord{}, false, err
	}
	if !ok {
		return DrawRecord{}, false, fmt.Errorf("fairness: draw %+v missing after insert", key)
	}
	return stored, created, nil
}
