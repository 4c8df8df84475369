package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"coupon-clipper/internal/observability"
	"coupon-clipper/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS clip_progress (
	site                 TEXT PRIMARY KEY,
	session_id           TEXT NOT NULL,
	clipped              INTEGER NOT NULL DEFAULT 0,
	already_clipped      INTEGER NOT NULL DEFAULT 0,
	position             INTEGER NOT NULL DEFAULT 0,
	marker               TEXT NOT NULL DEFAULT '',
	rate_limit_detection INTEGER NOT NULL DEFAULT 1,
	updated_at           INTEGER NOT NULL
)`

const selectColumns = `SELECT site, session_id, clipped, already_clipped, position, marker, rate_limit_detection, updated_at FROM clip_progress`

type Repository struct {
	db             *sql.DB
	commandTimeout time.Duration
	logger         *observability.Logger
	now            func() time.Time
}

// NewRepository открывает файл базы и создаёт схему.
func NewRepository(path string, commandTimeoutMS int, logger *observability.Logger) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if commandTimeoutMS <= 0 {
		commandTimeoutMS = 5000
	}
	// SQLite не любит конкурентную запись из нескольких соединений
	db.SetMaxOpenConns(1)

	r := &Repository{
		db:             db,
		commandTimeout: time.Duration(commandTimeoutMS) * time.Millisecond,
		logger:         logger,
		now:            time.Now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.commandTimeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return r, nil
}

func (r *Repository) Load(ctx context.Context, site string) (*storage.RunState, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	return r.scanOne(r.db.QueryRowContext(ctx, selectColumns+` WHERE site = ?`, site))
}

func (r *Repository) LastSite(ctx context.Context) (*storage.RunState, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	return r.scanOne(r.db.QueryRowContext(ctx, selectColumns+` ORDER BY updated_at DESC LIMIT 1`))
}

func (r *Repository) scanOne(row *sql.Row) (*storage.RunState, error) {
	var (
		state     storage.RunState
		rateLimit int
		updatedAt int64
	)
	err := row.Scan(&state.Site, &state.SessionID, &state.Clipped, &state.AlreadyClipped,
		&state.Position, &state.Marker, &rateLimit, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query database: %w", err)
	}
	state.RateLimitDetection = rateLimit != 0
	state.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &state, nil
}

func (r *Repository) Save(ctx context.Context, state *storage.RunState) error {
	if state == nil || state.Site == "" {
		return errors.New("state without site")
	}

	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	query := `
		INSERT INTO clip_progress (site, session_id, clipped, already_clipped, position, marker, rate_limit_detection, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(site) DO UPDATE SET
			session_id = excluded.session_id,
			clipped = excluded.clipped,
			already_clipped = excluded.already_clipped,
			position = excluded.position,
			marker = excluded.marker,
			rate_limit_detection = excluded.rate_limit_detection,
			updated_at = excluded.updated_at`

	rateLimit := 0
	if state.RateLimitDetection {
		rateLimit = 1
	}

	_, err := r.db.ExecContext(ctx, query,
		state.Site, state.SessionID, state.Clipped, state.AlreadyClipped,
		state.Position, state.Marker, rateLimit, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to execute upsert: %w", err)
	}
	return nil
}

func (r *Repository) Reset(ctx context.Context, site string) error {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM clip_progress WHERE site = ?`, site); err != nil {
		return fmt.Errorf("failed to reset state: %w", err)
	}
	return nil
}

// Close закрывает соединение с БД
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
