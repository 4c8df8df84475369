package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"coupon-clipper/internal/observability"
	"coupon-clipper/internal/storage"
)

type Repository struct {
	db             *sql.DB
	commandTimeout time.Duration
	logger         *observability.Logger
}

func NewRepository(dsn string, commandTimeoutMS int, logger *observability.Logger) (*Repository, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Тестируем соединение
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{
		db:             db,
		commandTimeout: time.Duration(commandTimeoutMS) * time.Millisecond,
		logger:         logger,
	}, nil
}

const selectColumns = `[Site], [SessionID], [Clipped], [AlreadyClipped], [Position], [Marker], [RateLimitDetection], [UpdatedAt]`

// Save сохраняет или обновляет прогресс сайта
func (r *Repository) Save(ctx context.Context, state *storage.RunState) error {
	if state == nil || state.Site == "" {
		return errors.New("state without site")
	}

	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	// MERGE statement для MS SQL
	query := `
		MERGE INTO TblClipProgress AS target
		USING (SELECT @Site AS Site) AS source
		ON target.[Site] = source.Site
		WHEN MATCHED THEN
			UPDATE SET
				[SessionID] = @SessionID,
				[Clipped] = @Clipped,
				[AlreadyClipped] = @AlreadyClipped,
				[Position] = @Position,
				[Marker] = @Marker,
				[RateLimitDetection] = @RateLimitDetection,
				[UpdatedAt] = SYSUTCDATETIME()
		WHEN NOT MATCHED THEN
			INSERT ([Site], [SessionID], [Clipped], [AlreadyClipped], [Position], [Marker], [RateLimitDetection], [UpdatedAt])
			VALUES (@Site, @SessionID, @Clipped, @AlreadyClipped, @Position, @Marker, @RateLimitDetection, SYSUTCDATETIME());
	`

	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			r.logger.Error("Failed to close statement", "error", err.Error())
		}
	}()

	_, err = stmt.ExecContext(ctx,
		sql.Named("Site", state.Site),
		sql.Named("SessionID", state.SessionID),
		sql.Named("Clipped", state.Clipped),
		sql.Named("AlreadyClipped", state.AlreadyClipped),
		sql.Named("Position", state.Position),
		sql.Named("Marker", state.Marker),
		sql.Named("RateLimitDetection", state.RateLimitDetection),
	)
	if err != nil {
		return fmt.Errorf("failed to execute upsert: %w", err)
	}

	return nil
}

// Load получает прогресс сайта
func (r *Repository) Load(ctx context.Context, site string) (*storage.RunState, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	query := `SELECT ` + selectColumns + ` FROM TblClipProgress WHERE [Site] = @Site`
	return r.queryOne(ctx, query, sql.Named("Site", site))
}

// LastSite получает последний обновлённый прогресс
func (r *Repository) LastSite(ctx context.Context) (*storage.RunState, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	query := `SELECT TOP 1 ` + selectColumns + ` FROM TblClipProgress ORDER BY [UpdatedAt] DESC`
	return r.queryOne(ctx, query)
}

func (r *Repository) queryOne(ctx context.Context, query string, args ...any) (*storage.RunState, error) {
	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			r.logger.Error("Failed to close statement", "error", err.Error())
		}
	}()

	var state storage.RunState
	err = stmt.QueryRowContext(ctx, args...).Scan(&state.Site, &state.SessionID, &state.Clipped,
		&state.AlreadyClipped, &state.Position, &state.Marker, &state.RateLimitDetection, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query database: %w", err)
	}

	return &state, nil
}

// Reset удаляет прогресс сайта
func (r *Repository) Reset(ctx context.Context, site string) error {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	query := `DELETE FROM TblClipProgress WHERE [Site] = @Site`

	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			r.logger.Error("Failed to close statement", "error", err.Error())
		}
	}()

	if _, err := stmt.ExecContext(ctx, sql.Named("Site", site)); err != nil {
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
