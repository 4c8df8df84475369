package storage

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownDriver возвращается для storage.driver вне file|sqlite|mssql.
var ErrUnknownDriver = errors.New("unknown storage driver")

// RunState: сохранённый прогресс по одному сайту.
// Marker: отпечаток последнего активированного купона.
type RunState struct {
	SessionID          string    `json:"session_id"`
	Site               string    `json:"site"`
	Clipped            int       `json:"clipped"`
	AlreadyClipped     int       `json:"already_clipped"`
	Position           int       `json:"position"`
	Marker             string    `json:"marker"`
	RateLimitDetection bool      `json:"rate_limit_detection"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Repository интерфейс для хранения прогресса
type Repository interface {
	// Load возвращает состояние сайта; (nil, nil) если его нет
	Load(ctx context.Context, site string) (*RunState, error)

	// LastSite возвращает последнее обновлённое состояние; (nil, nil) если хранилище пустое
	LastSite(ctx context.Context) (*RunState, error)

	// Save сохраняет или обновляет состояние сайта
	Save(ctx context.Context, state *RunState) error

	// Reset удаляет состояние сайта
	Reset(ctx context.Context, site string) error

	Close() error
}
