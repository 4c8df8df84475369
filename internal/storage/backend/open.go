// Package backend выбирает реализацию хранилища прогресса по storage.driver.
package backend

import (
	"fmt"

	"coupon-clipper/internal/config"
	"coupon-clipper/internal/observability"
	"coupon-clipper/internal/storage"
	"coupon-clipper/internal/storage/filestore"
	"coupon-clipper/internal/storage/mssql"
	"coupon-clipper/internal/storage/sqlite"
)

// Open открывает хранилище. Для file и sqlite используется storage.path, для mssql: storage.dsn.
func Open(cfg config.StorageConfig, logger *observability.Logger) (storage.Repository, error) {
	switch cfg.Driver {
	case "", "file":
		return filestore.NewRepository(cfg.Path), nil
	case "sqlite":
		repo, err := sqlite.NewRepository(cfg.Path, cfg.CommandTimeoutMS, logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "mssql":
		repo, err := mssql.NewRepository(cfg.DSN, cfg.CommandTimeoutMS, logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownDriver, cfg.Driver)
	}
}
