package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// LoadConfig читает конфиг поверх значений по умолчанию.
// Рядом может лежать <name>.local.<ext> с личными переопределениями.
// Если основного файла нет, используются значения по умолчанию.
func LoadConfig(filePath string) (*Config, error) {
	cfg := DefaultConfig()
	defaultSites, defaultOrder := cfg.Websites, cfg.SiteOrder

	// Сайты из файла заменяют встроенный список целиком
	cfg.Websites, cfg.SiteOrder = nil, nil

	found, err := decodeFile(filePath, cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		slog.Warn("config file not found, using default configuration", "path", filePath)
	}
	if len(cfg.Websites) == 0 {
		cfg.Websites = defaultSites
		if len(cfg.SiteOrder) == 0 {
			cfg.SiteOrder = defaultOrder
		}
	}

	localPath := LocalPath(filePath)
	foundLocal, err := decodeFile(localPath, cfg)
	if err != nil {
		return nil, err
	}
	if foundLocal {
		slog.Info("merging config with local overrides", "local", localPath)
	}

	if err := cfg.applySiteDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return cfg, nil
}

// LocalPath строит путь к файлу локальных переопределений: config.json -> config.local.json.
func LocalPath(filePath string) string {
	ext := filepath.Ext(filePath)
	return strings.TrimSuffix(filePath, ext) + ".local" + ext
}

func decodeFile(filePath string, cfg *Config) (bool, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to open config file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return true, nil
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		// JSON: подмножество JSON5, поэтому старые coupon_config.json читаются как есть
		err = json5.Unmarshal(data, cfg)
	}
	if err != nil {
		return true, fmt.Errorf("failed to parse config %s: %w", filePath, err)
	}
	return true, nil
}

// applySiteDefaults дополняет каждый сайт общими индикаторами и настройками.
func (c *Config) applySiteDefaults() error {
	defaults := DefaultSiteProfile()
	for key, site := range c.Websites {
		if site == nil {
			continue
		}
		if err := mergo.Merge(site, defaults); err != nil {
			return fmt.Errorf("failed to apply defaults to site %s: %w", key, err)
		}
	}
	return nil
}
