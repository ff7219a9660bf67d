package store

import (
	"context"
	"fmt"
	"path/filepath"

	"comebackwatch/internal/components/chrono"
	"comebackwatch/internal/components/telemetry"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	Backend string      `json:"backend"`
	SQL     SQLConfig   `json:"sql"`
	Redis   RedisConfig `json:"redis"`
}

// Open returns the store selected by config, documents of the file backend
// and the default sqlite database live in stateDir.
func Open(ctx context.Context, config Config, stateDir string, clock chrono.API, tel telemetry.API) (Store, error) {
	switch config.Backend {
	case "", BackendFile:
		return OpenFileStore(stateDir, tel)
	case BackendSQLite:
		sqlConfig := config.SQL
		if sqlConfig.Url == "" && sqlConfig.File == "" {
			sqlConfig.File = filepath.Join(stateDir, "state.db")
		}
		db, err := sqlConfig.OpenDB()
		if err != nil {
			return nil, err
		}
		s, err := NewSQLStore(ctx, db, clock)
		if err != nil {
			db.Close()
			return nil, err
		}
		return s, nil
	case BackendRedis:
		return OpenRedisStore(ctx, config.Redis)
	}
	return nil, fmt.Errorf("unknown store backend %q", config.Backend)
}
