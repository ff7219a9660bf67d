package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"comebackwatch/internal/components/chrono"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

type SQLConfig struct {
	// File is a local sqlite database, used when Url is empty.
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

// OpenDB opens a local sqlite file or a remote libsql server.
func (config SQLConfig) OpenDB() (*sql.DB, error) {
	if config.Url != "" {
		dsn := config.Url
		if config.AuthToken != "" {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "authToken=" + config.AuthToken
		}
		return sql.Open("libsql", dsn)
	}

	if config.File == "" {
		return nil, fmt.Errorf("a path was not specified")
	}
	err := os.MkdirAll(filepath.Dir(config.File), 0o755)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", config.File)
	if err != nil {
		return nil, err
	}
	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SQLStore keeps documents as rows of a single table, multi document
// commits are one transaction.
type SQLStore struct {
	db    *sql.DB
	clock chrono.API
}

func NewSQLStore(ctx context.Context, db *sql.DB, clock chrono.API) (*SQLStore, error) {
	_, err := db.ExecContext(ctx, Schema)
	if err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLStore{db: db, clock: clock}, nil
}

func (s *SQLStore) Get(ctx context.Context, name string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, "select body from documents where name = ?", name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (s *SQLStore) PutMany(ctx context.Context, docs map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.clock.Now().Unix()
	for _, name := range sortedNames(docs) {
		_, err = tx.ExecContext(
			ctx,
			`insert into documents(name, body, updated_at) values (?, ?, ?)
			on conflict(name) do update set body = excluded.body, updated_at = excluded.updated_at`,
			name, docs[name], now,
		)
		if err != nil {
			return fmt.Errorf("put %s: %w", name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
