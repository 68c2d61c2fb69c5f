package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const kvSchema = `create table if not exists kv (
	key text primary key,
	value blob not null
)`

type sqlStore struct {
	db *sql.DB
}

func openSqlite(path string) (sqlStore, error) {
	if path == "" {
		return sqlStore{}, fmt.Errorf("a path was not specified")
	}
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0755)
		if err != nil {
			return sqlStore{}, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return sqlStore{}, err
	}
	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return sqlStore{}, err
	}
	return newSqlStore(context.Background(), db)
}

func openLibsql(ctx context.Context, url string) (sqlStore, error) {
	db, err := sql.Open("libsql", url)
	if err != nil {
		return sqlStore{}, err
	}
	return newSqlStore(ctx, db)
}

func newSqlStore(ctx context.Context, db *sql.DB) (sqlStore, error) {
	_, err := db.ExecContext(ctx, kvSchema)
	if err != nil {
		db.Close()
		return sqlStore{}, fmt.Errorf("create kv table: %w", err)
	}
	return sqlStore{db: db}, nil
}

func (s sqlStore) Load(ctx context.Context) (State, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "select value from kv where key = ?", stateKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}.normalized(), nil
	}
	if err != nil {
		return State{}, err
	}
	return decodeState(data)
}

func (s sqlStore) Save(ctx context.Context, state State) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`insert into kv (key, value) values (?, ?)
		on conflict (key) do update set value = excluded.value`,
		stateKey, data,
	)
	return err
}

func (s sqlStore) Close() error {
	return s.db.Close()
}
