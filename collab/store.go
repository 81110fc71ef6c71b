package collab

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	_ "github.com/mattn/go-sqlite3"
)

// LocalStore is client-local persistent storage: the ttl cache, the
// notification read markers, and cached blob payloads. It is purely a
// per-client optimization and never a sync point across devices or
// sessions. Nothing in it is authoritative.
type LocalStore interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
	// Keys returns all keys with the prefix, oldest write first
	Keys(prefix string) ([]string, error)
	Close() error
}

const localStoreSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	updated_ms INTEGER NOT NULL
);
`

// SqliteLocalStore is the durable store. Path can be a file path or
// ":memory:".
type SqliteLocalStore struct {
	db *sql.DB
}

func NewSqliteLocalStore(path string) (*SqliteLocalStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(localStoreSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteLocalStore{
		db: db,
	}, nil
}

func (self *SqliteLocalStore) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := self.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (self *SqliteLocalStore) Set(key string, value []byte) error {
	_, err := self.db.Exec(
		"INSERT INTO kv (key, value, updated_ms) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_ms = excluded.updated_ms",
		key,
		value,
		time.Now().UnixMilli(),
	)
	return err
}

func (self *SqliteLocalStore) Delete(key string) error {
	_, err := self.db.Exec("DELETE FROM kv WHERE key = ?", key)
	return err
}

func (self *SqliteLocalStore) Keys(prefix string) ([]string, error) {
	rows, err := self.db.Query("SELECT key FROM kv WHERE key LIKE ? ESCAPE '\\' ORDER BY updated_ms ASC", likePrefix(prefix))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (self *SqliteLocalStore) Close() error {
	return self.db.Close()
}

func likePrefix(prefix string) string {
	escaped := ""
	for _, c := range prefix {
		switch c {
		case '%', '_', '\\':
			escaped += "\\" + string(c)
		default:
			escaped += string(c)
		}
	}
	return escaped + "%"
}

// MemoryLocalStore is for tests and ephemeral sessions.
type MemoryLocalStore struct {
	mutex  sync.Mutex
	values map[string][]byte
	order  []string
}

func NewMemoryLocalStore() *MemoryLocalStore {
	return &MemoryLocalStore{
		values: map[string][]byte{},
	}
}

func (self *MemoryLocalStore) Get(key string) ([]byte, bool, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	value, ok := self.values[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(value), true, nil
}

func (self *MemoryLocalStore) Set(key string, value []byte) error {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if _, ok := self.values[key]; ok {
		i := slices.Index(self.order, key)
		self.order = slices.Delete(self.order, i, i+1)
	}
	self.values[key] = slices.Clone(value)
	self.order = append(self.order, key)
	return nil
}

func (self *MemoryLocalStore) Delete(key string) error {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if _, ok := self.values[key]; ok {
		i := slices.Index(self.order, key)
		self.order = slices.Delete(self.order, i, i+1)
		delete(self.values, key)
	}
	return nil
}

func (self *MemoryLocalStore) Keys(prefix string) ([]string, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	keys := []string{}
	for _, key := range self.order {
		if len(prefix) <= len(key) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (self *MemoryLocalStore) Close() error {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	maps.Clear(self.values)
	self.order = nil
	return nil
}
