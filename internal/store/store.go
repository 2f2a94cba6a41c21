// Package store is the per-session configuration store every wizard step
// writes to and every remote call reads a snapshot from.
//
// Well-known keys are backed by typed fields so readers never decode JSON;
// the keyed Set/Get/Delete contract is kept for callers that work with
// raw values (job files, the TUI form) and for opaque extra keys.
package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/johndauphine/chfile/internal/model"
)

// Key names a store entry.
type Key string

const (
	KeyClickHouseConfig Key = "clickHouseConfig"
	KeyFlatFileConfig   Key = "flatFileConfig"
	KeyFile             Key = "file"
	KeyTableName        Key = "tableName"
	KeyTargetTableName  Key = "targetTableName"
	KeySelectedColumns  Key = "selectedColumns"
	KeyJoin             Key = "join"
)

// Store is safe for concurrent use. Subscribers run synchronously after
// each mutation, outside the lock.
type Store struct {
	mu sync.RWMutex

	conn        *model.ConnectionConfig
	file        *model.FileConfig
	blob        *model.Blob
	table       string
	targetTable string
	selected    []model.Column
	join        *model.JoinConfig
	extra       map[Key]any

	subs   map[int]func()
	nextID int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		extra: make(map[Key]any),
		subs:  make(map[int]func()),
	}
}

// Subscribe registers fn to run after every mutation and returns a func
// that removes it.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// mutate runs fn under the write lock and then notifies subscribers.
func (s *Store) mutate(fn func() error) error {
	s.mu.Lock()
	err := fn()
	subs := make([]func(), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	for _, sub := range subs {
		sub()
	}
	return nil
}

// SetConnection stores the ClickHouse connection.
func (s *Store) SetConnection(cfg model.ConnectionConfig) {
	s.mutate(func() error {
		s.conn = &cfg
		return nil
	})
}

// SetFileConfig stores the file settings. A non-empty FileName detaches
// any uploaded blob.
func (s *Store) SetFileConfig(cfg model.FileConfig) {
	s.mutate(func() error {
		s.file = &cfg
		if cfg.FileName != "" {
			s.blob = nil
		}
		return nil
	})
}

// SetFileReference points the file side at a path or URL and detaches any
// uploaded blob. Missing file settings are filled with defaults.
func (s *Store) SetFileReference(ref string) {
	s.mutate(func() error {
		cfg := model.DefaultFileConfig()
		if s.file != nil {
			cfg = *s.file
		}
		cfg.FileName = ref
		s.file = &cfg
		if ref != "" {
			s.blob = nil
		}
		return nil
	})
}

// AttachBlob stores an uploaded file and clears any path reference.
func (s *Store) AttachBlob(b model.Blob) {
	s.mutate(func() error {
		s.blob = &b
		if s.file != nil {
			s.file.FileName = ""
		}
		return nil
	})
}

// SetTable stores the ClickHouse table the source reads from.
func (s *Store) SetTable(name string) {
	s.mutate(func() error {
		s.table = name
		return nil
	})
}

// SetTargetTable stores the ClickHouse table an import writes to.
func (s *Store) SetTargetTable(name string) {
	s.mutate(func() error {
		s.targetTable = name
		return nil
	})
}

// SetJoin stores join metadata.
func (s *Store) SetJoin(j model.JoinConfig) {
	s.mutate(func() error {
		j.AdditionalTables = append([]string(nil), j.AdditionalTables...)
		s.join = &j
		return nil
	})
}

// SetSelectedColumns stores the full column list with flags.
func (s *Store) SetSelectedColumns(cols []model.Column) {
	s.mutate(func() error {
		if cols == nil {
			cols = []model.Column{}
		}
		s.selected = model.CloneColumns(cols)
		return nil
	})
}

// Reset drops every entry, typed and opaque.
func (s *Store) Reset() {
	s.mutate(func() error {
		s.conn = nil
		s.file = nil
		s.blob = nil
		s.table = ""
		s.targetTable = ""
		s.selected = nil
		s.join = nil
		s.extra = make(map[Key]any)
		return nil
	})
}

// Set writes value under key. Well-known keys accept their typed value
// (or a pointer to it); JSON-shaped keys also accept the JSON encoding as
// []byte or string. Unknown keys keep value as-is.
func (s *Store) Set(key Key, value any) error {
	return s.mutate(func() error {
		switch key {
		case KeyClickHouseConfig:
			var cfg model.ConnectionConfig
			if err := decodeInto(key, value, &cfg); err != nil {
				return err
			}
			s.conn = &cfg
		case KeyFlatFileConfig:
			var cfg model.FileConfig
			if err := decodeInto(key, value, &cfg); err != nil {
				return err
			}
			s.file = &cfg
			if cfg.FileName != "" {
				s.blob = nil
			}
		case KeySelectedColumns:
			var cols []model.Column
			if err := decodeInto(key, value, &cols); err != nil {
				return err
			}
			if cols == nil {
				cols = []model.Column{}
			}
			s.selected = cols
		case KeyJoin:
			var j model.JoinConfig
			if err := decodeInto(key, value, &j); err != nil {
				return err
			}
			s.join = &j
		case KeyFile:
			switch v := value.(type) {
			case model.Blob:
				s.blob = &v
			case *model.Blob:
				if v == nil {
					s.blob = nil
					return nil
				}
				b := *v
				s.blob = &b
			default:
				return fmt.Errorf("store: %s expects model.Blob, got %T", key, value)
			}
			if s.file != nil {
				s.file.FileName = ""
			}
		case KeyTableName, KeyTargetTableName:
			name, ok := value.(string)
			if !ok {
				return fmt.Errorf("store: %s expects string, got %T", key, value)
			}
			if key == KeyTableName {
				s.table = name
			} else {
				s.targetTable = name
			}
		default:
			s.extra[key] = value
		}
		return nil
	})
}

// decodeInto copies value into dst, which must be a pointer to T. value may
// be T, *T, or its JSON encoding.
func decodeInto[T any](key Key, value any, dst *T) error {
	switch v := value.(type) {
	case T:
		*dst = v
		return nil
	case *T:
		if v == nil {
			return fmt.Errorf("store: nil value for %s", key)
		}
		*dst = *v
		return nil
	case []byte:
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("store: decoding %s: %w", key, err)
		}
		return nil
	case string:
		if err := json.Unmarshal([]byte(v), dst); err != nil {
			return fmt.Errorf("store: decoding %s: %w", key, err)
		}
		return nil
	}
	return fmt.Errorf("store: unsupported value %T for %s", value, key)
}

// Get returns the value stored under key. Typed entries are returned as
// their model value (a copy); absent entries report false.
func (s *Store) Get(key Key) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch key {
	case KeyClickHouseConfig:
		if s.conn == nil {
			return nil, false
		}
		return *s.conn, true
	case KeyFlatFileConfig:
		if s.file == nil {
			return nil, false
		}
		return *s.file, true
	case KeyFile:
		if s.blob == nil {
			return nil, false
		}
		return *s.blob, true
	case KeyTableName:
		return s.table, s.table != ""
	case KeyTargetTableName:
		return s.targetTable, s.targetTable != ""
	case KeySelectedColumns:
		if s.selected == nil {
			return nil, false
		}
		return model.CloneColumns(s.selected), true
	case KeyJoin:
		if s.join == nil {
			return nil, false
		}
		return *s.join, true
	}
	v, ok := s.extra[key]
	return v, ok
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *Store) Delete(key Key) {
	s.mutate(func() error {
		switch key {
		case KeyClickHouseConfig:
			s.conn = nil
		case KeyFlatFileConfig:
			s.file = nil
		case KeyFile:
			s.blob = nil
		case KeyTableName:
			s.table = ""
		case KeyTargetTableName:
			s.targetTable = ""
		case KeySelectedColumns:
			s.selected = nil
		case KeyJoin:
			s.join = nil
		default:
			delete(s.extra, key)
		}
		return nil
	})
}

// Snapshot returns a copy of the current contents.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Table:           s.table,
		TargetTable:     s.targetTable,
		SelectedColumns: model.CloneColumns(s.selected),
		Extra:           make(map[Key]any, len(s.extra)),
	}
	if s.conn != nil {
		c := *s.conn
		snap.Connection = &c
	}
	if s.file != nil {
		f := *s.file
		snap.File = &f
	}
	if s.blob != nil {
		b := *s.blob
		snap.Blob = &b
	}
	if s.join != nil {
		j := *s.join
		j.AdditionalTables = append([]string(nil), s.join.AdditionalTables...)
		snap.Join = &j
	}
	for k, v := range s.extra {
		snap.Extra[k] = v
	}
	return snap
}
