package cache

import (
	"bytes"
	"os"
	"sync"

	"github.com/llvm-library/papersdb/bundle"
	"github.com/segmentio/encoding/json"
)

// Probe outcomes.
const (
	StatusHit  = "hit"
	StatusMiss = "miss"
)

// Entry is the cached outcome of a landing page probe for one work.
type Entry struct {
	Title           string `json:"title"`
	Abstract        string `json:"abstract"`
	Status          string `json:"status"`
	SourceUpdatedAt string `json:"sourceUpdatedAt"`
	UpdatedAt       string `json:"updatedAt"`
}

// LandingStore keeps probe outcomes by OpenAlex short id.
type LandingStore interface {
	Get(id string) (Entry, bool)
	Put(id string, e Entry)
}

// MemoryLandingStore is a LandingStore without persistence.
type MemoryLandingStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryLandingStore returns an empty store.
func NewMemoryLandingStore() *MemoryLandingStore {
	return &MemoryLandingStore{entries: make(map[string]Entry)}
}

func (s *MemoryLandingStore) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return e, ok
}

func (s *MemoryLandingStore) Put(id string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = e
}

// Len returns the number of entries.
func (s *MemoryLandingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// FileLandingStore is a MemoryLandingStore backed by a JSON object on disk,
// keyed by id.
type FileLandingStore struct {
	*MemoryLandingStore
	Filename string
}

// OpenLandingStore reads a store from a file. A missing or malformed file
// yields an empty store, as does an entry that is not an object.
func OpenLandingStore(filename string) (*FileLandingStore, error) {
	s := &FileLandingStore{
		MemoryLandingStore: NewMemoryLandingStore(),
		Filename:           filename,
	}
	b, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return s, nil
	}
	for id, v := range raw {
		v = bytes.TrimSpace(v)
		if len(v) == 0 || v[0] != '{' {
			continue
		}
		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			continue
		}
		s.entries[id] = e
	}
	return s, nil
}

// Save writes the store with keys in sorted order, if the content changed.
func (s *FileLandingStore) Save() (bool, error) {
	s.mu.Lock()
	data, err := bundle.Marshal(s.entries)
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	return bundle.WriteIfChanged(s.Filename, data)
}
