package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and local development.
// It implements the same snapshot-delivery contract as the Mongo-backed
// store: initial snapshot on subscribe, one snapshot per commit, ordered
// per subscription.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]map[string]interface{}
	order map[string]int64
	seq   int64

	notifier *notifier

	// now is swappable so tests can control server timestamps.
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string]map[string]interface{}),
		order:    make(map[string]int64),
		notifier: newNotifier(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) GetDocument(ctx context.Context, path string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return s.documentAt(path, fields), nil
}

func (s *MemoryStore) SetDocument(ctx context.Context, path string, fields map[string]interface{}, merge bool) error {
	s.mu.Lock()
	// Timestamps resolve inside the critical section so commit order and
	// timestamp order agree.
	resolved := resolveTimestamps(fields, s.now())
	existing, ok := s.docs[path]
	if !ok {
		s.seq++
		s.order[path] = s.seq
		existing = make(map[string]interface{})
		s.docs[path] = existing
	}
	if !merge {
		for k := range existing {
			delete(existing, k)
		}
	}
	for k, v := range resolved {
		existing[k] = v
	}
	s.mu.Unlock()

	s.notifier.publish(path, parentCollection(path))
	return nil
}

func (s *MemoryStore) UpdateDocument(ctx context.Context, path string, fields map[string]interface{}) error {
	s.mu.Lock()
	existing, ok := s.docs[path]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	resolved := resolveTimestamps(fields, s.now())
	for k, v := range resolved {
		existing[k] = v
	}
	s.mu.Unlock()

	s.notifier.publish(path, parentCollection(path))
	return nil
}

func (s *MemoryStore) AddDocument(ctx context.Context, collectionPath string, fields map[string]interface{}) (string, error) {
	id := uuid.NewString()
	path := collectionPath + "/" + id

	s.mu.Lock()
	resolved := resolveTimestamps(fields, s.now())
	s.seq++
	s.order[path] = s.seq
	s.docs[path] = resolved
	s.mu.Unlock()

	s.notifier.publish(path, collectionPath)
	return id, nil
}

func (s *MemoryStore) Increment(ctx context.Context, path string, field string, delta int64) error {
	s.mu.Lock()
	existing, ok := s.docs[path]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	doc := &Document{Fields: existing}
	existing[field] = doc.Int64(field) + delta
	s.mu.Unlock()

	s.notifier.publish(path, parentCollection(path))
	return nil
}

func (s *MemoryStore) SubscribeToQuery(collectionPath, orderBy string, fn SnapshotFunc) UnsubscribeFunc {
	return s.notifier.subscribe(collectionPath, func() {
		fn(s.queryDocuments(collectionPath, orderBy))
	})
}

func (s *MemoryStore) SubscribeToDocument(path string, fn DocumentFunc) UnsubscribeFunc {
	return s.notifier.subscribe(path, func() {
		doc, err := s.GetDocument(context.Background(), path)
		if err != nil {
			fn(nil)
			return
		}
		fn(doc)
	})
}

func (s *MemoryStore) queryDocuments(collectionPath, orderBy string) []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := collectionPath + "/"
	var docs []Document
	for path, fields := range s.docs {
		if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
			continue
		}
		// Direct children only; subcollection documents have deeper paths.
		if containsSlash(path[len(prefix):]) {
			continue
		}
		docs = append(docs, *s.documentAt(path, fields))
	}

	sort.Slice(docs, func(i, j int) bool {
		if orderBy != "" {
			ti, tj := docs[i].Time(orderBy), docs[j].Time(orderBy)
			if !ti.Equal(tj) {
				return ti.Before(tj)
			}
		}
		return s.order[docs[i].Path] < s.order[docs[j].Path]
	})
	return docs
}

func (s *MemoryStore) documentAt(path string, fields map[string]interface{}) *Document {
	copied := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return &Document{
		ID:     path[len(parentCollection(path))+1:],
		Path:   path,
		Fields: copied,
	}
}

func containsSlash(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return true
		}
	}
	return false
}

// SetNow overrides the commit-time clock. Test hook.
func (s *MemoryStore) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// DocumentCount reports how many documents a collection holds. Test hook.
func (s *MemoryStore) DocumentCount(collectionPath string) int {
	return len(s.queryDocuments(collectionPath, ""))
}

// Dump renders the store for failure messages. Test hook.
func (s *MemoryStore) Dump() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := ""
	for path, fields := range s.docs {
		out += fmt.Sprintf("%s: %v\n", path, fields)
	}
	return out
}
