package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDocumentNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.GetDocument(context.Background(), "users/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetDocumentMergeAndReplace(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "users/u1", map[string]interface{}{
		"name":   "Alice",
		"online": true,
	}, false))

	// Merge keeps untouched fields.
	require.NoError(t, s.SetDocument(ctx, "users/u1", map[string]interface{}{
		"online": false,
	}, true))

	doc, err := s.GetDocument(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", doc.String("name"))
	assert.False(t, doc.Bool("online"))

	// Replace drops everything not in the new fields.
	require.NoError(t, s.SetDocument(ctx, "users/u1", map[string]interface{}{
		"name": "Alice B",
	}, false))

	doc, err = s.GetDocument(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice B", doc.String("name"))
	_, hasOnline := doc.Fields["online"]
	assert.False(t, hasOnline)
}

func TestUpdateDocumentRequiresExistence(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.UpdateDocument(ctx, "chats/a_b", map[string]interface{}{"unread_a": int64(0)})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetDocument(ctx, "chats/a_b", map[string]interface{}{"unread_a": int64(3)}, false))
	require.NoError(t, s.UpdateDocument(ctx, "chats/a_b", map[string]interface{}{"unread_a": int64(0)}))

	doc, err := s.GetDocument(ctx, "chats/a_b")
	require.NoError(t, err)
	assert.Equal(t, int64(0), doc.Int64("unread_a"))
}

func TestIncrementIsAtomicUnderConcurrency(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "chats/a_b", map[string]interface{}{"unread_b": int64(0)}, false))

	const workers = 20
	const perWorker = 25

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_ = s.Increment(ctx, "chats/a_b", "unread_b", 1)
			}
		}()
	}
	wg.Wait()

	doc, err := s.GetDocument(ctx, "chats/a_b")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), doc.Int64("unread_b"))
}

func TestIncrementMissingDocument(t *testing.T) {
	s := NewMemoryStore()

	err := s.Increment(context.Background(), "chats/a_b", "unread_b", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServerTimestampResolution(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.SetNow(func() time.Time { return now })

	require.NoError(t, s.SetDocument(ctx, "chats/a_b", map[string]interface{}{
		"last_message_at": ServerTimestamp(),
		"last_message":    "hi",
	}, false))

	doc, err := s.GetDocument(ctx, "chats/a_b")
	require.NoError(t, err)
	assert.Equal(t, now, doc.Time("last_message_at"))
	assert.Equal(t, "hi", doc.String("last_message"))
}

func TestAddDocumentAssignsIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id1, err := s.AddDocument(ctx, "chats/a_b/messages", map[string]interface{}{"text": "one"})
	require.NoError(t, err)
	id2, err := s.AddDocument(ctx, "chats/a_b/messages", map[string]interface{}{"text": "two"})
	require.NoError(t, err)

	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, s.DocumentCount("chats/a_b/messages"))
}

func TestQuerySnapshotOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, offset := range []time.Duration{2 * time.Second, 0, time.Second} {
		ts := base.Add(offset)
		s.SetNow(func() time.Time { return ts })
		_, err := s.AddDocument(ctx, "chats/a_b/messages", map[string]interface{}{
			"text":      []string{"third", "first", "second"}[i],
			"timestamp": ServerTimestamp(),
		})
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		last []Document
	)
	unsub := s.SubscribeToQuery("chats/a_b/messages", "timestamp", func(docs []Document) {
		mu.Lock()
		last = docs
		mu.Unlock()
	})
	defer unsub()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "first", last[0].String("text"))
	assert.Equal(t, "second", last[1].String("text"))
	assert.Equal(t, "third", last[2].String("text"))
}

func TestQueryExcludesNestedCollections(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "chats/a_b", map[string]interface{}{"last_message": "hi"}, false))
	_, err := s.AddDocument(ctx, "chats/a_b/messages", map[string]interface{}{"text": "nested"})
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		last []Document
	)
	unsub := s.SubscribeToQuery("chats", "", func(docs []Document) {
		mu.Lock()
		last = docs
		mu.Unlock()
	})
	defer unsub()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "a_b", last[0].ID)
}

func TestDocumentSubscriptionDeliversChanges(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var (
		mu        sync.Mutex
		snapshots []*Document
	)
	unsub := s.SubscribeToDocument("chats/a_b", func(doc *Document) {
		mu.Lock()
		snapshots = append(snapshots, doc)
		mu.Unlock()
	})
	defer unsub()

	// Initial snapshot for a missing document is nil.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snapshots) >= 1 && snapshots[0] == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.SetDocument(ctx, "chats/a_b", map[string]interface{}{"typing_a": true}, false))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		last := snapshots[len(snapshots)-1]
		return last != nil && last.Bool("typing_a")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var (
		mu    sync.Mutex
		count int
	)
	unsub := s.SubscribeToDocument("users/u1", func(doc *Document) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= 1
	}, 2*time.Second, 10*time.Millisecond)

	unsub()
	mu.Lock()
	settled := count
	mu.Unlock()

	require.NoError(t, s.SetDocument(ctx, "users/u1", map[string]interface{}{"online": true}, false))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, settled, count)
}

func TestDocumentAccessorsTolerateMissingFields(t *testing.T) {
	var doc *Document
	assert.Equal(t, "", doc.String("name"))
	assert.False(t, doc.Bool("online"))
	assert.Equal(t, int64(0), doc.Int64("unread"))
	assert.True(t, doc.Time("ts").IsZero())
	assert.Nil(t, doc.StringSlice("participants"))

	doc = &Document{Fields: map[string]interface{}{"n": 3}}
	assert.Equal(t, int64(3), doc.Int64("n"))
	assert.Equal(t, "", doc.String("missing"))
}
