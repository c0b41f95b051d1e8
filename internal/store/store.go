package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a document path resolves to nothing.
var ErrNotFound = errors.New("document not found")

// Document is a point-in-time copy of a stored document. Fields maps are
// owned by the caller; stores never hand out shared references.
type Document struct {
	ID     string
	Path   string
	Fields map[string]interface{}
}

// SnapshotFunc receives the full ordered result set of a query subscription.
type SnapshotFunc func(docs []Document)

// DocumentFunc receives the current state of a subscribed document, or nil
// while the document does not exist.
type DocumentFunc func(doc *Document)

// UnsubscribeFunc cancels a subscription. Safe to call more than once.
type UnsubscribeFunc func()

// Store is the realtime document backend the session controller runs
// against. Query and document subscriptions deliver an initial snapshot
// immediately and then one snapshot per commit, serialized per
// subscription. There is no ordering guarantee across subscriptions.
type Store interface {
	GetDocument(ctx context.Context, path string) (*Document, error)

	// SetDocument writes a document. With merge, existing fields not named
	// in fields are kept; without, the document is replaced. Upserts.
	SetDocument(ctx context.Context, path string, fields map[string]interface{}, merge bool) error

	// UpdateDocument patches an existing document. ErrNotFound if absent.
	UpdateDocument(ctx context.Context, path string, fields map[string]interface{}) error

	// AddDocument appends a document with a store-generated id to a
	// collection and returns the id.
	AddDocument(ctx context.Context, collectionPath string, fields map[string]interface{}) (string, error)

	// Increment atomically adds delta to a numeric field of an existing
	// document. ErrNotFound if absent.
	Increment(ctx context.Context, path string, field string, delta int64) error

	// SubscribeToQuery watches a collection, delivering its documents
	// ordered ascending by orderBy. An empty orderBy keeps the store's
	// natural (insertion) order.
	SubscribeToQuery(collectionPath, orderBy string, fn SnapshotFunc) UnsubscribeFunc

	SubscribeToDocument(path string, fn DocumentFunc) UnsubscribeFunc
}

type serverTimestamp struct{}

// ServerTimestamp returns a sentinel that stores resolve to the commit-time
// UTC timestamp. Resolution happens at write commit, so timestamps per
// collection are non-decreasing in commit order.
func ServerTimestamp() interface{} {
	return serverTimestamp{}
}

// resolveTimestamps replaces ServerTimestamp sentinels with now. Returns a
// shallow copy so callers keep their maps unchanged.
func resolveTimestamps(fields map[string]interface{}, now time.Time) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = now
			continue
		}
		out[k] = v
	}
	return out
}

// parentCollection returns the collection path a document lives in.
func parentCollection(docPath string) string {
	i := strings.LastIndex(docPath, "/")
	if i < 0 {
		return ""
	}
	return docPath[:i]
}

// String returns a string field or "".
func (d *Document) String(key string) string {
	if d == nil {
		return ""
	}
	s, _ := d.Fields[key].(string)
	return s
}

// Bool returns a bool field or false.
func (d *Document) Bool(key string) bool {
	if d == nil {
		return false
	}
	b, _ := d.Fields[key].(bool)
	return b
}

// Int64 returns a numeric field as int64, tolerating the integer and float
// widths different backends decode to.
func (d *Document) Int64(key string) int64 {
	if d == nil {
		return 0
	}
	switch v := d.Fields[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Time returns a time field or the zero time.
func (d *Document) Time(key string) time.Time {
	if d == nil {
		return time.Time{}
	}
	t, _ := d.Fields[key].(time.Time)
	return t
}

// StringSlice returns a string-array field.
func (d *Document) StringSlice(key string) []string {
	if d == nil {
		return nil
	}
	switch v := d.Fields[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
