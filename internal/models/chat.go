package models

import (
	"strings"
	"time"

	"pairchat/internal/store"
)

// Field-name conventions on the chats/{pairKey} summary document. Unread
// counters and typing flags are flat fields prefixed with the owning uid so
// the two participants never update the same field: the sender owns
// typing_{self} and unread_{peer}, nothing else writes those keys.
const (
	unreadPrefix = "unread_"
	typingPrefix = "typing_"
)

// UnreadField names the unread counter belonging to recipient uid.
func UnreadField(uid string) string { return unreadPrefix + uid }

// TypingField names the typing flag belonging to author uid.
func TypingField(uid string) string { return typingPrefix + uid }

// ThreadSummary is the shared per-pair document: last-message preview plus
// per-recipient unread counters and per-author typing flags.
type ThreadSummary struct {
	PairKey       string           `json:"pair_key"`
	Participants  []string         `json:"participants"`
	LastMessage   string           `json:"last_message"`
	LastMessageAt time.Time        `json:"last_message_at"`
	Unread        map[string]int64 `json:"unread"`
	Typing        map[string]bool  `json:"typing"`
}

// SummaryFromDocument decodes a chats/{pairKey} document, folding the flat
// per-uid fields back into maps.
func SummaryFromDocument(doc *store.Document) ThreadSummary {
	sum := ThreadSummary{
		PairKey:       doc.ID,
		Participants:  doc.StringSlice("participants"),
		LastMessage:   doc.String("last_message"),
		LastMessageAt: doc.Time("last_message_at"),
		Unread:        make(map[string]int64),
		Typing:        make(map[string]bool),
	}
	for key := range doc.Fields {
		if strings.HasPrefix(key, unreadPrefix) {
			sum.Unread[strings.TrimPrefix(key, unreadPrefix)] = doc.Int64(key)
		}
		if strings.HasPrefix(key, typingPrefix) {
			sum.Typing[strings.TrimPrefix(key, typingPrefix)] = doc.Bool(key)
		}
	}
	return sum
}

// Message is one immutable chat message under chats/{pairKey}/messages.
// The timestamp is assigned by the store at write commit, so messages in a
// thread are non-decreasing by timestamp in delivery order.
type Message struct {
	ID        string    `json:"id"`
	SenderUID string    `json:"sender_uid"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageFromDocument decodes a message document.
func MessageFromDocument(doc *store.Document) Message {
	return Message{
		ID:        doc.ID,
		SenderUID: doc.String("sender_uid"),
		Text:      doc.String("text"),
		Timestamp: doc.Time("timestamp"),
	}
}
