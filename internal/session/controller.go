package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pairchat/internal/models"
	"pairchat/internal/store"
	"pairchat/pkg/logger"

	"github.com/microcosm-cc/bluemonday"
)

var (
	ErrEmptyMessage      = errors.New("message is empty")
	ErrMessageTooLong    = errors.New("message exceeds the maximum length")
	ErrNoContactSelected = errors.New("no contact selected")
	ErrSessionClosed     = errors.New("session is closed")
)

const (
	defaultTypingDebounce = 1000 * time.Millisecond
	defaultMaxMessageLen  = 4096
)

// Sink receives the derived session state the controller maintains. One
// implementation is the websocket client pushing frames to the browser;
// tests use a recording sink. Callbacks arrive from subscription delivery
// goroutines and must not block for long.
type Sink interface {
	// RosterUpdated delivers the full derived contact list.
	RosterUpdated(contacts []models.Contact)

	// ThreadUpdated delivers the active thread's full ordered message list.
	ThreadUpdated(messages []models.Message)

	// ContactTyping reports a live typing-flag change for one contact.
	ContactTyping(uid string, typing bool)
}

// Config carries the tunables of a controller.
type Config struct {
	// TypingDebounce is the quiet period after the last draft edit before
	// the stopped-typing write fires.
	TypingDebounce time.Duration

	// MaxMessageLen caps the sanitized message text, in bytes.
	MaxMessageLen int

	// WriteTimeout bounds store writes issued from subscription callbacks
	// and timers.
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.TypingDebounce <= 0 {
		c.TypingDebounce = defaultTypingDebounce
	}
	if c.MaxMessageLen <= 0 {
		c.MaxMessageLen = defaultMaxMessageLen
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// Controller is the chat-session state machine for one signed-in user. It
// derives roster, unread, typing and thread state from independent store
// subscriptions and issues the writes for send, mark-read, typing and
// presence. Each subscription callback is treated as independent: no
// global snapshot across subscriptions is assumed.
type Controller struct {
	store store.Store
	sink  Sink
	self  models.User
	cfg   Config

	sanitize *bluemonday.Policy
	strip    *bluemonday.Policy

	mu           sync.Mutex
	closed       bool
	sessionScope *Scope
	threadScope  *Scope
	selected     string
	peerTyping   bool
	contacts     []models.Contact
	typingTimer  *time.Timer
}

func NewController(st store.Store, self models.User, sink Sink, cfg Config) *Controller {
	return &Controller{
		store:    st,
		sink:     sink,
		self:     self,
		cfg:      cfg.withDefaults(),
		sanitize: bluemonday.UGCPolicy(),
		strip:    bluemonday.StrictPolicy(),
	}
}

// Start upserts the signed-in user's presence and opens the roster
// subscription. Presence is advisory: a failed write is logged and the
// session continues.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.sessionScope != nil {
		c.mu.Unlock()
		return
	}
	scope := NewScope()
	c.sessionScope = scope
	c.mu.Unlock()

	// Merge-write only the online flag; the profile fields on users/{uid}
	// are owned by the auth layer and must survive presence flips.
	presence := map[string]interface{}{"uid": c.self.UID, "online": true}
	if err := c.store.SetDocument(ctx, "users/"+c.self.UID, presence, true); err != nil {
		logger.LogError(err, "Failed to publish presence", map[string]interface{}{
			"uid": c.self.UID,
		})
	}

	scope.Add(c.store.SubscribeToQuery("users", "", func(docs []store.Document) {
		c.onRosterSnapshot(scope, docs)
	}))
}

// Close tears down every subscription, cancels the typing timer and
// best-effort flips presence to offline. Safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	session, thread := c.sessionScope, c.threadScope
	c.sessionScope, c.threadScope = nil, nil
	c.selected = ""
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	c.mu.Unlock()

	if thread != nil {
		thread.Close()
	}
	if session != nil {
		session.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	defer cancel()
	err := c.store.SetDocument(ctx, "users/"+c.self.UID, map[string]interface{}{"online": false}, true)
	if err != nil {
		logger.LogError(err, "Failed to clear presence", map[string]interface{}{
			"uid": c.self.UID,
		})
	}
}

// SelectContact activates the thread with the given contact, tearing down
// the previous thread's subscriptions first so a stale subscription cannot
// keep mutating roster state for a contact no longer selected.
func (c *Controller) SelectContact(uid string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	previous := c.threadScope
	scope := NewScope()
	c.threadScope = scope
	c.selected = uid
	c.peerTyping = false
	c.mu.Unlock()

	if previous != nil {
		previous.Close()
	}

	pairKey := PairKey(c.self.UID, uid)

	scope.Add(c.store.SubscribeToQuery(MessagesPath(pairKey), "timestamp", func(docs []store.Document) {
		c.onThreadSnapshot(scope, pairKey, docs)
	}))
	scope.Add(c.store.SubscribeToDocument(SummaryPath(pairKey), func(doc *store.Document) {
		c.onSummarySnapshot(scope, uid, doc)
	}))

	return nil
}

// Send validates and sanitizes the draft, creates or updates the thread
// summary, and appends the message document. Failures are returned to the
// caller so the user can be told and the draft kept; nothing is retried.
func (c *Controller) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(c.strip.Sanitize(text)) == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	peer := c.selected
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	c.mu.Unlock()

	if peer == "" {
		return ErrNoContactSelected
	}

	clean := c.sanitize.Sanitize(text)
	if len(clean) > c.cfg.MaxMessageLen {
		return ErrMessageTooLong
	}
	pairKey := PairKey(c.self.UID, peer)
	summaryPath := SummaryPath(pairKey)

	_, err := c.store.GetDocument(ctx, summaryPath)
	switch {
	case errors.Is(err, store.ErrNotFound):
		err = c.store.SetDocument(ctx, summaryPath, map[string]interface{}{
			"participants":                 []string{c.self.UID, peer},
			"last_message":                 clean,
			"last_message_at":              store.ServerTimestamp(),
			models.UnreadField(peer):       int64(1),
			models.TypingField(c.self.UID): false,
		}, false)
		if err != nil {
			return fmt.Errorf("failed to create thread summary: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read thread summary: %w", err)
	default:
		err = c.store.UpdateDocument(ctx, summaryPath, map[string]interface{}{
			"last_message":                 clean,
			"last_message_at":              store.ServerTimestamp(),
			models.TypingField(c.self.UID): false,
		})
		if err != nil {
			return fmt.Errorf("failed to update thread summary: %w", err)
		}
		if err := c.store.Increment(ctx, summaryPath, models.UnreadField(peer), 1); err != nil {
			return fmt.Errorf("failed to bump unread counter: %w", err)
		}
	}

	_, err = c.store.AddDocument(ctx, MessagesPath(pairKey), map[string]interface{}{
		"sender_uid": c.self.UID,
		"text":       clean,
		"timestamp":  store.ServerTimestamp(),
	})
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	logger.LogChatEvent("message_sent", pairKey, c.self.UID, map[string]interface{}{
		"content_length": len(clean),
	})
	return nil
}

// DraftEdited is the typing pulse: an immediate advisory started-typing
// write on every edit (idempotent, so no debounce), plus a one-shot timer
// that writes stopped-typing once the edits go quiet. Rapid keystrokes
// keep postponing the stop write.
func (c *Controller) DraftEdited() {
	c.mu.Lock()
	if c.closed || c.selected == "" {
		c.mu.Unlock()
		return
	}
	peer := c.selected
	scope := c.threadScope
	pairKey := PairKey(c.self.UID, peer)

	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingTimer = time.AfterFunc(c.cfg.TypingDebounce, func() {
		c.writeTyping(scope, pairKey, false)
	})
	c.mu.Unlock()

	c.writeTyping(scope, pairKey, true)
}

// writeTyping flips typing_{self} on the pair summary. Best-effort: a
// missing summary or a transient failure is logged and dropped, never
// surfaced. The scope guard keeps a timer armed for a superseded thread
// from writing into it.
func (c *Controller) writeTyping(scope *Scope, pairKey string, typing bool) {
	if scope == nil || !scope.Active() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	defer cancel()

	err := c.store.UpdateDocument(ctx, SummaryPath(pairKey), map[string]interface{}{
		models.TypingField(c.self.UID): typing,
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.WithError(err).Debug("Typing write dropped")
	}
}

// onRosterSnapshot rebuilds the contact list from a users snapshot: self
// excluded, every other user annotated with the unread counter read from
// that pair's summary. Ordering is snapshot order, not recency.
func (c *Controller) onRosterSnapshot(scope *Scope, docs []store.Document) {
	if !scope.Active() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	defer cancel()

	contacts := make([]models.Contact, 0, len(docs))
	for i := range docs {
		user := models.UserFromDocument(&docs[i])
		if user.UID == "" || user.UID == c.self.UID {
			continue
		}

		var unread int64
		summary, err := c.store.GetDocument(ctx, SummaryPath(PairKey(c.self.UID, user.UID)))
		switch {
		case err == nil:
			unread = summary.Int64(models.UnreadField(c.self.UID))
		case !errors.Is(err, store.ErrNotFound):
			logger.LogError(err, "Failed to read thread summary for roster", map[string]interface{}{
				"uid":  c.self.UID,
				"peer": user.UID,
			})
		}

		contacts = append(contacts, models.Contact{
			UID:       user.UID,
			Name:      user.Name,
			AvatarURL: user.AvatarURL,
			Online:    user.Online,
			Unread:    unread,
		})
	}

	c.mu.Lock()
	// Carry the live typing flag across the rebuild; it is owned by the
	// summary subscription, not this one.
	for i := range contacts {
		if contacts[i].UID == c.selected {
			contacts[i].IsTyping = c.peerTyping
		}
	}
	c.contacts = contacts
	out := c.snapshotContactsLocked()
	c.mu.Unlock()

	if scope.Active() {
		c.sink.RosterUpdated(out)
	}
}

// onThreadSnapshot delivers the active thread's messages and fires the
// mark-read write. Read semantics are per snapshot delivery: the initial
// snapshot on open and every later one (including those caused by the
// peer's own sends) zero unread_{self}, provided the summary exists.
func (c *Controller) onThreadSnapshot(scope *Scope, pairKey string, docs []store.Document) {
	if !scope.Active() {
		return
	}

	messages := make([]models.Message, 0, len(docs))
	for i := range docs {
		messages = append(messages, models.MessageFromDocument(&docs[i]))
	}

	c.mu.Lock()
	superseded := c.threadScope != scope
	c.mu.Unlock()
	if superseded {
		return
	}

	c.sink.ThreadUpdated(messages)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	defer cancel()
	err := c.store.UpdateDocument(ctx, SummaryPath(pairKey), map[string]interface{}{
		models.UnreadField(c.self.UID): int64(0),
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.LogError(err, "Failed to mark thread read", map[string]interface{}{
			"uid":      c.self.UID,
			"pair_key": pairKey,
		})
	}
}

// onSummarySnapshot tracks the selected contact's typing flag from the
// pair summary document.
func (c *Controller) onSummarySnapshot(scope *Scope, peer string, doc *store.Document) {
	if !scope.Active() {
		return
	}

	typing := doc.Bool(models.TypingField(peer))

	c.mu.Lock()
	if c.threadScope != scope {
		c.mu.Unlock()
		return
	}
	changed := c.peerTyping != typing
	c.peerTyping = typing
	for i := range c.contacts {
		if c.contacts[i].UID == peer {
			c.contacts[i].IsTyping = typing
			break
		}
	}
	c.mu.Unlock()

	if changed {
		c.sink.ContactTyping(peer, typing)
	}
}

// Roster returns a copy of the current derived contact list.
func (c *Controller) Roster() []models.Contact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotContactsLocked()
}

// Selected returns the uid of the active contact, or "".
func (c *Controller) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Self returns the signed-in user this controller serves.
func (c *Controller) Self() models.User {
	return c.self
}

func (c *Controller) snapshotContactsLocked() []models.Contact {
	out := make([]models.Contact, len(c.contacts))
	copy(out, c.contacts)
	return out
}

// FilterRoster applies the case-insensitive name search. A pure
// presentation filter: the underlying roster is untouched.
func FilterRoster(contacts []models.Contact, query string) []models.Contact {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return contacts
	}
	out := make([]models.Contact, 0, len(contacts))
	for _, contact := range contacts {
		if strings.Contains(strings.ToLower(contact.Name), q) {
			out = append(out, contact)
		}
	}
	return out
}
