package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"pairchat/internal/models"
	"pairchat/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type typingEvent struct {
	uid    string
	typing bool
}

// recordingSink captures everything the controller pushes so tests can
// assert on the latest derived state.
type recordingSink struct {
	mu      sync.Mutex
	rosters [][]models.Contact
	threads [][]models.Message
	typing  []typingEvent
}

func (s *recordingSink) RosterUpdated(contacts []models.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rosters = append(s.rosters, contacts)
}

func (s *recordingSink) ThreadUpdated(messages []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads = append(s.threads, messages)
}

func (s *recordingSink) ContactTyping(uid string, typing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing = append(s.typing, typingEvent{uid: uid, typing: typing})
}

func (s *recordingSink) lastThread() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.threads) == 0 {
		return nil
	}
	return s.threads[len(s.threads)-1]
}

func (s *recordingSink) lastRoster() []models.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rosters) == 0 {
		return nil
	}
	return s.rosters[len(s.rosters)-1]
}

func (s *recordingSink) typingEvents() []typingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]typingEvent, len(s.typing))
	copy(out, s.typing)
	return out
}

func seedUsers(t *testing.T, st store.Store, users ...models.User) {
	t.Helper()
	ctx := context.Background()
	for _, u := range users {
		require.NoError(t, st.SetDocument(ctx, "users/"+u.UID, u.Fields(), true))
	}
}

func newTestController(t *testing.T, st store.Store, uid string, cfg Config) (*Controller, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	ctl := NewController(st, models.User{UID: uid, Name: "User " + uid}, sink, cfg)
	t.Cleanup(ctl.Close)
	return ctl, sink
}

func summaryField(t *testing.T, st store.Store, pairKey, field string) int64 {
	t.Helper()
	doc, err := st.GetDocument(context.Background(), SummaryPath(pairKey))
	require.NoError(t, err)
	return doc.Int64(field)
}

func TestFirstSendCreatesThread(t *testing.T) {
	st := store.NewMemoryStore()
	seedUsers(t, st,
		models.User{UID: "a1", Name: "Alice", Online: true},
		models.User{UID: "b1", Name: "Bob", Online: true},
	)

	alice, _ := newTestController(t, st, "a1", Config{})
	alice.Start(context.Background())
	require.NoError(t, alice.SelectContact("b1"))
	require.NoError(t, alice.Send(context.Background(), "hello there"))

	doc, err := st.GetDocument(context.Background(), "chats/a1_b1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "b1"}, doc.StringSlice("participants"))
	assert.Equal(t, "hello there", doc.String("last_message"))
	assert.Equal(t, int64(1), doc.Int64(models.UnreadField("b1")))
	assert.Equal(t, int64(0), doc.Int64(models.UnreadField("a1")))
	assert.False(t, doc.Bool(models.TypingField("a1")))
	assert.False(t, doc.Time("last_message_at").IsZero())

	assert.Equal(t, 1, st.DocumentCount("chats/a1_b1/messages"))
}

func TestUnreadAccumulatesPerMessage(t *testing.T) {
	st := store.NewMemoryStore()
	seedUsers(t, st,
		models.User{UID: "a1", Name: "Alice"},
		models.User{UID: "b1", Name: "Bob"},
	)

	alice, _ := newTestController(t, st, "a1", Config{})
	alice.Start(context.Background())
	require.NoError(t, alice.SelectContact("b1"))

	for i := 0; i < 5; i++ {
		require.NoError(t, alice.Send(context.Background(), fmt.Sprintf("message %d", i)))
	}

	assert.Equal(t, int64(5), summaryField(t, st, "a1_b1", models.UnreadField("b1")))
	assert.Equal(t, int64(0), summaryField(t, st, "a1_b1", models.UnreadField("a1")))
	assert.Equal(t, 5, st.DocumentCount("chats/a1_b1/messages"))
}

func TestOpeningThreadMarksRead(t *testing.T) {
	st := store.NewMemoryStore()
	seedUsers(t, st,
		models.User{UID: "a1", Name: "Alice"},
		models.User{UID: "b1", Name: "Bob"},
	)

	alice, _ := newTestController(t, st, "a1", Config{})
	alice.Start(context.Background())
	require.NoError(t, alice.SelectContact("b1"))
	require.NoError(t, alice.Send(context.Background(), "ping"))
	require.NoError(t, alice.Send(context.Background(), "ping again"))
	require.Equal(t, int64(2), summaryField(t, st, "a1_b1", models.UnreadField("b1")))

	bob, bobSink := newTestController(t, st, "b1", Config{})
	bob.Start(context.Background())
	require.NoError(t, bob.SelectContact("a1"))

	require.Eventually(t, func() bool {
		return summaryField(t, st, "a1_b1", models.UnreadField("b1")) == 0
	}, waitFor, tick, "opening the thread should zero the reader's counter")

	// The sender's counter is untouched by the reader's mark-read write.
	assert.Equal(t, int64(0), summaryField(t, st, "a1_b1", models.UnreadField("a1")))

	require.Eventually(t, func() bool {
		return len(bobSink.lastThread()) == 2
	}, waitFor, tick)
}

func TestMarkReadSkippedWhenThreadMissing(t *testing.T) {
	st := store.NewMemoryStore()
	seedUsers(t, st,
		models.User{UID: "a1", Name: "Alice"},
		models.User{UID: "b1", Name: "Bob"},
	)

	alice, sink := newTestController(t, st, "a1", Config{})
	alice.Start(context.Background())
	require.NoError(t, alice.SelectContact("b1"))

	// The empty initial snapshot arrives; no summary document may appear.
	require.Eventually(t, func() bool {
		return sink.lastThread() != nil
	}, waitFor, tick)

	_, err := st.GetDocument(context.Background(), "chats/a1_b1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestThreadMessagesArriveInOrder(t *testing.T) {
	st := store.NewMemoryStore()
	seedUsers(t, st,
		models.User{UID: "a1", Name: "Alice"},
		models.User{UID: "b1", Name: "Bob"},
	)

	alice, _ := newTestController(t, st, "a1", Config{})
	alice.Start(context.Background())
	require.NoError(t, alice.SelectContact("b1"))
	for i := 0; i < 4; i++ {
		require.NoError(t, alice.Send(context.Background(), fmt.Sprintf("msg %d", i)))
	}

	bob, bobSink := newTestController(t, st, "b1", Config{})
	bob.Start(context.Background())
	require.NoError(t, bob.SelectContact("a1"))
	require.NoError(t, bob.Send(context.Background(), "reply"))

	require.Eventually(t, func() bool {
		return len(bobSink.lastThread()) == 5
	}, waitFor, tick)

	msgs := bobSink.lastThread()
	for i := 0; i < 4; i++ {
		assert.Equal(t, fmt.Sprintf("msg %d", i), msgs[i].Text)
		assert.Equal(t, "a1", msgs[i].SenderUID)
	}
	assert.Equal(t, "reply", msgs[4].Text)
	assert.Equal(t, "b1", msgs[4].SenderUID)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].Timestamp.Before(msgs[i-1].Timestamp))
	}
}

func TestSendValidation(t *testing.T) {
	st := store.NewMemoryStore()
	seedUsers(t, st, models.User{UID: "a1", Name: "Alice"})

	alice, _ := newTestController(t, st, "a1", Config{})
	alice.Start(context.Background())

	assert.ErrorIs(t, alice.Send(context.Background(), "hi"), ErrNoContactSelected)

	require.NoError(t, alice.SelectContact("b1"))
	assert.ErrorIs(t, alice.Send(context.Background(), ""), ErrEmptyMessage)
	assert.ErrorIs(t, alice.Send(context.Background(), "   \n\t "), ErrEmptyMessage)
	assert.ErrorIs(t, alice.Send(context.Background(), "<p>  </p>"), ErrEmptyMessage)

	assert.Equal(t, 0, st.DocumentCount("chats/a1_b1/messages"))
}

func TestSendRejectsOverlongMessage(t *testing.T) {
	st := store.NewMemoryStore()
	seedUsers(t, st, models.User{UID: "a1", Name: "Alice"})

	alice, _ := newTestController(t, st, "a1", Config{MaxMessageLen: 16})
	alice.Start(context.Background())
	require.NoError(t, alice.SelectContact("b1"))

	assert.ErrorIs(t, alice.Send(context.Background(), strings.Repeat("x", 17)), ErrMessageTooLong)
	assert.Equal(t, 0, st.DocumentCount("chats/a1_b1/messages"))

	require.NoError(t, alice.Send(context.Background(), strings.Repeat("x", 16)))
	assert.Equal(t, 1, st.DocumentCount("chats/a1_b1/messages"))
}

func TestSendSanitizesMarkup(t *testing.T) {
	st := store.NewMemoryStore()
	seedUsers(t, st, models.User{UID: "a1", Name: "Alice"})

	alice, _ := newTestController(t, st, "a1", Config{})
	alice.Start(context.Background())
	require.NoError(t, alice.SelectContact("b1"))
	require.NoError(t, alice.Send(context.Background(), `<script>alert(1)</script><b>bold</b>`))

	doc, err := st.GetDocument(context.Background(), "chats/a1_b1")
	require.NoError(t, err)
	assert.Equal(t, "<b>bold</b>", doc.String("last_message"))
}

func TestSwitchingThreadsStopsOldDeliveries(t *testing.T) {
	st := store.NewMemoryStore()
	seedUsers(t, st,
		models.User{UID: "a1", Name: "Alice"},
		models.User{UID: "b1", Name: "Bob"},
		models.User{UID: "c1", Name: "Carol"},
	)

	alice, sink := newTestController(t, st, "a1", Config{})
	alice.Start(context.Background())

	require.NoError(t, alice.SelectContact("b1"))
	require.NoError(t, alice.Send(context.Background(), "to bob"))
	require.Eventually(t, func() bool {
		msgs := sink.lastThread()
		return len(msgs) == 1 && msgs[0].Text == "to bob"
	}, waitFor, tick)

	require.NoError(t, alice.SelectContact("c1"))
	require.NoError(t, alice.Send(context.Background(), "to carol"))
	require.Eventually(t, func() bool {
		msgs := sink.lastThread()
		return len(msgs) == 1 && msgs[0].Text == "to carol"
	}, waitFor, tick)

	// Bob sending into the old thread must not reach Alice's sink now.
	bob, _ := newTestController(t, st, "b1", Config{})
	bob.Start(context.Background())
	require.NoError(t, bob.SelectContact("a1"))
	require.NoError(t, bob.Send(context.Background(), "late for bob thread"))

	require.Eventually(t, func() bool {
		return st.DocumentCount("chats/a1_b1/messages") == 2
	}, waitFor, tick)
	msgs := sink.lastThread()
	require.Len(t, msgs, 1)
	assert.Equal(t, "to carol", msgs[0].Text)
}

func TestRosterExcludesSelfAndCarriesUnread(t *testing.T) {
	st := store.NewMemoryStore()
	seedUsers(t, st,
		models.User{UID: "a1", Name: "Alice", Online: true},
		models.User{UID: "b1", Name: "Bob"},
		models.User{UID: "c1", Name: "Carol", Online: true},
	)

	bob, _ := newTestController(t, st, "b1", Config{})
	bob.Start(context.Background())
	require.NoError(t, bob.SelectContact("a1"))
	require.NoError(t, bob.Send(context.Background(), "one"))
	require.NoError(t, bob.Send(context.Background(), "two"))

	alice, sink := newTestController(t, st, "a1", Config{})
	alice.Start(context.Background())

	require.Eventually(t, func() bool {
		roster := sink.lastRoster()
		if len(roster) != 2 {
			return false
		}
		for _, c := range roster {
			if c.UID == "b1" && c.Unread == 2 {
				return true
			}
		}
		return false
	}, waitFor, tick)

	for _, c := range sink.lastRoster() {
		assert.NotEqual(t, "a1", c.UID, "own profile must not appear in the roster")
	}
}

func TestPresenceLifecycle(t *testing.T) {
	st := store.NewMemoryStore()
	seedUsers(t, st, models.User{UID: "a1", Name: "Alice"})

	alice, _ := newTestController(t, st, "a1", Config{})
	alice.Start(context.Background())

	doc, err := st.GetDocument(context.Background(), "users/a1")
	require.NoError(t, err)
	assert.True(t, doc.Bool("online"))
	assert.Equal(t, "Alice", doc.String("name"), "merge write must keep profile fields")

	alice.Close()

	doc, err = st.GetDocument(context.Background(), "users/a1")
	require.NoError(t, err)
	assert.False(t, doc.Bool("online"))
	assert.Equal(t, "Alice", doc.String("name"))
}

func TestCloseIsIdempotentAndStopsDeliveries(t *testing.T) {
	st := store.NewMemoryStore()
	seedUsers(t, st,
		models.User{UID: "a1", Name: "Alice"},
		models.User{UID: "b1", Name: "Bob"},
	)

	alice, sink := newTestController(t, st, "a1", Config{})
	alice.Start(context.Background())
	require.NoError(t, alice.SelectContact("b1"))
	require.NoError(t, alice.Send(context.Background(), "before close"))
	require.Eventually(t, func() bool {
		return len(sink.lastThread()) == 1
	}, waitFor, tick)

	alice.Close()
	alice.Close()

	assert.ErrorIs(t, alice.Send(context.Background(), "after close"), ErrSessionClosed)
	assert.ErrorIs(t, alice.SelectContact("b1"), ErrSessionClosed)
}

func TestFilterRoster(t *testing.T) {
	roster := []models.Contact{
		{UID: "a1", Name: "Alice"},
		{UID: "b1", Name: "Bob"},
		{UID: "c1", Name: "alicia"},
	}

	assert.Len(t, FilterRoster(roster, ""), 3)
	assert.Len(t, FilterRoster(roster, "  "), 3)

	got := FilterRoster(roster, "ALI")
	require.Len(t, got, 2)
	assert.Equal(t, "Alice", got[0].Name)
	assert.Equal(t, "alicia", got[1].Name)

	assert.Empty(t, FilterRoster(roster, "zoe"))
}
