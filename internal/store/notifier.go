package store

import (
	"sync"
)

// notifier fans out commit signals to subscriptions keyed by topic (a
// document path or a collection path). Each subscription runs its own
// delivery goroutine, so deliveries for one subscription are serialized
// while independent subscriptions stay independent. Signals are coalesced:
// a subscriber busy delivering collapses pending commits into one re-read
// of current state, which preserves commit order without unbounded queues.
type notifier struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]*subscription
}

type subscription struct {
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[string]map[int]*subscription)}
}

// subscribe registers deliver under topic and invokes it once immediately
// (the initial snapshot), then once per publish.
func (n *notifier) subscribe(topic string, deliver func()) UnsubscribeFunc {
	sub := &subscription{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	n.mu.Lock()
	id := n.next
	n.next++
	if n.subs[topic] == nil {
		n.subs[topic] = make(map[int]*subscription)
	}
	n.subs[topic][id] = sub
	n.mu.Unlock()

	go func() {
		deliver()
		for {
			select {
			case <-sub.done:
				return
			case <-sub.signal:
				select {
				case <-sub.done:
					return
				default:
				}
				deliver()
			}
		}
	}()

	return func() {
		sub.once.Do(func() { close(sub.done) })
		n.mu.Lock()
		delete(n.subs[topic], id)
		if len(n.subs[topic]) == 0 {
			delete(n.subs, topic)
		}
		n.mu.Unlock()
	}
}

// publish signals every subscription on the given topics.
func (n *notifier) publish(topics ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, topic := range topics {
		for _, sub := range n.subs[topic] {
			select {
			case sub.signal <- struct{}{}:
			default:
			}
		}
	}
}
