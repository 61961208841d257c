package reminder

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry tracks which conversations receive reminders.
// It is safe for concurrent use; a nil Store keeps state in memory only.
type Registry struct {
	mu         sync.RWMutex
	subs       map[string]*Subscription
	store      Store
	timeSource TimeSource
}

// NewRegistry creates a Registry backed by store (which may be nil)
func NewRegistry(store Store) *Registry {
	return NewRegistryWithDeps(store, &defaultTimeSource{})
}

// NewRegistryWithDeps creates a Registry with a custom time source for testing
func NewRegistryWithDeps(store Store, timeSrc TimeSource) *Registry {
	return &Registry{
		subs:       make(map[string]*Subscription),
		store:      store,
		timeSource: timeSrc,
	}
}

// Load replaces the in-memory state with the store's contents
func (r *Registry) Load() error {
	if r.store == nil {
		return nil
	}
	subs, err := r.store.ListSubscriptions()
	if err != nil {
		return fmt.Errorf("listing subscriptions: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string]*Subscription, len(subs))
	for _, sub := range subs {
		r.subs[sub.ConversationID] = sub
	}
	return nil
}

// Subscribe adds a conversation. It reports false when the conversation was
// already subscribed, in which case the existing entry is left untouched.
func (r *Registry) Subscribe(conversationID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[conversationID]; ok {
		return false, nil
	}
	sub := &Subscription{
		ConversationID: conversationID,
		SubscribedAt:   r.timeSource.Now(),
	}
	if r.store != nil {
		if err := r.store.SaveSubscription(sub); err != nil {
			return false, fmt.Errorf("saving subscription: %w", err)
		}
	}
	r.subs[conversationID] = sub
	return true, nil
}

// Unsubscribe removes a conversation; unknown conversations are a no-op
func (r *Registry) Unsubscribe(conversationID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[conversationID]; !ok {
		return false, nil
	}
	if r.store != nil {
		if err := r.store.DeleteSubscription(conversationID); err != nil {
			return false, fmt.Errorf("deleting subscription: %w", err)
		}
	}
	delete(r.subs, conversationID)
	return true, nil
}

// IsSubscribed reports whether the conversation is subscribed
func (r *Registry) IsSubscribed(conversationID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[conversationID]
	return ok
}

// RecordCheck stores the outcome of a photo check. Non-members are ignored
// and false is returned.
func (r *Registry) RecordCheck(conversationID, result string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[conversationID]
	if !ok {
		return false
	}
	now := r.timeSource.Now()
	sub.LastCheckedAt = &now
	sub.LastResult = result

	if r.store != nil {
		if err := r.store.SaveSubscription(sub); err != nil {
			slog.Warn("Failed to persist check result", "conversation_id", conversationID, "error", err)
		}
	}
	return true
}

// Status returns a copy of the conversation's subscription
func (r *Registry) Status(conversationID string) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[conversationID]
	if !ok {
		return Subscription{}, false
	}
	return copySubscription(sub), true
}

// List returns copies of all subscriptions ordered by conversation ID
func (r *Registry) List() []Subscription {
	r.mu.RLock()
	subs := make([]Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, copySubscription(sub))
	}
	r.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].ConversationID < subs[j].ConversationID
	})
	return subs
}

func copySubscription(sub *Subscription) Subscription {
	c := *sub
	if sub.LastCheckedAt != nil {
		t := *sub.LastCheckedAt
		c.LastCheckedAt = &t
	}
	return c
}
