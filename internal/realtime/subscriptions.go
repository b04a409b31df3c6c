package realtime

import (
	"sort"
	"sync"
)

// SubscriptionIndex maps a resource id to the users interested in it.
// Resources with no subscribers are removed.
type SubscriptionIndex struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]struct{}
}

// NewSubscriptionIndex creates an empty index.
func NewSubscriptionIndex() *SubscriptionIndex {
	return &SubscriptionIndex{subscribers: make(map[string]map[string]struct{})}
}

// Subscribe adds userID to resourceID. It is idempotent.
func (s *SubscriptionIndex) Subscribe(resourceID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.subscribers[resourceID]
	if set == nil {
		set = make(map[string]struct{})
		s.subscribers[resourceID] = set
	}
	set[userID] = struct{}{}
}

// Unsubscribe removes userID from resourceID.
func (s *SubscriptionIndex) Unsubscribe(resourceID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.subscribers[resourceID]
	if set == nil {
		return
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(s.subscribers, resourceID)
	}
}

// SubscribersOf returns the subscribers of resourceID in a stable order.
func (s *SubscriptionIndex) SubscribersOf(resourceID string) []string {
	s.mu.RLock()
	set := s.subscribers[resourceID]
	out := make([]string, 0, len(set))
	for userID := range set {
		out = append(out, userID)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// SubscriberCount returns how many users follow resourceID.
func (s *SubscriptionIndex) SubscriberCount(resourceID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers[resourceID])
}

// IsSubscribed reports whether userID follows resourceID.
func (s *SubscriptionIndex) IsSubscribed(resourceID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subscribers[resourceID][userID]
	return ok
}

// Has reports whether resourceID has an entry in the index.
func (s *SubscriptionIndex) Has(resourceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subscribers[resourceID]
	return ok
}

// ResourceCount returns the number of resources with at least one subscriber.
func (s *SubscriptionIndex) ResourceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
