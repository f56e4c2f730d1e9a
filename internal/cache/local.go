package cache

import (
	"container/list"
	"sync"
	"time"
)

// Entry is one cached value with its absolute expiry
type Entry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e *Entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// localStore is a bounded map that evicts in insertion order
type localStore struct {
	mu       sync.Mutex
	maxSize  int
	order    *list.List
	elements map[string]*list.Element
}

func newLocalStore(maxSize int) *localStore {
	return &localStore{
		maxSize:  maxSize,
		order:    list.New(),
		elements: make(map[string]*list.Element),
	}
}

// get returns the live entry for key. An expired entry is removed and
// reported through the second return value.
func (s *localStore) get(key string, now time.Time) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.elements[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*Entry)
	if entry.expired(now) {
		s.removeElement(el)
		return nil, true
	}
	copied := *entry
	return &copied, false
}

// set stores entry and returns the number of entries evicted to make room.
// Overwriting an existing key keeps its position.
func (s *localStore) set(entry *Entry) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.elements[entry.Key]; ok {
		el.Value = entry
		return 0
	}

	evicted := 0
	for s.maxSize > 0 && s.order.Len() >= s.maxSize {
		s.removeElement(s.order.Front())
		evicted++
	}

	s.elements[entry.Key] = s.order.PushBack(entry)
	return evicted
}

func (s *localStore) delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.elements[key]
	if !ok {
		return false
	}
	s.removeElement(el)
	return true
}

// deleteMatching removes every key for which match returns true
func (s *localStore) deleteMatching(match func(string) bool) int {
	return s.deleteMatchingEntries(func(e *Entry) bool { return match(e.Key) })
}

// sweep removes every expired entry
func (s *localStore) sweep(now time.Time) int {
	return s.deleteMatchingEntries(func(e *Entry) bool { return e.expired(now) })
}

func (s *localStore) deleteMatchingEntries(match func(*Entry) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for el := s.order.Front(); el != nil; {
		next := el.Next()
		if match(el.Value.(*Entry)) {
			s.removeElement(el)
			removed++
		}
		el = next
	}
	return removed
}

func (s *localStore) clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.order.Len()
	s.order.Init()
	s.elements = make(map[string]*list.Element)
	return n
}

func (s *localStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *localStore) removeElement(el *list.Element) {
	s.order.Remove(el)
	delete(s.elements, el.Value.(*Entry).Key)
}
