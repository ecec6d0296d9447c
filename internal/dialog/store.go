package dialog

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// entry guards one session. Everything that reads or steps a session holds mu.
type entry struct {
	mu sync.Mutex
	s  Session
}

// SessionStore keeps live dialog sessions in memory, bounded in count and
// expiring after Timeout of inactivity.
//
// Expired or capacity-evicted sessions that are not terminal are handed to
// the expiry hook (run on its own goroutine), which the Controller uses to
// drive the Timeout transition.
type SessionStore struct {
	lru *expirable.LRU[Key, *entry]

	hookMu sync.RWMutex
	hook   func(Key, *entry)
}

func NewSessionStore(maxSessions int, ttl time.Duration) *SessionStore {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if ttl <= 0 {
		ttl = DefaultTimeout
	}
	st := &SessionStore{}
	st.lru = expirable.NewLRU[Key, *entry](maxSessions, st.evicted, ttl)
	return st
}

func (st *SessionStore) setExpireHook(fn func(Key, *entry)) {
	st.hookMu.Lock()
	st.hook = fn
	st.hookMu.Unlock()
}

// evicted runs under the LRU lock: it must not block or call back into the LRU.
func (st *SessionStore) evicted(k Key, e *entry) {
	st.hookMu.RLock()
	fn := st.hook
	st.hookMu.RUnlock()
	if fn == nil || e == nil {
		return
	}
	go fn(k, e)
}

func (st *SessionStore) get(k Key) (*entry, bool) { return st.lru.Get(k) }

// touch (re)inserts e under k, restarting its inactivity timer.
func (st *SessionStore) touch(k Key, e *entry) { st.lru.Add(k, e) }

// drop removes k only when it still maps to e.
func (st *SessionStore) drop(k Key, e *entry) {
	if cur, ok := st.lru.Peek(k); ok && cur == e {
		st.lru.Remove(k)
	}
}

// Len returns the number of live sessions.
func (st *SessionStore) Len() int { return st.lru.Len() }

// Keys returns the keys of live sessions, oldest first.
func (st *SessionStore) Keys() []Key { return st.lru.Keys() }

// Get returns a copy of the session stored under k.
func (st *SessionStore) Get(k Key) (Session, bool) {
	e, ok := st.lru.Peek(k)
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.s
	s.Transient = append([]int(nil), e.s.Transient...)
	return s, true
}
