// Package locks serializes work per int64 key. Conversation events and
// scheduler fires for the same user funnel through one mutex so their reads
// and writes of that user's state never interleave.
package locks

import "sync"

// KeyedMutex hands out one mutex per key. Mutexes are retained for the process
// lifetime; the population is bounded by the number of active users.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *KeyedMutex) Lock(key int64) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
