package cache

import "sync"

// KeyLock serializes work per key. Two concurrent executions of one
// fingerprint take turns; the second looks the cache up again under the lock
// and usually hits.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyLock creates an empty KeyLock.
func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]*keyLock)}
}

// Lock acquires the lock for key, blocking while another holder has it.
func (l *KeyLock) Lock(key string) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
}

// Unlock releases the lock for key. The per-key entry is dropped once no
// goroutine holds or awaits it.
func (l *KeyLock) Unlock(key string) {
	l.mu.Lock()
	kl := l.locks[key]
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()

	kl.mu.Unlock()
}
