package utils

import (
	"hash/fnv"
	"sync"
)

// KeyedMutex gives mutual exclusion per string key without holding one
// mutex per live key. Keys are striped over a fixed set of locks, so two
// distinct keys may share a stripe; that only costs contention, never
// correctness. The zero value is ready to use.
type KeyedMutex struct {
	stripes [keyedMutexStripes]sync.Mutex
}

const keyedMutexStripes = 128

func (km *KeyedMutex) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &km.stripes[h.Sum32()%keyedMutexStripes]
}

// Lock acquires the stripe for key.
func (km *KeyedMutex) Lock(key string) {
	km.stripe(key).Lock()
}

// Unlock releases the stripe for key.
func (km *KeyedMutex) Unlock(key string) {
	km.stripe(key).Unlock()
}
