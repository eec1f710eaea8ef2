package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const memoryShards = 32

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps buckets in process. Keys are spread over shards with one mutex each.
type MemoryStore struct {
	shards [memoryShards]*memoryShard
}

type memoryShard struct {
	lock    sync.Mutex
	buckets map[string]*Bucket
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &memoryShard{buckets: make(map[string]*Bucket)}
	}
	return s
}

func (s *MemoryStore) shard(key string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%memoryShards]
}

func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration, now time.Time) (Bucket, error) {
	sh := s.shard(key)
	sh.lock.Lock()
	defer sh.lock.Unlock()

	b, ok := sh.buckets[key]
	if !ok || now.After(b.ResetAt) {
		b = &Bucket{Count: 1, ResetAt: now.Add(window)}
		sh.buckets[key] = b
		return *b, nil
	}
	b.Count++
	return *b, nil
}

func (s *MemoryStore) Peek(_ context.Context, key string, now time.Time) (Bucket, bool, error) {
	sh := s.shard(key)
	sh.lock.Lock()
	defer sh.lock.Unlock()

	b, ok := sh.buckets[key]
	if !ok || now.After(b.ResetAt) {
		return Bucket{}, false, nil
	}
	return *b, true, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	sh := s.shard(key)
	sh.lock.Lock()
	defer sh.lock.Unlock()

	delete(sh.buckets, key)
	return nil
}

// Sweep drops every bucket whose window has passed and returns how many were removed
func (s *MemoryStore) Sweep(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.lock.Lock()
		for key, b := range sh.buckets {
			if now.After(b.ResetAt) {
				delete(sh.buckets, key)
				removed++
			}
		}
		sh.lock.Unlock()
	}
	return removed
}

// Len is the number of buckets held, expired or not
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.lock.Lock()
		n += len(sh.buckets)
		sh.lock.Unlock()
	}
	return n
}

// StartJanitor sweeps every interval until ctx is done
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.Sweep(now)
			}
		}
	}()
}
