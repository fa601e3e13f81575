package llmgateway

import (
	"container/list"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/thornxyz/revera/internal/circuitbreaker"
)

// EmbeddingCache caches embedding vectors by (model, text) key, two tiers
// deep: an in-process LRU in front of a shared Redis cache.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, v []float32, ttl time.Duration)
}

// MakeEmbeddingKey hashes model+text with blake2b rather than the teacher's
// md5 — blake2b is already in the dependency surface (x/crypto) and avoids
// pulling in an MD5 import solely for cache-key hashing.
func MakeEmbeddingKey(model, text string) string {
	h := blake2b.Sum256([]byte(model + "|" + text))
	return "emb:" + hex.EncodeToString(h[:16])
}

// MakeGenerationKey hashes the full prompt shape of a non-streaming
// generate/generate_json call so identical calls can be served from cache.
func MakeGenerationKey(model, system, prompt string, temperature float64) string {
	h := blake2b.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%.3f", model, system, prompt, temperature)))
	return "gen:" + hex.EncodeToString(h[:16])
}

type lruEntry struct {
	key string
	vec []float32
	exp time.Time
}

// LocalLRU is an in-process LRU with per-entry TTL, mirroring the teacher's
// container/list based embedding cache.
type LocalLRU struct {
	mu   sync.Mutex
	cap  int
	list *list.List
	m    map[string]*list.Element
}

func NewLocalLRU(capacity int) *LocalLRU {
	if capacity <= 0 {
		capacity = 2048
	}
	return &LocalLRU{cap: capacity, list: list.New(), m: make(map[string]*list.Element, capacity)}
}

func (l *LocalLRU) Get(_ context.Context, key string) ([]float32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.m[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(lruEntry)
	if !ent.exp.After(time.Now()) {
		l.list.Remove(el)
		delete(l.m, key)
		return nil, false
	}
	l.list.MoveToFront(el)
	return ent.vec, true
}

func (l *LocalLRU) Set(_ context.Context, key string, v []float32, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.m[key]; ok {
		el.Value = lruEntry{key: key, vec: v, exp: time.Now().Add(ttl)}
		l.list.MoveToFront(el)
		return
	}
	el := l.list.PushFront(lruEntry{key: key, vec: v, exp: time.Now().Add(ttl)})
	l.m[key] = el
	if l.list.Len() > l.cap {
		back := l.list.Back()
		if back != nil {
			delete(l.m, back.Value.(lruEntry).key)
			l.list.Remove(back)
		}
	}
}

// RedisCache is the shared second tier, circuit-breaker wrapped like every
// other Redis consumer in the service.
type RedisCache struct {
	cli *circuitbreaker.RedisWrapper
}

func NewRedisCache(wrapper *circuitbreaker.RedisWrapper) *RedisCache {
	return &RedisCache{cli: wrapper}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	if r == nil || r.cli == nil {
		return nil, false
	}
	b, err := r.cli.Get(ctx, key).Bytes()
	if err != nil || len(b)%4 != 0 {
		return nil, false
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, true
}

func (r *RedisCache) Set(ctx context.Context, key string, v []float32, ttl time.Duration) {
	if r == nil || r.cli == nil {
		return
	}
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	_ = r.cli.Set(ctx, key, b, ttl).Err()
}

// textCache caches whole generation strings (not vectors), used for
// non-streaming generate/generate_json results.
type textCache struct {
	cli *circuitbreaker.RedisWrapper
}

func (t *textCache) Get(ctx context.Context, key string) (string, bool) {
	if t == nil || t.cli == nil {
		return "", false
	}
	v, err := t.cli.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (t *textCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if t == nil || t.cli == nil {
		return
	}
	_ = t.cli.Set(ctx, key, value, ttl).Err()
}
