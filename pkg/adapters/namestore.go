package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnserr"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnsrecord"
)

// NamestoreClient looks up locally authoritative records for a zone/label
// pair — the source of truth a Publisher reads from before signing and
// publishing a block.
type NamestoreClient interface {
	Lookup(ctx context.Context, zonePub []byte, label string) ([]gnsrecord.Record, error)
	Store(ctx context.Context, zonePub []byte, label string, rds []gnsrecord.Record) error
}

// NamecacheClient caches previously resolved blocks keyed by DHT query
// hash, short-circuiting a repeat DHT lookup for a hot label.
type NamecacheClient interface {
	Get(ctx context.Context, query [32]byte) ([]byte, bool, error)
	Put(ctx context.Context, query [32]byte, block []byte, expiration time.Time) error
}

// RedisNamecache is an optional Redis-backed NamecacheClient, grounded on
// the teacher's lighthouse.Store connection/ping/SetEx idiom.
type RedisNamecache struct {
	rdb *redis.Client
}

const namecacheKeyPrefix = "gns:cache:"

// NewRedisNamecache connects to addr and verifies reachability before
// returning, matching the teacher's NewStore fail-fast convention.
func NewRedisNamecache(addr string) (*RedisNamecache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           0,
		ReadTimeout:  200 * time.Millisecond,
		WriteTimeout: 200 * time.Millisecond,
		DialTimeout:  2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, gnserr.New(gnserr.KindConfigurationInvalid, "adapters.NewRedisNamecache", fmt.Errorf("redis connection failed: %w", err))
	}

	return &RedisNamecache{rdb: rdb}, nil
}

// Get returns the cached block for query, if present and unexpired. A miss
// (redis.Nil) is not retried; only transient connection errors are.
func (c *RedisNamecache) Get(ctx context.Context, query [32]byte) ([]byte, bool, error) {
	var data []byte
	err := withRetry(ctx, func() error {
		d, err := c.rdb.Get(ctx, namecacheKeyPrefix+queryKey(query)).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		data = d
		return nil
	})
	if err != nil {
		return nil, false, gnserr.New(gnserr.KindInternal, "adapters.RedisNamecache.Get", err)
	}
	return data, data != nil, nil
}

// Put caches block under query until expiration (Redis TTL enforces
// eviction; no separate reaper goroutine needed).
func (c *RedisNamecache) Put(ctx context.Context, query [32]byte, block []byte, expiration time.Time) error {
	ttl := time.Until(expiration)
	if ttl <= 0 {
		return nil
	}
	err := withRetry(ctx, func() error {
		return c.rdb.Set(ctx, namecacheKeyPrefix+queryKey(query), block, ttl).Err()
	})
	if err != nil {
		return gnserr.New(gnserr.KindInternal, "adapters.RedisNamecache.Put", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *RedisNamecache) Close() error {
	return c.rdb.Close()
}

func queryKey(query [32]byte) string {
	return fmt.Sprintf("%x", query[:])
}

// InMemoryNamestore is a process-local NamestoreClient: the zone owner's
// authoritative record sets, keyed by label.
type InMemoryNamestore struct {
	records map[string]map[string][]gnsrecord.Record
}

// NewInMemoryNamestore creates an empty namestore.
func NewInMemoryNamestore() *InMemoryNamestore {
	return &InMemoryNamestore{records: make(map[string]map[string][]gnsrecord.Record)}
}

func (s *InMemoryNamestore) Lookup(_ context.Context, zonePub []byte, label string) ([]gnsrecord.Record, error) {
	byLabel, ok := s.records[string(zonePub)]
	if !ok {
		return nil, gnserr.New(gnserr.KindNotFound, "adapters.InMemoryNamestore.Lookup", fmt.Errorf("no records for zone"))
	}
	rds, ok := byLabel[label]
	if !ok {
		return nil, gnserr.New(gnserr.KindNotFound, "adapters.InMemoryNamestore.Lookup", fmt.Errorf("label %q not found", label))
	}
	return rds, nil
}

func (s *InMemoryNamestore) Store(_ context.Context, zonePub []byte, label string, rds []gnsrecord.Record) error {
	byLabel, ok := s.records[string(zonePub)]
	if !ok {
		byLabel = make(map[string][]gnsrecord.Record)
		s.records[string(zonePub)] = byLabel
	}
	byLabel[label] = rds
	return nil
}
