package replenishment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockroom/stockroom/internal/shared"
)

// MarkerState tags a per-item request marker.
type MarkerState string

const (
	MarkerNotNeeded MarkerState = "not_needed"
	MarkerRequested MarkerState = "requested"
	MarkerFulfilled MarkerState = "fulfilled"
)

// Marker records whether an item has an outstanding reorder. RequestID is
// set only in the Requested state.
type Marker struct {
	State     MarkerState `json:"state"`
	RequestID string      `json:"request_id,omitempty"`
}

// NotNeeded is the zero marker.
func NotNeeded() Marker { return Marker{State: MarkerNotNeeded} }

// Requested marks an outstanding request.
func Requested(requestID string) Marker { return Marker{State: MarkerRequested, RequestID: requestID} }

// Fulfilled marks a request whose stock has arrived.
func Fulfilled() Marker { return Marker{State: MarkerFulfilled} }

func (m Marker) encode() string {
	if m.State == MarkerRequested {
		return string(MarkerRequested) + ":" + m.RequestID
	}
	return string(m.State)
}

func decodeMarker(raw string) Marker {
	if id, ok := strings.CutPrefix(raw, string(MarkerRequested)+":"); ok {
		return Requested(id)
	}
	if raw == string(MarkerFulfilled) {
		return Fulfilled()
	}
	return NotNeeded()
}

// MarkerStore persists markers per organization and item. Requested markers
// expire after the store's cooldown so a lost order is retried.
type MarkerStore interface {
	Get(ctx context.Context, organizationID string, itemIDs []string) (map[string]Marker, error)
	// Reserve moves an item to Requested unless a request is already
	// outstanding; it reports whether the reservation was taken.
	Reserve(ctx context.Context, organizationID, itemID, requestID string) (bool, error)
	// Release drops a Requested marker held by requestID.
	Release(ctx context.Context, organizationID, itemID, requestID string) error
	Fulfill(ctx context.Context, organizationID, itemID string) error
	Clear(ctx context.Context, organizationID, itemID string) error
}

// ErrMarkersUnavailable indicates no marker backend was configured.
var ErrMarkersUnavailable = errors.New("replenishment: marker store unavailable")

var reserveScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v == false or v == ARGV[3] then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
	return 1
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisMarkerStore keeps markers in Redis under shared.ReorderMarkerKey.
type RedisMarkerStore struct {
	client   *redis.Client
	cooldown time.Duration
}

// NewRedisMarkerStore constructs the Redis marker store.
func NewRedisMarkerStore(client *redis.Client, cooldown time.Duration) *RedisMarkerStore {
	if cooldown <= 0 {
		cooldown = 24 * time.Hour
	}
	return &RedisMarkerStore{client: client, cooldown: cooldown}
}

// Get implements MarkerStore.
func (s *RedisMarkerStore) Get(ctx context.Context, organizationID string, itemIDs []string) (map[string]Marker, error) {
	if s == nil || s.client == nil {
		return nil, ErrMarkersUnavailable
	}
	out := make(map[string]Marker, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		keys[i] = shared.ReorderMarkerKey(organizationID, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		out[itemIDs[i]] = decodeMarker(raw)
	}
	return out, nil
}

// Reserve implements MarkerStore.
func (s *RedisMarkerStore) Reserve(ctx context.Context, organizationID, itemID, requestID string) (bool, error) {
	if s == nil || s.client == nil {
		return false, ErrMarkersUnavailable
	}
	key := shared.ReorderMarkerKey(organizationID, itemID)
	n, err := reserveScript.Run(ctx, s.client, []string{key},
		Requested(requestID).encode(), s.cooldown.Milliseconds(), Fulfilled().encode()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release implements MarkerStore.
func (s *RedisMarkerStore) Release(ctx context.Context, organizationID, itemID, requestID string) error {
	if s == nil || s.client == nil {
		return ErrMarkersUnavailable
	}
	key := shared.ReorderMarkerKey(organizationID, itemID)
	return releaseScript.Run(ctx, s.client, []string{key}, Requested(requestID).encode()).Err()
}

// Fulfill implements MarkerStore.
func (s *RedisMarkerStore) Fulfill(ctx context.Context, organizationID, itemID string) error {
	if s == nil || s.client == nil {
		return ErrMarkersUnavailable
	}
	return s.client.Set(ctx, shared.ReorderMarkerKey(organizationID, itemID), Fulfilled().encode(), s.cooldown).Err()
}

// Clear implements MarkerStore.
func (s *RedisMarkerStore) Clear(ctx context.Context, organizationID, itemID string) error {
	if s == nil || s.client == nil {
		return ErrMarkersUnavailable
	}
	return s.client.Del(ctx, shared.ReorderMarkerKey(organizationID, itemID)).Err()
}

type memoryMarker struct {
	marker  Marker
	expires time.Time
}

// MemoryMarkerStore is an in-process MarkerStore.
type MemoryMarkerStore struct {
	cooldown time.Duration
	now      func() time.Time

	mu      sync.Mutex
	markers map[string]memoryMarker
}

// NewMemoryMarkerStore constructs the in-memory marker store.
func NewMemoryMarkerStore(cooldown time.Duration) *MemoryMarkerStore {
	if cooldown <= 0 {
		cooldown = 24 * time.Hour
	}
	return &MemoryMarkerStore{cooldown: cooldown, now: time.Now, markers: make(map[string]memoryMarker)}
}

// Get implements MarkerStore.
func (s *MemoryMarkerStore) Get(ctx context.Context, organizationID string, itemIDs []string) (map[string]Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Marker, len(itemIDs))
	for _, id := range itemIDs {
		if m, ok := s.lookup(shared.ReorderMarkerKey(organizationID, id)); ok {
			out[id] = m
		}
	}
	return out, nil
}

// Reserve implements MarkerStore.
func (s *MemoryMarkerStore) Reserve(ctx context.Context, organizationID, itemID, requestID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := shared.ReorderMarkerKey(organizationID, itemID)
	if m, ok := s.lookup(key); ok && m.State != MarkerFulfilled {
		return false, nil
	}
	s.markers[key] = memoryMarker{marker: Requested(requestID), expires: s.now().Add(s.cooldown)}
	return true, nil
}

// Release implements MarkerStore.
func (s *MemoryMarkerStore) Release(ctx context.Context, organizationID, itemID, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := shared.ReorderMarkerKey(organizationID, itemID)
	if m, ok := s.lookup(key); ok && m == Requested(requestID) {
		delete(s.markers, key)
	}
	return nil
}

// Fulfill implements MarkerStore.
func (s *MemoryMarkerStore) Fulfill(ctx context.Context, organizationID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[shared.ReorderMarkerKey(organizationID, itemID)] = memoryMarker{marker: Fulfilled(), expires: s.now().Add(s.cooldown)}
	return nil
}

// Clear implements MarkerStore.
func (s *MemoryMarkerStore) Clear(ctx context.Context, organizationID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, shared.ReorderMarkerKey(organizationID, itemID))
	return nil
}

func (s *MemoryMarkerStore) lookup(key string) (Marker, bool) {
	m, ok := s.markers[key]
	if !ok {
		return Marker{}, false
	}
	if !s.now().Before(m.expires) {
		delete(s.markers, key)
		return Marker{}, false
	}
	return m.marker, true
}
