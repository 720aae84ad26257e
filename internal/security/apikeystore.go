package security

import (
	"strconv"
	"sync"
	"time"
)

// ApiKeyInfo is the metadata the API-Key Store (C3) returns for a looked-up
// key: whether it is active, and the rate-limit policy it carries.
type ApiKeyInfo struct {
	ID        string            `yaml:"id" json:"id"`
	Name      string            `yaml:"name" json:"name"`
	Key       string            `yaml:"key" json:"-"`
	Active    bool              `yaml:"active" json:"active"`
	RateLimit KeyRateLimit      `yaml:"rate_limit" json:"rate_limit"`
	Metadata  map[string]string `yaml:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// KeyRateLimit is a single key's rate-limit policy, as referenced by
// spec §3's ApiKeyInfo and consumed by the Rate Limiter (§4.4).
type KeyRateLimit struct {
	RPM        int `yaml:"rpm" json:"rpm"`
	RPH        int `yaml:"rph" json:"rph"`
	Concurrent int `yaml:"concurrent" json:"concurrent"`
}

// ApiKeyStore is a keyed lookup from raw key to ApiKeyInfo, owned behind a
// single mutation path (admin operations), with concurrent-safe reads.
type ApiKeyStore struct {
	mu      sync.RWMutex
	byKey   map[string]*ApiKeyInfo
	defPolicy KeyRateLimit
}

func NewApiKeyStore(defaultPolicy KeyRateLimit) *ApiKeyStore {
	return &ApiKeyStore{
		byKey:     make(map[string]*ApiKeyInfo),
		defPolicy: defaultPolicy,
	}
}

// LoadKeys seeds the store from a static configuration list (e.g. the
// legacy `api_keys: [...]` config strings), each becoming an active key
// with the store's default rate-limit policy.
func (s *ApiKeyStore) LoadKeys(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range keys {
		s.byKey[k] = &ApiKeyInfo{
			ID:        generateUserID(k),
			Name:      "legacy-key-" + strconv.Itoa(i),
			Key:       k,
			Active:    true,
			RateLimit: s.defPolicy,
			CreatedAt: time.Now(),
		}
	}
}

// Put installs or updates one key's metadata (the "owning store" mutation
// path referenced by spec §3).
func (s *ApiKeyStore) Put(info *ApiKeyInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[info.Key] = info
}

// Lookup returns the metadata for a raw key, or (nil, false) if unknown.
func (s *ApiKeyStore) Lookup(key string) (*ApiKeyInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.byKey[key]
	return info, ok
}

// Deactivate marks a key inactive without deleting its history.
func (s *ApiKeyStore) Deactivate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if info, ok := s.byKey[key]; ok {
		info.Active = false
	}
}

