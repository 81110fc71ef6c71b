package collab

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/glog"
)

// DefaultListTtl bounds how stale an interim listing view may be.
const DefaultListTtl = 60 * time.Second

// TtlCache is a time-boxed cache over the local store, used only to paint
// stale-but-fast views before a fresh fetch resolves. Every cached read is
// followed by an authoritative refetch that overwrites the entry.
//
// The cache is never the sole source for a decision that gates a mutation.
// Preflight checks read fresh from the ledger.
type TtlCache struct {
	store     LocalStore
	namespace string

	// test hook
	clock func() time.Time
}

func NewTtlCache(store LocalStore, namespace string) *TtlCache {
	return &TtlCache{
		store:     store,
		namespace: namespace,
		clock:     time.Now,
	}
}

type cacheEnvelope struct {
	ExpiresMs int64           `json:"expires_ms"`
	Value     json.RawMessage `json:"value"`
}

func (self *TtlCache) key(key string) string {
	return fmt.Sprintf("cache/%s/%s", self.namespace, key)
}

// Get returns the cached value if present and not expired. An expired
// entry is treated as absent and removed.
func (self *TtlCache) Get(key string, out any) bool {
	envelopeBytes, ok, err := self.store.Get(self.key(key))
	if err != nil {
		glog.Infof("[cache]get %s error = %s\n", key, err)
		return false
	}
	if !ok {
		return false
	}

	var envelope cacheEnvelope
	if err := json.Unmarshal(envelopeBytes, &envelope); err != nil {
		self.store.Delete(self.key(key))
		return false
	}
	if envelope.ExpiresMs <= self.clock().UnixMilli() {
		self.store.Delete(self.key(key))
		return false
	}
	if err := json.Unmarshal(envelope.Value, out); err != nil {
		self.store.Delete(self.key(key))
		return false
	}
	return true
}

func (self *TtlCache) Set(key string, value any, ttl time.Duration) {
	valueBytes, err := json.Marshal(value)
	if err != nil {
		glog.Infof("[cache]set %s error = %s\n", key, err)
		return
	}
	envelope := cacheEnvelope{
		ExpiresMs: self.clock().Add(ttl).UnixMilli(),
		Value:     valueBytes,
	}
	envelopeBytes, err := json.Marshal(envelope)
	if err != nil {
		return
	}
	if err := self.store.Set(self.key(key), envelopeBytes); err != nil {
		glog.Infof("[cache]set %s error = %s\n", key, err)
	}
}

func (self *TtlCache) Delete(key string) {
	self.store.Delete(self.key(key))
}
