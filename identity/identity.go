// Package identity resolves the user, guild and channel ids the mock client
// runs as during local development.
package identity

import (
	"crypto/rand"
	"math/big"
	"net/url"
	"sync"
)

type Key string

const (
	KeyUserID    Key = "user_id"
	KeyGuildID   Key = "guild_id"
	KeyChannelID Key = "channel_id"
)

// Store keeps values for the lifetime of one browser tab.
type Store interface {
	Get(key Key) (string, bool)
	Set(key Key, value string)
}

type MemoryStore struct {
	mu     sync.Mutex
	values map[Key]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[Key]string{}}
}

func (s *MemoryStore) Get(key Key) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemoryStore) Set(key Key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// OverrideOrRandom returns the query parameter for key when present, the
// stored value otherwise, and finally a fresh random value which is stored.
// An explicit override is stored as well so later loads without the parameter
// keep it.
func OverrideOrRandom(query url.Values, store Store, key Key) string {
	if vs, ok := query[string(key)]; ok && len(vs) > 0 {
		store.Set(key, vs[0])
		return vs[0]
	}
	if v, ok := store.Get(key); ok {
		return v
	}
	v := RandomString(8)
	store.Set(key, v)
	return v
}

// Overrides is the identity the mock client is built with.
type Overrides struct {
	UserID    string
	GuildID   string
	ChannelID string
}

func Resolve(query url.Values, store Store) Overrides {
	return Overrides{
		UserID:    OverrideOrRandom(query, store, KeyUserID),
		GuildID:   OverrideOrRandom(query, store, KeyGuildID),
		ChannelID: OverrideOrRandom(query, store, KeyChannelID),
	}
}

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// RandomString returns n random base-36 characters.
func RandomString(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("identity: failed to read random bytes: " + err.Error())
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b)
}
