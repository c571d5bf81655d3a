package identity

import (
	"net/url"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverrideOrRandomUsesQuery(t *testing.T) {
	store := NewMemoryStore()
	q := url.Values{"user_id": []string{"abc"}}

	assert.Equal(t, "abc", OverrideOrRandom(q, store, KeyUserID))

	stored, ok := store.Get(KeyUserID)
	assert.True(t, ok)
	assert.Equal(t, "abc", stored)
}

func TestOverrideOrRandomIsStable(t *testing.T) {
	store := NewMemoryStore()

	first := OverrideOrRandom(url.Values{}, store, KeyGuildID)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-z]{8}$`), first)

	for i := 0; i < 5; i++ {
		assert.Equal(t, first, OverrideOrRandom(url.Values{}, store, KeyGuildID))
	}
}

func TestOverrideOrRandomPerStore(t *testing.T) {
	a := OverrideOrRandom(url.Values{}, NewMemoryStore(), KeyChannelID)
	b := OverrideOrRandom(url.Values{}, NewMemoryStore(), KeyChannelID)

	assert.NotEqual(t, a, b)
}

func TestResolve(t *testing.T) {
	store := NewMemoryStore()
	o := Resolve(url.Values{"channel_id": []string{"c1"}}, store)

	assert.Equal(t, "c1", o.ChannelID)
	assert.Len(t, o.UserID, 8)
	assert.Len(t, o.GuildID, 8)
	assert.Equal(t, o, Resolve(url.Values{}, store))
}
