package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/dossier/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	k1 := Key("search", "jane doe", "5")
	k2 := Key("search", "jane doe", "5")
	k3 := Key("search", "jane doe", "10")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.True(t, strings.HasPrefix(k1, "dossier:v1:"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	value := []byte("hello")
	require.NoError(t, c.Set("k", value, 0))
	value[0] = 'j'

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "hello", string(got), "stored value must not alias the caller's slice")
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete("k"))
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	require.NoError(t, c.Set("k", []byte("v"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestDiskCache(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	key := Key("search", "q")

	require.NoError(t, c.Set(key, []byte(`{"a":1}`), 0))
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(got))

	require.NoError(t, c.Delete(key))
	require.NoError(t, c.Delete(key), "deleting a missing key is not an error")
	_, ok = c.Get(key)
	assert.False(t, ok)
}

func TestDiskCache_Expired(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	require.NoError(t, c.Set("k", []byte("v"), time.Millisecond))
	time.Sleep(10 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	writer := NewLayeredCache(time.Minute, dir, time.Hour)
	require.NoError(t, writer.Set("k", []byte("v"), 0))

	// fresh memory layer over the same directory
	reader := NewLayeredCache(time.Minute, dir, time.Hour)
	got, ok := reader.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", string(got))

	mem := reader.memory.(*MemoryCache)
	assert.Equal(t, 1, mem.Len())

	require.NoError(t, reader.Clear())
	_, ok = reader.Get("k")
	assert.False(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	type hit struct{ Title string }

	require.NoError(t, SetJSON(c, "k", []hit{{Title: "a"}}, 0))
	var out []hit
	require.True(t, GetJSON(c, "k", &out))
	assert.Equal(t, []hit{{Title: "a"}}, out)

	assert.False(t, GetJSON(c, "missing", &out))
}

func TestNew(t *testing.T) {
	assert.Nil(t, New(model.CacheConfig{Enabled: false}))

	_, isMem := New(model.CacheConfig{Enabled: true, MemoryTTL: time.Minute}).(*MemoryCache)
	assert.True(t, isMem)

	_, isLayered := New(model.CacheConfig{Enabled: true, Dir: t.TempDir(), MemoryTTL: time.Minute, DiskTTL: time.Hour}).(*LayeredCache)
	assert.True(t, isLayered)
}
