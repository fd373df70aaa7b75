package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LorillaJm/es6-sub000/internal/model"
)

func TestPersonCache_SetGet(t *testing.T) {
	c, err := NewPersonCache(100, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	c.Set("Alice", &model.Person{PersonID: "p-1", Handle: "alice", Name: "Alice"})
	c.Wait()

	got, ok := c.Get("  alice ")
	require.True(t, ok, "标识大小写与空白不影响命中")
	assert.Equal(t, "p-1", got.PersonID)

	byID, ok := c.Get("p-1")
	require.True(t, ok, "人员 ID 同样可以命中")
	assert.Equal(t, "alice", byID.Handle)
}

func TestPersonCache_CapacityCountsEntries(t *testing.T) {
	c, err := NewPersonCache(2, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	// 一个人员占用标识和 ID 两个条目，容量 2 恰好容纳
	c.Set("erin", &model.Person{PersonID: "p-5", Handle: "erin"})
	c.Wait()

	_, ok := c.Get("erin")
	assert.True(t, ok, "容量按条目计数，不应计入内部开销")
	_, ok = c.Get("p-5")
	assert.True(t, ok)
}

func TestPersonCache_ReturnsCopy(t *testing.T) {
	c, err := NewPersonCache(100, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	c.Set("bob", &model.Person{PersonID: "p-2", Name: "Bob"})
	c.Wait()

	got, ok := c.Get("bob")
	require.True(t, ok)
	got.Name = "changed"

	again, _ := c.Get("bob")
	assert.Equal(t, "Bob", again.Name)
}

func TestPersonCache_Delete(t *testing.T) {
	c, err := NewPersonCache(100, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	c.Set("carol", &model.Person{PersonID: "p-3"})
	c.Wait()
	c.Delete("carol")

	_, ok := c.Get("carol")
	assert.False(t, ok)
}

func TestPersonCache_Expires(t *testing.T) {
	c, err := NewPersonCache(100, 20*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	c.Set("dave", &model.Person{PersonID: "p-4"})
	c.Wait()
	time.Sleep(50 * time.Millisecond)

	_, ok := c.Get("dave")
	assert.False(t, ok, "超过 TTL 后不应命中")
}
