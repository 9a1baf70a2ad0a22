package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenants(t *testing.T) {
	c, err := NewTenants(100, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get("abc")
	assert.False(t, ok)

	c.Set("abc", 7)
	id, ok := c.Get("abc")
	require.True(t, ok)
	assert.Equal(t, int64(7), id)

	c.Invalidate("abc")
	_, ok = c.Get("abc")
	assert.False(t, ok)
}

func TestNilTenantsAlwaysMisses(t *testing.T) {
	var c *Tenants
	c.Set("abc", 1)
	_, ok := c.Get("abc")
	assert.False(t, ok)
	c.Invalidate("abc")
	c.Close()
}
