package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache("not-a-redis-url", "test:")
	require.Error(t, err)
}

func TestKeyPrefix(t *testing.T) {
	r := &RedisCache{prefix: "marketplace:"}
	assert.Equal(t, "marketplace:revenue:admin:top:5", r.key("revenue:admin:top:5"))
}
