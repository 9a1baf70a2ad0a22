package counter

import (
	"context"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "app:abc:chats_counter", ChatsKey("abc"))
	assert.Equal(t, "app:abc:chat:7:messages_counter", MessagesKey("abc", 7))
	assert.Equal(t, "app:abc:", ApplicationPrefix("abc"))
}

// exerciseStore runs the behaviour every Store must have.
func exerciseStore(t *testing.T, s Store, ns string) {
	t.Helper()
	ctx := context.Background()
	key := ChatsKey(ns)

	t.Run("concurrent increments are exactly 1..N", func(t *testing.T) {
		const n = 200
		var (
			wg  sync.WaitGroup
			mu  sync.Mutex
			got = make([]int64, 0, n)
		)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := s.Incr(ctx, key)
				assert.NoError(t, err)
				mu.Lock()
				got = append(got, v)
				mu.Unlock()
			}()
		}
		wg.Wait()

		sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
		for i, v := range got {
			require.Equal(t, int64(i+1), v)
		}
	})

	t.Run("raise never lowers", func(t *testing.T) {
		changed, err := s.RaiseTo(ctx, key, 10)
		require.NoError(t, err)
		assert.False(t, changed)

		changed, err = s.RaiseTo(ctx, key, 500)
		require.NoError(t, err)
		assert.True(t, changed)

		v, err := s.Incr(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(501), v)
	})

	t.Run("delete prefix", func(t *testing.T) {
		other := MessagesKey(ns, 1)
		_, err := s.Incr(ctx, other)
		require.NoError(t, err)

		require.NoError(t, s.DeletePrefix(ctx, ApplicationPrefix(ns)))

		v, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Zero(t, v)
		v, err = s.Get(ctx, other)
		require.NoError(t, err)
		assert.Zero(t, v)
	})
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(), "mem")
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("requires REDIS_URL")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	exerciseStore(t, NewRedisStore(client), "test-"+uuid.NewString()[:8])
}
