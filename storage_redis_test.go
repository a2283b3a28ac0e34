package accounts_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	data    map[string]string
	ttl     map[string]time.Duration
	getErr  error
	closed  bool
	lastDel []string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if f.getErr != nil {
		cmd.SetErr(f.getErr)
		return cmd
	}
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttl[key] = expiration
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.lastDel = keys
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(n)
	return cmd
}

func (f *fakeRedis) Keys(ctx context.Context, pattern string) *redis.StringSliceCmd {
	prefix := strings.TrimSuffix(pattern, "*")
	var out []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	cmd := redis.NewStringSliceCmd(ctx)
	cmd.SetVal(out)
	return cmd
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedisStorage(t *testing.T) {
	client := newFakeRedis()
	storage := accounts.NewRedisStorage(client, "")

	got, err := storage.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, storage.Set("sid", []byte("payload"), time.Hour))
	assert.Equal(t, "payload", client.data[accounts.DefaultRedisPrefix+"sid"])
	assert.Equal(t, time.Hour, client.ttl[accounts.DefaultRedisPrefix+"sid"])

	got, err = storage.Get("sid")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	require.NoError(t, storage.Delete("sid"))
	got, err = storage.Get("sid")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, storage.Close())
	assert.True(t, client.closed)
}

func TestRedisStorageIgnoresEmptyKeys(t *testing.T) {
	client := newFakeRedis()
	storage := accounts.NewRedisStorage(client, "p:")

	require.NoError(t, storage.Set("", []byte("x"), 0))
	require.NoError(t, storage.Set("k", nil, 0))
	assert.Empty(t, client.data)

	got, err := storage.Get("")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStorageResetKeepsForeignKeys(t *testing.T) {
	client := newFakeRedis()
	client.data["other:key"] = "keep"
	storage := accounts.NewRedisStorage(client, "p:")

	require.NoError(t, storage.Set("a", []byte("1"), 0))
	require.NoError(t, storage.Set("b", []byte("2"), 0))
	require.NoError(t, storage.Reset())

	assert.Equal(t, map[string]string{"other:key": "keep"}, client.data)
	assert.ElementsMatch(t, []string{"p:a", "p:b"}, client.lastDel)
}

func TestRedisStoragePropagatesErrors(t *testing.T) {
	client := newFakeRedis()
	client.getErr = errors.New("connection reset")
	storage := accounts.NewRedisStorage(client, "")

	_, err := storage.Get("sid")
	assert.EqualError(t, err, "connection reset")
}
