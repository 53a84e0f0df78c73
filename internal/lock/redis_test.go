package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeRedis keeps string keys in memory and evaluates the release script by
// comparing tokens.
type fakeRedis struct {
	values  map[string]string
	ttls    map[string]time.Duration
	setErr  error
	evalErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) release(keys []string, args []interface{}) *redis.Cmd {
	if f.evalErr != nil {
		return redis.NewCmdResult(nil, f.evalErr)
	}
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.release(keys, args)
}

func (f *fakeRedis) EvalSha(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.release(keys, args)
}

func (f *fakeRedis) EvalRO(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.release(keys, args)
}

func (f *fakeRedis) EvalShaRO(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.release(keys, args)
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	rdb := newFakeRedis()
	l, err := NewRedisLocker(rdb, "growth:lock:")
	require.NoError(t, err)

	lease, err := l.Acquire(context.Background(), "retention", time.Minute)
	require.NoError(t, err)
	require.Contains(t, rdb.values, "growth:lock:retention")
	require.Equal(t, time.Minute, rdb.ttls["growth:lock:retention"])

	_, err = l.Acquire(context.Background(), "retention", time.Minute)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lease.Release(context.Background()))
	require.NotContains(t, rdb.values, "growth:lock:retention")

	_, err = l.Acquire(context.Background(), "retention", time.Minute)
	require.NoError(t, err)
}

func TestRedisLocker_ReleaseAfterTakeover(t *testing.T) {
	rdb := newFakeRedis()
	l, err := NewRedisLocker(rdb, "")
	require.NoError(t, err)

	lease, err := l.Acquire(context.Background(), "pricing", time.Second)
	require.NoError(t, err)

	rdb.values["pricing"] = "someone-else"
	err = lease.Release(context.Background())
	require.ErrorContains(t, err, "expired")
	require.Equal(t, "someone-else", rdb.values["pricing"])
}

func TestRedisLocker_Errors(t *testing.T) {
	_, err := NewRedisLocker(nil, "")
	require.Error(t, err)

	rdb := newFakeRedis()
	l, err := NewRedisLocker(rdb, "")
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), "x", 0)
	require.Error(t, err)

	rdb.setErr = errors.New("conn refused")
	_, err = l.Acquire(context.Background(), "x", time.Second)
	require.ErrorContains(t, err, "conn refused")

	rdb.setErr = nil
	lease, err := l.Acquire(context.Background(), "x", time.Second)
	require.NoError(t, err)
	rdb.evalErr = errors.New("eval failed")
	require.ErrorContains(t, lease.Release(context.Background()), "eval failed")
}

func TestConnect(t *testing.T) {
	c, err := Connect("redis://localhost:6379/2")
	require.NoError(t, err)
	require.Equal(t, 2, c.Options().DB)
	require.NoError(t, c.Close())

	c, err = Connect("localhost:6380")
	require.NoError(t, err)
	require.Equal(t, "localhost:6380", c.Options().Addr)
	require.NoError(t, c.Close())

	_, err = Connect(" ")
	require.Error(t, err)
}

func TestNoop(t *testing.T) {
	lease, err := Noop{}.Acquire(context.Background(), "x", time.Second)
	require.NoError(t, err)
	require.NoError(t, lease.Release(context.Background()))
}
