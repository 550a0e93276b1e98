package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/franckalain/doctorfood/internal/models"
)

type mockRedis struct {
	data    map[string]string
	err     error
	lastTTL time.Duration
}

func (m *mockRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	v, ok := m.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (m *mockRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	m.data[key] = value.(string)
	m.lastTTL = expiration
	cmd.SetVal("OK")
	return cmd
}

func (m *mockRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func TestRedisKVBacksStore(t *testing.T) {
	ctx := context.Background()
	mock := &mockRedis{data: map[string]string{}}
	kv := &RedisKV{client: mock, prefix: "doctorfood:"}
	store := NewStore(kv, zap.NewNop())

	if _, ok := store.Load(ctx); ok {
		t.Fatalf("expected empty store")
	}

	p := models.UserProfile{Age: 33, Gender: models.GenderFemale, Weight: 58.5}
	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok := mock.data["doctorfood:"+StorageKey]; !ok {
		t.Fatalf("expected prefixed key, got %v", mock.data)
	}
	if mock.lastTTL != 0 {
		t.Fatalf("expected no expiry, got %v", mock.lastTTL)
	}

	got, ok := store.Load(ctx)
	if !ok || got != p {
		t.Fatalf("expected %+v, got %+v ok=%v", p, got, ok)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := store.Load(ctx); ok {
		t.Fatalf("expected empty store after clear")
	}
}

func TestRedisKVErrorsFailOpenOnLoad(t *testing.T) {
	mock := &mockRedis{data: map[string]string{}, err: errors.New("connection refused")}
	store := NewStore(&RedisKV{client: mock}, zap.NewNop())
	if _, ok := store.Load(context.Background()); ok {
		t.Fatalf("expected no profile when redis is down")
	}
	if err := store.Save(context.Background(), models.UserProfile{Age: 20, Gender: models.GenderMale, Weight: 80}); err == nil {
		t.Fatalf("expected save error when redis is down")
	}
}
