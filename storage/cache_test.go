package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

type stubBackend struct {
	fetchBoardCalls int
	listTasksCalls  int
	board           domain.Board
	tasks           []domain.Task
	err             error
}

func (s *stubBackend) FetchBoard(_ context.Context, _, boardID string) (domain.Board, error) {
	s.fetchBoardCalls++
	if s.err != nil {
		return domain.Board{}, s.err
	}
	return s.board, nil
}

func (s *stubBackend) SaveBoard(_ context.Context, _ string, b domain.Board) error {
	s.board = b
	return s.err
}

func (s *stubBackend) ListTasks(_ context.Context, _, _ string) ([]domain.Task, error) {
	s.listTasksCalls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.Task(nil), s.tasks...), nil
}

func (s *stubBackend) GetTask(_ context.Context, _, taskID string) (domain.Task, error) {
	for _, t := range s.tasks {
		if t.ID == taskID {
			return t, nil
		}
	}
	return domain.Task{}, domain.ErrNotFound
}

func (s *stubBackend) PutTask(_ context.Context, _ string, t domain.Task) error {
	if s.err != nil {
		return s.err
	}
	s.tasks = append(s.tasks, t)
	return nil
}

func (s *stubBackend) DeleteTask(_ context.Context, _, _ string) error { return s.err }

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheListTasksMissThenHit(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	base := &stubBackend{tasks: []domain.Task{{ID: "t1", BoardID: "b1", Title: "Write code"}}}
	cache := NewCache(base, client, time.Minute)

	tasks, err := cache.ListTasks(ctx, "user-1", "b1")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("unexpected tasks: %#v", tasks)
	}
	if ttl := mr.TTL(tasksCacheKey("user-1")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	cached, err := cache.ListTasks(ctx, "user-1", "b1")
	if err != nil {
		t.Fatalf("list cached tasks: %v", err)
	}
	if len(cached) != 1 || cached[0].Title != "Write code" {
		t.Fatalf("unexpected cached tasks: %#v", cached)
	}
	if base.listTasksCalls != 1 {
		t.Fatalf("expected cached read to avoid backend, calls=%d", base.listTasksCalls)
	}
}

func TestCacheFetchBoardMissThenHit(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()
	base := &stubBackend{board: domain.Board{ID: "b1", Columns: domain.DefaultColumns()}}
	cache := NewCache(base, client, time.Minute)

	for i := 0; i < 2; i++ {
		b, err := cache.FetchBoard(ctx, "user-1", "b1")
		if err != nil {
			t.Fatalf("fetch board: %v", err)
		}
		if len(b.Columns) != len(domain.DefaultColumns()) {
			t.Fatalf("unexpected board: %+v", b)
		}
	}
	if base.fetchBoardCalls != 1 {
		t.Fatalf("expected 1 backend call, got %d", base.fetchBoardCalls)
	}
}

func TestCacheWritesEvict(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	base := &stubBackend{board: domain.Board{ID: "b1"}}
	cache := NewCache(base, client, time.Minute)

	if _, err := cache.ListTasks(ctx, "user-1", "b1"); err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if _, err := cache.FetchBoard(ctx, "user-1", "b1"); err != nil {
		t.Fatalf("fetch board: %v", err)
	}
	if err := cache.PutTask(ctx, "user-1", domain.Task{ID: "t2", BoardID: "b1"}); err != nil {
		t.Fatalf("put task: %v", err)
	}
	if mr.Exists(tasksCacheKey("user-1")) || mr.Exists(boardsCacheKey("user-1")) {
		t.Fatalf("expected cache keys to be evicted")
	}

	tasks, err := cache.ListTasks(ctx, "user-1", "b1")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || base.listTasksCalls != 2 {
		t.Fatalf("expected fresh read after write, tasks=%v calls=%d", tasks, base.listTasksCalls)
	}
}

func TestCacheEvictsEvenWhenWriteFails(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	base := &stubBackend{}
	cache := NewCache(base, client, time.Minute)
	if _, err := cache.ListTasks(ctx, "user-1", "b1"); err != nil {
		t.Fatalf("list tasks: %v", err)
	}

	base.err = errors.New("storage down")
	if err := cache.DeleteTask(ctx, "user-1", "t1"); err == nil {
		t.Fatalf("expected backend error")
	}
	if mr.Exists(tasksCacheKey("user-1")) {
		t.Fatalf("expected eviction after failed write")
	}
}

func TestCacheCorruptEntryFallsBack(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	base := &stubBackend{tasks: []domain.Task{{ID: "t1"}}}
	cache := NewCache(base, client, time.Minute)
	mr.HSet(tasksCacheKey("user-1"), "b1", "not-json")

	tasks, err := cache.ListTasks(ctx, "user-1", "b1")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || base.listTasksCalls != 1 {
		t.Fatalf("expected backend fallback, tasks=%v calls=%d", tasks, base.listTasksCalls)
	}
}

func TestCacheWithoutRedisPassesThrough(t *testing.T) {
	ctx := context.Background()
	base := &stubBackend{err: domain.ErrNotFound}
	cache := NewCache(base, nil, time.Minute)

	if _, err := cache.FetchBoard(ctx, "user-1", "b1"); !domain.IsNotFound(err) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if _, err := cache.FetchBoard(ctx, "user-1", "b1"); !domain.IsNotFound(err) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if base.fetchBoardCalls != 2 {
		t.Fatalf("expected every read to reach backend, got %d", base.fetchBoardCalls)
	}
}

func TestNewCachePanicsWithoutBase(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	NewCache(nil, nil, time.Minute)
}
