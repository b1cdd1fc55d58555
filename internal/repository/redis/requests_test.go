package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/approval-gate/internal/core/domain"
	"github.com/arklim/approval-gate/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func pendingRequest(id string, messagingID int64) domain.AuthRequest {
	amount := "500.00"
	return domain.AuthRequest{
		RequestID:   id,
		ClientID:    "client-1",
		MessagingID: messagingID,
		Operation:   "transfer $500",
		Amount:      &amount,
		Status:      domain.RequestStatusPending,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
		Metadata:    map[string]any{"channel": "web"},
	}
}

func TestRequestCacheRepository_PutGet(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRequestCacheRepository(client, "auth_request")

	ctx := context.Background()
	ttl := 5 * time.Minute
	request := pendingRequest("req-1", 777)

	if err := repo.Put(ctx, request, ttl); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	remaining := server.TTL("auth_request:req-1")
	if remaining <= 0 || remaining > ttl {
		t.Fatalf("expected ttl within (0, %v], got %v", ttl, remaining)
	}

	got, err := repo.Get(ctx, "req-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.RequestID != request.RequestID || got.ClientID != request.ClientID {
		t.Fatalf("unexpected request identity: %+v", got)
	}
	if got.MessagingID != 777 {
		t.Fatalf("expected messaging id 777, got %d", got.MessagingID)
	}
	if got.Status != domain.RequestStatusPending {
		t.Fatalf("expected pending status, got %s", got.Status)
	}
	if got.Amount == nil || *got.Amount != "500.00" {
		t.Fatalf("expected amount 500.00, got %v", got.Amount)
	}
	if !got.CreatedAt.Equal(request.CreatedAt) {
		t.Fatalf("expected created_at %v, got %v", request.CreatedAt, got.CreatedAt)
	}
	if got.Metadata["channel"] != "web" {
		t.Fatalf("expected metadata channel=web, got %v", got.Metadata)
	}
}

func TestRequestCacheRepository_GetMiss(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRequestCacheRepository(client, "auth_request")

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequestCacheRepository_DecideFirstWriterWins(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRequestCacheRepository(client, "auth_request")

	ctx := context.Background()
	if err := repo.Put(ctx, pendingRequest("req-1", 777), 5*time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	decidedAt := time.Now().UTC().Truncate(time.Second)

	applied, err := repo.Decide(ctx, "req-1", domain.RequestStatusApproved, 777, decidedAt)
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if !applied {
		t.Fatalf("expected first decision to apply")
	}

	applied, err = repo.Decide(ctx, "req-1", domain.RequestStatusRejected, 777, decidedAt.Add(time.Second))
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if applied {
		t.Fatalf("expected second decision to lose")
	}

	got, err := repo.Get(ctx, "req-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Status != domain.RequestStatusApproved {
		t.Fatalf("expected approved status to survive the losing call, got %s", got.Status)
	}
	if got.DecidedAt == nil || !got.DecidedAt.Equal(decidedAt) {
		t.Fatalf("expected decided_at %v, got %v", decidedAt, got.DecidedAt)
	}
	if got.DecidedBy == nil || *got.DecidedBy != 777 {
		t.Fatalf("expected decided_by 777, got %v", got.DecidedBy)
	}
}

func TestRequestCacheRepository_DecideConcurrent(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRequestCacheRepository(client, "auth_request")

	ctx := context.Background()
	if err := repo.Put(ctx, pendingRequest("req-1", 777), 5*time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	const writers = 16
	var wg sync.WaitGroup
	results := make(chan bool, writers)

	for i := 0; i < writers; i++ {
		status := domain.RequestStatusApproved
		if i%2 == 1 {
			status = domain.RequestStatusRejected
		}
		wg.Add(1)
		go func(status domain.RequestStatus) {
			defer wg.Done()
			applied, err := repo.Decide(ctx, "req-1", status, 777, time.Now().UTC())
			if err != nil {
				t.Errorf("Decide returned error: %v", err)
				return
			}
			results <- applied
		}(status)
	}

	wg.Wait()
	close(results)

	winners := 0
	for applied := range results {
		if applied {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winning decision, got %d", winners)
	}
}

func TestRequestCacheRepository_DecideMissing(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRequestCacheRepository(client, "auth_request")

	_, err := repo.Decide(context.Background(), "missing", domain.RequestStatusApproved, 1, time.Now())
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequestCacheRepository_DecidePreservesTTL(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRequestCacheRepository(client, "auth_request")

	ctx := context.Background()
	ttl := 5 * time.Minute
	if err := repo.Put(ctx, pendingRequest("req-1", 777), ttl); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	server.FastForward(2 * time.Minute)

	if _, err := repo.Decide(ctx, "req-1", domain.RequestStatusApproved, 777, time.Now().UTC()); err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}

	remaining := server.TTL("auth_request:req-1")
	if remaining <= 0 || remaining > 3*time.Minute {
		t.Fatalf("expected remaining ttl at most 3m after decision, got %v", remaining)
	}
}

func TestRequestCacheRepository_CountPending(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRequestCacheRepository(client, "auth_request")

	ctx := context.Background()
	ttl := 5 * time.Minute

	for _, id := range []string{"a", "b", "c"} {
		if err := repo.Put(ctx, pendingRequest(id, 777), ttl); err != nil {
			t.Fatalf("Put returned error: %v", err)
		}
	}
	if err := repo.Put(ctx, pendingRequest("other", 888), ttl); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if _, err := repo.Decide(ctx, "c", domain.RequestStatusRejected, 777, time.Now().UTC()); err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}

	count, err := repo.CountPending(ctx, 777)
	if err != nil {
		t.Fatalf("CountPending returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 pending requests for 777, got %d", count)
	}
}

func TestRequestCacheRepository_ScanStalePending(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRequestCacheRepository(client, "auth_request")

	ctx := context.Background()

	stale := pendingRequest("stale", 777)
	stale.CreatedAt = time.Now().UTC().Add(-10 * time.Minute).Truncate(time.Second)
	if err := repo.Put(ctx, stale, 5*time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	// Simulate a crash between HSET and EXPIRE.
	if err := client.Persist(ctx, "auth_request:stale").Err(); err != nil {
		t.Fatalf("Persist returned error: %v", err)
	}

	if err := repo.Put(ctx, pendingRequest("fresh", 777), 5*time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	found, err := repo.ScanStalePending(ctx, time.Now().UTC().Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("ScanStalePending returned error: %v", err)
	}
	if len(found) != 1 || found[0].RequestID != "stale" {
		t.Fatalf("expected only the stale request, got %+v", found)
	}
}

func TestRequestCacheRepository_RemainingTTL(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRequestCacheRepository(client, "auth_request")

	ctx := context.Background()
	if err := repo.Put(ctx, pendingRequest("req-1", 777), 5*time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	ttl, err := repo.RemainingTTL(ctx, "req-1")
	if err != nil {
		t.Fatalf("RemainingTTL returned error: %v", err)
	}
	if ttl <= 0 || ttl > 5*time.Minute {
		t.Fatalf("expected ttl within (0, 5m], got %v", ttl)
	}

	if _, err := repo.RemainingTTL(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
