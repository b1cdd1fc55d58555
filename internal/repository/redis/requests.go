package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/approval-gate/internal/core/domain"
	"github.com/arklim/approval-gate/internal/core/port"
	"github.com/arklim/approval-gate/internal/repository"
)

const (
	defaultRequestPrefix = "auth_request"

	fieldRequestID   = "request_id"
	fieldClientID    = "client_id"
	fieldMessagingID = "messaging_id"
	fieldOperation   = "operation"
	fieldAmount      = "amount"
	fieldStatus      = "status"
	fieldCreatedAt   = "created_at"
	fieldDecidedAt   = "decided_at"
	fieldDecidedBy   = "decided_by"
	fieldMetadata    = "metadata"

	scanBatchSize = 100
)

// decideScript transitions a request to a terminal status iff it is still
// pending. Updating hash fields leaves the key TTL untouched, so the
// remaining window survives the decision. Returns -1 when the key is gone,
// 0 when another writer already decided, 1 on success.
var decideScript = red.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  return -1
end
if status ~= 'pending' then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'decided_at', ARGV[2], 'decided_by', ARGV[3])
return 1
`)

// RequestCacheRepository stores live approval requests in Redis, one hash
// per request with a native TTL.
type RequestCacheRepository struct {
	client *red.Client
	prefix string
}

// NewRequestCacheRepository constructs the ephemeral request store with the
// provided Redis client and key prefix.
func NewRequestCacheRepository(client *red.Client, keyPrefix string) *RequestCacheRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRequestPrefix
	}

	return &RequestCacheRepository{client: client, prefix: prefix}
}

// Put persists the request hash and applies the TTL in one transaction.
func (r *RequestCacheRepository) Put(ctx context.Context, request domain.AuthRequest, ttl time.Duration) error {
	if strings.TrimSpace(request.RequestID) == "" {
		return errors.New("request id is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	fields := map[string]any{
		fieldRequestID:   request.RequestID,
		fieldClientID:    request.ClientID,
		fieldMessagingID: strconv.FormatInt(request.MessagingID, 10),
		fieldOperation:   request.Operation,
		fieldStatus:      string(request.Status),
		fieldCreatedAt:   strconv.FormatInt(request.CreatedAt.Unix(), 10),
	}
	if request.Amount != nil {
		fields[fieldAmount] = *request.Amount
	}
	if len(request.Metadata) > 0 {
		raw, err := json.Marshal(request.Metadata)
		if err != nil {
			return fmt.Errorf("marshal request metadata: %w", err)
		}
		fields[fieldMetadata] = string(raw)
	}

	key := r.key(request.RequestID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store request: %w", err)
	}

	return nil
}

// Get retrieves the live request, or repository.ErrNotFound once the key
// expired or was removed.
func (r *RequestCacheRepository) Get(ctx context.Context, requestID string) (*domain.AuthRequest, error) {
	values, err := r.client.HGetAll(ctx, r.key(requestID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall request: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrNotFound
	}

	return parseRequestHash(values)
}

// Decide applies the compare-and-set transition. Concurrent duplicate
// decisions resolve deterministically: the first writer wins and every
// loser observes applied=false with the entry unchanged.
func (r *RequestCacheRepository) Decide(ctx context.Context, requestID string, status domain.RequestStatus, decidedBy int64, decidedAt time.Time) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("status %q is not terminal", status)
	}

	res, err := decideScript.Run(ctx, r.client, []string{r.key(requestID)},
		string(status),
		strconv.FormatInt(decidedAt.Unix(), 10),
		strconv.FormatInt(decidedBy, 10),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis decide request: %w", err)
	}

	switch res {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, repository.ErrNotFound
	}
}

// RemainingTTL reports how long the entry stays live. Entries persisted
// without an expiry report zero.
func (r *RequestCacheRepository) RemainingTTL(ctx context.Context, requestID string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, r.key(requestID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl request: %w", err)
	}
	if ttl == -2*time.Nanosecond {
		return 0, repository.ErrNotFound
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// CountPending scans the keyspace and counts live pending requests
// addressed to the messaging identity.
func (r *RequestCacheRepository) CountPending(ctx context.Context, messagingID int64) (int, error) {
	want := strconv.FormatInt(messagingID, 10)

	count := 0
	err := r.forEachKey(ctx, func(key string) error {
		values, err := r.client.HMGet(ctx, key, fieldMessagingID, fieldStatus).Result()
		if err != nil {
			return fmt.Errorf("redis hmget request: %w", err)
		}
		id, _ := values[0].(string)
		status, _ := values[1].(string)
		if id == want && status == string(domain.RequestStatusPending) {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

// ScanStalePending returns pending entries created before the cutoff whose
// key lost its expiry, e.g. after a crash between HSET and EXPIRE.
func (r *RequestCacheRepository) ScanStalePending(ctx context.Context, cutoff time.Time) ([]domain.AuthRequest, error) {
	stale := make([]domain.AuthRequest, 0)

	err := r.forEachKey(ctx, func(key string) error {
		ttl, err := r.client.TTL(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("redis ttl request: %w", err)
		}
		if ttl != -1*time.Nanosecond {
			return nil
		}

		values, err := r.client.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("redis hgetall request: %w", err)
		}
		if len(values) == 0 {
			return nil
		}

		request, err := parseRequestHash(values)
		if err != nil {
			return err
		}
		if request.Status == domain.RequestStatusPending && request.CreatedAt.Before(cutoff) {
			stale = append(stale, *request)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stale, nil
}

// Delete removes the entry.
func (r *RequestCacheRepository) Delete(ctx context.Context, requestID string) error {
	if err := r.client.Del(ctx, r.key(requestID)).Err(); err != nil {
		return fmt.Errorf("redis delete request: %w", err)
	}
	return nil
}

func (r *RequestCacheRepository) forEachKey(ctx context.Context, fn func(key string) error) error {
	var cursor uint64
	pattern := fmt.Sprintf("%s:*", r.prefix)

	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("redis scan requests: %w", err)
		}

		for _, key := range keys {
			if err := fn(key); err != nil {
				return err
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (r *RequestCacheRepository) key(requestID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, requestID)
}

func parseRequestHash(values map[string]string) (*domain.AuthRequest, error) {
	request := domain.AuthRequest{
		RequestID: values[fieldRequestID],
		ClientID:  values[fieldClientID],
		Operation: values[fieldOperation],
		Status:    domain.RequestStatus(values[fieldStatus]),
	}

	messagingID, err := strconv.ParseInt(values[fieldMessagingID], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse messaging_id: %w", err)
	}
	request.MessagingID = messagingID

	createdAt, err := parseUnix(values[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	request.CreatedAt = createdAt

	if raw := values[fieldAmount]; raw != "" {
		amount := raw
		request.Amount = &amount
	}

	if raw := values[fieldDecidedAt]; raw != "" {
		decidedAt, err := parseUnix(raw)
		if err != nil {
			return nil, fmt.Errorf("parse decided_at: %w", err)
		}
		request.DecidedAt = &decidedAt
	}

	if raw := values[fieldDecidedBy]; raw != "" {
		decidedBy, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse decided_by: %w", err)
		}
		request.DecidedBy = &decidedBy
	}

	if raw := values[fieldMetadata]; raw != "" {
		metadata := make(map[string]any)
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return nil, fmt.Errorf("unmarshal request metadata: %w", err)
		}
		request.Metadata = metadata
	}

	return &request, nil
}

func parseUnix(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0).UTC(), nil
}

var _ port.RequestCache = (*RequestCacheRepository)(nil)
