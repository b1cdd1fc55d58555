package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/approval-gate/internal/core/domain"
	"github.com/arklim/approval-gate/internal/core/port"
	"github.com/arklim/approval-gate/internal/repository"
)

var requestColumns = []string{
	"request_id",
	"client_id",
	"messaging_id",
	"operation",
	"amount",
	"status",
	"created_at",
	"decided_at",
	"decided_by",
	"expired_at",
	"metadata",
}

// RequestRepository implements port.RequestRepository using PostgreSQL.
// The table is the audit system of record; rows are retained indefinitely.
type RequestRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRequestRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewRequestRepository(exec pgExecutor) *RequestRepository {
	repo := &RequestRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *RequestRepository) WithTx(tx pgx.Tx) *RequestRepository {
	if tx == nil {
		return r
	}
	return &RequestRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Insert persists a new request row.
func (r *RequestRepository) Insert(ctx context.Context, request domain.AuthRequest) error {
	if strings.TrimSpace(request.RequestID) == "" {
		return fmt.Errorf("request id is required")
	}

	var metadataValue any
	if len(request.Metadata) > 0 {
		raw, err := json.Marshal(request.Metadata)
		if err != nil {
			return fmt.Errorf("marshal request metadata: %w", err)
		}
		metadataValue = raw
	}

	query := r.builder.Insert("approval.auth_requests").
		Columns(
			"request_id",
			"client_id",
			"messaging_id",
			"operation",
			"amount",
			"status",
			"created_at",
			"metadata",
		).
		Values(
			request.RequestID,
			request.ClientID,
			request.MessagingID,
			request.Operation,
			request.Amount,
			request.Status,
			request.CreatedAt,
			metadataValue,
		)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert request sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert request: %w", err)
	}

	return nil
}

// GetByRequestID retrieves a request by identifier.
func (r *RequestRepository) GetByRequestID(ctx context.Context, requestID string) (*domain.AuthRequest, error) {
	stmt, args, err := r.builder.
		Select(requestColumns...).
		From("approval.auth_requests").
		Where(squirrel.Eq{"request_id": requestID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select request sql: %w", err)
	}

	return scanRequest(r.exec.QueryRow(ctx, stmt, args...))
}

// MarkDecided records the terminal decision. The status guard keeps the
// audit row monotone even when the durable update arrives late or twice.
func (r *RequestRepository) MarkDecided(ctx context.Context, requestID string, status domain.RequestStatus, decidedBy int64, decidedAt time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}

	stmt, args, err := r.builder.Update("approval.auth_requests").
		Set("status", status).
		Set("decided_at", decidedAt).
		Set("decided_by", decidedBy).
		Where(squirrel.Eq{"request_id": requestID}).
		Where(squirrel.Eq{"status": domain.RequestStatusPending}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark decided sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("mark request decided: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// MarkExpired transitions a still-pending row to expired and stamps expired_at.
func (r *RequestRepository) MarkExpired(ctx context.Context, requestID string, expiredAt time.Time) error {
	stmt, args, err := r.builder.Update("approval.auth_requests").
		Set("status", domain.RequestStatusExpired).
		Set("expired_at", expiredAt).
		Where(squirrel.Eq{"request_id": requestID}).
		Where(squirrel.Eq{"status": domain.RequestStatusPending}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark expired sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("mark request expired: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListPendingCreatedBefore returns pending rows older than the cutoff for
// the reconciliation sweep.
func (r *RequestRepository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.AuthRequest, error) {
	query := r.builder.
		Select(requestColumns...).
		From("approval.auth_requests").
		Where(squirrel.Eq{"status": domain.RequestStatusPending}).
		Where(squirrel.Lt{"created_at": cutoff}).
		OrderBy("created_at ASC")

	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list pending sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending requests: %w", err)
	}
	defer rows.Close()

	requests := make([]domain.AuthRequest, 0)
	for rows.Next() {
		request, err := scanRequestRow(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *request)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending requests: %w", err)
	}

	return requests, nil
}

func scanRequest(row pgx.Row) (*domain.AuthRequest, error) {
	request, err := scanRequestRow(row)
	if err == pgx.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	return request, err
}

func scanRequestRow(row pgx.Row) (*domain.AuthRequest, error) {
	var (
		request   domain.AuthRequest
		amount    sql.NullString
		decidedAt *time.Time
		decidedBy sql.NullInt64
		expiredAt *time.Time
		metadata  []byte
	)

	if err := row.Scan(
		&request.RequestID,
		&request.ClientID,
		&request.MessagingID,
		&request.Operation,
		&amount,
		&request.Status,
		&request.CreatedAt,
		&decidedAt,
		&decidedBy,
		&expiredAt,
		&metadata,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan request: %w", err)
	}

	if amount.Valid {
		val := amount.String
		request.Amount = &val
	}
	request.DecidedAt = decidedAt
	if decidedBy.Valid {
		val := decidedBy.Int64
		request.DecidedBy = &val
	}
	request.ExpiredAt = expiredAt
	if len(metadata) > 0 {
		parsed := make(map[string]any)
		if err := json.Unmarshal(metadata, &parsed); err != nil {
			return nil, fmt.Errorf("unmarshal request metadata: %w", err)
		}
		request.Metadata = parsed
	}

	return &request, nil
}

var _ port.RequestRepository = (*RequestRepository)(nil)
