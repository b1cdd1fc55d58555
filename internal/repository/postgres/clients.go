package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/approval-gate/internal/core/domain"
	"github.com/arklim/approval-gate/internal/core/port"
	"github.com/arklim/approval-gate/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var clientColumns = []string{
	"client_id",
	"messaging_id",
	"first_name",
	"last_name",
	"username",
	"phone",
	"phone_normalized",
	"email",
	"registration_status",
	"is_active",
	"created_at",
	"updated_at",
}

// ClientRepository implements port.ClientRepository using PostgreSQL.
type ClientRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewClientRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewClientRepository(exec pgExecutor) *ClientRepository {
	repo := &ClientRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *ClientRepository) WithTx(tx pgx.Tx) *ClientRepository {
	if tx == nil {
		return r
	}
	return &ClientRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new client row.
func (r *ClientRepository) Create(ctx context.Context, client domain.Client) error {
	if strings.TrimSpace(client.ClientID) == "" {
		return fmt.Errorf("client id is required")
	}

	createdAt := client.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := r.builder.Insert("approval.clients").
		Columns(
			"client_id",
			"messaging_id",
			"first_name",
			"last_name",
			"username",
			"phone",
			"phone_normalized",
			"email",
			"registration_status",
			"is_active",
			"created_at",
		).
		Values(
			client.ClientID,
			client.MessagingID,
			client.FirstName,
			client.LastName,
			client.Username,
			client.Phone,
			client.PhoneNormalized,
			client.Email,
			client.RegistrationStatus,
			client.IsActive,
			createdAt,
		)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert client sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert client: %w", err)
	}

	return nil
}

// GetByClientID retrieves a client by its stable external key.
func (r *ClientRepository) GetByClientID(ctx context.Context, clientID string) (*domain.Client, error) {
	stmt, args, err := r.builder.
		Select(clientColumns...).
		From("approval.clients").
		Where(squirrel.Eq{"client_id": clientID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select client sql: %w", err)
	}

	return r.scanClient(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByMessagingID retrieves the client bound to the messaging identity.
func (r *ClientRepository) GetByMessagingID(ctx context.Context, messagingID int64) (*domain.Client, error) {
	stmt, args, err := r.builder.
		Select(clientColumns...).
		From("approval.clients").
		Where(squirrel.Eq{"messaging_id": messagingID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select client by messaging id sql: %w", err)
	}

	return r.scanClient(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByPhone retrieves the first active client whose normalized or stored
// phone matches any of the candidate spellings.
func (r *ClientRepository) GetByPhone(ctx context.Context, candidates ...string) (*domain.Client, error) {
	trimmed := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if c := strings.TrimSpace(candidate); c != "" {
			trimmed = append(trimmed, c)
		}
	}
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("at least one phone candidate is required")
	}

	stmt, args, err := r.builder.
		Select(clientColumns...).
		From("approval.clients").
		Where(squirrel.Or{
			squirrel.Eq{"phone_normalized": trimmed},
			squirrel.Eq{"phone": trimmed},
		}).
		Where(squirrel.Eq{"is_active": true}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select client by phone sql: %w", err)
	}

	return r.scanClient(r.exec.QueryRow(ctx, stmt, args...))
}

// CompleteRegistration binds the messaging identity, applies profile fields,
// and flips registration_status to completed in one update.
func (r *ClientRepository) CompleteRegistration(ctx context.Context, clientID string, messagingID int64, profile domain.ClientProfile, completedAt time.Time) error {
	query := r.builder.Update("approval.clients").
		Set("messaging_id", messagingID).
		Set("registration_status", domain.RegistrationStatusCompleted).
		Set("updated_at", completedAt).
		Where(squirrel.Eq{"client_id": clientID})

	if profile.FirstName != nil {
		query = query.Set("first_name", *profile.FirstName)
	}
	if profile.LastName != nil {
		query = query.Set("last_name", *profile.LastName)
	}
	if profile.Username != nil {
		query = query.Set("username", *profile.Username)
	}
	if profile.Email != nil {
		query = query.Set("email", *profile.Email)
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build complete registration sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("complete registration: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Deactivate marks a client inactive; rows are never physically deleted.
func (r *ClientRepository) Deactivate(ctx context.Context, clientID string) error {
	stmt, args, err := r.builder.Update("approval.clients").
		Set("is_active", false).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"client_id": clientID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate client sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("deactivate client: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *ClientRepository) scanClient(row pgx.Row) (*domain.Client, error) {
	var (
		client          domain.Client
		messagingID     sql.NullInt64
		firstName       sql.NullString
		lastName        sql.NullString
		username        sql.NullString
		phone           sql.NullString
		phoneNormalized sql.NullString
		email           sql.NullString
		updatedAt       *time.Time
	)

	if err := row.Scan(
		&client.ClientID,
		&messagingID,
		&firstName,
		&lastName,
		&username,
		&phone,
		&phoneNormalized,
		&email,
		&client.RegistrationStatus,
		&client.IsActive,
		&client.CreatedAt,
		&updatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan client: %w", err)
	}

	if messagingID.Valid {
		val := messagingID.Int64
		client.MessagingID = &val
	}
	if firstName.Valid {
		val := firstName.String
		client.FirstName = &val
	}
	if lastName.Valid {
		val := lastName.String
		client.LastName = &val
	}
	if username.Valid {
		val := username.String
		client.Username = &val
	}
	if phone.Valid {
		val := phone.String
		client.Phone = &val
	}
	if phoneNormalized.Valid {
		val := phoneNormalized.String
		client.PhoneNormalized = &val
	}
	if email.Valid {
		val := email.String
		client.Email = &val
	}
	client.UpdatedAt = updatedAt

	return &client, nil
}

var _ port.ClientRepository = (*ClientRepository)(nil)
