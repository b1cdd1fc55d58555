package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/approval-gate/internal/core/domain"
	"github.com/arklim/approval-gate/internal/repository"
)

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func TestClientRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewClientRepository(mock)

	createdAt := time.Now().UTC()
	client := domain.Client{
		ClientID:           "client-1",
		MessagingID:        int64Ptr(777),
		FirstName:          strPtr("Ivan"),
		LastName:           strPtr("Petrov"),
		Username:           strPtr("ivanp"),
		Phone:              strPtr("+7 (912) 345-67-89"),
		PhoneNormalized:    strPtr("79123456789"),
		Email:              strPtr("ivan@example.com"),
		RegistrationStatus: domain.RegistrationStatusPending,
		IsActive:           true,
		CreatedAt:          createdAt,
	}

	mock.ExpectExec(`INSERT INTO approval\.clients`).
		WithArgs(
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
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), client); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClientRepository_GetByClientID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewClientRepository(mock)

	createdAt := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"client_id", "messaging_id", "first_name", "last_name", "username",
		"phone", "phone_normalized", "email", "registration_status", "is_active",
		"created_at", "updated_at",
	}).AddRow(
		"client-1", int64(777), "Ivan", nil, nil,
		"89123456789", "79123456789", nil, domain.RegistrationStatusCompleted, true,
		createdAt, nil,
	)

	mock.ExpectQuery(`SELECT .*FROM approval\.clients`).WithArgs("client-1").WillReturnRows(rows)

	client, err := repo.GetByClientID(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("GetByClientID returned error: %v", err)
	}
	if client.ClientID != "client-1" {
		t.Fatalf("expected client id client-1, got %s", client.ClientID)
	}
	if client.MessagingID == nil || *client.MessagingID != 777 {
		t.Fatalf("expected messaging id 777, got %v", client.MessagingID)
	}
	if !client.Registered() {
		t.Fatalf("expected registered client")
	}
	if client.PhoneNormalized == nil || *client.PhoneNormalized != "79123456789" {
		t.Fatalf("expected normalized phone, got %v", client.PhoneNormalized)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClientRepository_GetByClientIDMiss(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewClientRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM approval\.clients`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"client_id", "messaging_id", "first_name", "last_name", "username",
			"phone", "phone_normalized", "email", "registration_status", "is_active",
			"created_at", "updated_at",
		}))

	if _, err := repo.GetByClientID(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClientRepository_CompleteRegistration(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewClientRepository(mock)

	completedAt := time.Now().UTC()
	profile := domain.ClientProfile{
		FirstName: strPtr("Ivan"),
		Username:  strPtr("ivanp"),
	}

	mock.ExpectExec(`UPDATE approval\.clients`).
		WithArgs(
			int64(777),
			domain.RegistrationStatusCompleted,
			completedAt,
			"Ivan",
			"ivanp",
			"client-1",
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.CompleteRegistration(context.Background(), "client-1", 777, profile, completedAt); err != nil {
		t.Fatalf("CompleteRegistration returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClientRepository_CompleteRegistrationMiss(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewClientRepository(mock)

	mock.ExpectExec(`UPDATE approval\.clients`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.CompleteRegistration(context.Background(), "missing", 777, domain.ClientProfile{}, time.Now().UTC())
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
