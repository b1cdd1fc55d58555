package kafka

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arklim/approval-gate/internal/core/domain"
	"github.com/arklim/approval-gate/internal/infra/logger"
)

func TestStubPublisher_ClientRegisteredMasksPhone(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	publisher := NewStubPublisher(zap.New(core))

	phone := "+1234567890"
	err := publisher.PublishClientRegistered(context.Background(), domain.ClientRegisteredEvent{
		EventID:      "evt-1",
		ClientID:     "client-1",
		Phone:        &phone,
		RegisteredAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}

	payload, ok := entries[0].ContextMap()["payload"].(map[string]any)
	if !ok {
		t.Fatalf("expected payload map in log fields")
	}
	logged := fmt.Sprintf("%v", payload["phone"])
	if logged != logger.MaskPhone(phone) {
		t.Fatalf("expected masked phone, got %s", logged)
	}
	if strings.Contains(logged, "1234567890") {
		t.Fatalf("raw phone leaked into log: %s", logged)
	}
}

func TestStubPublisher_ClientRegisteredWithoutPhone(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	publisher := NewStubPublisher(zap.New(core))

	err := publisher.PublishClientRegistered(context.Background(), domain.ClientRegisteredEvent{
		EventID:  "evt-2",
		ClientID: "client-2",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(logs.All()) != 1 {
		t.Fatalf("expected one log entry, got %d", len(logs.All()))
	}
}
