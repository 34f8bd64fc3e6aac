// Пакет events содержит unit-тесты Publisher
package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ResourceAPI/internal/model"
)

// mockConn перехватывает вызовы Publish
type mockConn struct {
	publishedSubject string
	publishedData    []byte
	returnErr        error
}

func (m *mockConn) Publish(subject string, data []byte) error {
	m.publishedSubject = subject
	m.publishedData = data
	return m.returnErr
}

// TestPublish_Success проверяет subject и формат сообщения
func TestPublish_Success(t *testing.T) {
	mock := &mockConn{}
	pub := NewPublisher(mock, "resources.events")
	occurred := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	err := pub.Publish(model.ResourceEvent{
		Action:     model.ActionCreated,
		Resource:   model.Resource{ID: 7, Name: "n", Description: "d", Status: model.StatusActive},
		OccurredAt: occurred,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.publishedSubject != "resources.events" {
		t.Errorf("expected subject resources.events, got %s", mock.publishedSubject)
	}

	var payload map[string]any
	if err := json.Unmarshal(mock.publishedData, &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload["action"] != "created" {
		t.Errorf("expected action created, got %v", payload["action"])
	}
	if _, ok := payload["occurredAt"]; !ok {
		t.Error("payload must contain occurredAt")
	}
	resource, _ := payload["resource"].(map[string]any)
	if resource["id"] != float64(7) {
		t.Errorf("expected resource id 7, got %v", resource["id"])
	}
}

// TestPublish_Error проверяет прокидку ошибки из Conn.Publish
func TestPublish_Error(t *testing.T) {
	expErr := errors.New("publish failed")
	pub := NewPublisher(&mockConn{returnErr: expErr}, "subj")

	err := pub.Publish(model.ResourceEvent{Action: model.ActionDeleted})
	if !errors.Is(err, expErr) {
		t.Errorf("expected error %v, got %v", expErr, err)
	}
}

func TestNop(t *testing.T) {
	if err := (Nop{}).Publish(model.ResourceEvent{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
