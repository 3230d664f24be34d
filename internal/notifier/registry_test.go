package notifier

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockNotifier struct {
	name       string
	sent       []Alert
	shouldFail bool
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) Init(cfg Config) error { return nil }

func (m *mockNotifier) Send(ctx context.Context, alert Alert) error {
	m.sent = append(m.sent, alert)
	if m.shouldFail {
		return errors.New("send failed")
	}
	return nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	mock := &mockNotifier{name: "test"}
	err := r.Register(mock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Duplicate registration should fail
	err = r.Register(mock)
	if err == nil {
		t.Error("expected error for duplicate registration")
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockNotifier{name: "test"})

	n, err := r.Get("test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Name() != "test" {
		t.Errorf("expected 'test', got '%s'", n.Name())
	}

	if _, err := r.Get("nonexistent"); err == nil {
		t.Error("expected error for non-existent notifier")
	}
}

func TestRegistry_GetAllSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockNotifier{name: "webhook"})
	r.Register(&mockNotifier{name: "telegram"})

	all := r.GetAll()
	if len(all) != 2 || r.Len() != 2 {
		t.Fatalf("expected 2 notifiers, got %d", len(all))
	}
	if all[0].Name() != "telegram" || all[1].Name() != "webhook" {
		t.Errorf("expected name order, got %s, %s", all[0].Name(), all[1].Name())
	}
}

func TestRegistry_NotifyAll(t *testing.T) {
	r := NewRegistry()
	ok := &mockNotifier{name: "ok"}
	bad := &mockNotifier{name: "bad", shouldFail: true}
	r.Register(ok)
	r.Register(bad)

	alert := Alert{Rule: "backend_down", Severity: "critical", FiredAt: time.Now()}
	errs := r.NotifyAll(context.Background(), alert)

	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if _, exists := errs["bad"]; !exists {
		t.Error("expected error for 'bad' notifier")
	}
	if len(ok.sent) != 1 || ok.sent[0].Rule != "backend_down" {
		t.Errorf("expected the alert to reach 'ok', got %v", ok.sent)
	}
	if len(bad.sent) != 1 {
		t.Error("a failing notifier is still attempted")
	}
}
