package worker

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/RebinJamshir/waveq/internal/models"
	"github.com/RebinJamshir/waveq/internal/store"
)

type sentMessage struct {
	Message   string
	Recipient string
}

type recordingProvider struct {
	sent []sentMessage
}

func (p *recordingProvider) Send(ctx context.Context, message, recipient string) error {
	p.sent = append(p.sent, sentMessage{Message: message, Recipient: recipient})
	return nil
}

type fakeWorkerStore struct {
	events       []store.OutboxEvent
	wavePatients map[string][]models.Patient
	offset       time.Time
}

func (f *fakeWorkerStore) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	var out []store.OutboxEvent
	for _, event := range f.events {
		if !event.CreatedAt.After(after) {
			continue
		}
		out = append(out, event)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeWorkerStore) ListWavePatients(ctx context.Context, waveID string) ([]models.Patient, error) {
	return f.wavePatients[waveID], nil
}

func (f *fakeWorkerStore) GetNotificationOffset(ctx context.Context) (time.Time, error) {
	return f.offset, nil
}

func (f *fakeWorkerStore) UpdateNotificationOffset(ctx context.Context, value time.Time) error {
	f.offset = value
	return nil
}

func mustPayload(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestRegistrationMessage(t *testing.T) {
	start := time.Date(2026, 9, 1, 9, 10, 0, 0, time.UTC)
	fs := &fakeWorkerStore{
		events: []store.OutboxEvent{{
			EventID:   "e1",
			Type:      store.EventPatientAdded,
			CreatedAt: start,
			Payload: mustPayload(t, map[string]interface{}{
				"patient": models.Patient{TokenNumber: 7, Phone: "98765432"},
				"wave":    models.Wave{Label: "C", StartTime: start},
			}),
		}},
	}
	w := New(fs, Config{StatusURL: "https://waveq.example/"})
	rec := &recordingProvider{}
	w.provider = rec

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rec.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(rec.sent))
	}
	got := rec.sent[0]
	if got.Recipient != "98765432" {
		t.Fatalf("unexpected recipient %s", got.Recipient)
	}
	want := "WaveQ: You have been registered. Your token is #7. Your wave (C, 09:10) is coming up. Check status: https://waveq.example/token/7"
	if got.Message != want {
		t.Fatalf("unexpected message:\n got: %s\nwant: %s", got.Message, want)
	}
	if !fs.offset.Equal(start) {
		t.Fatalf("offset not advanced: %v", fs.offset)
	}
}

func TestRegistrationWithoutPhoneSkipped(t *testing.T) {
	fs := &fakeWorkerStore{
		events: []store.OutboxEvent{{
			EventID:   "e1",
			Type:      store.EventPatientAdded,
			CreatedAt: time.Now(),
			Payload: mustPayload(t, map[string]interface{}{
				"patient": models.Patient{TokenNumber: 1},
				"wave":    models.Wave{Label: "A"},
			}),
		}},
	}
	w := New(fs, Config{})
	rec := &recordingProvider{}
	w.provider = rec

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rec.sent) != 0 {
		t.Fatalf("expected no messages, got %d", len(rec.sent))
	}
}

func TestStatusChangeOnlyNotifiesCalled(t *testing.T) {
	now := time.Now()
	fs := &fakeWorkerStore{
		events: []store.OutboxEvent{
			{
				EventID:   "e1",
				Type:      store.EventStatusUpdated,
				CreatedAt: now,
				Payload: mustPayload(t, map[string]interface{}{
					"token_number": 3,
					"status":       models.PatientCalled,
					"phone":        "91234567",
				}),
			},
			{
				EventID:   "e2",
				Type:      store.EventStatusUpdated,
				CreatedAt: now.Add(time.Second),
				Payload: mustPayload(t, map[string]interface{}{
					"token_number": 4,
					"status":       models.PatientCompleted,
					"phone":        "91234568",
				}),
			},
		},
	}
	w := New(fs, Config{})
	rec := &recordingProvider{}
	w.provider = rec

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rec.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(rec.sent))
	}
	if !strings.Contains(rec.sent[0].Message, "Token #3") {
		t.Fatalf("unexpected message %s", rec.sent[0].Message)
	}
}

func TestWaveActivationNotifiesWaitingPatients(t *testing.T) {
	fs := &fakeWorkerStore{
		events: []store.OutboxEvent{{
			EventID:   "e1",
			Type:      store.EventWaveUpdated,
			CreatedAt: time.Now(),
			Payload: mustPayload(t, map[string]interface{}{
				"wave_id": "w1",
				"label":   "B",
				"status":  models.WaveActive,
			}),
		}},
		wavePatients: map[string][]models.Patient{
			"w1": {
				{TokenNumber: 4, Phone: "91111111", Status: models.PatientWaiting},
				{TokenNumber: 5, Phone: "", Status: models.PatientWaiting},
				{TokenNumber: 6, Phone: "92222222", Status: models.PatientCompleted},
			},
		},
	}
	w := New(fs, Config{})
	rec := &recordingProvider{}
	w.provider = rec

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rec.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(rec.sent))
	}
	if rec.sent[0].Recipient != "91111111" {
		t.Fatalf("unexpected recipient %s", rec.sent[0].Recipient)
	}
	if !strings.Contains(rec.sent[0].Message, "Wave B is starting") {
		t.Fatalf("unexpected message %s", rec.sent[0].Message)
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	fs := &fakeWorkerStore{
		events: []store.OutboxEvent{{
			EventID:   "e1",
			Type:      "something-else",
			CreatedAt: time.Now(),
			Payload:   json.RawMessage(`{}`),
		}},
	}
	w := New(fs, Config{})
	rec := &recordingProvider{}
	w.provider = rec

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rec.sent) != 0 {
		t.Fatalf("expected no messages, got %d", len(rec.sent))
	}
}

func TestNewProviderSelection(t *testing.T) {
	if _, ok := newProvider("").(logProvider); !ok {
		t.Fatalf("expected log provider by default")
	}
	if _, ok := newProvider("noop").(noopProvider); !ok {
		t.Fatalf("expected noop provider")
	}
	if _, ok := newProvider("https://sms.example/send").(webhookProvider); !ok {
		t.Fatalf("expected webhook provider for URL kind")
	}
}
