// Package worker delivers SMS notifications driven by the outbox. Sends
// happen strictly after the originating transaction committed; a failed
// send is logged and never affects queue state.
package worker

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/RebinJamshir/waveq/internal/models"
	"github.com/RebinJamshir/waveq/internal/store"
)

type Store interface {
	ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error)
	ListWavePatients(ctx context.Context, waveID string) ([]models.Patient, error)
	GetNotificationOffset(ctx context.Context) (time.Time, error)
	UpdateNotificationOffset(ctx context.Context, value time.Time) error
}

type Worker struct {
	store     Store
	provider  Provider
	batchSize int
	statusURL string
}

type Config struct {
	Provider  string
	BatchSize int
	// StatusURL is the public base URL patients can visit to check their
	// token; appended to the registration message when set.
	StatusURL string
}

func New(store Store, cfg Config) *Worker {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	return &Worker{
		store:     store,
		provider:  newProvider(cfg.Provider),
		batchSize: batch,
		statusURL: strings.TrimRight(cfg.StatusURL, "/"),
	}
}

// Run processes one batch of outbox events and advances the offset.
func (w *Worker) Run(ctx context.Context) error {
	last, err := w.store.GetNotificationOffset(ctx)
	if err != nil {
		return err
	}

	events, err := w.store.ListOutboxEvents(ctx, last, w.batchSize)
	if err != nil {
		return err
	}

	for _, event := range events {
		if err := w.processEvent(ctx, event); err != nil {
			log.Printf("notify process error: %v", err)
		}
		last = event.CreatedAt
	}

	if !last.IsZero() {
		if err := w.store.UpdateNotificationOffset(ctx, last); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) processEvent(ctx context.Context, event store.OutboxEvent) error {
	switch event.Type {
	case store.EventPatientAdded:
		return w.notifyRegistered(ctx, event.Payload)
	case store.EventStatusUpdated:
		return w.notifyStatusChange(ctx, event.Payload)
	case store.EventWaveUpdated:
		return w.notifyWaveChange(ctx, event.Payload)
	default:
		return nil
	}
}

func (w *Worker) notifyRegistered(ctx context.Context, payload json.RawMessage) error {
	var data struct {
		Patient models.Patient `json:"patient"`
		Wave    models.Wave    `json:"wave"`
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		return err
	}
	if data.Patient.Phone == "" {
		return nil
	}

	message := "WaveQ: You have been registered. Your token is #" +
		strconv.Itoa(data.Patient.TokenNumber) + ". Your wave (" +
		data.Wave.Label + ", " + data.Wave.StartTime.Format("15:04") + ") is coming up."
	if w.statusURL != "" {
		message += " Check status: " + w.statusURL + "/token/" + strconv.Itoa(data.Patient.TokenNumber)
	}
	w.send(ctx, message, data.Patient.Phone)
	return nil
}

func (w *Worker) notifyStatusChange(ctx context.Context, payload json.RawMessage) error {
	var data struct {
		TokenNumber int    `json:"token_number"`
		Status      string `json:"status"`
		Phone       string `json:"phone"`
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		return err
	}
	if data.Phone == "" || data.Status != models.PatientCalled {
		return nil
	}

	message := "WaveQ: Token #" + strconv.Itoa(data.TokenNumber) + ", you have been called. Please proceed to the consultation room."
	w.send(ctx, message, data.Phone)
	return nil
}

func (w *Worker) notifyWaveChange(ctx context.Context, payload json.RawMessage) error {
	var data struct {
		WaveID string `json:"wave_id"`
		Label  string `json:"label"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		return err
	}
	if data.Status != models.WaveActive {
		return nil
	}

	patients, err := w.store.ListWavePatients(ctx, data.WaveID)
	if err != nil {
		return err
	}
	for _, patient := range patients {
		if patient.Phone == "" || patient.Status != models.PatientWaiting {
			continue
		}
		message := "WaveQ: Wave " + data.Label + " is starting. Token #" +
			strconv.Itoa(patient.TokenNumber) + ", please be ready."
		w.send(ctx, message, patient.Phone)
	}
	return nil
}

func (w *Worker) send(ctx context.Context, message, recipient string) {
	if err := w.provider.Send(ctx, message, recipient); err != nil {
		log.Printf("sms send failed recipient=%s: %v", recipient, err)
	}
}
