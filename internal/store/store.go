package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/RebinJamshir/waveq/internal/models"
)

type RegisterPatientInput struct {
	RequestID    string
	DoctorID     string
	Name         string
	Phone        string
	RegisteredAt time.Time
}

type PatientActionInput struct {
	PatientID  string
	OccurredAt time.Time
}

type WaveActionInput struct {
	WaveID     string
	OccurredAt time.Time
}

type SessionActionInput struct {
	SessionID  string
	OccurredAt time.Time
}

// PatientStatus is the read model served to status pages and display
// boards. It joins the patient with its assigned wave.
type PatientStatus struct {
	PatientID   string    `json:"patient_id"`
	TokenNumber int       `json:"token_number"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	WaveLabel   string    `json:"wave_label"`
	WaveStatus  string    `json:"wave_status"`
	WaveStart   time.Time `json:"wave_start"`
	WaveEnd     time.Time `json:"wave_end"`
}

type Store interface {
	// RegisterPatient runs the full registration pipeline in one
	// transaction: resolve or create today's session, assign the next
	// token, place the patient into a wave (creating one if the latest
	// is full or absent), and record the outbox event. The bool reports
	// whether a new registration was created; a repeated request_id
	// returns the original result.
	RegisterPatient(ctx context.Context, input RegisterPatientInput) (models.Patient, models.Wave, bool, error)

	GetPatientStatus(ctx context.Context, patientID string) (PatientStatus, error)
	GetTodaySession(ctx context.Context) (models.Session, bool, error)
	SnapshotWaves(ctx context.Context, sessionID string) ([]models.Wave, error)
	ListWavePatients(ctx context.Context, waveID string) ([]models.Patient, error)

	CallPatient(ctx context.Context, input PatientActionInput) (models.Patient, error)
	StartConsultation(ctx context.Context, input PatientActionInput) (models.Patient, error)
	CompletePatient(ctx context.Context, input PatientActionInput) (models.Patient, error)
	NoShowPatient(ctx context.Context, input PatientActionInput) (models.Patient, error)

	ActivateWave(ctx context.Context, input WaveActionInput) (models.Wave, error)
	CompleteWave(ctx context.Context, input WaveActionInput) (models.Wave, error)

	PauseSession(ctx context.Context, input SessionActionInput) (models.Session, error)
	ResumeSession(ctx context.Context, input SessionActionInput) (models.Session, error)
	CompleteSession(ctx context.Context, input SessionActionInput) (models.Session, error)

	CreateDoctor(ctx context.Context, name string) (models.Doctor, error)
	ListDoctors(ctx context.Context) ([]models.Doctor, error)

	ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]OutboxEvent, error)
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Event types written to the outbox and relayed to subscribers on the
// queue-updates channel.
const (
	EventPatientAdded  = "patient-added"
	EventStatusUpdated = "status-updated"
	EventWaveUpdated   = "wave-updated"
)

// Channel is the logical name all queue-state events are published on.
const Channel = "queue-updates"
