package models

import "time"

type Patient struct {
	PatientID    string     `json:"patient_id"`
	SessionID    string     `json:"session_id"`
	WaveID       string     `json:"wave_id"`
	TokenNumber  int        `json:"token_number"`
	Name         string     `json:"name"`
	Phone        string     `json:"phone,omitempty"`
	Status       string     `json:"status"`
	RegisteredAt time.Time  `json:"registered_at"`
	RequestID    string     `json:"request_id"`
	CalledAt     *time.Time `json:"called_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

const (
	PatientWaiting        = "WAITING"
	PatientCalled         = "CALLED"
	PatientInConsultation = "IN_CONSULTATION"
	PatientCompleted      = "COMPLETED"
	PatientNoShow         = "NO_SHOW"
)
