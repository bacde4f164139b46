package models

import "time"

type Wave struct {
	WaveID       string    `json:"wave_id"`
	SessionID    string    `json:"session_id"`
	Label        string    `json:"label"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Status       string    `json:"status"`
	PatientCount int       `json:"patient_count"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	WavePending   = "PENDING"
	WaveActive    = "ACTIVE"
	WaveCompleted = "COMPLETED"
)
