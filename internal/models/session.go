package models

import "time"

type Session struct {
	SessionID      string    `json:"session_id"`
	DoctorID       string    `json:"doctor_id"`
	SessionDate    time.Time `json:"session_date"`
	Status         string    `json:"status"`
	WaveCapacity   int       `json:"wave_capacity"`
	OverlapMinutes int       `json:"overlap_minutes"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	SessionActive    = "ACTIVE"
	SessionPaused    = "PAUSED"
	SessionCompleted = "COMPLETED"
)
