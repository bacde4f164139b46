package store

import "errors"

var (
	ErrNoDoctor        = errors.New("no doctor available")
	ErrDoctorNotFound  = errors.New("doctor not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrWaveNotFound    = errors.New("wave not found")
	ErrPatientNotFound = errors.New("patient not found")
	ErrInvalidState    = errors.New("invalid state for action")
)
