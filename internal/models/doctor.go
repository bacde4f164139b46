package models

type Doctor struct {
	DoctorID string `json:"doctor_id"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
}
