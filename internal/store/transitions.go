package store

import "github.com/RebinJamshir/waveq/internal/models"

// Action names shared between the HTTP surface and the store. Each maps
// to the statuses it may transition from; the postgres store builds its
// conditional updates from these tables.
const (
	ActionCall     = "call"
	ActionStart    = "start"
	ActionComplete = "complete"
	ActionNoShow   = "no-show"
	ActionActivate = "activate"
	ActionPause    = "pause"
	ActionResume   = "resume"
)

var patientTransitions = map[string][]string{
	ActionCall:     {models.PatientWaiting},
	ActionStart:    {models.PatientCalled},
	ActionComplete: {models.PatientInConsultation},
	ActionNoShow:   {models.PatientCalled},
}

var waveTransitions = map[string][]string{
	ActionActivate: {models.WavePending},
	ActionComplete: {models.WaveActive},
}

var sessionTransitions = map[string][]string{
	ActionPause:    {models.SessionActive},
	ActionResume:   {models.SessionPaused},
	ActionComplete: {models.SessionActive, models.SessionPaused},
}

// PatientActionSources returns the statuses a patient may be in for the
// action to apply. Unknown actions yield nil.
func PatientActionSources(action string) []string {
	return patientTransitions[action]
}

func WaveActionSources(action string) []string {
	return waveTransitions[action]
}

func SessionActionSources(action string) []string {
	return sessionTransitions[action]
}

func ValidPatientTransition(action, fromStatus string) bool {
	return contains(patientTransitions[action], fromStatus)
}

func ValidWaveTransition(action, fromStatus string) bool {
	return contains(waveTransitions[action], fromStatus)
}

func ValidSessionTransition(action, fromStatus string) bool {
	return contains(sessionTransitions[action], fromStatus)
}

func contains(allowed []string, status string) bool {
	for _, candidate := range allowed {
		if candidate == status {
			return true
		}
	}
	return false
}
