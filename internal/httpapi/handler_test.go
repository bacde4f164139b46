package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RebinJamshir/waveq/internal/models"
	"github.com/RebinJamshir/waveq/internal/store"
)

type fakeStore struct {
	registerFn     func(ctx context.Context, input store.RegisterPatientInput) (models.Patient, models.Wave, bool, error)
	statusFn       func(ctx context.Context, patientID string) (store.PatientStatus, error)
	todaySessionFn func(ctx context.Context) (models.Session, bool, error)
	snapshotFn     func(ctx context.Context, sessionID string) ([]models.Wave, error)
	wavePatientsFn func(ctx context.Context, waveID string) ([]models.Patient, error)
	callFn         func(ctx context.Context, input store.PatientActionInput) (models.Patient, error)
	startFn        func(ctx context.Context, input store.PatientActionInput) (models.Patient, error)
	completeFn     func(ctx context.Context, input store.PatientActionInput) (models.Patient, error)
	noShowFn       func(ctx context.Context, input store.PatientActionInput) (models.Patient, error)
	activateWaveFn func(ctx context.Context, input store.WaveActionInput) (models.Wave, error)
	completeWaveFn func(ctx context.Context, input store.WaveActionInput) (models.Wave, error)
	pauseFn        func(ctx context.Context, input store.SessionActionInput) (models.Session, error)
	resumeFn       func(ctx context.Context, input store.SessionActionInput) (models.Session, error)
	completeSessFn func(ctx context.Context, input store.SessionActionInput) (models.Session, error)
	createDoctorFn func(ctx context.Context, name string) (models.Doctor, error)
	listDoctorsFn  func(ctx context.Context) ([]models.Doctor, error)
	listEventsFn   func(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error)
}

func (f fakeStore) RegisterPatient(ctx context.Context, input store.RegisterPatientInput) (models.Patient, models.Wave, bool, error) {
	if f.registerFn == nil {
		return models.Patient{}, models.Wave{}, false, nil
	}
	return f.registerFn(ctx, input)
}

func (f fakeStore) GetPatientStatus(ctx context.Context, patientID string) (store.PatientStatus, error) {
	if f.statusFn == nil {
		return store.PatientStatus{}, nil
	}
	return f.statusFn(ctx, patientID)
}

func (f fakeStore) GetTodaySession(ctx context.Context) (models.Session, bool, error) {
	if f.todaySessionFn == nil {
		return models.Session{}, false, nil
	}
	return f.todaySessionFn(ctx)
}

func (f fakeStore) SnapshotWaves(ctx context.Context, sessionID string) ([]models.Wave, error) {
	if f.snapshotFn == nil {
		return nil, nil
	}
	return f.snapshotFn(ctx, sessionID)
}

func (f fakeStore) ListWavePatients(ctx context.Context, waveID string) ([]models.Patient, error) {
	if f.wavePatientsFn == nil {
		return nil, nil
	}
	return f.wavePatientsFn(ctx, waveID)
}

func (f fakeStore) CallPatient(ctx context.Context, input store.PatientActionInput) (models.Patient, error) {
	if f.callFn == nil {
		return models.Patient{}, nil
	}
	return f.callFn(ctx, input)
}

func (f fakeStore) StartConsultation(ctx context.Context, input store.PatientActionInput) (models.Patient, error) {
	if f.startFn == nil {
		return models.Patient{}, nil
	}
	return f.startFn(ctx, input)
}

func (f fakeStore) CompletePatient(ctx context.Context, input store.PatientActionInput) (models.Patient, error) {
	if f.completeFn == nil {
		return models.Patient{}, nil
	}
	return f.completeFn(ctx, input)
}

func (f fakeStore) NoShowPatient(ctx context.Context, input store.PatientActionInput) (models.Patient, error) {
	if f.noShowFn == nil {
		return models.Patient{}, nil
	}
	return f.noShowFn(ctx, input)
}

func (f fakeStore) ActivateWave(ctx context.Context, input store.WaveActionInput) (models.Wave, error) {
	if f.activateWaveFn == nil {
		return models.Wave{}, nil
	}
	return f.activateWaveFn(ctx, input)
}

func (f fakeStore) CompleteWave(ctx context.Context, input store.WaveActionInput) (models.Wave, error) {
	if f.completeWaveFn == nil {
		return models.Wave{}, nil
	}
	return f.completeWaveFn(ctx, input)
}

func (f fakeStore) PauseSession(ctx context.Context, input store.SessionActionInput) (models.Session, error) {
	if f.pauseFn == nil {
		return models.Session{}, nil
	}
	return f.pauseFn(ctx, input)
}

func (f fakeStore) ResumeSession(ctx context.Context, input store.SessionActionInput) (models.Session, error) {
	if f.resumeFn == nil {
		return models.Session{}, nil
	}
	return f.resumeFn(ctx, input)
}

func (f fakeStore) CompleteSession(ctx context.Context, input store.SessionActionInput) (models.Session, error) {
	if f.completeSessFn == nil {
		return models.Session{}, nil
	}
	return f.completeSessFn(ctx, input)
}

func (f fakeStore) CreateDoctor(ctx context.Context, name string) (models.Doctor, error) {
	if f.createDoctorFn == nil {
		return models.Doctor{}, nil
	}
	return f.createDoctorFn(ctx, name)
}

func (f fakeStore) ListDoctors(ctx context.Context) ([]models.Doctor, error) {
	if f.listDoctorsFn == nil {
		return nil, nil
	}
	return f.listDoctorsFn(ctx)
}

func (f fakeStore) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if f.listEventsFn == nil {
		return nil, nil
	}
	return f.listEventsFn(ctx, after, limit)
}

const (
	testRequestID = "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d"
	testPatientID = "1c7f7a9e-35c7-4d8f-9a3c-6e1a9f9b2d11"
	testSessionID = "5f64cf2a-48c9-4f7e-85a1-0f2d33b6a9e2"
	testWaveID    = "7a3b8c1d-9e2f-4a5b-8c7d-1e2f3a4b5c6d"
)

func TestRegisterPatient(t *testing.T) {
	var captured store.RegisterPatientInput
	handler := NewHandler(fakeStore{
		registerFn: func(ctx context.Context, input store.RegisterPatientInput) (models.Patient, models.Wave, bool, error) {
			captured = input
			return models.Patient{
					PatientID:   testPatientID,
					TokenNumber: 1,
					Name:        input.Name,
					Status:      models.PatientWaiting,
				}, models.Wave{
					WaveID: testWaveID,
					Label:  "A",
					Status: models.WavePending,
				}, true, nil
		},
	})

	body, _ := json.Marshal(map[string]string{
		"request_id": testRequestID,
		"name":       "Asha Rao",
		"phone":      "98765432",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/patients", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.RequestID != testRequestID || captured.Name != "Asha Rao" || captured.Phone != "98765432" {
		t.Fatalf("unexpected input: %+v", captured)
	}

	var resp struct {
		Patient models.Patient `json:"patient"`
		Wave    models.Wave    `json:"wave"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Patient.TokenNumber != 1 || resp.Wave.Label != "A" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestRegisterPatientValidation(t *testing.T) {
	handler := NewHandler(fakeStore{})

	cases := []struct {
		name string
		body map[string]string
	}{
		{"missing request_id", map[string]string{"name": "Asha"}},
		{"missing name", map[string]string{"request_id": testRequestID}},
		{"bad request_id", map[string]string{"request_id": "not-a-uuid", "name": "Asha"}},
		{"bad phone", map[string]string{"request_id": testRequestID, "name": "Asha", "phone": "12ab"}},
		{"bad doctor_id", map[string]string{"request_id": testRequestID, "name": "Asha", "doctor_id": "nope"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, _ := json.Marshal(tc.body)
			req := httptest.NewRequest(http.MethodPost, "/api/patients", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			handler.Routes().ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestRegisterPatientNoDoctor(t *testing.T) {
	handler := NewHandler(fakeStore{
		registerFn: func(ctx context.Context, input store.RegisterPatientInput) (models.Patient, models.Wave, bool, error) {
			return models.Patient{}, models.Wave{}, false, store.ErrNoDoctor
		},
	})

	body, _ := json.Marshal(map[string]string{
		"request_id": testRequestID,
		"name":       "Asha Rao",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/patients", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error.Code != "no_doctor" {
		t.Fatalf("expected no_doctor code, got %s", resp.Error.Code)
	}
}

func TestPatientStatusNotFound(t *testing.T) {
	handler := NewHandler(fakeStore{
		statusFn: func(ctx context.Context, patientID string) (store.PatientStatus, error) {
			return store.PatientStatus{}, store.ErrPatientNotFound
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/patients/"+testPatientID+"/status", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPatientActionInvalidState(t *testing.T) {
	handler := NewHandler(fakeStore{
		startFn: func(ctx context.Context, input store.PatientActionInput) (models.Patient, error) {
			return models.Patient{}, store.ErrInvalidState
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/patients/"+testPatientID+"/actions/start", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestPatientActionUnknown(t *testing.T) {
	handler := NewHandler(fakeStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/patients/"+testPatientID+"/actions/vanish", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestWaveSnapshot(t *testing.T) {
	handler := NewHandler(fakeStore{
		snapshotFn: func(ctx context.Context, sessionID string) ([]models.Wave, error) {
			return []models.Wave{
				{WaveID: testWaveID, Label: "A", Status: models.WaveActive, PatientCount: 3},
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/waves/snapshot?session_id="+testSessionID, nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var waves []models.Wave
	if err := json.Unmarshal(rec.Body.Bytes(), &waves); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(waves) != 1 || waves[0].Label != "A" {
		t.Fatalf("unexpected snapshot: %+v", waves)
	}
}

func TestWaveSnapshotUnknownSession(t *testing.T) {
	handler := NewHandler(fakeStore{
		snapshotFn: func(ctx context.Context, sessionID string) ([]models.Wave, error) {
			return nil, store.ErrSessionNotFound
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/waves/snapshot?session_id="+testSessionID, nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTodaySessionEmpty(t *testing.T) {
	handler := NewHandler(fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/today", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestSessionAction(t *testing.T) {
	handler := NewHandler(fakeStore{
		pauseFn: func(ctx context.Context, input store.SessionActionInput) (models.Session, error) {
			return models.Session{SessionID: input.SessionID, Status: models.SessionPaused}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+testSessionID+"/actions/pause", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var session models.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if session.Status != models.SessionPaused {
		t.Fatalf("expected PAUSED, got %s", session.Status)
	}
}

func TestNoShowActionRouted(t *testing.T) {
	var noShowCalled bool
	handler := NewHandler(fakeStore{
		noShowFn: func(ctx context.Context, input store.PatientActionInput) (models.Patient, error) {
			noShowCalled = true
			return models.Patient{PatientID: input.PatientID, Status: models.PatientNoShow}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/patients/"+testPatientID+"/actions/no-show", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !noShowCalled {
		t.Fatalf("expected no-show action to reach the store")
	}
}

func TestEventsLimitClamped(t *testing.T) {
	var captured int
	handler := NewHandler(fakeStore{
		listEventsFn: func(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
			captured = limit
			return nil, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/events?limit=10000000", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured != maxEventsLimit {
		t.Fatalf("expected limit clamped to %d, got %d", maxEventsLimit, captured)
	}
}

func TestEventsBadAfter(t *testing.T) {
	handler := NewHandler(fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/events?after=yesterday", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateDoctor(t *testing.T) {
	handler := NewHandler(fakeStore{
		createDoctorFn: func(ctx context.Context, name string) (models.Doctor, error) {
			return models.Doctor{DoctorID: testSessionID, Name: name, Active: true}, nil
		},
	})

	body, _ := json.Marshal(map[string]string{"name": "Dr. Meera"})
	req := httptest.NewRequest(http.MethodPost, "/api/doctors", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var doctor models.Doctor
	if err := json.Unmarshal(rec.Body.Bytes(), &doctor); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if doctor.Name != "Dr. Meera" || !doctor.Active {
		t.Fatalf("unexpected doctor: %+v", doctor)
	}
}
