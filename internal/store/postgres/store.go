package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/RebinJamshir/waveq/internal/models"
	"github.com/RebinJamshir/waveq/internal/store"
	"github.com/RebinJamshir/waveq/internal/wave"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool           *pgxpool.Pool
	waveCapacity   int
	overlapMinutes int
}

type Options struct {
	WaveCapacity   int
	OverlapMinutes int
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	capacity := options.WaveCapacity
	if capacity <= 0 {
		capacity = wave.DefaultCapacity
	}
	overlap := options.OverlapMinutes
	if overlap <= 0 {
		overlap = wave.DefaultOverlapMinutes
	}
	return &Store{
		pool:           pool,
		waveCapacity:   capacity,
		overlapMinutes: overlap,
	}
}

// RegisterPatient performs the whole registration as one transaction. The
// session row is locked FOR UPDATE for the duration, which serializes
// token assignment and the wave capacity check per session while leaving
// other sessions fully concurrent.
func (s *Store) RegisterPatient(ctx context.Context, input store.RegisterPatientInput) (models.Patient, models.Wave, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Patient{}, models.Wave{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findPatientByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.Patient{}, models.Wave{}, false, err
	}
	if found {
		var assigned models.Wave
		assigned, err = getWave(ctx, tx, existing.WaveID)
		if err != nil {
			return models.Patient{}, models.Wave{}, false, err
		}
		if err = tx.Commit(ctx); err != nil {
			return models.Patient{}, models.Wave{}, false, err
		}
		return existing, assigned, false, nil
	}

	registeredAt := input.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = time.Now().UTC()
	}

	session, err := s.lockOrCreateSession(ctx, tx, input.DoctorID, registeredAt)
	if err != nil {
		return models.Patient{}, models.Wave{}, false, err
	}

	token, err := nextTokenNumber(ctx, tx, session.SessionID)
	if err != nil {
		return models.Patient{}, models.Wave{}, false, err
	}

	assigned, err := s.placeInWave(ctx, tx, session, registeredAt)
	if err != nil {
		return models.Patient{}, models.Wave{}, false, err
	}

	patientID := uuid.NewString()
	var patient models.Patient
	row := tx.QueryRow(ctx, `
		INSERT INTO patients (
			patient_id, request_id, session_id, wave_id, token_number, name, phone, status, registered_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING patient_id, token_number, name, status, registered_at, request_id
	`, patientID, input.RequestID, session.SessionID, assigned.WaveID, token, input.Name, nullIfEmpty(input.Phone), models.PatientWaiting, registeredAt)
	if err = row.Scan(&patient.PatientID, &patient.TokenNumber, &patient.Name, &patient.Status, &patient.RegisteredAt, &patient.RequestID); err != nil {
		return models.Patient{}, models.Wave{}, false, err
	}
	patient.SessionID = session.SessionID
	patient.WaveID = assigned.WaveID
	patient.Phone = input.Phone
	assigned.PatientCount++

	if err = insertOutboxPatientAdded(ctx, tx, session.SessionID, patient, assigned); err != nil {
		return models.Patient{}, models.Wave{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Patient{}, models.Wave{}, false, err
	}

	return patient, assigned, true, nil
}

// lockOrCreateSession returns today's most recent ACTIVE or PAUSED session
// with its row locked. When none exists it creates one for the requested
// doctor (or the first active doctor), relying on the partial unique index
// over live (doctor_id, session_date) rows so concurrent first-of-day
// registrations converge on a single session. A COMPLETED session does not
// occupy the slot; registering again starts a fresh session for the day.
func (s *Store) lockOrCreateSession(ctx context.Context, tx pgx.Tx, doctorID string, now time.Time) (models.Session, error) {
	day := now.Truncate(24 * time.Hour)

	for attempt := 0; attempt < 3; attempt++ {
		session, found, err := lockTodaySession(ctx, tx, day)
		if err != nil {
			return models.Session{}, err
		}
		if found {
			return session, nil
		}

		resolvedDoctor, err := resolveDoctor(ctx, tx, doctorID)
		if err != nil {
			return models.Session{}, err
		}

		var created models.Session
		row := tx.QueryRow(ctx, `
			INSERT INTO sessions (session_id, doctor_id, session_date, status, wave_capacity, overlap_minutes, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (doctor_id, session_date) WHERE status IN ('ACTIVE', 'PAUSED') DO NOTHING
			RETURNING session_id, doctor_id, session_date, status, wave_capacity, overlap_minutes, created_at
		`, uuid.NewString(), resolvedDoctor, day, models.SessionActive, s.waveCapacity, s.overlapMinutes, now)
		err = row.Scan(&created.SessionID, &created.DoctorID, &created.SessionDate, &created.Status, &created.WaveCapacity, &created.OverlapMinutes, &created.CreatedAt)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, err
		}
		// Lost the insert race; loop and fetch the winner's row.
	}

	return models.Session{}, store.ErrSessionNotFound
}

func lockTodaySession(ctx context.Context, tx pgx.Tx, day time.Time) (models.Session, bool, error) {
	var session models.Session
	row := tx.QueryRow(ctx, `
		SELECT session_id, doctor_id, session_date, status, wave_capacity, overlap_minutes, created_at
		FROM sessions
		WHERE session_date = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, day, models.SessionActive, models.SessionPaused)
	if err := row.Scan(&session.SessionID, &session.DoctorID, &session.SessionDate, &session.Status, &session.WaveCapacity, &session.OverlapMinutes, &session.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, false, nil
		}
		return models.Session{}, false, err
	}
	return session, true, nil
}

func resolveDoctor(ctx context.Context, tx pgx.Tx, doctorID string) (string, error) {
	if doctorID != "" {
		var id string
		row := tx.QueryRow(ctx, `
			SELECT doctor_id FROM doctors WHERE doctor_id = $1 AND active = TRUE
		`, doctorID)
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return "", store.ErrDoctorNotFound
			}
			return "", err
		}
		return id, nil
	}

	var id string
	row := tx.QueryRow(ctx, `
		SELECT doctor_id FROM doctors WHERE active = TRUE ORDER BY name ASC LIMIT 1
	`)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrNoDoctor
		}
		return "", err
	}
	return id, nil
}

func nextTokenNumber(ctx context.Context, tx pgx.Tx, sessionID string) (int, error) {
	var next int
	row := tx.QueryRow(ctx, `
		INSERT INTO token_sequences (session_id, next_number)
		VALUES ($1, 1)
		ON CONFLICT (session_id)
		DO UPDATE SET next_number = token_sequences.next_number + 1
		RETURNING next_number
	`, sessionID)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

// placeInWave applies the allocation rule: join the latest wave when it
// still has room, otherwise create the next wave with a sequential label
// and a window offset from the latest wave's start.
func (s *Store) placeInWave(ctx context.Context, tx pgx.Tx, session models.Session, now time.Time) (models.Wave, error) {
	latest, found, err := latestWave(ctx, tx, session.SessionID)
	if err != nil {
		return models.Wave{}, err
	}
	if found && wave.HasRoom(latest.PatientCount, session.WaveCapacity) {
		return latest, nil
	}

	label := wave.FirstLabel
	latestStart := time.Time{}
	if found {
		label = wave.NextLabel(latest.Label)
		latestStart = latest.StartTime
	}
	window := wave.PlanWindow(latestStart, session.OverlapMinutes, now)

	var created models.Wave
	row := tx.QueryRow(ctx, `
		INSERT INTO waves (wave_id, session_id, label, start_time, end_time, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING wave_id, session_id, label, start_time, end_time, status, created_at
	`, uuid.NewString(), session.SessionID, label, window.Start, window.End, models.WavePending, now)
	if err := row.Scan(&created.WaveID, &created.SessionID, &created.Label, &created.StartTime, &created.EndTime, &created.Status, &created.CreatedAt); err != nil {
		return models.Wave{}, err
	}
	return created, nil
}

func latestWave(ctx context.Context, tx pgx.Tx, sessionID string) (models.Wave, bool, error) {
	var latest models.Wave
	row := tx.QueryRow(ctx, `
		SELECT w.wave_id, w.session_id, w.label, w.start_time, w.end_time, w.status, w.created_at,
			(SELECT COUNT(*) FROM patients p WHERE p.wave_id = w.wave_id)
		FROM waves w
		WHERE w.session_id = $1
		ORDER BY w.start_time DESC
		LIMIT 1
	`, sessionID)
	if err := row.Scan(&latest.WaveID, &latest.SessionID, &latest.Label, &latest.StartTime, &latest.EndTime, &latest.Status, &latest.CreatedAt, &latest.PatientCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Wave{}, false, nil
		}
		return models.Wave{}, false, err
	}
	return latest, true, nil
}

func findPatientByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Patient, bool, error) {
	var patient models.Patient
	var phoneNull sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT patient_id, session_id, wave_id, token_number, name, phone, status, registered_at, request_id
		FROM patients
		WHERE request_id = $1
	`, requestID)
	if err := row.Scan(&patient.PatientID, &patient.SessionID, &patient.WaveID, &patient.TokenNumber, &patient.Name, &phoneNull, &patient.Status, &patient.RegisteredAt, &patient.RequestID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Patient{}, false, nil
		}
		return models.Patient{}, false, err
	}
	if phoneNull.Valid {
		patient.Phone = phoneNull.String
	}
	return patient, true, nil
}

func getWave(ctx context.Context, tx pgx.Tx, waveID string) (models.Wave, error) {
	var result models.Wave
	row := tx.QueryRow(ctx, `
		SELECT w.wave_id, w.session_id, w.label, w.start_time, w.end_time, w.status, w.created_at,
			(SELECT COUNT(*) FROM patients p WHERE p.wave_id = w.wave_id)
		FROM waves w
		WHERE w.wave_id = $1
	`, waveID)
	if err := row.Scan(&result.WaveID, &result.SessionID, &result.Label, &result.StartTime, &result.EndTime, &result.Status, &result.CreatedAt, &result.PatientCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Wave{}, store.ErrWaveNotFound
		}
		return models.Wave{}, err
	}
	return result, nil
}

func (s *Store) GetPatientStatus(ctx context.Context, patientID string) (store.PatientStatus, error) {
	var status store.PatientStatus
	row := s.pool.QueryRow(ctx, `
		SELECT p.patient_id, p.token_number, p.name, p.status, w.label, w.status, w.start_time, w.end_time
		FROM patients p
		JOIN waves w ON w.wave_id = p.wave_id
		WHERE p.patient_id = $1
	`, patientID)
	if err := row.Scan(&status.PatientID, &status.TokenNumber, &status.Name, &status.Status, &status.WaveLabel, &status.WaveStatus, &status.WaveStart, &status.WaveEnd); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.PatientStatus{}, store.ErrPatientNotFound
		}
		return store.PatientStatus{}, err
	}
	return status, nil
}

func (s *Store) GetTodaySession(ctx context.Context) (models.Session, bool, error) {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	var session models.Session
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, doctor_id, session_date, status, wave_capacity, overlap_minutes, created_at
		FROM sessions
		WHERE session_date = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1
	`, day, models.SessionActive, models.SessionPaused)
	if err := row.Scan(&session.SessionID, &session.DoctorID, &session.SessionDate, &session.Status, &session.WaveCapacity, &session.OverlapMinutes, &session.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, false, nil
		}
		return models.Session{}, false, err
	}
	return session, true, nil
}

func (s *Store) SnapshotWaves(ctx context.Context, sessionID string) ([]models.Wave, error) {
	var exists bool
	row := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM sessions WHERE session_id = $1)
	`, sessionID)
	if err := row.Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT w.wave_id, w.session_id, w.label, w.start_time, w.end_time, w.status, w.created_at,
			(SELECT COUNT(*) FROM patients p WHERE p.wave_id = w.wave_id)
		FROM waves w
		WHERE w.session_id = $1
		ORDER BY w.start_time ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var waves []models.Wave
	for rows.Next() {
		var item models.Wave
		if err := rows.Scan(&item.WaveID, &item.SessionID, &item.Label, &item.StartTime, &item.EndTime, &item.Status, &item.CreatedAt, &item.PatientCount); err != nil {
			return nil, err
		}
		waves = append(waves, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return waves, nil
}

func (s *Store) ListWavePatients(ctx context.Context, waveID string) ([]models.Patient, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT patient_id, session_id, wave_id, token_number, name, phone, status, registered_at, called_at, completed_at
		FROM patients
		WHERE wave_id = $1
		ORDER BY token_number ASC
	`, waveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []models.Patient
	for rows.Next() {
		var patient models.Patient
		var phoneNull sql.NullString
		var calledAtNull sql.NullTime
		var completedAtNull sql.NullTime
		if err := rows.Scan(&patient.PatientID, &patient.SessionID, &patient.WaveID, &patient.TokenNumber, &patient.Name, &phoneNull, &patient.Status, &patient.RegisteredAt, &calledAtNull, &completedAtNull); err != nil {
			return nil, err
		}
		if phoneNull.Valid {
			patient.Phone = phoneNull.String
		}
		patient.CalledAt = nullTimePtr(calledAtNull)
		patient.CompletedAt = nullTimePtr(completedAtNull)
		patients = append(patients, patient)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return patients, nil
}

func (s *Store) CallPatient(ctx context.Context, input store.PatientActionInput) (models.Patient, error) {
	return s.updatePatientStatus(ctx, input, store.ActionCall, models.PatientCalled, "called_at")
}

func (s *Store) StartConsultation(ctx context.Context, input store.PatientActionInput) (models.Patient, error) {
	return s.updatePatientStatus(ctx, input, store.ActionStart, models.PatientInConsultation, "")
}

func (s *Store) CompletePatient(ctx context.Context, input store.PatientActionInput) (models.Patient, error) {
	return s.updatePatientStatus(ctx, input, store.ActionComplete, models.PatientCompleted, "completed_at")
}

func (s *Store) NoShowPatient(ctx context.Context, input store.PatientActionInput) (models.Patient, error) {
	return s.updatePatientStatus(ctx, input, store.ActionNoShow, models.PatientNoShow, "")
}

// updatePatientStatus applies a conditional transition. The allowed
// from-statuses come from the transition tables, and the UPDATE only
// matches while the patient is still in one of them, so a losing
// concurrent caller sees ErrInvalidState instead of clobbering the state.
func (s *Store) updatePatientStatus(ctx context.Context, input store.PatientActionInput, action, toStatus, timestampColumn string) (models.Patient, error) {
	fromStatuses := store.PatientActionSources(action)
	if len(fromStatuses) == 0 {
		return models.Patient{}, store.ErrInvalidState
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Patient{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	query := `
		UPDATE patients
		SET status = $1
		WHERE patient_id = $2 AND status = ANY($3)
		RETURNING patient_id, session_id, wave_id, token_number, name, phone, status, registered_at, called_at, completed_at
	`
	args := []interface{}{toStatus, input.PatientID, fromStatuses}
	if timestampColumn != "" {
		query = `
			UPDATE patients
			SET status = $1, ` + timestampColumn + ` = $4
			WHERE patient_id = $2 AND status = ANY($3)
			RETURNING patient_id, session_id, wave_id, token_number, name, phone, status, registered_at, called_at, completed_at
		`
		args = append(args, occurredAt)
	}

	var patient models.Patient
	var phoneNull sql.NullString
	var calledAtNull sql.NullTime
	var completedAtNull sql.NullTime
	row := tx.QueryRow(ctx, query, args...)
	if err = row.Scan(&patient.PatientID, &patient.SessionID, &patient.WaveID, &patient.TokenNumber, &patient.Name, &phoneNull, &patient.Status, &patient.RegisteredAt, &calledAtNull, &completedAtNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			exists, lookupErr := patientExists(ctx, tx, input.PatientID)
			if lookupErr != nil {
				return models.Patient{}, lookupErr
			}
			if !exists {
				return models.Patient{}, store.ErrPatientNotFound
			}
			return models.Patient{}, store.ErrInvalidState
		}
		return models.Patient{}, err
	}
	if phoneNull.Valid {
		patient.Phone = phoneNull.String
	}
	patient.CalledAt = nullTimePtr(calledAtNull)
	patient.CompletedAt = nullTimePtr(completedAtNull)

	if err = insertOutboxStatusUpdated(ctx, tx, patient); err != nil {
		return models.Patient{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Patient{}, err
	}
	return patient, nil
}

func patientExists(ctx context.Context, tx pgx.Tx, patientID string) (bool, error) {
	var exists bool
	row := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM patients WHERE patient_id = $1)
	`, patientID)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) ActivateWave(ctx context.Context, input store.WaveActionInput) (models.Wave, error) {
	return s.updateWaveStatus(ctx, input, store.ActionActivate, models.WaveActive)
}

func (s *Store) CompleteWave(ctx context.Context, input store.WaveActionInput) (models.Wave, error) {
	return s.updateWaveStatus(ctx, input, store.ActionComplete, models.WaveCompleted)
}

func (s *Store) updateWaveStatus(ctx context.Context, input store.WaveActionInput, action, toStatus string) (models.Wave, error) {
	fromStatuses := store.WaveActionSources(action)
	if len(fromStatuses) == 0 {
		return models.Wave{}, store.ErrInvalidState
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Wave{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var updated models.Wave
	row := tx.QueryRow(ctx, `
		UPDATE waves
		SET status = $1
		WHERE wave_id = $2 AND status = ANY($3)
		RETURNING wave_id, session_id, label, start_time, end_time, status, created_at
	`, toStatus, input.WaveID, fromStatuses)
	if err = row.Scan(&updated.WaveID, &updated.SessionID, &updated.Label, &updated.StartTime, &updated.EndTime, &updated.Status, &updated.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			lookup := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM waves WHERE wave_id = $1)`, input.WaveID)
			if scanErr := lookup.Scan(&exists); scanErr != nil {
				return models.Wave{}, scanErr
			}
			if !exists {
				return models.Wave{}, store.ErrWaveNotFound
			}
			return models.Wave{}, store.ErrInvalidState
		}
		return models.Wave{}, err
	}

	if err = insertOutboxWaveUpdated(ctx, tx, updated); err != nil {
		return models.Wave{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Wave{}, err
	}
	return updated, nil
}

func (s *Store) PauseSession(ctx context.Context, input store.SessionActionInput) (models.Session, error) {
	return s.updateSessionStatus(ctx, input, store.ActionPause, models.SessionPaused)
}

func (s *Store) ResumeSession(ctx context.Context, input store.SessionActionInput) (models.Session, error) {
	return s.updateSessionStatus(ctx, input, store.ActionResume, models.SessionActive)
}

func (s *Store) CompleteSession(ctx context.Context, input store.SessionActionInput) (models.Session, error) {
	return s.updateSessionStatus(ctx, input, store.ActionComplete, models.SessionCompleted)
}

func (s *Store) updateSessionStatus(ctx context.Context, input store.SessionActionInput, action, toStatus string) (models.Session, error) {
	fromStatuses := store.SessionActionSources(action)
	if len(fromStatuses) == 0 {
		return models.Session{}, store.ErrInvalidState
	}

	var session models.Session
	row := s.pool.QueryRow(ctx, `
		UPDATE sessions
		SET status = $1
		WHERE session_id = $2 AND status = ANY($3)
		RETURNING session_id, doctor_id, session_date, status, wave_capacity, overlap_minutes, created_at
	`, toStatus, input.SessionID, fromStatuses)
	if err := row.Scan(&session.SessionID, &session.DoctorID, &session.SessionDate, &session.Status, &session.WaveCapacity, &session.OverlapMinutes, &session.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			lookup := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE session_id = $1)`, input.SessionID)
			if scanErr := lookup.Scan(&exists); scanErr != nil {
				return models.Session{}, scanErr
			}
			if !exists {
				return models.Session{}, store.ErrSessionNotFound
			}
			return models.Session{}, store.ErrInvalidState
		}
		return models.Session{}, err
	}
	return session, nil
}

func (s *Store) CreateDoctor(ctx context.Context, name string) (models.Doctor, error) {
	var doctor models.Doctor
	row := s.pool.QueryRow(ctx, `
		INSERT INTO doctors (doctor_id, name, active)
		VALUES ($1, $2, TRUE)
		RETURNING doctor_id, name, active
	`, uuid.NewString(), name)
	if err := row.Scan(&doctor.DoctorID, &doctor.Name, &doctor.Active); err != nil {
		return models.Doctor{}, err
	}
	return doctor, nil
}

func (s *Store) ListDoctors(ctx context.Context) ([]models.Doctor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doctor_id, name, active
		FROM doctors
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var doctors []models.Doctor
	for rows.Next() {
		var doctor models.Doctor
		if err := rows.Scan(&doctor.DoctorID, &doctor.Name, &doctor.Active); err != nil {
			return nil, err
		}
		doctors = append(doctors, doctor)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return doctors, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, session_id, type, payload_json, created_at
		FROM outbox_events
		WHERE created_at > $1
		ORDER BY created_at ASC
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.SessionID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) GetNotificationOffset(ctx context.Context) (time.Time, error) {
	var value time.Time
	row := s.pool.QueryRow(ctx, `
		SELECT last_event_time
		FROM notification_offsets
		WHERE id = 1
	`)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return value, nil
}

func (s *Store) UpdateNotificationOffset(ctx context.Context, value time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_offsets (id, last_event_time)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET last_event_time = EXCLUDED.last_event_time
	`, value)
	return err
}

func insertOutboxPatientAdded(ctx context.Context, tx pgx.Tx, sessionID string, patient models.Patient, assigned models.Wave) error {
	payload := map[string]interface{}{
		"patient": patient,
		"wave":    assigned,
	}
	return insertOutboxEvent(ctx, tx, sessionID, store.EventPatientAdded, payload)
}

func insertOutboxStatusUpdated(ctx context.Context, tx pgx.Tx, patient models.Patient) error {
	payload := map[string]interface{}{
		"patient_id":   patient.PatientID,
		"token_number": patient.TokenNumber,
		"wave_id":      patient.WaveID,
		"status":       patient.Status,
		"phone":        patient.Phone,
	}
	return insertOutboxEvent(ctx, tx, patient.SessionID, store.EventStatusUpdated, payload)
}

func insertOutboxWaveUpdated(ctx context.Context, tx pgx.Tx, updated models.Wave) error {
	payload := map[string]interface{}{
		"wave_id":    updated.WaveID,
		"label":      updated.Label,
		"status":     updated.Status,
		"start_time": updated.StartTime,
		"end_time":   updated.EndTime,
	}
	return insertOutboxEvent(ctx, tx, updated.SessionID, store.EventWaveUpdated, payload)
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, sessionID, eventType string, payload map[string]interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, session_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), sessionID, eventType, payloadJSON, time.Now().UTC())
	return err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	result := value.Time
	return &result
}
