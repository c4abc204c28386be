package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgDirectory serves the directory out of Postgres. Tables: patients,
// appointments, open_slots.
type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

// Connect opens a pgx pool against dsn and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.PhoneNumber,
		&email,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var notes *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.Doctor,
		&a.StartTime,
		&a.DurationMinutes,
		&a.Status,
		&notes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Notes = notes
	return &a, nil
}

func (d *PgDirectory) PatientByID(ctx context.Context, id string) (*Patient, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, name, phone_number, email
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (d *PgDirectory) PatientByPhone(ctx context.Context, phoneNumber string) (*Patient, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, name, phone_number, email
		FROM patients
		WHERE phone_number = $1
	`, phoneNumber)
	return scanPatient(row)
}

func (d *PgDirectory) AppointmentByID(ctx context.Context, id string) (*Appointment, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, patient_id, doctor, start_time, duration_minutes, status, notes
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (d *PgDirectory) UpcomingAppointments(ctx context.Context, patientID string) ([]Appointment, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, patient_id, doctor, start_time, duration_minutes, status, notes
		FROM appointments
		WHERE patient_id = $1 AND start_time > now()
		ORDER BY start_time
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (d *PgDirectory) ConfirmAppointment(ctx context.Context, id string) (*Appointment, error) {
	row := d.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, patient_id, doctor, start_time, duration_minutes, status, notes
	`, id, StatusConfirmed)
	return scanAppointment(row)
}

func (d *PgDirectory) RescheduleAppointment(ctx context.Context, id string, newTime time.Time) (*Appointment, error) {
	row := d.pool.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $2, status = $3, updated_at = now()
		WHERE id = $1
		RETURNING id, patient_id, doctor, start_time, duration_minutes, status, notes
	`, id, newTime, StatusRescheduled)
	return scanAppointment(row)
}

func (d *PgDirectory) AvailableSlots(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT start_time
		FROM open_slots
		WHERE status = 'open' AND start_time BETWEEN $1 AND $2
		ORDER BY start_time
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (d *PgDirectory) AppointmentDetails(ctx context.Context, id string) (*AppointmentDetails, error) {
	appt, err := d.AppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	patient, err := d.PatientByID(ctx, appt.PatientID)
	if err != nil {
		return nil, err
	}
	return Details(appt, patient), nil
}

func (d *PgDirectory) NextAppointmentForPhone(ctx context.Context, phoneNumber string) (*AppointmentDetails, error) {
	patient, err := d.PatientByPhone(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	upcoming, err := d.UpcomingAppointments(ctx, patient.ID)
	if err != nil {
		return nil, err
	}
	if len(upcoming) == 0 {
		return nil, ErrAppointmentNotFound
	}

	return Details(&upcoming[0], patient), nil
}
