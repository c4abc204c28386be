// Package directory holds the patient and appointment records the bot talks
// about. The in-memory implementation carries demo data; the Postgres
// implementation backs a real deployment.
package directory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Directory contains all patient and appointment lookups the call paths need.
type Directory interface {
	PatientByID(ctx context.Context, id string) (*Patient, error)
	PatientByPhone(ctx context.Context, phoneNumber string) (*Patient, error)

	AppointmentByID(ctx context.Context, id string) (*Appointment, error)
	UpcomingAppointments(ctx context.Context, patientID string) ([]Appointment, error)

	ConfirmAppointment(ctx context.Context, id string) (*Appointment, error)
	RescheduleAppointment(ctx context.Context, id string, newTime time.Time) (*Appointment, error)

	// AvailableSlots returns open slot start times within [from, to],
	// earliest first.
	AvailableSlots(ctx context.Context, from, to time.Time) ([]time.Time, error)

	AppointmentDetails(ctx context.Context, id string) (*AppointmentDetails, error)

	// NextAppointmentForPhone finds the earliest upcoming appointment for the
	// patient owning phoneNumber. Returns ErrAppointmentNotFound when the
	// patient is unknown or has nothing scheduled.
	NextAppointmentForPhone(ctx context.Context, phoneNumber string) (*AppointmentDetails, error)
}

// Details flattens an appointment and its patient into the snapshot the call
// session carries.
func Details(appt *Appointment, patient *Patient) *AppointmentDetails {
	d := &AppointmentDetails{
		AppointmentID:   appt.ID,
		PatientName:     patient.Name,
		PatientPhone:    patient.PhoneNumber,
		Doctor:          appt.Doctor,
		Date:            appt.StartTime.Format(DateLayout),
		Time:            appt.StartTime.Format(TimeLayout),
		Status:          string(appt.Status),
		DurationMinutes: appt.DurationMinutes,
	}
	if appt.Notes != nil {
		d.Notes = *appt.Notes
	}
	return d
}
