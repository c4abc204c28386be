package directory

import (
	"time"
)

type AppointmentStatus string

const (
	StatusScheduled   AppointmentStatus = "scheduled"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusRescheduled AppointmentStatus = "rescheduled"
	StatusCompleted   AppointmentStatus = "completed"
)

type Patient struct {
	ID          string
	Name        string
	PhoneNumber string
	Email       *string
}

type Appointment struct {
	ID              string
	PatientID       string
	Doctor          string
	StartTime       time.Time
	DurationMinutes int
	Status          AppointmentStatus
	Notes           *string
}

// AppointmentDetails is the flattened snapshot attached to a call session.
// The date and time fields are pre-formatted for speech, matching how the
// dialogue script reads them out.
type AppointmentDetails struct {
	AppointmentID   string `json:"appointment_id"`
	PatientName     string `json:"patient_name"`
	PatientPhone    string `json:"patient_phone"`
	Doctor          string `json:"doctor"`
	Date            string `json:"date"` // e.g. "Monday, May 5"
	Time            string `json:"time"` // e.g. "2:30 PM"
	Status          string `json:"status"`
	DurationMinutes int    `json:"duration_minutes"`
	Notes           string `json:"notes,omitempty"`
}

// Speech-friendly layouts for appointment datetimes.
const (
	DateLayout = "Monday, January 2"
	TimeLayout = "3:04 PM"
)
