package directory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryDirectory is the demo-data directory used when no Postgres DSN is
// configured, and by tests.
type MemoryDirectory struct {
	mu           sync.RWMutex
	patients     map[string]*Patient
	appointments map[string]*Appointment
	slots        []time.Time
}

// NewMemoryDirectory builds a directory pre-loaded with a couple of patients,
// their scheduled appointments and a handful of open slots over the next few
// days.
func NewMemoryDirectory() *MemoryDirectory {
	now := time.Now()
	johnEmail := "john.doe@example.com"
	janeEmail := "jane.smith@example.com"

	d := &MemoryDirectory{
		patients: map[string]*Patient{
			"P001": {ID: "P001", Name: "John Doe", PhoneNumber: "+11234567890", Email: &johnEmail},
			"P002": {ID: "P002", Name: "Jane Smith", PhoneNumber: "+10987654321", Email: &janeEmail},
		},
		appointments: map[string]*Appointment{
			"A001": {
				ID:              "A001",
				PatientID:       "P001",
				Doctor:          "Dr. Smith",
				StartTime:       now.Add(26 * time.Hour),
				DurationMinutes: 30,
				Status:          StatusScheduled,
			},
			"A002": {
				ID:              "A002",
				PatientID:       "P002",
				Doctor:          "Dr. Johnson",
				StartTime:       now.Add(52 * time.Hour),
				DurationMinutes: 30,
				Status:          StatusScheduled,
			},
		},
		slots: []time.Time{
			now.Add(3*24*time.Hour + 9*time.Hour),
			now.Add(3*24*time.Hour + 10*time.Hour),
			now.Add(3*24*time.Hour + 14*time.Hour),
			now.Add(4*24*time.Hour + 11*time.Hour),
			now.Add(4*24*time.Hour + 15*time.Hour),
		},
	}
	return d
}

func (d *MemoryDirectory) PatientByID(ctx context.Context, id string) (*Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (d *MemoryDirectory) PatientByPhone(ctx context.Context, phoneNumber string) (*Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, p := range d.patients {
		if p.PhoneNumber == phoneNumber {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (d *MemoryDirectory) AppointmentByID(ctx context.Context, id string) (*Appointment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (d *MemoryDirectory) UpcomingAppointments(ctx context.Context, patientID string) ([]Appointment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	now := time.Now()
	var out []Appointment
	for _, a := range d.appointments {
		if a.PatientID == patientID && a.StartTime.After(now) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (d *MemoryDirectory) ConfirmAppointment(ctx context.Context, id string) (*Appointment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Status = StatusConfirmed
	cp := *a
	return &cp, nil
}

func (d *MemoryDirectory) RescheduleAppointment(ctx context.Context, id string, newTime time.Time) (*Appointment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.StartTime = newTime
	a.Status = StatusRescheduled
	cp := *a
	return &cp, nil
}

func (d *MemoryDirectory) AvailableSlots(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []time.Time
	for _, s := range d.slots {
		if !s.Before(from) && !s.After(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (d *MemoryDirectory) AppointmentDetails(ctx context.Context, id string) (*AppointmentDetails, error) {
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

func (d *MemoryDirectory) NextAppointmentForPhone(ctx context.Context, phoneNumber string) (*AppointmentDetails, error) {
	patient, err := d.PatientByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, ErrAppointmentNotFound
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
