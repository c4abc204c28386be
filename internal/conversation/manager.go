// Package conversation drives the appointment-confirmation dialogue. Control
// is deliberately keyword-based: explicit ordered phrase tables keep every
// transition explainable and testable.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Foundasion/appointment-confirmation-bot/internal/directory"
)

type Phase string

const (
	PhaseInitial      Phase = "initial"
	PhaseConfirming   Phase = "confirming"
	PhaseRescheduling Phase = "rescheduling"
	PhaseCompleted    Phase = "completed"
)

// Intent tags returned with each reply.
const (
	IntentConfirm             = "confirm"
	IntentReschedule          = "reschedule"
	IntentUnclear             = "unclear"
	IntentQuestion            = "question"
	IntentComplete            = "complete"
	IntentRescheduleConfirmed = "reschedule_confirmed"
	IntentUnclearTime         = "unclear_time"
	IntentAdditionalHelp      = "additional_help"
	IntentGoodbye             = "goodbye"
)

// maxOfferedSlots caps how many alternatives are ever spoken or matchable.
const maxOfferedSlots = 3

// rescheduleWindow is how far ahead alternatives are drawn from availability.
const rescheduleWindow = 7 * 24 * time.Hour

var (
	confirmWords    = []string{"yes", "confirm", "good", "fine", "okay", "sure", "correct"}
	rescheduleWords = []string{"no", "reschedule", "change", "different", "can't make", "unable"}
	questionWords   = []string{"question", "ask", "wonder", "curious"}
	helpWords       = []string{"yes", "question", "help"}
)

// Scheduler is the slice of the directory the dialogue needs: slot lookup
// when the caller asks to reschedule, and the write-back once they pick one.
type Scheduler interface {
	AvailableSlots(ctx context.Context, from, to time.Time) ([]time.Time, error)
	RescheduleAppointment(ctx context.Context, id string, newTime time.Time) (*directory.Appointment, error)
}

// Reply is the state machine's answer to one user utterance.
type Reply struct {
	Intent       string
	Response     string
	OfferedSlots []string   // spoken descriptions, set on a reschedule offer
	NewDateTime  *time.Time // set when a reschedule is confirmed
}

// Outcome is the terminal classification of a conversation.
type Outcome struct {
	Status      string     // confirmed, rescheduled, incomplete
	NewDateTime *time.Time // set when Status is rescheduled
	Phase       Phase      // set when Status is incomplete
}

// Manager holds one call's dialogue state. The phase only ever advances
// through initial -> confirming|rescheduling -> completed; unclear input
// leaves it unchanged.
type Manager struct {
	scheduler Scheduler
	log       logrus.FieldLogger
	now       func() time.Time

	mu            sync.Mutex
	appointment   *directory.AppointmentDetails
	phase         Phase
	proposedSlots []time.Time
	selectedSlot  *time.Time
}

func NewManager(scheduler Scheduler, log logrus.FieldLogger) *Manager {
	return &Manager{
		scheduler: scheduler,
		log:       log,
		now:       time.Now,
		phase:     PhaseInitial,
	}
}

// SetAppointment attaches the appointment under discussion and resets the
// dialogue to its initial phase.
func (m *Manager) SetAppointment(appt *directory.AppointmentDetails) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appointment = appt
	m.phase = PhaseInitial
	m.proposedSlots = nil
	m.selectedSlot = nil
}

func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Process classifies one user utterance and advances the dialogue.
func (m *Manager) Process(ctx context.Context, text string) Reply {
	m.mu.Lock()
	defer m.mu.Unlock()

	text = strings.ToLower(text)

	switch m.phase {
	case PhaseInitial:
		return m.processInitial(ctx, text)
	case PhaseConfirming:
		return m.processConfirming(text)
	case PhaseRescheduling:
		return m.processRescheduling(ctx, text)
	case PhaseCompleted:
		return m.processCompleted(text)
	}

	return Reply{
		Intent:   IntentUnclear,
		Response: "I'm not sure how to respond to that. Can you please clarify if you want to confirm or reschedule your appointment?",
	}
}

func (m *Manager) processInitial(ctx context.Context, text string) Reply {
	if containsAny(text, confirmWords) {
		m.phase = PhaseConfirming
		return Reply{
			Intent:   IntentConfirm,
			Response: "Great! I'll mark your appointment as confirmed. Is there anything else you need to know about your appointment?",
		}
	}

	if containsAny(text, rescheduleWords) {
		m.phase = PhaseRescheduling

		now := m.now()
		slots, err := m.scheduler.AvailableSlots(ctx, now, now.Add(rescheduleWindow))
		if err != nil || len(slots) == 0 {
			// Degraded but still responsive: stay in rescheduling and let the
			// office sort out the new time.
			return Reply{
				Intent:   IntentReschedule,
				Response: "I understand you'd like to reschedule. I'm having trouble pulling up our openings right now, so someone from the office will call you back to find a new time.",
			}
		}

		if len(slots) > maxOfferedSlots {
			slots = slots[:maxOfferedSlots]
		}
		m.proposedSlots = slots

		descriptions := make([]string, len(slots))
		for i, slot := range slots {
			descriptions[i] = fmt.Sprintf("%s at %s",
				slot.Format(directory.DateLayout), slot.Format(directory.TimeLayout))
		}

		return Reply{
			Intent: IntentReschedule,
			Response: fmt.Sprintf(
				"I understand you'd like to reschedule. We have availability on %s. Would any of these times work for you?",
				joinWithOr(descriptions)),
			OfferedSlots: descriptions,
		}
	}

	return Reply{
		Intent:   IntentUnclear,
		Response: "I'm not sure if you want to confirm or reschedule your appointment. Can you please let me know if you'd like to keep your appointment or reschedule it?",
	}
}

func (m *Manager) processConfirming(text string) Reply {
	if containsAny(text, questionWords) {
		return Reply{
			Intent:   IntentQuestion,
			Response: "I'd be happy to help with any questions, but I don't have access to specific medical information. For medical questions, please speak with your doctor during your appointment. Is there anything else I can assist with regarding your appointment scheduling?",
		}
	}

	m.phase = PhaseCompleted

	date, timeOfDay := "your scheduled date", "your scheduled time"
	if m.appointment != nil {
		if m.appointment.Date != "" {
			date = m.appointment.Date
		}
		if m.appointment.Time != "" {
			timeOfDay = m.appointment.Time
		}
	}

	return Reply{
		Intent: IntentComplete,
		Response: fmt.Sprintf(
			"Thank you for confirming your appointment. We look forward to seeing you on %s at %s. Have a great day!",
			date, timeOfDay),
	}
}

func (m *Manager) processRescheduling(ctx context.Context, text string) Reply {
	idx := matchSlot(text, m.proposedSlots)
	if idx < 0 {
		return Reply{
			Intent:   IntentUnclearTime,
			Response: "I'm sorry, I couldn't determine which time you prefer. Could you please specify which of the offered times works best for you?",
		}
	}

	slot := m.proposedSlots[idx]
	m.selectedSlot = &slot
	m.phase = PhaseCompleted

	if m.appointment != nil && m.appointment.AppointmentID != "" {
		if _, err := m.scheduler.RescheduleAppointment(ctx, m.appointment.AppointmentID, slot); err != nil {
			m.log.WithError(err).WithField("appointment_id", m.appointment.AppointmentID).
				Error("reschedule write-back failed")
		}
	}

	return Reply{
		Intent: IntentRescheduleConfirmed,
		Response: fmt.Sprintf(
			"Great! I've rescheduled your appointment to %s at %s. You'll receive a confirmation message shortly. Is there anything else you need help with?",
			slot.Format(directory.DateLayout), slot.Format(directory.TimeLayout)),
		NewDateTime: &slot,
	}
}

func (m *Manager) processCompleted(text string) Reply {
	if containsAny(text, helpWords) {
		return Reply{
			Intent:   IntentAdditionalHelp,
			Response: "For any other questions or concerns, please contact the office directly. Is there anything specific about your appointment that you'd like me to address?",
		}
	}
	return Reply{
		Intent:   IntentGoodbye,
		Response: "Thank you for your time. Have a wonderful day!",
	}
}

// Outcome reports the conversation's terminal classification. Calling it
// repeatedly without further input returns identical results.
func (m *Manager) Outcome() Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseCompleted {
		return Outcome{Status: "incomplete", Phase: m.phase}
	}
	if m.selectedSlot != nil {
		slot := *m.selectedSlot
		return Outcome{Status: "rescheduled", NewDateTime: &slot}
	}
	return Outcome{Status: "confirmed"}
}

// ordinalPhrases maps spoken ordinals to slot indices. Ordinal matches take
// priority over date or time substrings.
var ordinalPhrases = []struct {
	phrases []string
	index   int
}{
	{[]string{"first", "1st", "option 1", "option one"}, 0},
	{[]string{"second", "2nd", "option 2", "option two"}, 1},
	{[]string{"third", "3rd", "option 3", "option three"}, 2},
}

// matchSlot resolves lowercased input against the offered slots. Only the
// first maxOfferedSlots slots are matchable, and the lowest-index slot wins
// when several date substrings match.
func matchSlot(text string, slots []time.Time) int {
	for _, o := range ordinalPhrases {
		if o.index < len(slots) && containsAny(text, o.phrases) {
			return o.index
		}
	}

	limit := len(slots)
	if limit > maxOfferedSlots {
		limit = maxOfferedSlots
	}
	for i := 0; i < limit; i++ {
		slot := slots[i]
		day := strings.ToLower(slot.Format("Monday"))
		date := strings.ToLower(slot.Format("January 2"))
		clock := slot.Format("3:04")
		hourAmPm := strings.ToLower(slot.Format("3 PM"))

		if strings.Contains(text, day) ||
			strings.Contains(text, date) ||
			strings.Contains(text, clock) ||
			strings.Contains(text, hourAmPm) {
			return i
		}
	}
	return -1
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func joinWithOr(items []string) string {
	if len(items) == 1 {
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " or " + items[len(items)-1]
}
