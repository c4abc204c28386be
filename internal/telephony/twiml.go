package telephony

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/Foundasion/appointment-confirmation-bot/internal/directory"
)

// ConnectStreamTwiML produces the TwiML that routes a call's audio to our
// media-stream endpoint.
func ConnectStreamTwiML(domain string) string {
	return fmt.Sprintf(
		`<?xml version="1.0" encoding="UTF-8"?><Response><Connect><Stream url="wss://%s/media-stream" /></Connect></Response>`,
		domain)
}

// IncomingCallTwiML greets an inbound caller, personalized when we know
// their next appointment, then connects the call to the media stream.
func IncomingCallTwiML(host string, appt *directory.AppointmentDetails) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><Response>`)

	if appt != nil {
		doctor := appt.Doctor
		if doctor == "" {
			doctor = "your doctor"
		}
		fmt.Fprintf(&b, "<Say>%s</Say>",
			escape(fmt.Sprintf("Hello %s. This is an AI assistant calling from %s's office.", appt.PatientName, doctor)))
		b.WriteString(`<Pause length="1"/>`)
		fmt.Fprintf(&b, "<Say>%s</Say>",
			escape(fmt.Sprintf("I'm calling about your appointment on %s at %s. Would you like to confirm this appointment?", appt.Date, appt.Time)))
	} else {
		fmt.Fprintf(&b, "<Say>%s</Say>",
			escape("Hello. This is an AI assistant calling from the doctor's office."))
		b.WriteString(`<Pause length="1"/>`)
		fmt.Fprintf(&b, "<Say>%s</Say>",
			escape("I'm calling about your upcoming appointment. Would you like to confirm or reschedule?"))
	}

	fmt.Fprintf(&b, `<Connect><Stream url="wss://%s/media-stream" /></Connect>`, host)
	b.WriteString(`</Response>`)
	return b.String()
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
