package api

import (
	"time"

	"github.com/Foundasion/appointment-confirmation-bot/internal/callstore"
)

type MakeCallRequest struct {
	ToNumber      string `json:"to_number"`
	AppointmentID string `json:"appointment_id,omitempty"`
}

type MakeCallResponse struct {
	Status        string `json:"status"`
	CallSID       string `json:"call_sid"`
	To            string `json:"to"`
	AppointmentID string `json:"appointment_id,omitempty"`
}

type CallStatusResponse struct {
	CallSID   string `json:"call_sid"`
	Status    string `json:"status"`
	To        string `json:"to,omitempty"`
	From      string `json:"from,omitempty"`
	Direction string `json:"direction,omitempty"`
	Duration  string `json:"duration,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
}

type TranscriptResponse struct {
	CallSID    string           `json:"call_sid"`
	Transcript []callstore.Turn `json:"transcript"`
}

type OutcomeResponse struct {
	CallSID     string             `json:"call_sid"`
	Outcome     *callstore.Outcome `json:"outcome"`
	NewDateTime *time.Time         `json:"new_datetime,omitempty"`
}
