// Package api is the HTTP control plane: call initiation, call status and
// transcript queries, inbound-call TwiML, and the media-stream websocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/Foundasion/appointment-confirmation-bot/internal/callstore"
	"github.com/Foundasion/appointment-confirmation-bot/internal/config"
	"github.com/Foundasion/appointment-confirmation-bot/internal/directory"
	"github.com/Foundasion/appointment-confirmation-bot/internal/realtime"
	"github.com/Foundasion/appointment-confirmation-bot/internal/registry"
	"github.com/Foundasion/appointment-confirmation-bot/internal/relay"
	"github.com/Foundasion/appointment-confirmation-bot/internal/telephony"
)

// Caller is the slice of the telephony client the API needs. It is nil when
// telephony credentials are not configured.
type Caller interface {
	MakeCall(ctx context.Context, toNumber, domain string) (string, error)
	GetCall(ctx context.Context, callSID string) (*telephony.Call, error)
}

// StreamSession is the model session as the stream handler drives it. It
// extends the relay's view with setup and transcript access.
type StreamSession interface {
	relay.ModelSession
	SendOpeningLine() error
	Transcript() []callstore.Turn
}

// SessionOpener opens a configured model session for one call. Swapped for a
// fake in tests.
type SessionOpener func(ctx context.Context, appt *directory.AppointmentDetails, resolver *realtime.Resolver) (StreamSession, error)

// Server carries the handler dependencies.
type Server struct {
	log         logrus.FieldLogger
	cfg         config.Config
	dir         directory.Directory
	store       callstore.Store
	registry    *registry.Registry
	caller      Caller
	openSession SessionOpener
}

func NewServer(cfg config.Config, dir directory.Directory, store callstore.Store, reg *registry.Registry, caller Caller, openSession SessionOpener, log logrus.FieldLogger) *Server {
	return &Server{
		log:         log,
		cfg:         cfg,
		dir:         dir,
		store:       store,
		registry:    reg,
		caller:      caller,
		openSession: openSession,
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Appointment confirmation bot is running",
	})
}

// handleIncomingCall answers the inbound-call webhook with TwiML that greets
// the caller and connects the audio to the media stream. The greeting is
// personalized when the caller's number maps to an upcoming appointment.
func (s *Server) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.log.WithError(err).Warn("unparseable incoming-call webhook")
	}
	from := r.FormValue("From")
	callSID := r.FormValue("CallSid")

	var appt *directory.AppointmentDetails
	if from != "" {
		found, err := s.dir.NextAppointmentForPhone(r.Context(), from)
		if err != nil && !errors.Is(err, directory.ErrAppointmentNotFound) && !errors.Is(err, directory.ErrPatientNotFound) {
			s.log.WithError(err).Warn("appointment lookup for inbound caller failed")
		}
		appt = found
	}

	if callSID != "" && appt != nil {
		s.registry.Register(callSID, appt)
	}

	host := s.cfg.Domain
	if host == "" {
		host = r.Host
	}

	w.Header().Set("Content-Type", "text/xml")
	_, _ = fmt.Fprint(w, telephony.IncomingCallTwiML(host, appt))
}

// handleMakeCall places an outbound confirmation call and registers the
// appointment context under the returned call SID.
func (s *Server) handleMakeCall(w http.ResponseWriter, r *http.Request) {
	var req MakeCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if req.ToNumber == "" {
		writeError(w, http.StatusBadRequest, "missing_to_number", "to_number is required")
		return
	}
	if s.caller == nil {
		writeError(w, http.StatusServiceUnavailable, "telephony_unavailable", "telephony credentials are not configured")
		return
	}

	var appt *directory.AppointmentDetails
	if req.AppointmentID != "" {
		found, err := s.dir.AppointmentDetails(r.Context(), req.AppointmentID)
		if err != nil {
			if errors.Is(err, directory.ErrAppointmentNotFound) || errors.Is(err, directory.ErrPatientNotFound) {
				writeError(w, http.StatusNotFound, "appointment_not_found", "no appointment with id "+req.AppointmentID)
				return
			}
			s.log.WithError(err).Error("appointment lookup failed")
			writeError(w, http.StatusInternalServerError, "internal_error", "appointment lookup failed")
			return
		}
		appt = found
	}

	callSID, err := s.caller.MakeCall(r.Context(), req.ToNumber, s.cfg.Domain)
	if err != nil {
		if errors.Is(err, telephony.ErrNumberNotAllowed) {
			writeError(w, http.StatusBadRequest, "number_not_allowed",
				"the destination number is not owned, verified, or allowed in testing mode")
			return
		}
		s.log.WithError(err).Error("outbound call failed")
		writeError(w, http.StatusBadGateway, "call_failed", "could not place the outbound call")
		return
	}

	s.registry.Register(callSID, appt)

	rec := callstore.Record{
		CallSID:       callSID,
		To:            req.ToNumber,
		Status:        callstore.StateInitiated,
		AppointmentID: req.AppointmentID,
	}
	if err := s.store.Create(r.Context(), rec); err != nil {
		s.log.WithError(err).Error("create call record failed")
	}

	writeJSON(w, http.StatusOK, MakeCallResponse{
		Status:        callstore.StateInitiated,
		CallSID:       callSID,
		To:            req.ToNumber,
		AppointmentID: req.AppointmentID,
	})
}

// handleCallStatus reports a call's live status from the telephony provider
// when configured, falling back to the local record otherwise.
func (s *Server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	callSID := chi.URLParam(r, "callSID")

	if s.caller != nil {
		call, err := s.caller.GetCall(r.Context(), callSID)
		if err != nil {
			var apiErr *telephony.APIError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
				writeError(w, http.StatusNotFound, "call_not_found", "no call with sid "+callSID)
				return
			}
			s.log.WithError(err).Error("fetch call status failed")
			writeError(w, http.StatusBadGateway, "status_unavailable", "could not fetch call status")
			return
		}
		writeJSON(w, http.StatusOK, CallStatusResponse{
			CallSID:   call.SID,
			Status:    call.Status,
			To:        call.To,
			From:      call.From,
			Direction: call.Direction,
			Duration:  call.Duration,
			StartTime: call.StartTime,
			EndTime:   call.EndTime,
		})
		return
	}

	rec, err := s.store.Get(r.Context(), callSID)
	if err != nil {
		if errors.Is(err, callstore.ErrCallNotFound) {
			writeError(w, http.StatusNotFound, "call_not_found", "no call with sid "+callSID)
			return
		}
		s.log.WithError(err).Error("read call record failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "could not read call record")
		return
	}
	writeJSON(w, http.StatusOK, CallStatusResponse{
		CallSID: rec.CallSID,
		Status:  rec.Status,
		To:      rec.To,
	})
}

// handleCallTranscript returns the stored transcript. Unknown calls get an
// empty transcript rather than an error.
func (s *Server) handleCallTranscript(w http.ResponseWriter, r *http.Request) {
	callSID := chi.URLParam(r, "callSID")

	rec, err := s.store.Get(r.Context(), callSID)
	if err != nil {
		if errors.Is(err, callstore.ErrCallNotFound) {
			writeJSON(w, http.StatusOK, TranscriptResponse{CallSID: callSID, Transcript: []callstore.Turn{}})
			return
		}
		s.log.WithError(err).Error("read call record failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "could not read call record")
		return
	}

	turns := rec.Transcript
	if turns == nil {
		turns = []callstore.Turn{}
	}
	writeJSON(w, http.StatusOK, TranscriptResponse{CallSID: callSID, Transcript: turns})
}

// handleCallOutcome returns the resolved outcome, or a null outcome when the
// call is unknown or still in flight.
func (s *Server) handleCallOutcome(w http.ResponseWriter, r *http.Request) {
	callSID := chi.URLParam(r, "callSID")

	rec, err := s.store.Get(r.Context(), callSID)
	if err != nil {
		if errors.Is(err, callstore.ErrCallNotFound) {
			writeJSON(w, http.StatusOK, OutcomeResponse{CallSID: callSID})
			return
		}
		s.log.WithError(err).Error("read call record failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "could not read call record")
		return
	}

	resp := OutcomeResponse{CallSID: callSID, NewDateTime: rec.NewDateTime}
	if rec.Outcome != "" {
		outcome := rec.Outcome
		resp.Outcome = &outcome
	}
	writeJSON(w, http.StatusOK, resp)
}
