package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Foundasion/appointment-confirmation-bot/internal/callstore"
	"github.com/Foundasion/appointment-confirmation-bot/internal/conversation"
	"github.com/Foundasion/appointment-confirmation-bot/internal/realtime"
	"github.com/Foundasion/appointment-confirmation-bot/internal/relay"
	"github.com/Foundasion/appointment-confirmation-bot/internal/telephony"
)

// handshakeTimeout bounds how long we wait for the start frame before giving
// up on a fresh stream connection.
const handshakeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Twilio's media server does not send a browser Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleMediaStream accepts one telephony media stream, opens a model
// session for the call, and runs the relay until either side hangs up.
func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("media-stream upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	callSID, streamSID, err := awaitStart(conn)
	if err != nil {
		s.log.WithError(err).Warn("media stream ended before start frame")
		return
	}
	if callSID == "" {
		// Streams without a call SID (e.g. the simulator) still get a record.
		callSID = "stream-" + uuid.New().String()
	}

	log := s.log.WithFields(logrus.Fields{"call_sid": callSID, "stream_sid": streamSID})
	log.Info("media stream started")

	appt, _ := s.registry.Lookup(callSID)

	ctx := context.Background()
	if _, err := s.store.Get(ctx, callSID); err != nil {
		rec := callstore.Record{CallSID: callSID, Status: callstore.StateStreaming}
		if appt != nil {
			rec.AppointmentID = appt.AppointmentID
		}
		if err := s.store.Create(ctx, rec); err != nil {
			log.WithError(err).Error("create call record failed")
		}
	} else if err := s.store.SetStatus(ctx, callSID, callstore.StateStreaming); err != nil {
		log.WithError(err).Error("mark call streaming failed")
	}

	resolver := realtime.NewResolver()
	session, err := s.openSession(r.Context(), appt, resolver)
	if err != nil {
		// No model, no voice. Stay on the line silently so the caller hears
		// a clean hangup rather than an error tone.
		log.WithError(err).Error("model session setup failed")
		if err := s.store.SetStatus(ctx, callSID, callstore.StateFailed); err != nil {
			log.WithError(err).Error("mark call failed failed")
		}
		drainUntilStop(conn)
		s.registry.Drop(callSID)
		return
	}
	defer func() { _ = session.Close() }()

	if err := session.SendOpeningLine(); err != nil {
		log.WithError(err).Warn("send opening line failed")
	}

	dialogue := conversation.NewManager(s.dir, log)
	dialogue.SetAppointment(appt)

	relay.New(conn, session, dialogue, streamSID, log).Run(r.Context())

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.SetTranscript(flushCtx, callSID, session.Transcript()); err != nil {
		log.WithError(err).Error("store transcript failed")
	}

	outcome, newDateTime, ok := session.Resolver().Outcome()
	if !ok {
		outcome = callstore.OutcomeIncomplete
	}
	if err := s.store.SetOutcome(flushCtx, callSID, outcome, newDateTime); err != nil {
		log.WithError(err).Error("store outcome failed")
	}
	if err := s.store.SetStatus(flushCtx, callSID, callstore.StateCompleted); err != nil {
		log.WithError(err).Error("mark call completed failed")
	}

	s.registry.Drop(callSID)
	log.WithField("outcome", outcome).Info("media stream finished")
}

// awaitStart reads frames until the start event arrives and returns the call
// and stream identifiers. Connected frames are skipped.
func awaitStart(conn *websocket.Conn) (callSID, streamSID string, err error) {
	deadline := time.Now().Add(handshakeTimeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return "", "", err
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return "", "", err
		}

		var msg telephony.StreamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		if msg.Event != telephony.EventStart {
			continue
		}

		streamSID = msg.StreamSID
		if msg.Start != nil {
			callSID = msg.Start.CallSID
			if msg.Start.StreamSID != "" {
				streamSID = msg.Start.StreamSID
			}
		}
		return callSID, streamSID, nil
	}
}

// drainUntilStop keeps reading and discarding frames until the stream stops.
func drainUntilStop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg telephony.StreamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Event == telephony.EventStop {
			return
		}
	}
}
