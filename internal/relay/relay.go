// Package relay pumps audio frames in both directions between the telephony
// websocket and the model session for the duration of one call, and routes
// sideband events to the dialogue state machine.
package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Foundasion/appointment-confirmation-bot/internal/callstore"
	"github.com/Foundasion/appointment-confirmation-bot/internal/conversation"
	"github.com/Foundasion/appointment-confirmation-bot/internal/realtime"
	"github.com/Foundasion/appointment-confirmation-bot/internal/telephony"
)

// TelephonyConn is the telephony-side duplex socket. *websocket.Conn
// satisfies it.
type TelephonyConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
}

// ModelSession is the relay's view of the realtime voice session.
type ModelSession interface {
	AppendAudio(payload string) error
	ReadEvent() ([]byte, error)
	Ingest(raw []byte) (*realtime.Event, error)
	RecordUserTurn(text string)
	Resolver() *realtime.Resolver
	Close() error
	Closed() bool
}

// Dialogue is the relay's view of the conversation state machine.
type Dialogue interface {
	Process(ctx context.Context, text string) conversation.Reply
	Outcome() conversation.Outcome
}

// Relay forwards frames between one telephony connection and one model
// session. The two directions run as independent goroutines sharing nothing
// beyond the connections themselves and the session's closed flag.
type Relay struct {
	telephony TelephonyConn
	session   ModelSession
	dialogue  Dialogue
	streamSID string
	log       logrus.FieldLogger
}

func New(tel TelephonyConn, session ModelSession, dialogue Dialogue, streamSID string, log logrus.FieldLogger) *Relay {
	return &Relay{
		telephony: tel,
		session:   session,
		dialogue:  dialogue,
		streamSID: streamSID,
		log:       log,
	}
}

// Run pumps both directions until each loop has exited. The telephony loop
// ends on a stop event or disconnect and closes the model session; the
// model loop ends when the model connection closes or the telephony side
// stops accepting audio.
func (r *Relay) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		r.pumpTelephony(ctx)
	}()
	go func() {
		defer wg.Done()
		r.pumpModel()
	}()

	wg.Wait()
}

// pumpTelephony forwards telephony frames to the model and dispatches
// sideband events. A malformed frame is logged and skipped; it never aborts
// the loop.
func (r *Relay) pumpTelephony(ctx context.Context) {
	for {
		_, raw, err := r.telephony.ReadMessage()
		if err != nil {
			r.log.WithError(err).Debug("telephony stream closed")
			_ = r.session.Close()
			return
		}

		var msg telephony.StreamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			r.log.WithError(err).Warn("malformed telephony frame, skipping")
			continue
		}

		switch msg.Event {
		case telephony.EventMedia:
			if msg.Media == nil || msg.Media.Payload == "" {
				continue
			}
			// Best effort: audio arriving after the model connection closed
			// is dropped without error.
			if r.session.Closed() {
				continue
			}
			if err := r.session.AppendAudio(msg.Media.Payload); err != nil {
				r.log.WithError(err).Warn("forward audio to model failed")
			}

		case telephony.EventMark:
			if msg.Mark == nil || msg.Mark.Name != telephony.MarkTranscript || msg.Mark.Value == "" {
				continue
			}
			r.handleUserUtterance(ctx, msg.Mark.Value)

		case telephony.EventStop:
			_ = r.session.Close()
			return

		default:
			// connected, start re-sends and unknown tags are ignored here.
		}
	}
}

// handleUserUtterance feeds a transcribed utterance to the session's
// keyword classifier and the state machine in parallel. A completed
// dialogue submits the authoritative outcome.
func (r *Relay) handleUserUtterance(ctx context.Context, text string) {
	r.session.RecordUserTurn(text)

	reply := r.dialogue.Process(ctx, text)
	r.log.WithFields(logrus.Fields{
		"intent": reply.Intent,
		"stream": r.streamSID,
	}).Info("user utterance classified")

	outcome := r.dialogue.Outcome()
	if outcome.Status != "incomplete" {
		r.session.Resolver().Propose(
			realtime.SourceStateMachine,
			callstore.Outcome(outcome.Status),
			outcome.NewDateTime,
		)
	}
}

// pumpModel forwards model audio deltas to the telephony side. Payloads
// that fail to decode are logged and skipped.
func (r *Relay) pumpModel() {
	for {
		raw, err := r.session.ReadEvent()
		if err != nil {
			r.log.WithError(err).Debug("model stream closed")
			return
		}

		ev, err := r.session.Ingest(raw)
		if err != nil {
			r.log.WithError(err).Warn("malformed model event, skipping")
			continue
		}

		payload, ok := ev.AudioPayload()
		if !ok {
			continue
		}

		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			r.log.WithError(err).Warn("undecodable audio delta, skipping")
			continue
		}

		frame := telephony.MediaOut(r.streamSID, base64.StdEncoding.EncodeToString(decoded))
		if err := r.telephony.WriteJSON(frame); err != nil {
			r.log.WithError(err).Debug("telephony write failed, ending model pump")
			return
		}
	}
}
