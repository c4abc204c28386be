// Package realtime manages one live connection to the speech-to-speech
// model: session setup, the opening line, and transcript/outcome
// bookkeeping over the model's event stream.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Foundasion/appointment-confirmation-bot/internal/callstore"
	"github.com/Foundasion/appointment-confirmation-bot/internal/directory"
)

var (
	// ErrSessionNotConfirmed means the model never acknowledged the session
	// configuration within the attempt budget.
	ErrSessionNotConfirmed = errors.New("realtime session not confirmed")

	// ErrSessionSetup wraps an explicit error event received during setup.
	ErrSessionSetup = errors.New("realtime session setup failed")
)

// Conn is the duplex connection to the model. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Config carries the connection and handshake parameters for one session.
// ConfirmRetries and ConfirmTimeout together bound the wait for
// session.created: the handshake read deadline is their product.
type Config struct {
	URL            string
	APIKey         string
	Voice          string
	ConfirmRetries int
	ConfirmTimeout time.Duration
}

// Session owns a single model connection for the duration of one call.
type Session struct {
	conn     Conn
	log      logrus.FieldLogger
	voice    string
	appt     *directory.AppointmentDetails
	resolver *Resolver

	mu         sync.Mutex
	closed     bool
	transcript []callstore.Turn
	scanner    outcomeScanner
}

// Open dials the model endpoint and configures the session: it sends a
// session.update built from the appointment context and waits for
// session.created within a bounded read budget. The connection is closed on
// any setup failure.
func Open(ctx context.Context, cfg Config, appt *directory.AppointmentDetails, resolver *Resolver, log logrus.FieldLogger) (*Session, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime endpoint: %w (status %s)", err, resp.Status)
		}
		return nil, fmt.Errorf("dial realtime endpoint: %w", err)
	}

	s := NewSession(conn, cfg, appt, resolver, log)
	if err := s.configure(cfg); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// NewSession wraps an established connection without performing the setup
// handshake. Callers other than tests normally use Open.
func NewSession(conn Conn, cfg Config, appt *directory.AppointmentDetails, resolver *Resolver, log logrus.FieldLogger) *Session {
	if resolver == nil {
		resolver = NewResolver()
	}
	return &Session{
		conn:     conn,
		log:      log,
		voice:    cfg.Voice,
		appt:     appt,
		resolver: resolver,
		transcript: []callstore.Turn{
			{Role: callstore.RoleSystem, Content: "Call initiated with appointment confirmation bot."},
		},
	}
}

// Configure runs the setup handshake on an already-established connection.
func (s *Session) Configure(cfg Config) error {
	return s.configure(cfg)
}

func (s *Session) configure(cfg Config) error {
	update := sessionUpdate{
		Type: "session.update",
		Session: sessionConfig{
			TurnDetection: turnDetection{
				Type:              "server_vad",
				Threshold:         0.3,
				SilenceDurationMs: 500,
				PrefixPaddingMs:   500,
				CreateResponse:    true,
				InterruptResponse: true,
			},
			InputAudioFormat:  "g711_ulaw",
			OutputAudioFormat: "g711_ulaw",
			Voice:             s.voice,
			Instructions:      Instructions(s.appt),
			Modalities:        []string{"text", "audio"},
			Temperature:       0.7,
		},
	}

	if err := s.conn.WriteJSON(update); err != nil {
		return fmt.Errorf("send session.update: %w", err)
	}

	retries := cfg.ConfirmRetries
	if retries < 1 {
		retries = 1
	}
	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	// A websocket read that hits its deadline leaves the connection unusable
	// for every read after it, so the whole budget is armed as one deadline
	// up front rather than re-armed per attempt.
	budget := time.Duration(retries) * timeout
	if err := s.conn.SetReadDeadline(time.Now().Add(budget)); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.log.WithField("budget", budget.String()).Warn("timed out waiting for session confirmation")
				return ErrSessionNotConfirmed
			}
			return fmt.Errorf("read session confirmation: %w", err)
		}

		ev, err := ParseEvent(raw)
		if err != nil {
			s.log.WithError(err).Warn("unparseable event during session setup")
			continue
		}

		switch ev.Type {
		case EventSessionCreated:
			// Runtime reads are unbounded; only the handshake is.
			_ = s.conn.SetReadDeadline(time.Time{})
			return nil
		case EventError:
			msg := "unknown error"
			if ev.Error != nil && ev.Error.Message != "" {
				msg = ev.Error.Message
			}
			return fmt.Errorf("%w: %s", ErrSessionSetup, msg)
		}
		// Any other event type during setup is ignored.
	}
}

// SendOpeningLine injects the greeting as a system-role conversation item,
// asks the model to respond, and records the greeting as an assistant turn.
func (s *Session) SendOpeningLine() error {
	greeting := Greeting(s.appt)

	item := conversationItemCreate{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type: "message",
			Role: "system",
			Content: []itemContent{{
				Type: "input_text",
				Text: "The call has just started. You are making the first contact. Begin with: " + greeting,
			}},
		},
	}
	if err := s.conn.WriteJSON(item); err != nil {
		return fmt.Errorf("send opening item: %w", err)
	}
	if err := s.conn.WriteJSON(responseCreate{Type: "response.create"}); err != nil {
		return fmt.Errorf("request first response: %w", err)
	}

	s.appendTurn(callstore.RoleAssistant, greeting)
	return nil
}

// AppendAudio forwards one base64 audio chunk to the model. Chunks arriving
// after the session closed are dropped without error.
func (s *Session) AppendAudio(payload string) error {
	if s.Closed() {
		return nil
	}
	return s.conn.WriteJSON(audioAppend{Type: "input_audio_buffer.append", Audio: payload})
}

// ReadEvent blocks for the next raw event from the model connection.
func (s *Session) ReadEvent() ([]byte, error) {
	_, raw, err := s.conn.ReadMessage()
	return raw, err
}

// ParseEvent decodes one raw model event.
func ParseEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("parse model event: %w", err)
	}
	return &ev, nil
}

// Ingest parses one raw event and performs transcript and outcome
// bookkeeping. Incremental assistant text becomes an assistant turn and is
// fed through the incremental keyword scanner. The parsed event is returned
// for the relay to act on.
func (s *Session) Ingest(raw []byte) (*Event, error) {
	ev, err := ParseEvent(raw)
	if err != nil {
		return nil, err
	}

	switch ev.Type {
	case EventContentDelta:
		if text, ok := ev.ContentText(); ok {
			s.mu.Lock()
			s.transcript = append(s.transcript, callstore.Turn{Role: callstore.RoleAssistant, Content: text})
			outcome, found := s.scanner.feed(text)
			s.mu.Unlock()

			if found {
				s.resolver.Propose(SourceHeuristic, outcome, nil)
			}
		}
	case EventError:
		msg := "unknown error"
		if ev.Error != nil && ev.Error.Message != "" {
			msg = ev.Error.Message
		}
		s.log.WithField("message", msg).Error("error event from model")
	}

	return ev, nil
}

// RecordUserTurn appends a transcribed user utterance to the transcript and
// feeds it to the keyword classifier as a fallback outcome signal.
func (s *Session) RecordUserTurn(text string) {
	s.appendTurn(callstore.RoleUser, text)
	if outcome, ok := ClassifyUserUtterance(text); ok {
		s.resolver.Propose(SourceHeuristic, outcome, nil)
	}
}

func (s *Session) appendTurn(role callstore.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, callstore.Turn{Role: role, Content: content})
}

// Transcript returns a copy of the accumulated turns.
func (s *Session) Transcript() []callstore.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]callstore.Turn(nil), s.transcript...)
}

// Resolver returns the session's outcome authority.
func (s *Session) Resolver() *Resolver {
	return s.resolver
}

// Close shuts the model connection. It is idempotent and safe to call from
// either forwarding loop.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.conn.Close()
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
