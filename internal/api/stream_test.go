package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Foundasion/appointment-confirmation-bot/internal/callstore"
	"github.com/Foundasion/appointment-confirmation-bot/internal/directory"
	"github.com/Foundasion/appointment-confirmation-bot/internal/realtime"
	"github.com/Foundasion/appointment-confirmation-bot/internal/telephony"
)

// fakeStreamSession is a model session whose event stream stays silent until
// the session is closed.
type fakeStreamSession struct {
	resolver *realtime.Resolver

	mu        sync.Mutex
	appended  []string
	userTurns []string
	closed    bool
	done      chan struct{}
}

func newFakeStreamSession(resolver *realtime.Resolver) *fakeStreamSession {
	return &fakeStreamSession{resolver: resolver, done: make(chan struct{})}
}

func (f *fakeStreamSession) AppendAudio(payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, payload)
	return nil
}

func (f *fakeStreamSession) ReadEvent() ([]byte, error) {
	<-f.done
	return nil, errors.New("session closed")
}

func (f *fakeStreamSession) Ingest(raw []byte) (*realtime.Event, error) {
	return realtime.ParseEvent(raw)
}

func (f *fakeStreamSession) RecordUserTurn(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userTurns = append(f.userTurns, text)
}

func (f *fakeStreamSession) Resolver() *realtime.Resolver { return f.resolver }

func (f *fakeStreamSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func (f *fakeStreamSession) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeStreamSession) SendOpeningLine() error { return nil }

func (f *fakeStreamSession) Transcript() []callstore.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	turns := []callstore.Turn{{Role: callstore.RoleAssistant, Content: "Hi there!"}}
	for _, u := range f.userTurns {
		turns = append(turns, callstore.Turn{Role: callstore.RoleUser, Content: u})
	}
	return turns
}

func dialStream(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/media-stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		if resp != nil {
			t.Fatalf("dial: %v (status %s)", err, resp.Status)
		}
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForStatus(t *testing.T, store callstore.Store, callSID, want string) *callstore.Record {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := store.Get(context.Background(), callSID)
		if err == nil && rec.Status == want {
			return rec
		}
		time.Sleep(20 * time.Millisecond)
	}
	rec, err := store.Get(context.Background(), callSID)
	t.Fatalf("call %s never reached status %q (rec=%+v err=%v)", callSID, want, rec, err)
	return nil
}

func TestMediaStreamConfirmFlow(t *testing.T) {
	var session *fakeStreamSession
	open := func(ctx context.Context, appt *directory.AppointmentDetails, resolver *realtime.Resolver) (StreamSession, error) {
		session = newFakeStreamSession(resolver)
		return session, nil
	}

	s, router, deps := newTestServer(t, nil, open)
	srv := httptest.NewServer(router)
	defer srv.Close()

	appt, err := s.dir.AppointmentDetails(context.Background(), "A001")
	if err != nil {
		t.Fatalf("demo appointment: %v", err)
	}
	deps.reg.Register("CA42", appt)

	conn := dialStream(t, srv)

	send := func(msg telephony.StreamMessage) {
		t.Helper()
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("send %s: %v", msg.Event, err)
		}
	}

	send(telephony.StreamMessage{Event: telephony.EventConnected})
	send(telephony.StreamMessage{
		Event:     telephony.EventStart,
		StreamSID: "MZ1",
		Start:     &telephony.StartFrame{StreamSID: "MZ1", CallSID: "CA42"},
	})
	send(telephony.StreamMessage{
		Event: telephony.EventMedia,
		Media: &telephony.MediaFrame{Payload: "AAAA"},
	})
	send(telephony.StreamMessage{
		Event: telephony.EventMark,
		Mark:  &telephony.MarkFrame{Name: telephony.MarkTranscript, Value: "Yes, that works"},
	})
	send(telephony.StreamMessage{
		Event: telephony.EventMark,
		Mark:  &telephony.MarkFrame{Name: telephony.MarkTranscript, Value: "no that's everything, thanks"},
	})
	send(telephony.StreamMessage{Event: telephony.EventStop, StreamSID: "MZ1"})

	rec := waitForStatus(t, deps.store, "CA42", callstore.StateCompleted)

	if rec.Outcome != callstore.OutcomeConfirmed {
		t.Fatalf("outcome = %q, want confirmed", rec.Outcome)
	}
	if len(rec.Transcript) != 3 {
		t.Fatalf("transcript = %+v, want greeting plus two user turns", rec.Transcript)
	}

	if _, ok := deps.reg.Lookup("CA42"); ok {
		t.Fatal("registry entry must be dropped when the stream ends")
	}

	session.mu.Lock()
	appendedAudio := len(session.appended)
	session.mu.Unlock()
	if appendedAudio != 1 {
		t.Fatalf("forwarded %d audio chunks, want 1", appendedAudio)
	}
}

func TestMediaStreamSessionSetupFailure(t *testing.T) {
	open := func(ctx context.Context, appt *directory.AppointmentDetails, resolver *realtime.Resolver) (StreamSession, error) {
		return nil, errors.New("model unreachable")
	}

	_, router, deps := newTestServer(t, nil, open)
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn := dialStream(t, srv)

	if err := conn.WriteJSON(telephony.StreamMessage{
		Event:     telephony.EventStart,
		StreamSID: "MZ2",
		Start:     &telephony.StartFrame{StreamSID: "MZ2", CallSID: "CA43"},
	}); err != nil {
		t.Fatalf("send start: %v", err)
	}

	// The handler must keep draining frames rather than dropping the socket.
	if err := conn.WriteJSON(telephony.StreamMessage{
		Event: telephony.EventMedia,
		Media: &telephony.MediaFrame{Payload: "AAAA"},
	}); err != nil {
		t.Fatalf("send media after setup failure: %v", err)
	}
	if err := conn.WriteJSON(telephony.StreamMessage{Event: telephony.EventStop}); err != nil {
		t.Fatalf("send stop: %v", err)
	}

	waitForStatus(t, deps.store, "CA43", callstore.StateFailed)
}

func TestMediaStreamRejectsPlainGET(t *testing.T) {
	_, router, _ := newTestServer(t, nil, nil)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/media-stream")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		t.Fatal("non-websocket request must not succeed")
	}
}
